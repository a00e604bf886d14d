package models

import "crypto/sha256"

// Coin is the fundamental UTXO-like row: a (parent, puzzle_hash, amount)
// triple whose id is the hash of that triple.
type Coin struct {
	ParentCoinInfo Hash
	PuzzleHash     Hash
	Amount         uint64
}

// CoinID returns the content-addressed id of the coin: sha256 of the
// concatenation of parent hash, puzzle hash, and the amount as an 8-byte
// big-endian integer, giving every coin a canonical, content-addressed id.
func (c Coin) CoinID() Hash {
	buf := make([]byte, 0, HashSize*2+8)
	buf = append(buf, c.ParentCoinInfo[:]...)
	buf = append(buf, c.PuzzleHash[:]...)
	buf = append(buf, byte(c.Amount>>56), byte(c.Amount>>48), byte(c.Amount>>40), byte(c.Amount>>32),
		byte(c.Amount>>24), byte(c.Amount>>16), byte(c.Amount>>8), byte(c.Amount))
	sum := sha256.Sum256(buf)
	return Hash(sum)
}

// Child derives the coin created by a spend of c that creates a coin with
// the given puzzle hash and amount.
func (c Coin) Child(puzzleHash Hash, amount uint64) Coin {
	return Coin{
		ParentCoinInfo: c.CoinID(),
		PuzzleHash:     puzzleHash,
		Amount:         amount,
	}
}

// CoinRecord is the persisted projection of a Coin plus its sync/ownership
// state.
type CoinRecord struct {
	CoinID          Hash
	ParentCoinInfo  Hash
	PuzzleHash      Hash
	Amount          uint64
	CreatedHeight   *uint32
	SpentHeight     *uint32
	AssetID         *Hash // FK to Asset.Hash, nil until classified
	P2PuzzleHash    *Hash // FK to P2Puzzle.Hash, nil until classified
	IsChildrenSynced bool
	MempoolItemID   *Hash // non-nil while an unconfirmed bundle spends/creates this coin
	OfferID         *Hash // non-nil while locked into an offer's settlement side
}

// Coin reconstructs the bare Coin triple from the record.
func (r CoinRecord) Coin() Coin {
	return Coin{ParentCoinInfo: r.ParentCoinInfo, PuzzleHash: r.PuzzleHash, Amount: r.Amount}
}

// IsSpendable reports whether the coin is created, not spent, and touched
// by neither a mempool lock nor an offer lock.
func (r CoinRecord) IsSpendable() bool {
	return r.CreatedHeight != nil && r.SpentHeight == nil && r.MempoolItemID == nil && r.OfferID == nil
}

// IsUnsynced reports whether the coin still needs puzzle-queue attention:
// no asset binding yet, or a spent coin whose children have not been traced.
func (r CoinRecord) IsUnsynced() bool {
	if r.AssetID == nil {
		return true
	}
	return r.SpentHeight != nil && !r.IsChildrenSynced
}

// CoinFilter narrows a coin_records query.
type CoinFilter struct {
	AssetID        *Hash
	P2PuzzleHash   *Hash
	SpendableOnly  bool
	IncludeSpent   bool
	AssetKind      *AssetKind
}

// CoinSort selects the ordering for a coin_records page.
type CoinSort int

const (
	SortByCreatedHeight CoinSort = iota
	SortByAmount
)

// Paging is a simple offset/limit page request shared by every paginated
// store query.
type Paging struct {
	Offset int
	Limit  int
}

// Page wraps a result slice with the total matching row count, the shape
// every paginated store query returns.
type Page[T any] struct {
	Items      []T
	TotalCount int
}
