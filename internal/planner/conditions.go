package planner

import "github.com/rawblock/lightwallet-engine/pkg/models"

// Condition is one clause of a coin spend's output condition list, the
// level the planner reasons at before a PuzzleBuilder lowers it to an
// actual CLVM solution.
type Condition interface {
	isCondition()
	equalCondition(Condition) bool
}

// CreateCoin asserts that the spend creates a child coin with the given
// puzzle hash and amount.
type CreateCoin struct {
	PuzzleHash models.Hash
	Amount     uint64
	Memos      [][]byte
}

func (CreateCoin) isCondition() {}

func (c CreateCoin) equalCondition(other Condition) bool {
	o, ok := other.(CreateCoin)
	return ok && o.PuzzleHash == c.PuzzleHash && o.Amount == c.Amount
}

// ReserveFee asserts that amount of this spend's value is reserved as
// the bundle's fee rather than returned in any output coin.
type ReserveFee struct {
	Amount uint64
}

func (ReserveFee) isCondition() {}

func (r ReserveFee) equalCondition(other Condition) bool {
	o, ok := other.(ReserveFee)
	return ok && o.Amount == r.Amount
}

// AssertConcurrentSpend asserts that coinID is spent in the same block,
// binding two coins into one atomic transaction without either directly
// referencing the other's value.
type AssertConcurrentSpend struct {
	CoinID models.Hash
}

func (AssertConcurrentSpend) isCondition() {}

func (a AssertConcurrentSpend) equalCondition(other Condition) bool {
	o, ok := other.(AssertConcurrentSpend)
	return ok && o.CoinID == a.CoinID
}

// AssertConcurrentPuzzle asserts that some coin with puzzleHash is spent
// in the same block — the announcement-style assertion the planner
// inserts between a DID and an NFT it authorizes an ownership change on.
type AssertConcurrentPuzzle struct {
	PuzzleHash models.Hash
}

func (AssertConcurrentPuzzle) isCondition() {}

func (a AssertConcurrentPuzzle) equalCondition(other Condition) bool {
	o, ok := other.(AssertConcurrentPuzzle)
	return ok && o.PuzzleHash == a.PuzzleHash
}

// LaunchSingleton marks a launcher coin's spend as creating a brand new
// singleton per action's parameters (a MintNft, CreateDid, or MintOption
// action). Currying the eve puzzle from those parameters is the
// PuzzleBuilder's job, the same boundary every other condition draws
// around CLVM construction.
type LaunchSingleton struct {
	Action Action
}

func (LaunchSingleton) isCondition() {}

// equalCondition never reports a duplicate: every launch is distinct by
// construction (each gets its own launcher coin), so there is nothing to
// collision-route.
func (LaunchSingleton) equalCondition(Condition) bool { return false }

// MutateSingleton marks a singleton coin's spend as applying action (a
// TransferNft, AssignNft, UpdateNftMetadata, TransferDid, ExerciseOption,
// or MeltSingleton action) to recreate it. As with LaunchSingleton, the
// PuzzleBuilder derives the actual recreated puzzle hash and solution.
type MutateSingleton struct {
	Action Action
}

func (MutateSingleton) isCondition() {}

func (MutateSingleton) equalCondition(Condition) bool { return false }

// SettleIntoNonce marks a coin spend as locking into the settlement
// puzzle under an offer's nonce, carrying the notarized payments the
// counterparty must satisfy to unlock it. The PuzzleBuilder assembles
// the actual settlement solution from nonce and payments; this package
// only threads the offer's asset-group plumbing (selection, change,
// ring-of-assertions) around it, identically to how it threads a Send's
// CreateCoin.
type SettleIntoNonce struct {
	Nonce    models.Hash
	Payments []CreateCoin
}

func (SettleIntoNonce) isCondition() {}

func (SettleIntoNonce) equalCondition(Condition) bool { return false }

func hasEqualCondition(conditions []Condition, c Condition) bool {
	for _, existing := range conditions {
		if existing.equalCondition(c) {
			return true
		}
	}
	return false
}
