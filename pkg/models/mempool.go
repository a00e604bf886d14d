package models

// MempoolItemStatus tracks a locally-submitted bundle's lifecycle.
type MempoolItemStatus int

const (
	MempoolItemPending MempoolItemStatus = iota
	MempoolItemConfirmed
	MempoolItemEvicted
)

func (s MempoolItemStatus) String() string {
	switch s {
	case MempoolItemPending:
		return "pending"
	case MempoolItemConfirmed:
		return "confirmed"
	case MempoolItemEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// MempoolItem is one locally-tracked unconfirmed (or just-confirmed, or
// evicted) spend bundle.
type MempoolItem struct {
	ID              Hash // sha256 of the bundle's coin spends, used as the lock key
	Status          MempoolItemStatus
	AggregatedSig   Signature
	FeePerCost      uint64
	SubmittedAt     int64 // unix seconds
	LastResubmitAt  int64
	ConfirmedHeight *uint32
}

// MempoolSpend is one coin-spend entry inside a bundle: the solution
// bytes the coin was spent with, keyed by coin id so the store can join
// back to the originating MempoolItem.
type MempoolSpend struct {
	MempoolItemID Hash
	CoinID        Hash
	PuzzleReveal  []byte
	Solution      []byte
}

// Peak is the sync manager's view of chain tip height/header, persisted
// so restart resumes from the last confirmed peak rather than genesis.
type Peak struct {
	Height     uint32
	HeaderHash Hash
}
