package models

// CoinState is the wire-level shape a peer reports for one coin: the
// triple plus whatever heights the peer currently believes apply. It is
// the pre-classification form persisted/merged by the Sync Manager
// before the Puzzle Queue resolves an asset binding for it.
type CoinState struct {
	Coin          Coin
	CreatedHeight *uint32
	SpentHeight   *uint32
}

// PuzzleStateFilters narrows a request_puzzle_state call: an optional
// lower bound and whether to include coins the peer already reports as
// spent.
type PuzzleStateFilters struct {
	MinHeight     uint32
	IncludeSpent  bool
}

// PuzzleStatePage is one page of a (possibly paginated)
// request_puzzle_state response.
type PuzzleStatePage struct {
	Items      []CoinState
	NextTip    *Hash
	IsFinished bool
}

// SubmitOutcome is the peer's verdict on a pushed transaction bundle.
type SubmitOutcome int

const (
	SubmitAccepted SubmitOutcome = iota
	SubmitPending
	SubmitFailed
	SubmitUnknown
)

func (o SubmitOutcome) String() string {
	switch o {
	case SubmitAccepted:
		return "accepted"
	case SubmitPending:
		return "pending"
	case SubmitFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// CoinSpend is one signed (or not-yet-signed) spend within a bundle: the
// coin being spent plus the puzzle reveal and solution it is spent with.
type CoinSpend struct {
	Coin         Coin
	PuzzleReveal []byte
	Solution     []byte
}

// SpendBundle is a complete, ready-to-push transaction: every coin spend
// plus the aggregated signature over them.
type SpendBundle struct {
	Spends        []CoinSpend
	AggregatedSig Signature
}
