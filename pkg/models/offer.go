package models

// OfferStatus tracks an offer file's lifecycle.
type OfferStatus int

const (
	OfferStatusPending OfferStatus = iota
	OfferStatusActive
	OfferStatusCompleted
	OfferStatusCancelled
	OfferStatusExpired
)

func (s OfferStatus) String() string {
	switch s {
	case OfferStatusPending:
		return "pending"
	case OfferStatusActive:
		return "active"
	case OfferStatusCompleted:
		return "completed"
	case OfferStatusCancelled:
		return "cancelled"
	case OfferStatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Offer is one row per offer file this wallet made, imported, or took.
// Nonce is sha256 of the sorted ids of every coin the offer locks, the
// binding that ties an Offer row to its locked CoinRecords.
type Offer struct {
	ID             Hash // = Nonce
	Nonce          Hash
	Status         OfferStatus
	ExpirationSeconds *int64
	Fee            uint64
	IsOurOffer     bool
	EncodedOffer   string // bech32m-style offer file text, opaque here
}

// OfferedAsset is one denormalized (offered or requested) leg of an
// Offer's asset ledger, covering the native token and CAT/NFT/option legs
// uniformly, including royalty accounting.
type OfferedAsset struct {
	OfferID    Hash
	AssetID    Hash // ZeroHash for the native asset
	Amount     uint64
	IsRequested bool // false: offered by the maker; true: requested from the taker
	RoyaltyAmount uint64
}
