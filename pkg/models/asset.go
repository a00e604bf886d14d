package models

// AssetKind tags the distinct asset identities this wallet tracks.
type AssetKind int

const (
	AssetKindToken AssetKind = iota
	AssetKindNft
	AssetKindDid
	AssetKindOption
)

func (k AssetKind) String() string {
	switch k {
	case AssetKindToken:
		return "token"
	case AssetKindNft:
		return "nft"
	case AssetKindDid:
		return "did"
	case AssetKindOption:
		return "option"
	default:
		return "unknown"
	}
}

// Asset is one row per distinct asset identity. Kind-specific fields live
// in the *Info structs below, joined by AssetID.
type Asset struct {
	Hash        Hash // asset id / launcher id; ZeroHash for the native asset
	Kind        AssetKind
	Name        string
	IconURL     string
	Description string
	IsVisible   bool
}

// IsNative reports whether this Asset row is the chain's native token,
// whose hash is all-zeros.
func (a Asset) IsNative() bool {
	return a.Kind == AssetKindToken && a.Hash.IsZero()
}

// TokenInfo holds the ticker/decimals fields joined to a Token asset row:
// one row per CAT, with ticker/decimals metadata fetched opportunistically.
type TokenInfo struct {
	AssetID           Hash
	Ticker            string
	Decimals          uint8
	IsMetadataFetched bool
}

// NftInfo holds the collection/minter/owner/metadata fields joined to an
// Nft asset row.
type NftInfo struct {
	AssetID           Hash // the NFT's launcher id
	LauncherID        Hash
	CollectionID      *Hash
	MinterHash        *Hash
	OwnerHash         *Hash // current DID owner, nil if unassigned
	MetadataURI       string
	MetadataHash      *Hash
	RoyaltyPuzzleHash Hash
	RoyaltyBasisPoints uint16
	EditionNumber     uint64
	EditionTotal      uint64
	IsMetadataFetched bool
}

// NftPendingMetadata is the minimal row an outer NFT metadata fetcher
// needs: which asset, and the off-chain URI to resolve.
type NftPendingMetadata struct {
	AssetID     Hash
	LauncherID  Hash
	MetadataURI string
}

// DidInfo holds the recovery-list/verification fields joined to a Did
// asset row.
type DidInfo struct {
	AssetID         Hash // the DID's launcher id
	RecoveryListHash *Hash
	NumVerifications uint64
	Metadata        []byte
}

// OptionInfo holds the underlying-coin / strike-asset fields joined to an
// Option asset row.
type OptionInfo struct {
	AssetID           Hash // the option contract's launcher id
	UnderlyingCoinID  Hash
	UnderlyingAssetID Hash // ZeroHash for the native asset
	UnderlyingAmount  uint64
	StrikeAssetID     Hash
	StrikeAmount      uint64
	ExpirationSeconds int64
}

// LineageProof carries the data required to re-spend a singleton or token
// descendant without fetching its ancestors.
type LineageProof struct {
	CoinID               Hash
	ParentParentCoinInfo Hash
	ParentInnerPuzzleHash Hash
	ParentAmount         uint64
}
