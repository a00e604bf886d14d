package offers

import "github.com/rawblock/lightwallet-engine/pkg/models"

// AssetAmount names one asset and an amount of it, the unit both sides
// of an offer's ledger are expressed in.
type AssetAmount struct {
	AssetID models.Hash // models.ZeroHash for the native asset
	Amount  uint64
}

// RoyaltyDue is one NFT's computed royalty obligation against a single
// requested asset, keyed so the maker and the taker can each compute
// what they owe the other's NFTs independently and still agree.
type RoyaltyDue struct {
	NftID             models.Hash
	RoyaltyPuzzleHash models.Hash
	AssetAmount
}

// Terms is the maker's side of an offer: what it gives up and what it
// wants back, plus the NFTs (if any) whose royalties the requested side
// must pay out.
type Terms struct {
	Offered    []AssetAmount
	Requested  []AssetAmount
	NftRoyalties []RoyaltyDue
}
