// Package planner implements the spend planner: a pure transformation
// from a list of high-level actions plus a fee into an unsigned
// coin-spend bundle. Puzzle reveal/solution bytes themselves are
// produced by an injected PuzzleBuilder — CLVM encoding is an external
// collaborator here exactly as puzzle.Program treats decoding — so this
// package only ever reasons about coins, conditions, and p2 puzzle
// hashes.
package planner

import "github.com/rawblock/lightwallet-engine/pkg/models"

// MemoMode selects how a Send action's memo list is attached to its
// output coin.
type MemoMode int

const (
	// MemoModeNone attaches no memos.
	MemoModeNone MemoMode = iota
	// MemoModeHint attaches only the recipient puzzle hash, the minimum
	// needed for a light client to notice the coin belongs to it.
	MemoModeHint
	// MemoModeMemo attaches the caller-supplied memo list verbatim.
	MemoModeMemo
)

// Action is the closed set of operations the planner accepts.
type Action interface {
	isAction()
}

// Send moves amount of an asset (nil AssetID means the native token) to
// recipient.
type Send struct {
	AssetID   *models.Hash
	Recipient models.Hash
	Amount    uint64
	MemoMode  MemoMode
	Memos     [][]byte
}

// FeeAction adds amount to the bundle's native-token fee on top of
// whatever fee the caller passed to Plan.
type FeeAction struct {
	Amount uint64
}

// MintCat issues a new CAT asset from native token, optionally minted
// against a caller-supplied issuer key rather than a fresh one.
type MintCat struct {
	Amount    uint64
	IssuerKey *models.PublicKey
}

// MintNft launches a new NFT singleton owned by did, carrying metadata
// and a royalty configuration.
type MintNft struct {
	Did                models.Hash
	Metadata           []byte
	RoyaltyPuzzleHash  models.Hash
	RoyaltyBasisPoints uint16
	P2Recipient        *models.Hash
}

// TransferNft reassigns an NFT's p2 puzzle hash to recipient, optionally
// through a clawback layer that unwinds after clawbackSeconds.
type TransferNft struct {
	NftID           models.Hash
	Recipient       models.Hash
	ClawbackSeconds *int64
}

// AssignNft sets or clears (nil DidID) an NFT's DID ownership.
type AssignNft struct {
	NftID models.Hash
	DidID *models.Hash
}

// UpdateNftMetadata recreates an NFT's metadata layer with update.
type UpdateNftMetadata struct {
	NftID  models.Hash
	Update []byte
}

// CreateDid launches a new DID singleton.
type CreateDid struct{}

// TransferDid reassigns a DID's p2 puzzle hash to recipient.
type TransferDid struct {
	DidID           models.Hash
	Recipient       models.Hash
	ClawbackSeconds *int64
}

// MintOption launches a new option contract singleton.
type MintOption struct {
	Strike            OptionTerms
	Underlying        OptionTerms
	ExpirationSeconds int64
}

// OptionTerms names one side (strike or underlying) of an option
// contract: an asset and the amount of it.
type OptionTerms struct {
	AssetID models.Hash
	Amount  uint64
}

// ExerciseOption spends an option contract, paying its strike and
// claiming its underlying coin.
type ExerciseOption struct {
	OptionID models.Hash
}

// SettlePayment fulfils one side of an accepted offer: a notarized
// payment against an (optionally CAT) asset.
type SettlePayment struct {
	AssetID          *models.Hash
	NotarizedPayment NotarizedPayment
}

// NotarizedPayment is a payment whose puzzle asserts a specific nonce,
// binding it to a single offer settlement.
type NotarizedPayment struct {
	Nonce       models.Hash
	PuzzleHash  models.Hash
	Amount      uint64
	Memos       [][]byte
}

// MeltSingleton permanently destroys a singleton, recreating it as an
// unspendable zero-value coin.
type MeltSingleton struct {
	SingletonID models.Hash
}

func (Send) isAction()              {}
func (FeeAction) isAction()         {}
func (MintCat) isAction()           {}
func (MintNft) isAction()           {}
func (TransferNft) isAction()       {}
func (AssignNft) isAction()         {}
func (UpdateNftMetadata) isAction() {}
func (CreateDid) isAction()         {}
func (TransferDid) isAction()       {}
func (MintOption) isAction()        {}
func (ExerciseOption) isAction()    {}
func (SettlePayment) isAction()     {}
func (MeltSingleton) isAction()     {}
