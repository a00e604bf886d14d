// Package puzzle is the pure puzzle-resolution pipeline: a deterministic
// function from a parent coin's spend to the kind of coin its children
// are. It does no I/O and holds no state; the puzzle classification queue
// (internal/queue) is the primary caller, feeding it parent puzzle
// reveals fetched from peers.
package puzzle

import (
	"encoding/json"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// Program is an already-uncurried view of a CLVM puzzle or solution: a
// mod hash identifying the puzzle template plus its curried/solution
// arguments, each itself a Program. Lowering a real CLVM program into
// this shape is ordinarily an external collaborator's job (the peer
// connection already does it when reporting a spend); the classifier
// only ever matches against ModHash and reads Args.
type Program struct {
	ModHash models.Hash
	Args    []Program
	Atom    []byte // leaf value, set when Args is empty and this is a literal
}

// IsAtom reports whether p is a leaf value rather than a curried puzzle.
func (p Program) IsAtom() bool { return len(p.Args) == 0 && p.Atom != nil }

// ChildKind is the tagged result of classifying a single child coin.
// Each concrete kind below implements it via an
// unexported marker method so the set of variants is closed to this
// package, matched by callers with a type switch rather than an
// interface method dispatch.
type ChildKind interface {
	isChildKind()
}

// Launcher means the parent is a singleton launcher; the child is the
// birth coin of a new singleton (its kind is determined by the spend
// that immediately follows, not by this classification).
type Launcher struct{}

func (Launcher) isChildKind() {}

// Cat means the child is a fungible token coin.
type Cat struct {
	AssetID      models.Hash
	LineageProof models.LineageProof
	P2PuzzleHash models.Hash
}

func (Cat) isChildKind() {}

// Did means the child is a DID singleton.
type Did struct {
	LineageProof models.LineageProof
	Info         models.DidInfo
	P2PuzzleHash models.Hash
}

func (Did) isChildKind() {}

// Nft means the child is an NFT singleton. Metadata is parsed
// opportunistically from the curried arguments and may be nil if the
// metadata layer's argument shape was not recognized.
type Nft struct {
	LineageProof models.LineageProof
	Info         models.NftInfo
	Metadata     *NftMetadata
	P2PuzzleHash models.Hash // innermost ownership puzzle hash, whether DID-held or directly owned
}

func (Nft) isChildKind() {}

// NftMetadata holds the hashes an NFT's metadata layer curries in,
// recovered without fetching the off-chain payload they point to.
type NftMetadata struct {
	DataHash     *models.Hash
	MetadataHash *models.Hash
	LicenseHash  *models.Hash
}

// Option means the child is an on-chain option contract singleton.
type Option struct {
	LineageProof models.LineageProof
	Info         models.OptionInfo
	P2PuzzleHash models.Hash
}

func (Option) isChildKind() {}

// Unknown means the parent puzzle did not match any recognized template.
type Unknown struct {
	Reason string
}

func (Unknown) isChildKind() {}

// Well-known mod hashes the classifier matches curried puzzles against.
// These are consensus constants, not configuration: every coin-set chain
// derived from this puzzle set agrees on them.
var (
	SingletonTopLayerModHash = mustHash("362d7ddfccbb243424b556e3fd31cc2a40e9ebccdea5935fb8ab35611d316be8")
	SingletonLauncherModHash = mustHash("0d927e5ae66968db24d3add70604d5aab08f836f87b7e4d3dfc42f2302579d76")
	CatModHash               = mustHash("95031670a0c9d7808ad06bfb06bc4fd8c0191cb06a78aaf9d4373b67e0b9bd07")
	DidInnerModHash          = mustHash("07baca50c85eae51f18f3a12ad5a82e53f06da4d41c99e82e30ce5ebce4830e8")
	NftStateLayerModHash     = mustHash("503ae0ef85696fe0c398e7d234d9ab4647d60f9f6fd58e91b1b1e83c15025dd9")
	NftOwnershipLayerModHash = mustHash("66eb3f61f51a76c2f5d7608f3ed9eec4ab7ac953ee7b65b84e3858b8205d38d3")
	OptionModHash            = mustHash("b6be79434e2dac34b2fdd2f123223a14c0ac696f3353de7b470948a26eaef360")
	// SettlementPaymentsModHash is the fixed (uncurried) puzzle hash every
	// offer locks its maker-side coins into; the Offer Engine spends out
	// of it by satisfying the notarized payments it was given.
	SettlementPaymentsModHash = mustHash("cfbfdeed5c4ca2de3d0bf520b9cb4bb7743a359bd2e6a188d19bc1c4c44db419")
)

func mustHash(hex string) models.Hash {
	h, err := models.HashFromHex(hex)
	if err != nil {
		panic("puzzle: invalid built-in mod hash constant: " + err.Error())
	}
	return h
}

// ParseError means the supplied Program could not be interpreted at all
// (truncated curry list, wrong arg count for a matched mod hash). The
// Puzzle Queue treats this as peer misbehavior when the peer supplied the
// spend.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "puzzle: parse error: " + e.Reason }

// DecodeProgram parses the wire bytes an external CLVM encoder produced
// back into the already-uncurried Program shape Classify and
// ParseChildren operate on. A caller holding only a raw puzzle reveal or
// solution (e.g. a bundle built locally and not yet round-tripped through
// a peer) uses this to recover the Program before classifying it.
func DecodeProgram(raw []byte) (Program, error) {
	var p Program
	if err := json.Unmarshal(raw, &p); err != nil {
		return Program{}, &ParseError{Reason: "cannot decode puzzle program: " + err.Error()}
	}
	return p, nil
}

// InvariantError means the parent and child amounts are inconsistent with
// the matched puzzle template (e.g. a launcher child whose parent coin id
// is not the launcher coin's id). Also treated as peer
// misbehavior when peer-supplied.
type InvariantError struct {
	Reason string
}

func (e *InvariantError) Error() string { return "puzzle: invariant violation: " + e.Reason }

// Classify resolves the kind of coin childCoin is, given the spend of its
// parent. Every field of the result is read from the parent puzzle's
// curried arguments; parentSolution is accepted but not read.
func Classify(parentCoin models.Coin, parentPuzzle, parentSolution Program, childCoin models.Coin) (ChildKind, error) {
	switch parentPuzzle.ModHash {
	case SingletonLauncherModHash:
		return classifyLauncherChild(parentCoin, childCoin)
	case SingletonTopLayerModHash:
		return classifySingletonChild(parentCoin, parentPuzzle, parentSolution, childCoin)
	case CatModHash:
		return classifyCatChild(parentCoin, parentPuzzle, parentSolution, childCoin)
	default:
		return Unknown{Reason: "parent puzzle did not match any recognized template"}, nil
	}
}

func classifyLauncherChild(parentCoin, childCoin models.Coin) (ChildKind, error) {
	if childCoin.ParentCoinInfo != parentCoin.CoinID() {
		return nil, &InvariantError{Reason: "launcher child does not descend from the launcher coin"}
	}
	return Launcher{}, nil
}

func classifySingletonChild(parentCoin models.Coin, parentPuzzle, parentSolution Program, childCoin models.Coin) (ChildKind, error) {
	if len(parentPuzzle.Args) < 2 {
		return nil, &ParseError{Reason: "singleton top layer missing launcher id / inner puzzle args"}
	}
	launcherID, err := models.HashFromBytes(parentPuzzle.Args[0].Atom)
	if err != nil {
		return nil, &ParseError{Reason: "singleton launcher id is not a 32-byte atom"}
	}
	innerPuzzle := parentPuzzle.Args[len(parentPuzzle.Args)-1]

	proof := models.LineageProof{
		CoinID:                childCoin.ParentCoinInfo,
		ParentParentCoinInfo:  parentCoin.ParentCoinInfo,
		ParentInnerPuzzleHash: innerPuzzle.ModHash,
		ParentAmount:          parentCoin.Amount,
	}

	switch innerPuzzle.ModHash {
	case DidInnerModHash:
		return classifyDidChild(launcherID, proof, innerPuzzle, childCoin)
	case NftStateLayerModHash:
		return classifyNftChild(launcherID, proof, innerPuzzle, childCoin)
	case OptionModHash:
		return classifyOptionChild(launcherID, proof, innerPuzzle, childCoin)
	default:
		return Unknown{Reason: "singleton inner puzzle did not match did/nft/option"}, nil
	}
}

func classifyDidChild(launcherID models.Hash, proof models.LineageProof, innerPuzzle Program, childCoin models.Coin) (ChildKind, error) {
	if len(innerPuzzle.Args) < 2 {
		return nil, &ParseError{Reason: "did inner puzzle missing recovery list / p2 args"}
	}
	p2Hash, err := models.HashFromBytes(innerPuzzle.Args[len(innerPuzzle.Args)-1].Atom)
	if err != nil {
		return nil, &ParseError{Reason: "did p2 puzzle hash is not a 32-byte atom"}
	}
	var recoveryHash *models.Hash
	if h, err := models.HashFromBytes(innerPuzzle.Args[0].Atom); err == nil {
		recoveryHash = &h
	}

	return Did{
		LineageProof: proof,
		P2PuzzleHash: p2Hash,
		Info: models.DidInfo{
			AssetID:          launcherID,
			RecoveryListHash: recoveryHash,
		},
	}, nil
}

func classifyNftChild(launcherID models.Hash, proof models.LineageProof, innerPuzzle Program, childCoin models.Coin) (ChildKind, error) {
	if len(innerPuzzle.Args) < 3 {
		return nil, &ParseError{Reason: "nft state layer missing metadata / ownership args"}
	}

	metadata := parseNftMetadata(innerPuzzle.Args[0])
	ownershipLayer := innerPuzzle.Args[len(innerPuzzle.Args)-1]

	var ownerHash *models.Hash
	var p2Hash models.Hash
	if ownershipLayer.ModHash == NftOwnershipLayerModHash && len(ownershipLayer.Args) >= 2 {
		if h, err := models.HashFromBytes(ownershipLayer.Args[0].Atom); err == nil {
			ownerHash = &h
		}
		if h, err := models.HashFromBytes(ownershipLayer.Args[len(ownershipLayer.Args)-1].Atom); err == nil {
			p2Hash = h
		}
	}

	return Nft{
		LineageProof: proof,
		Metadata:     metadata,
		P2PuzzleHash: p2Hash,
		Info: models.NftInfo{
			AssetID:    launcherID,
			LauncherID: launcherID,
			OwnerHash:  ownerHash,
		},
	}, nil
}

func parseNftMetadata(metadataProgram Program) *NftMetadata {
	if len(metadataProgram.Args) < 1 {
		return nil
	}
	meta := &NftMetadata{}
	for _, kv := range metadataProgram.Args {
		if len(kv.Args) != 2 || !kv.Args[1].IsAtom() {
			continue
		}
		key := string(kv.Args[0].Atom)
		h, err := models.HashFromBytes(kv.Args[1].Atom)
		if err != nil {
			continue
		}
		switch key {
		case "h":
			meta.DataHash = &h
		case "mh":
			meta.MetadataHash = &h
		case "lh":
			meta.LicenseHash = &h
		}
	}
	return meta
}

func classifyOptionChild(launcherID models.Hash, proof models.LineageProof, innerPuzzle Program, childCoin models.Coin) (ChildKind, error) {
	if len(innerPuzzle.Args) < 1 {
		return nil, &ParseError{Reason: "option inner puzzle missing underlying args"}
	}
	p2Hash := innerPuzzle.Args[len(innerPuzzle.Args)-1].ModHash

	return Option{
		LineageProof: proof,
		P2PuzzleHash: p2Hash,
		Info:         models.OptionInfo{AssetID: launcherID},
	}, nil
}

func classifyCatChild(parentCoin models.Coin, parentPuzzle, parentSolution Program, childCoin models.Coin) (ChildKind, error) {
	if len(parentPuzzle.Args) < 2 {
		return nil, &ParseError{Reason: "cat puzzle missing asset id / inner puzzle args"}
	}
	assetID, err := models.HashFromBytes(parentPuzzle.Args[0].Atom)
	if err != nil {
		return nil, &ParseError{Reason: "cat asset id is not a 32-byte atom"}
	}
	innerPuzzle := parentPuzzle.Args[len(parentPuzzle.Args)-1]

	return Cat{
		AssetID:      assetID,
		P2PuzzleHash: innerPuzzle.ModHash,
		LineageProof: models.LineageProof{
			CoinID:                childCoin.ParentCoinInfo,
			ParentParentCoinInfo:  parentCoin.ParentCoinInfo,
			ParentInnerPuzzleHash: innerPuzzle.ModHash,
			ParentAmount:          parentCoin.Amount,
		},
	}, nil
}

// ParseChildren enumerates every child coin a spend of parentCoin under
// parentPuzzle/parentSolution would produce, used for post-spend
// projection of our own freshly-built bundles before they are confirmed.
func ParseChildren(parentCoin models.Coin, parentPuzzle, parentSolution Program) ([]models.Coin, error) {
	conditions, err := conditionsFromSolution(parentPuzzle, parentSolution)
	if err != nil {
		return nil, err
	}

	var children []models.Coin
	for _, cond := range conditions {
		if len(cond.Args) < 2 {
			continue
		}
		puzzleHash, err := models.HashFromBytes(cond.Args[0].Atom)
		if err != nil {
			continue
		}
		amount := bytesToUint64(cond.Args[1].Atom)
		children = append(children, parentCoin.Child(puzzleHash, amount))
	}
	return children, nil
}

// conditionsFromSolution returns the CREATE_COIN-shaped condition
// programs a solution's output list carries. The inner-puzzle output
// list itself is produced by the (external) CLVM evaluator; this
// function only filters it down to the condition opcode the classifier
// cares about.
func conditionsFromSolution(parentPuzzle, parentSolution Program) ([]Program, error) {
	if len(parentSolution.Args) == 0 {
		return nil, &ParseError{Reason: "solution has no output conditions"}
	}
	const createCoinOpcode = 51
	var out []Program
	for _, cond := range parentSolution.Args {
		if len(cond.Args) == 0 || !cond.Args[0].IsAtom() {
			continue
		}
		if bytesToUint64(cond.Args[0].Atom) != createCoinOpcode {
			continue
		}
		out = append(out, Program{Args: cond.Args[1:]})
	}
	return out, nil
}

func bytesToUint64(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}
