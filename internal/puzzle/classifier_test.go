package puzzle

import (
	"testing"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

func atom(b []byte) Program { return Program{Atom: b} }

func hashAtom(h models.Hash) Program { return Program{Atom: h.Bytes()} }

func TestClassifyUnknownForUnrecognizedPuzzle(t *testing.T) {
	parentCoin := models.Coin{ParentCoinInfo: models.ZeroHash, PuzzleHash: models.Hash{0x01}, Amount: 100}
	childCoin := parentCoin.Child(models.Hash{0x02}, 100)

	kind, err := Classify(parentCoin, Program{ModHash: models.Hash{0xff}}, Program{}, childCoin)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	unk, ok := kind.(Unknown)
	if !ok {
		t.Fatalf("expected Unknown, got %T", kind)
	}
	if unk.Reason == "" {
		t.Errorf("expected a non-empty reason")
	}
}

func TestClassifyLauncherChild(t *testing.T) {
	parentCoin := models.Coin{ParentCoinInfo: models.Hash{0x09}, PuzzleHash: SingletonLauncherModHash, Amount: 1}
	childCoin := parentCoin.Child(models.Hash{0x0a}, 1)

	kind, err := Classify(parentCoin, Program{ModHash: SingletonLauncherModHash}, Program{}, childCoin)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if _, ok := kind.(Launcher); !ok {
		t.Fatalf("expected Launcher, got %T", kind)
	}
}

func TestClassifyLauncherChildRejectsWrongParent(t *testing.T) {
	parentCoin := models.Coin{ParentCoinInfo: models.Hash{0x09}, PuzzleHash: SingletonLauncherModHash, Amount: 1}
	unrelatedChild := models.Coin{ParentCoinInfo: models.Hash{0xde, 0xad}, PuzzleHash: models.Hash{0x0a}, Amount: 1}

	_, err := Classify(parentCoin, Program{ModHash: SingletonLauncherModHash}, Program{}, unrelatedChild)
	if err == nil {
		t.Fatalf("expected an invariant error for a child not descending from the launcher")
	}
	if _, ok := err.(*InvariantError); !ok {
		t.Fatalf("expected *InvariantError, got %T", err)
	}
}

func TestClassifyCatChild(t *testing.T) {
	assetID := models.Hash{0x11}
	innerPuzzleHash := models.Hash{0x22}
	parentCoin := models.Coin{ParentCoinInfo: models.Hash{0x01}, PuzzleHash: CatModHash, Amount: 1000}
	childCoin := parentCoin.Child(models.Hash{0x33}, 1000)

	parentPuzzle := Program{
		ModHash: CatModHash,
		Args: []Program{
			hashAtom(assetID),
			{ModHash: innerPuzzleHash},
		},
	}

	kind, err := Classify(parentCoin, parentPuzzle, Program{}, childCoin)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	cat, ok := kind.(Cat)
	if !ok {
		t.Fatalf("expected Cat, got %T", kind)
	}
	if cat.AssetID != assetID {
		t.Errorf("AssetID = %s, want %s", cat.AssetID, assetID)
	}
	if cat.P2PuzzleHash != innerPuzzleHash {
		t.Errorf("P2PuzzleHash = %s, want %s", cat.P2PuzzleHash, innerPuzzleHash)
	}
	if cat.LineageProof.ParentAmount != parentCoin.Amount {
		t.Errorf("LineageProof.ParentAmount = %d, want %d", cat.LineageProof.ParentAmount, parentCoin.Amount)
	}
}

func TestClassifyCatChildMissingArgsIsParseError(t *testing.T) {
	parentCoin := models.Coin{ParentCoinInfo: models.Hash{0x01}, PuzzleHash: CatModHash, Amount: 1000}
	childCoin := parentCoin.Child(models.Hash{0x33}, 1000)

	_, err := Classify(parentCoin, Program{ModHash: CatModHash}, Program{}, childCoin)
	if err == nil {
		t.Fatalf("expected a parse error for a cat puzzle missing its curried args")
	}
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestParseChildrenEnumeratesCreateCoinConditions(t *testing.T) {
	parentCoin := models.Coin{ParentCoinInfo: models.Hash{0x01}, PuzzleHash: models.Hash{0x02}, Amount: 300}

	puzzleHashA := models.Hash{0xa1}
	puzzleHashB := models.Hash{0xb2}

	solution := Program{
		Args: []Program{
			{Args: []Program{atom(uint64Bytes(51)), hashAtom(puzzleHashA), atom(uint64Bytes(100))}},
			{Args: []Program{atom(uint64Bytes(51)), hashAtom(puzzleHashB), atom(uint64Bytes(200))}},
			{Args: []Program{atom(uint64Bytes(60)), atom([]byte("not a create-coin condition"))}},
		},
	}

	children, err := ParseChildren(parentCoin, Program{}, solution)
	if err != nil {
		t.Fatalf("ParseChildren: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	if children[0].Amount != 100 || children[0].PuzzleHash != puzzleHashA {
		t.Errorf("child[0] = %+v", children[0])
	}
	if children[1].Amount != 200 || children[1].PuzzleHash != puzzleHashB {
		t.Errorf("child[1] = %+v", children[1])
	}
}

func uint64Bytes(v uint64) []byte {
	var b []byte
	for shift := 56; shift >= 0; shift -= 8 {
		by := byte(v >> uint(shift))
		if len(b) == 0 && by == 0 && shift != 0 {
			continue
		}
		b = append(b, by)
	}
	if len(b) == 0 {
		b = []byte{0}
	}
	return b
}
