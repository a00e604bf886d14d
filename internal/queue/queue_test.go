package queue

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/rawblock/lightwallet-engine/internal/db"
	"github.com/rawblock/lightwallet-engine/internal/peerpool"
	"github.com/rawblock/lightwallet-engine/internal/puzzle"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

func openTestStore(t *testing.T) *db.Store {
	t.Helper()
	store, err := db.Connect(filepath.Join(t.TempDir(), "wallet.sqlite"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	return store
}

func mustHash(seed byte) models.Hash {
	var h models.Hash
	for i := range h {
		h[i] = seed
	}
	return h
}

// testPublicKey is the BLS12-381 G1 generator point, compressed. It is a
// public curve parameter, not a secret; reused here purely to satisfy
// InsertDerivation's subgroup check.
func testPublicKey(t *testing.T) models.PublicKey {
	t.Helper()
	b, err := hex.DecodeString("97f1d3a73197d7942695638c4fa9ac0fc3688c4f9774b905a14e3a3f171bac586c55e83ff97a1aeffb3af00adb22c6bb")
	if err != nil {
		t.Fatalf("decode generator point: %v", err)
	}
	var pk models.PublicKey
	copy(pk[:], b)
	return pk
}

func TestCustodyP2PuzzleHashes(t *testing.T) {
	catHash := mustHash(0x01)
	didHash := mustHash(0x02)
	nftHash := mustHash(0x03)
	optHash := mustHash(0x04)

	cases := []struct {
		name string
		kind puzzle.ChildKind
		want []models.Hash
	}{
		{"cat", puzzle.Cat{P2PuzzleHash: catHash}, []models.Hash{catHash}},
		{"did", puzzle.Did{P2PuzzleHash: didHash}, []models.Hash{didHash}},
		{"nft", puzzle.Nft{P2PuzzleHash: nftHash}, []models.Hash{nftHash}},
		{"option", puzzle.Option{P2PuzzleHash: optHash}, []models.Hash{optHash}},
		{"launcher", puzzle.Launcher{}, nil},
		{"unknown", puzzle.Unknown{Reason: "no match"}, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := custodyP2PuzzleHashes(tc.kind)
			if len(got) != len(tc.want) {
				t.Fatalf("custodyP2PuzzleHashes(%s) = %v, want %v", tc.name, got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("custodyP2PuzzleHashes(%s)[%d] = %v, want %v", tc.name, i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestProcessBatchNoPeersIsNoop(t *testing.T) {
	store := openTestStore(t)
	pool := peerpool.New()
	q := New(store, pool, models.Hash{}, 5)

	if err := q.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch: %v", err)
	}
}

func TestPersistDirectOwnedCoinBindsNativeAsset(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	q := New(store, peerpool.New(), models.Hash{}, 5)

	coin := models.Coin{ParentCoinInfo: mustHash(0x10), PuzzleHash: mustHash(0x11), Amount: 1000}
	height := uint32(5)
	if err := store.InsertCoin(ctx, coin, &height, nil); err != nil {
		t.Fatalf("InsertCoin: %v", err)
	}

	res := fetchResult{
		row:         models.CoinRecord{CoinID: coin.CoinID(), PuzzleHash: coin.PuzzleHash},
		directOwned: true,
	}

	var relevant []models.Hash
	err := store.WithTx(ctx, func(tx *db.Tx) error {
		ids, err := q.persist(ctx, tx, res)
		relevant = ids
		return err
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(relevant) != 1 || relevant[0] != coin.CoinID() {
		t.Errorf("relevant = %v, want [%v]", relevant, coin.CoinID())
	}

	rec, found, err := store.CoinByID(ctx, coin.CoinID())
	if err != nil || !found {
		t.Fatalf("CoinByID: found=%v err=%v", found, err)
	}
	if rec.AssetID == nil || !rec.AssetID.IsZero() {
		t.Errorf("AssetID = %v, want ZeroHash", rec.AssetID)
	}
	if rec.P2PuzzleHash == nil || *rec.P2PuzzleHash != coin.PuzzleHash {
		t.Errorf("P2PuzzleHash = %v, want %v", rec.P2PuzzleHash, coin.PuzzleHash)
	}
}

func TestPersistDropsIrrelevantRootCoin(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	q := New(store, peerpool.New(), models.Hash{}, 5)

	coin := models.Coin{ParentCoinInfo: mustHash(0x20), PuzzleHash: mustHash(0x21), Amount: 7}
	height := uint32(1)
	if err := store.InsertCoin(ctx, coin, &height, nil); err != nil {
		t.Fatalf("InsertCoin: %v", err)
	}

	res := fetchResult{
		row: models.CoinRecord{CoinID: coin.CoinID(), PuzzleHash: coin.PuzzleHash},
		synced: []syncedItem{
			{coin: coin, createdHeight: &height, kind: puzzle.Cat{AssetID: mustHash(0x22), P2PuzzleHash: mustHash(0x99)}, isRoot: true},
		},
	}

	err := store.WithTx(ctx, func(tx *db.Tx) error {
		_, err := q.persist(ctx, tx, res)
		return err
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}

	_, found, err := store.CoinByID(ctx, coin.CoinID())
	if err != nil {
		t.Fatalf("CoinByID: %v", err)
	}
	if found {
		t.Errorf("expected the irrelevant root coin to be deleted")
	}
}

func TestPersistKeepsRelevantCatChild(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	q := New(store, peerpool.New(), models.Hash{}, 5)

	p2Hash := mustHash(0x30)
	derivErr := store.WithTx(ctx, func(tx *db.Tx) error {
		return tx.InsertDerivation(ctx, models.Derivation{Index: 0, IsHardened: false, PublicKey: testPublicKey(t), P2PuzzleHash: p2Hash})
	})
	if derivErr != nil {
		t.Fatalf("seed derivation: %v", derivErr)
	}

	root := models.Coin{ParentCoinInfo: mustHash(0x31), PuzzleHash: mustHash(0x32), Amount: 50}
	height := uint32(3)
	if err := store.InsertCoin(ctx, root, &height, nil); err != nil {
		t.Fatalf("InsertCoin: %v", err)
	}

	child := models.Coin{ParentCoinInfo: root.CoinID(), PuzzleHash: mustHash(0x33), Amount: 50}
	assetID := mustHash(0x34)

	res := fetchResult{
		row: models.CoinRecord{CoinID: root.CoinID(), PuzzleHash: root.PuzzleHash},
		synced: []syncedItem{
			{coin: child, createdHeight: &height, kind: puzzle.Cat{AssetID: assetID, P2PuzzleHash: p2Hash}, isRoot: false},
		},
	}

	var relevant []models.Hash
	err := store.WithTx(ctx, func(tx *db.Tx) error {
		ids, err := q.persist(ctx, tx, res)
		relevant = ids
		return err
	})
	if err != nil {
		t.Fatalf("persist: %v", err)
	}
	if len(relevant) != 1 || relevant[0] != child.CoinID() {
		t.Errorf("relevant = %v, want [%v]", relevant, child.CoinID())
	}

	rec, found, err := store.CoinByID(ctx, child.CoinID())
	if err != nil || !found {
		t.Fatalf("CoinByID: found=%v err=%v", found, err)
	}
	if rec.AssetID == nil || *rec.AssetID != assetID {
		t.Errorf("AssetID = %v, want %v", rec.AssetID, assetID)
	}
	if rec.P2PuzzleHash == nil || *rec.P2PuzzleHash != p2Hash {
		t.Errorf("P2PuzzleHash = %v, want %v", rec.P2PuzzleHash, p2Hash)
	}
}
