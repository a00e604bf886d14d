package mempool

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rawblock/lightwallet-engine/internal/db"
	"github.com/rawblock/lightwallet-engine/internal/peerpool"
	"github.com/rawblock/lightwallet-engine/internal/puzzle"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// testSignature is the BLS12-381 G2 generator point, compressed. It is a
// public curve parameter, not a secret; reused here purely to satisfy
// Submit's subgroup check on bundles this test never actually signs.
func testSignature(t *testing.T) models.Signature {
	t.Helper()
	b, err := hex.DecodeString("93e02b6052719f607dacd3a088274f65596bd0d09920b61ab5da61bbdc7f5049334cf11213945d57e5ac7d055d042b7e024aa2b2f08f0a91260805272dc51051c6e47ad4fa403b02b4510b647ae3d1770bac0326a805bbefd48056c8c121bdb8")
	if err != nil {
		t.Fatalf("decode generator point: %v", err)
	}
	var sig models.Signature
	copy(sig[:], b)
	return sig
}

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

func height(n uint32) *uint32 { return &n }

func seedCoin(t *testing.T, store *db.Store, p2Hash models.Hash, amount uint64) models.Coin {
	t.Helper()
	coin := models.Coin{ParentCoinInfo: mustHash(0xAA), PuzzleHash: p2Hash, Amount: amount}
	if err := store.InsertCoin(context.Background(), coin, height(10), nil); err != nil {
		t.Fatalf("InsertCoin: %v", err)
	}
	return coin
}

func fixedClock(seconds int64) Clock {
	return func() int64 { return seconds }
}

func TestSubmitInsertsItemAndLocksKnownCoins(t *testing.T) {
	store := openTestStore(t)
	coin := seedCoin(t, store, mustHash(0x01), 1000)

	var emitted []models.Hash
	ledger := New(store, peerpool.New(), fixedClock(1000), func(id models.Hash) { emitted = append(emitted, id) })

	bundle := models.SpendBundle{
		Spends:        []models.CoinSpend{{Coin: coin, PuzzleReveal: []byte("reveal"), Solution: []byte("solution")}},
		AggregatedSig: testSignature(t),
	}

	itemID, err := ledger.Submit(context.Background(), bundle, 5)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(emitted) != 1 || emitted[0] != itemID {
		t.Fatalf("expected the emit callback to fire once with the item id, got %v", emitted)
	}

	rec, found, err := store.CoinByID(context.Background(), coin.CoinID())
	if err != nil || !found {
		t.Fatalf("CoinByID: %v %v", found, err)
	}
	if rec.MempoolItemID == nil || *rec.MempoolItemID != itemID {
		t.Fatalf("expected the spent coin to be locked under the mempool item")
	}

	spends, err := store.MempoolSpendsByItemID(context.Background(), itemID)
	if err != nil {
		t.Fatalf("MempoolSpendsByItemID: %v", err)
	}
	if len(spends) != 1 || spends[0].CoinID != coin.CoinID() {
		t.Fatalf("expected one stored spend for the submitted coin")
	}
}

func TestSubmitRejectsEmptyBundle(t *testing.T) {
	store := openTestStore(t)
	ledger := New(store, peerpool.New(), fixedClock(1000), nil)

	_, err := ledger.Submit(context.Background(), models.SpendBundle{}, 0)
	if err == nil {
		t.Fatalf("expected an error for a bundle with no spends")
	}
}

func TestSubmitSkipsLockingUnknownCoin(t *testing.T) {
	store := openTestStore(t)
	ledger := New(store, peerpool.New(), fixedClock(1000), nil)

	// A coin this wallet has never seen (e.g. an output the peer has not
	// yet reported back) has no row to lock; Submit must not fail on it.
	unknown := models.Coin{ParentCoinInfo: mustHash(0xBB), PuzzleHash: mustHash(0x02), Amount: 500}
	bundle := models.SpendBundle{Spends: []models.CoinSpend{{Coin: unknown, PuzzleReveal: []byte("r"), Solution: []byte("s")}}, AggregatedSig: testSignature(t)}

	if _, err := ledger.Submit(context.Background(), bundle, 0); err != nil {
		t.Fatalf("Submit: %v", err)
	}
}

// createCoinSolution builds a solution Program whose single CREATE_COIN
// condition (opcode 51) creates a coin under puzzleHash for amount.
func createCoinSolution(puzzleHash models.Hash, amount uint64) []byte {
	condition := puzzle.Program{Args: []puzzle.Program{
		{Atom: []byte{51}},
		{Atom: puzzleHash.Bytes()},
		{Atom: []byte{byte(amount)}},
	}}
	solution := puzzle.Program{Args: []puzzle.Program{condition}}
	b, err := json.Marshal(solution)
	if err != nil {
		panic(err)
	}
	return b
}

func TestSubmitProjectsOutputCoinUntilRemoved(t *testing.T) {
	store := openTestStore(t)
	coin := seedCoin(t, store, mustHash(0x01), 1000)
	outputPuzzleHash := mustHash(0x09)

	ledger := New(store, peerpool.New(), fixedClock(1000), nil)
	bundle := models.SpendBundle{
		Spends: []models.CoinSpend{{
			Coin:         coin,
			PuzzleReveal: []byte(`{}`),
			Solution:     createCoinSolution(outputPuzzleHash, 100),
		}},
		AggregatedSig: testSignature(t),
	}

	itemID, err := ledger.Submit(context.Background(), bundle, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	outputCoin := coin.Child(outputPuzzleHash, 100)
	rec, found, err := store.CoinByID(context.Background(), outputCoin.CoinID())
	if err != nil {
		t.Fatalf("CoinByID: %v", err)
	}
	if !found {
		t.Fatalf("expected the bundle's output coin to be projected into the coins table")
	}
	if rec.CreatedHeight != nil {
		t.Fatalf("expected the unconfirmed output coin to have a null created_height, got %v", *rec.CreatedHeight)
	}

	if err := store.WithTx(context.Background(), func(tx *db.Tx) error {
		if err := tx.SetMempoolLock(context.Background(), coin.CoinID(), nil); err != nil {
			return err
		}
		return tx.RemoveMempoolItem(context.Background(), itemID)
	}); err != nil {
		t.Fatalf("RemoveMempoolItem: %v", err)
	}

	_, found, err = store.CoinByID(context.Background(), outputCoin.CoinID())
	if err != nil {
		t.Fatalf("CoinByID after removal: %v", err)
	}
	if found {
		t.Fatalf("expected the unconfirmed output coin to be deleted once its mempool item is removed")
	}
}

func TestResubmitterTickSkipsItemsNotYetDue(t *testing.T) {
	store := openTestStore(t)
	coin := seedCoin(t, store, mustHash(0x01), 1000)
	ledger := New(store, peerpool.New(), fixedClock(1000), nil)

	bundle := models.SpendBundle{Spends: []models.CoinSpend{{Coin: coin, PuzzleReveal: []byte("r"), Solution: []byte("s")}}, AggregatedSig: testSignature(t)}
	itemID, err := ledger.Submit(context.Background(), bundle, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	resubmitter := NewResubmitter(ledger, 30*time.Second, 10)
	if err := resubmitter.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	due, err := store.MempoolItemsDueForResubmit(context.Background(), 1005, 30, 10)
	if err != nil {
		t.Fatalf("MempoolItemsDueForResubmit: %v", err)
	}
	for _, item := range due {
		if item.ID == itemID {
			t.Fatalf("expected the just-submitted item not to be due again 5s later")
		}
	}
}
