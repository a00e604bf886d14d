package planner

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/rawblock/lightwallet-engine/internal/db"
	"github.com/rawblock/lightwallet-engine/internal/walleterr"
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

func height(n uint32) *uint32 { return &n }

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

// fakeBuilder is a stub PuzzleBuilder: it records every AssetSpend it
// was asked to lower and returns deterministic placeholder bytes.
type fakeBuilder struct {
	built []AssetSpend
}

func (f *fakeBuilder) BuildSpend(_ context.Context, spend AssetSpend) ([]byte, []byte, error) {
	f.built = append(f.built, spend)
	return []byte("reveal"), []byte("solution"), nil
}

func seedNativeCoin(t *testing.T, store *db.Store, p2Hash models.Hash, amount uint64) models.Coin {
	t.Helper()
	coin := models.Coin{ParentCoinInfo: mustHash(0xAA), PuzzleHash: p2Hash, Amount: amount}
	ctx := context.Background()
	if err := store.InsertCoin(ctx, coin, height(10), nil); err != nil {
		t.Fatalf("InsertCoin: %v", err)
	}
	if err := store.UpdateCoinClassification(ctx, coin.CoinID(), models.ZeroHash, p2Hash); err != nil {
		t.Fatalf("UpdateCoinClassification: %v", err)
	}
	return coin
}

func seedUnusedDerivation(t *testing.T, store *db.Store, p2Hash models.Hash) {
	t.Helper()
	err := store.WithTx(context.Background(), func(tx *db.Tx) error {
		return tx.InsertDerivation(context.Background(), models.Derivation{
			Index: 0, IsHardened: false, PublicKey: testPublicKey(t), P2PuzzleHash: p2Hash,
		})
	})
	if err != nil {
		t.Fatalf("InsertDerivation: %v", err)
	}
}

func TestPlanSendExactMatchHasNoChange(t *testing.T) {
	store := openTestStore(t)
	ownHash := mustHash(0x01)
	coin := seedNativeCoin(t, store, ownHash, 1000)

	builder := &fakeBuilder{}
	p := New(store, builder)

	recipient := mustHash(0x02)
	result, err := p.Plan(context.Background(), []Action{
		Send{Recipient: recipient, Amount: 1000},
	}, 0)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(result.Bundle.Spends) != 1 {
		t.Fatalf("expected 1 spend, got %d", len(result.Bundle.Spends))
	}
	if result.Bundle.Spends[0].Coin.CoinID() != coin.CoinID() {
		t.Fatalf("expected the seeded coin to be spent")
	}
	if len(result.SelectedCoins) != 1 || result.SelectedCoins[0] != coin.CoinID() {
		t.Fatalf("expected the seeded coin id to be reported selected")
	}

	spend := builder.built[0]
	if len(spend.Conditions) != 1 {
		t.Fatalf("expected exactly the payment condition, got %d: %+v", len(spend.Conditions), spend.Conditions)
	}
	cc, ok := spend.Conditions[0].(CreateCoin)
	if !ok || cc.PuzzleHash != recipient || cc.Amount != 1000 {
		t.Fatalf("unexpected condition: %+v", spend.Conditions[0])
	}
}

func TestPlanSendWithChangeAndFee(t *testing.T) {
	store := openTestStore(t)
	ownHash := mustHash(0x01)
	seedNativeCoin(t, store, ownHash, 1000)
	changeHash := mustHash(0x03)
	seedUnusedDerivation(t, store, changeHash)

	builder := &fakeBuilder{}
	p := New(store, builder)

	recipient := mustHash(0x02)
	result, err := p.Plan(context.Background(), []Action{
		Send{Recipient: recipient, Amount: 400},
	}, 10)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(result.Bundle.Spends) != 1 {
		t.Fatalf("expected 1 spend, got %d", len(result.Bundle.Spends))
	}

	spend := builder.built[0]
	var sawFee, sawPayment, sawChange bool
	for _, c := range spend.Conditions {
		switch cond := c.(type) {
		case ReserveFee:
			if cond.Amount != 10 {
				t.Fatalf("unexpected fee amount %d", cond.Amount)
			}
			sawFee = true
		case CreateCoin:
			switch {
			case cond.PuzzleHash == recipient && cond.Amount == 400:
				sawPayment = true
			case cond.PuzzleHash == changeHash && cond.Amount == 590:
				sawChange = true
			}
		}
	}
	if !sawFee || !sawPayment || !sawChange {
		t.Fatalf("missing expected conditions: fee=%v payment=%v change=%v (%+v)", sawFee, sawPayment, sawChange, spend.Conditions)
	}
}

func TestPlanInsufficientFunds(t *testing.T) {
	store := openTestStore(t)
	ownHash := mustHash(0x01)
	seedNativeCoin(t, store, ownHash, 100)

	p := New(store, &fakeBuilder{})
	_, err := p.Plan(context.Background(), []Action{
		Send{Recipient: mustHash(0x02), Amount: 1000},
	}, 0)
	if !walleterr.Is(err, walleterr.KindInsufficientFunds) {
		t.Fatalf("expected KindInsufficientFunds, got %v", err)
	}
}

func TestPlanMultiCoinGroupFormsRingOfAssertions(t *testing.T) {
	store := openTestStore(t)
	ownHash := mustHash(0x01)
	c1 := seedNativeCoin(t, store, ownHash, 600)
	c2 := seedNativeCoin(t, store, mustHash(0x05), 500)

	builder := &fakeBuilder{}
	p := New(store, builder)
	result, err := p.Plan(context.Background(), []Action{
		Send{Recipient: mustHash(0x02), Amount: 1000},
	}, 0)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(result.Bundle.Spends) != 2 {
		t.Fatalf("expected 2 spends, got %d", len(result.Bundle.Spends))
	}

	ids := map[models.Hash]bool{c1.CoinID(): true, c2.CoinID(): true}
	byCoin := map[models.Hash]AssetSpend{}
	for _, spend := range builder.built {
		if !ids[spend.Coin.CoinID()] {
			t.Fatalf("unexpected coin spent: %v", spend.Coin.CoinID())
		}
		byCoin[spend.Coin.CoinID()] = spend
	}

	if !hasEqualCondition(byCoin[c1.CoinID()].Conditions, AssertConcurrentSpend{CoinID: c2.CoinID()}) {
		t.Fatalf("expected c1's spend to assert concurrent spend of c2")
	}
	if !hasEqualCondition(byCoin[c2.CoinID()].Conditions, AssertConcurrentSpend{CoinID: c1.CoinID()}) {
		t.Fatalf("expected c2's spend to assert concurrent spend of c1")
	}
}

func TestAddPaymentRoutesDuplicateThroughIntermediateCoin(t *testing.T) {
	parentHash := mustHash(0x01)
	slots := []AssetSpend{
		{Coin: models.Coin{ParentCoinInfo: mustHash(0xAA), PuzzleHash: parentHash, Amount: 1000}, P2PuzzleHash: parentHash},
	}

	payment := CreateCoin{PuzzleHash: mustHash(0x02), Amount: 100}
	addPayment(&slots, payment)
	if len(slots) != 1 {
		t.Fatalf("first payment should not need an intermediate coin, got %d slots", len(slots))
	}

	addPayment(&slots, payment)
	if len(slots) != 2 {
		t.Fatalf("duplicate payment should route through an intermediate coin, got %d slots", len(slots))
	}
	if !hasEqualCondition(slots[1].Conditions, payment) {
		t.Fatalf("intermediate coin should carry the duplicate payment")
	}
	if !hasEqualCondition(slots[0].Conditions, CreateCoin{PuzzleHash: parentHash, Amount: 0}) {
		t.Fatalf("parent should carry a zero-value marker coin for the intermediate child")
	}
}

func TestRoyaltyPaymentsSkipsZeroRoyalty(t *testing.T) {
	royaltyHash := mustHash(0x09)
	conditions := RoyaltyPayments([]uint64{10_000, 1, 0}, royaltyHash, 250) // 2.5%
	if len(conditions) != 1 {
		t.Fatalf("expected 1 royalty payment (the other two round to zero), got %d", len(conditions))
	}
	cc, ok := conditions[0].(CreateCoin)
	if !ok || cc.Amount != 250 || cc.PuzzleHash != royaltyHash {
		t.Fatalf("unexpected royalty condition: %+v", conditions[0])
	}
}
