package db

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// testGeneratorPublicKey is the BLS12-381 G1 generator point, compressed.
// It is a public curve parameter, not a secret; every Derivation row in
// these tests reuses it purely to satisfy InsertDerivation's subgroup
// check.
func testGeneratorPublicKey(t *testing.T) models.PublicKey {
	t.Helper()
	b, err := hex.DecodeString("97f1d3a73197d7942695638c4fa9ac0fc3688c4f9774b905a14e3a3f171bac586c55e83ff97a1aeffb3af00adb22c6bb")
	if err != nil {
		t.Fatalf("decode generator point: %v", err)
	}
	var pk models.PublicKey
	copy(pk[:], b)
	return pk
}

func TestAllPuzzleHashesReturnsEveryDerivedHash(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	pk := testGeneratorPublicKey(t)
	hashes := []models.Hash{mustHash(t, 0x01), mustHash(t, 0x02), mustHash(t, 0x03)}
	err := store.WithTx(ctx, func(tx *Tx) error {
		for i, h := range hashes {
			d := models.Derivation{Index: uint32(i), IsHardened: false, PublicKey: pk, P2PuzzleHash: h}
			if err := tx.InsertDerivation(ctx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	got, err := store.AllPuzzleHashes(ctx)
	if err != nil {
		t.Fatalf("AllPuzzleHashes: %v", err)
	}
	if len(got) != len(hashes) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(hashes))
	}

	seen := make(map[models.Hash]bool)
	for _, h := range got {
		seen[h] = true
	}
	for _, h := range hashes {
		if !seen[h] {
			t.Fatalf("missing derived hash %s in result", h)
		}
	}
}

func TestAllPuzzleHashesEmptyWhenNoDerivations(t *testing.T) {
	store := openTestStore(t)
	got, err := store.AllPuzzleHashes(context.Background())
	if err != nil {
		t.Fatalf("AllPuzzleHashes: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len(got) = %d, want 0", len(got))
	}
}

func TestInsertDerivationRejectsMalformedPublicKey(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx *Tx) error {
		return tx.InsertDerivation(ctx, models.Derivation{
			Index:        0,
			IsHardened:   false,
			PublicKey:    models.PublicKey{}, // all-zero, not a curve point
			P2PuzzleHash: mustHash(t, 0x01),
		})
	})
	if err == nil {
		t.Fatal("InsertDerivation: want error for an all-zero public key, got nil")
	}
}
