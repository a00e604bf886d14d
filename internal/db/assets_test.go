package db

import (
	"context"
	"testing"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

func insertPendingNft(t *testing.T, store *Store, seed byte, uri string, fetched bool) models.Hash {
	t.Helper()
	assetID := mustHash(t, seed)
	ctx := context.Background()
	err := store.WithTx(ctx, func(tx *Tx) error {
		if err := tx.UpsertAsset(ctx, models.Asset{Hash: assetID, Kind: models.AssetKindNft}); err != nil {
			return err
		}
		return tx.UpsertNftInfo(ctx, models.NftInfo{
			AssetID:           assetID,
			LauncherID:        assetID,
			RoyaltyPuzzleHash: mustHash(t, seed+100),
			MetadataURI:       uri,
			IsMetadataFetched: fetched,
		})
	})
	if err != nil {
		t.Fatalf("insertPendingNft: %v", err)
	}
	return assetID
}

func TestNftsPendingMetadataSkipsFetchedAndEmptyURI(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	pending := insertPendingNft(t, store, 0x10, "ipfs://pending", false)
	insertPendingNft(t, store, 0x11, "ipfs://done", true)
	insertPendingNft(t, store, 0x12, "", false)

	got, err := store.NftsPendingMetadata(ctx, 10)
	if err != nil {
		t.Fatalf("NftsPendingMetadata: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1", len(got))
	}
	if got[0].AssetID != pending {
		t.Fatalf("got asset %s, want %s", got[0].AssetID, pending)
	}
	if got[0].MetadataURI != "ipfs://pending" {
		t.Fatalf("got uri %q, want %q", got[0].MetadataURI, "ipfs://pending")
	}
}

func TestMarkNftMetadataFetchedRemovesFromPending(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	assetID := insertPendingNft(t, store, 0x20, "ipfs://pending", false)

	if err := store.MarkNftMetadataFetched(ctx, assetID); err != nil {
		t.Fatalf("MarkNftMetadataFetched: %v", err)
	}

	got, err := store.NftsPendingMetadata(ctx, 10)
	if err != nil {
		t.Fatalf("NftsPendingMetadata: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("len(got) = %d, want 0 after marking fetched", len(got))
	}
}
