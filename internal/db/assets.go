package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// UpsertAsset inserts or updates the base Asset row. Kind-specific info
// is written separately by UpsertTokenInfo/UpsertNftInfo/UpsertDidInfo/
// UpsertOptionInfo, one row per kind in its own join table.
func (s *Store) UpsertAsset(ctx context.Context, asset models.Asset) error {
	return upsertAsset(ctx, s.q(), asset)
}

func (t *Tx) UpsertAsset(ctx context.Context, asset models.Asset) error {
	return upsertAsset(ctx, t.q(), asset)
}

func upsertAsset(ctx context.Context, q querier, asset models.Asset) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO assets (hash, kind, name, icon_url, description, is_visible)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			name = excluded.name,
			icon_url = excluded.icon_url,
			description = excluded.description,
			is_visible = excluded.is_visible
	`, asset.Hash, int(asset.Kind), asset.Name, asset.IconURL, asset.Description, boolToInt(asset.IsVisible))
	if err != nil {
		return fmt.Errorf("db: upsert asset %s: %w", asset.Hash, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AssetByID fetches the base Asset row, or (zero, false, nil) if absent.
func (s *Store) AssetByID(ctx context.Context, assetID models.Hash) (models.Asset, bool, error) {
	var a models.Asset
	var kind int
	var isVisible int
	err := s.q().QueryRowContext(ctx,
		"SELECT hash, kind, name, icon_url, description, is_visible FROM assets WHERE hash = ?", assetID,
	).Scan(&a.Hash, &kind, &a.Name, &a.IconURL, &a.Description, &isVisible)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Asset{}, false, nil
	}
	if err != nil {
		return models.Asset{}, false, fmt.Errorf("db: asset by id %s: %w", assetID, err)
	}
	a.Kind = models.AssetKind(kind)
	a.IsVisible = isVisible != 0
	return a, true, nil
}

// UpsertTokenInfo writes the ticker/decimals row joined to a Token asset.
func (t *Tx) UpsertTokenInfo(ctx context.Context, info models.TokenInfo) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO token_info (asset_hash, ticker, decimals, is_metadata_fetched)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(asset_hash) DO UPDATE SET
			ticker = excluded.ticker, decimals = excluded.decimals,
			is_metadata_fetched = excluded.is_metadata_fetched
	`, info.AssetID, info.Ticker, info.Decimals, boolToInt(info.IsMetadataFetched))
	if err != nil {
		return fmt.Errorf("db: upsert token info %s: %w", info.AssetID, err)
	}
	return nil
}

// UpsertNftInfo writes the collection/minter/owner/metadata row joined to
// an Nft asset.
func (t *Tx) UpsertNftInfo(ctx context.Context, info models.NftInfo) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO nft_info (asset_hash, launcher_id, collection_id, minter_hash, owner_hash,
			metadata_uri, metadata_hash, royalty_puzzle_hash, royalty_basis_points,
			edition_number, edition_total, is_metadata_fetched)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_hash) DO UPDATE SET
			collection_id = excluded.collection_id,
			minter_hash = excluded.minter_hash,
			owner_hash = excluded.owner_hash,
			metadata_uri = excluded.metadata_uri,
			metadata_hash = excluded.metadata_hash,
			royalty_puzzle_hash = excluded.royalty_puzzle_hash,
			royalty_basis_points = excluded.royalty_basis_points,
			edition_number = excluded.edition_number,
			edition_total = excluded.edition_total
	`, info.AssetID, info.LauncherID, info.CollectionID, info.MinterHash, info.OwnerHash,
		info.MetadataURI, info.MetadataHash, info.RoyaltyPuzzleHash, info.RoyaltyBasisPoints,
		info.EditionNumber, info.EditionTotal, boolToInt(info.IsMetadataFetched))
	if err != nil {
		return fmt.Errorf("db: upsert nft info %s: %w", info.AssetID, err)
	}
	return nil
}

// MarkNftMetadataFetched flips an NFT's is_metadata_fetched flag once an
// outer caller has resolved metadata_uri's off-chain payload, so the next
// NftsPendingMetadata poll stops returning it.
func (s *Store) MarkNftMetadataFetched(ctx context.Context, assetID models.Hash) error {
	_, err := s.q().ExecContext(ctx,
		"UPDATE nft_info SET is_metadata_fetched = 1 WHERE asset_hash = ?", assetID)
	if err != nil {
		return fmt.Errorf("db: mark nft metadata fetched %s: %w", assetID, err)
	}
	return nil
}

// NftsPendingMetadata returns every NFT asset with a non-empty metadata_uri
// that has not yet been flagged fetched. This is the hook an outer NFT
// metadata fetcher (an external collaborator this engine never calls
// itself) polls to learn what off-chain payloads it still needs to
// retrieve.
func (s *Store) NftsPendingMetadata(ctx context.Context, limit int) ([]models.NftPendingMetadata, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT asset_hash, launcher_id, metadata_uri
		FROM nft_info
		WHERE is_metadata_fetched = 0 AND metadata_uri != ''
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("db: nfts pending metadata: %w", err)
	}
	defer rows.Close()

	var out []models.NftPendingMetadata
	for rows.Next() {
		var info models.NftPendingMetadata
		if err := rows.Scan(&info.AssetID, &info.LauncherID, &info.MetadataURI); err != nil {
			return nil, fmt.Errorf("db: scan nft pending metadata: %w", err)
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: nfts pending metadata: %w", err)
	}
	return out, nil
}

// UpsertDidInfo writes the recovery-list/verification row joined to a Did
// asset.
func (t *Tx) UpsertDidInfo(ctx context.Context, info models.DidInfo) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO did_info (asset_hash, recovery_list_hash, num_verifications, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(asset_hash) DO UPDATE SET
			recovery_list_hash = excluded.recovery_list_hash,
			num_verifications = excluded.num_verifications,
			metadata = excluded.metadata
	`, info.AssetID, info.RecoveryListHash, info.NumVerifications, info.Metadata)
	if err != nil {
		return fmt.Errorf("db: upsert did info %s: %w", info.AssetID, err)
	}
	return nil
}

// UpsertOptionInfo writes the underlying-coin/strike-asset row joined to
// an Option asset.
func (t *Tx) UpsertOptionInfo(ctx context.Context, info models.OptionInfo) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO option_info (asset_hash, underlying_coin_id, underlying_asset_id,
			underlying_amount, strike_asset_id, strike_amount, expiration_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(asset_hash) DO UPDATE SET
			underlying_coin_id = excluded.underlying_coin_id,
			underlying_asset_id = excluded.underlying_asset_id,
			underlying_amount = excluded.underlying_amount,
			strike_asset_id = excluded.strike_asset_id,
			strike_amount = excluded.strike_amount,
			expiration_seconds = excluded.expiration_seconds
	`, info.AssetID, info.UnderlyingCoinID, info.UnderlyingAssetID, info.UnderlyingAmount,
		info.StrikeAssetID, info.StrikeAmount, info.ExpirationSeconds)
	if err != nil {
		return fmt.Errorf("db: upsert option info %s: %w", info.AssetID, err)
	}
	return nil
}

// InsertLineageProof records the data needed to re-spend a singleton or
// CAT descendant without refetching its ancestors.
func (t *Tx) InsertLineageProof(ctx context.Context, proof models.LineageProof) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO lineage_proofs (coin_id, parent_parent_coin_info, parent_inner_puzzle_hash, parent_amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(coin_id) DO UPDATE SET
			parent_parent_coin_info = excluded.parent_parent_coin_info,
			parent_inner_puzzle_hash = excluded.parent_inner_puzzle_hash,
			parent_amount = excluded.parent_amount
	`, proof.CoinID, proof.ParentParentCoinInfo, proof.ParentInnerPuzzleHash, proof.ParentAmount)
	if err != nil {
		return fmt.Errorf("db: insert lineage proof %s: %w", proof.CoinID, err)
	}
	return nil
}

// LineageProofByCoinID fetches the lineage proof for a coin, or
// (zero, false, nil) if none is recorded.
func (s *Store) LineageProofByCoinID(ctx context.Context, coinID models.Hash) (models.LineageProof, bool, error) {
	var p models.LineageProof
	p.CoinID = coinID
	err := s.q().QueryRowContext(ctx,
		"SELECT parent_parent_coin_info, parent_inner_puzzle_hash, parent_amount FROM lineage_proofs WHERE coin_id = ?",
		coinID,
	).Scan(&p.ParentParentCoinInfo, &p.ParentInnerPuzzleHash, &p.ParentAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return models.LineageProof{}, false, nil
	}
	if err != nil {
		return models.LineageProof{}, false, fmt.Errorf("db: lineage proof %s: %w", coinID, err)
	}
	return p, true, nil
}
