package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// InsertCoin upserts a coin observed from the peer network: created/spent
// height update on conflict, everything else left alone so classification
// state survives a re-observation.
func (s *Store) InsertCoin(ctx context.Context, coin models.Coin, createdHeight, spentHeight *uint32) error {
	return insertCoin(ctx, s.q(), coin, createdHeight, spentHeight)
}

func (t *Tx) InsertCoin(ctx context.Context, coin models.Coin, createdHeight, spentHeight *uint32) error {
	return insertCoin(ctx, t.q(), coin, createdHeight, spentHeight)
}

func insertCoin(ctx context.Context, q querier, coin models.Coin, createdHeight, spentHeight *uint32) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO coins (hash, parent_coin_hash, puzzle_hash, amount, created_height, spent_height)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			created_height = excluded.created_height,
			spent_height = excluded.spent_height
	`, coin.CoinID(), coin.ParentCoinInfo, coin.PuzzleHash, coin.Amount, createdHeight, spentHeight)
	if err != nil {
		return fmt.Errorf("db: insert coin %s: %w", coin.CoinID(), err)
	}
	return nil
}

// IsKnownCoin reports whether coinID already has a row.
func (s *Store) IsKnownCoin(ctx context.Context, coinID models.Hash) (bool, error) {
	return isKnownCoin(ctx, s.q(), coinID)
}

func (t *Tx) IsKnownCoin(ctx context.Context, coinID models.Hash) (bool, error) {
	return isKnownCoin(ctx, t.q(), coinID)
}

func isKnownCoin(ctx context.Context, q querier, coinID models.Hash) (bool, error) {
	var count int
	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM coins WHERE hash = ?", coinID).Scan(&count); err != nil {
		return false, fmt.Errorf("db: is known coin %s: %w", coinID, err)
	}
	return count > 0, nil
}

// UpdateCoinClassification binds a coin to its resolved asset and p2
// puzzle once the Puzzle Classifier has resolved its ChildKind.
func (s *Store) UpdateCoinClassification(ctx context.Context, coinID, assetHash, p2PuzzleHash models.Hash) error {
	return updateCoinClassification(ctx, s.q(), coinID, assetHash, p2PuzzleHash)
}

func (t *Tx) UpdateCoinClassification(ctx context.Context, coinID, assetHash, p2PuzzleHash models.Hash) error {
	return updateCoinClassification(ctx, t.q(), coinID, assetHash, p2PuzzleHash)
}

func updateCoinClassification(ctx context.Context, q querier, coinID, assetHash, p2PuzzleHash models.Hash) error {
	_, err := q.ExecContext(ctx,
		"UPDATE coins SET asset_hash = ?, p2_puzzle_hash = ? WHERE hash = ?",
		assetHash, p2PuzzleHash, coinID)
	if err != nil {
		return fmt.Errorf("db: update coin classification %s: %w", coinID, err)
	}
	return nil
}

// SetChildrenSynced marks a spent coin's children as fully traced, so it
// drops out of UnsyncedCoins.
func (t *Tx) SetChildrenSynced(ctx context.Context, coinID models.Hash) error {
	_, err := t.q().ExecContext(ctx, "UPDATE coins SET is_children_synced = 1 WHERE hash = ?", coinID)
	if err != nil {
		return fmt.Errorf("db: set children synced %s: %w", coinID, err)
	}
	return nil
}

// SetMempoolLock records that coinID is locked by a pending mempool item
// (nil clears the lock). A coin locked by a mempool item must not also be
// locked into an offer, and vice versa.
func (t *Tx) SetMempoolLock(ctx context.Context, coinID models.Hash, mempoolItemID *models.Hash) error {
	_, err := t.q().ExecContext(ctx, "UPDATE coins SET mempool_item_hash = ? WHERE hash = ?", mempoolItemID, coinID)
	if err != nil {
		return fmt.Errorf("db: set mempool lock %s: %w", coinID, err)
	}
	return nil
}

// SetOfferLock records that coinID is locked into an offer's settlement
// side (nil clears the lock).
func (t *Tx) SetOfferLock(ctx context.Context, coinID models.Hash, offerID *models.Hash) error {
	_, err := t.q().ExecContext(ctx, "UPDATE coins SET offer_hash = ? WHERE hash = ?", offerID, coinID)
	if err != nil {
		return fmt.Errorf("db: set offer lock %s: %w", coinID, err)
	}
	return nil
}

// DeleteCoin removes a coin row, used by the puzzle classification queue
// to drop a root coin that turned out not to belong to this wallet.
func (t *Tx) DeleteCoin(ctx context.Context, coinID models.Hash) error {
	_, err := t.q().ExecContext(ctx, "DELETE FROM coins WHERE hash = ?", coinID)
	if err != nil {
		return fmt.Errorf("db: delete coin %s: %w", coinID, err)
	}
	return nil
}

// CoinsByOfferID returns every coin currently locked into the given
// offer's settlement side, the set the Offer Engine re-spends when
// cancelling an offer.
func (s *Store) CoinsByOfferID(ctx context.Context, offerID models.Hash) ([]models.CoinRecord, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT hash, parent_coin_hash, puzzle_hash, amount, created_height, spent_height,
		       asset_hash, p2_puzzle_hash, is_children_synced, mempool_item_hash, offer_hash
		FROM coins WHERE offer_hash = ?
	`, offerID)
	if err != nil {
		return nil, fmt.Errorf("db: coins by offer id %s: %w", offerID, err)
	}
	defer rows.Close()

	var out []models.CoinRecord
	for rows.Next() {
		rec, err := scanCoinRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db: coins by offer id scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var errNoRows = sql.ErrNoRows

// CoinByID fetches a single coin record, or (zero, false, nil) if absent.
func (s *Store) CoinByID(ctx context.Context, coinID models.Hash) (models.CoinRecord, bool, error) {
	row := s.q().QueryRowContext(ctx, `
		SELECT hash, parent_coin_hash, puzzle_hash, amount, created_height, spent_height,
		       asset_hash, p2_puzzle_hash, is_children_synced, mempool_item_hash, offer_hash
		FROM coins WHERE hash = ?
	`, coinID)
	rec, err := scanCoinRecord(row)
	if errors.Is(err, errNoRows) {
		return models.CoinRecord{}, false, nil
	}
	if err != nil {
		return models.CoinRecord{}, false, fmt.Errorf("db: coin by id %s: %w", coinID, err)
	}
	return rec, true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCoinRecord(row rowScanner) (models.CoinRecord, error) {
	var rec models.CoinRecord
	var assetID, p2PuzzleHash, mempoolItemID, offerID sql.Null[models.Hash]
	var isChildrenSynced int
	if err := row.Scan(
		&rec.CoinID, &rec.ParentCoinInfo, &rec.PuzzleHash, &rec.Amount,
		&rec.CreatedHeight, &rec.SpentHeight,
		&assetID, &p2PuzzleHash, &isChildrenSynced, &mempoolItemID, &offerID,
	); err != nil {
		return models.CoinRecord{}, err
	}
	if assetID.Valid {
		rec.AssetID = &assetID.V
	}
	if p2PuzzleHash.Valid {
		rec.P2PuzzleHash = &p2PuzzleHash.V
	}
	if mempoolItemID.Valid {
		rec.MempoolItemID = &mempoolItemID.V
	}
	if offerID.Valid {
		rec.OfferID = &offerID.V
	}
	rec.IsChildrenSynced = isChildrenSynced != 0
	return rec, nil
}

// CoinRecords runs a filtered, sorted, paginated coin_records query,
// returning a page plus the total matching row count.
func (s *Store) CoinRecords(ctx context.Context, filter models.CoinFilter, sort models.CoinSort, paging models.Paging) (models.Page[models.CoinRecord], error) {
	var where []string
	var args []interface{}

	if filter.AssetID != nil {
		where = append(where, "asset_hash = ?")
		args = append(args, *filter.AssetID)
	}
	if filter.P2PuzzleHash != nil {
		where = append(where, "p2_puzzle_hash = ?")
		args = append(args, *filter.P2PuzzleHash)
	}
	if filter.SpendableOnly {
		where = append(where, "created_height IS NOT NULL AND spent_height IS NULL AND mempool_item_hash IS NULL AND offer_hash IS NULL")
	}
	if !filter.IncludeSpent {
		where = append(where, "spent_height IS NULL")
	}
	if filter.AssetKind != nil {
		where = append(where, "asset_hash IN (SELECT hash FROM assets WHERE kind = ?)")
		args = append(args, int(*filter.AssetKind))
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM coins " + whereSQL
	if err := s.q().QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return models.Page[models.CoinRecord]{}, fmt.Errorf("db: coin_records count: %w", err)
	}

	orderCol := "created_height"
	if sort == models.SortByAmount {
		orderCol = "amount"
	}

	limit := paging.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	dataQuery := fmt.Sprintf(`
		SELECT hash, parent_coin_hash, puzzle_hash, amount, created_height, spent_height,
		       asset_hash, p2_puzzle_hash, is_children_synced, mempool_item_hash, offer_hash
		FROM coins %s
		ORDER BY %s DESC
		LIMIT ? OFFSET ?
	`, whereSQL, orderCol)
	dataArgs := append(append([]interface{}{}, args...), limit, paging.Offset)

	rows, err := s.q().QueryContext(ctx, dataQuery, dataArgs...)
	if err != nil {
		return models.Page[models.CoinRecord]{}, fmt.Errorf("db: coin_records query: %w", err)
	}
	defer rows.Close()

	items := make([]models.CoinRecord, 0, limit)
	for rows.Next() {
		rec, err := scanCoinRecord(rows)
		if err != nil {
			return models.Page[models.CoinRecord]{}, fmt.Errorf("db: coin_records scan: %w", err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return models.Page[models.CoinRecord]{}, fmt.Errorf("db: coin_records rows: %w", err)
	}

	return models.Page[models.CoinRecord]{Items: items, TotalCount: total}, nil
}

// UnsyncedCoins returns up to limit coins whose classification or
// children-traced state is not yet resolved, feeding the puzzle
// classification queue.
func (s *Store) UnsyncedCoins(ctx context.Context, limit int) ([]models.CoinRecord, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT hash, parent_coin_hash, puzzle_hash, amount, created_height, spent_height,
		       asset_hash, p2_puzzle_hash, is_children_synced, mempool_item_hash, offer_hash
		FROM coins
		WHERE asset_hash IS NULL OR (spent_height IS NOT NULL AND is_children_synced = 0)
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("db: unsynced coins: %w", err)
	}
	defer rows.Close()

	var out []models.CoinRecord
	for rows.Next() {
		rec, err := scanCoinRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db: unsynced coins scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AreCoinsSpendable reports whether every one of coinIDs exists and is
// currently spendable, the precondition the Spend Planner checks before
// building a bundle around caller-pinned coins.
func (s *Store) AreCoinsSpendable(ctx context.Context, coinIDs []models.Hash) (bool, error) {
	if len(coinIDs) == 0 {
		return false, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(coinIDs)), ",")
	args := make([]interface{}, len(coinIDs))
	for i, id := range coinIDs {
		args[i] = id
	}

	var count int
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM coins
		WHERE hash IN (%s)
		AND created_height IS NOT NULL AND spent_height IS NULL
		AND mempool_item_hash IS NULL AND offer_hash IS NULL
	`, placeholders)
	if err := s.q().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("db: are coins spendable: %w", err)
	}
	return count == len(coinIDs), nil
}

// AssetBalance sums the amount of every unspent coin bound to assetID.
func (s *Store) AssetBalance(ctx context.Context, assetID models.Hash) (uint64, error) {
	var total sql.NullInt64
	err := s.q().QueryRowContext(ctx,
		"SELECT SUM(amount) FROM coins WHERE asset_hash = ? AND spent_height IS NULL", assetID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("db: asset balance %s: %w", assetID, err)
	}
	if !total.Valid {
		return 0, nil
	}
	return uint64(total.Int64), nil
}

// SelectableAssetBalance sums the amount of every currently spendable
// (unlocked) coin bound to assetID — the pool the Spend Planner selects
// from.
func (s *Store) SelectableAssetBalance(ctx context.Context, assetID models.Hash) (uint64, error) {
	var total sql.NullInt64
	err := s.q().QueryRowContext(ctx, `
		SELECT SUM(amount) FROM coins
		WHERE asset_hash = ? AND created_height IS NOT NULL AND spent_height IS NULL
		AND mempool_item_hash IS NULL AND offer_hash IS NULL
	`, assetID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("db: selectable asset balance %s: %w", assetID, err)
	}
	if !total.Valid {
		return 0, nil
	}
	return uint64(total.Int64), nil
}

// SelectableCoins returns every currently spendable coin bound to
// assetID, the candidate set the Spend Planner's coin selection draws
// from.
func (s *Store) SelectableCoins(ctx context.Context, assetID models.Hash) ([]models.CoinRecord, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT hash, parent_coin_hash, puzzle_hash, amount, created_height, spent_height,
		       asset_hash, p2_puzzle_hash, is_children_synced, mempool_item_hash, offer_hash
		FROM coins
		WHERE asset_hash = ? AND created_height IS NOT NULL AND spent_height IS NULL
		AND mempool_item_hash IS NULL AND offer_hash IS NULL
		ORDER BY amount DESC
	`, assetID)
	if err != nil {
		return nil, fmt.Errorf("db: selectable coins %s: %w", assetID, err)
	}
	defer rows.Close()

	var out []models.CoinRecord
	for rows.Next() {
		rec, err := scanCoinRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("db: selectable coins scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
