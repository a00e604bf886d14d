package db

import (
	"context"
	"fmt"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// InsertMempoolItem records a new locally-submitted bundle.
func (t *Tx) InsertMempoolItem(ctx context.Context, item models.MempoolItem) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO mempool_items (hash, status, aggregated_sig, fee_per_cost, submitted_at, last_resubmit_at, confirmed_height)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO NOTHING
	`, item.ID, int(item.Status), item.AggregatedSig, item.FeePerCost, item.SubmittedAt, item.LastResubmitAt, item.ConfirmedHeight)
	if err != nil {
		return fmt.Errorf("db: insert mempool item %s: %w", item.ID, err)
	}
	return nil
}

// InsertMempoolSpend records one coin-spend entry inside a bundle.
func (t *Tx) InsertMempoolSpend(ctx context.Context, spend models.MempoolSpend) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT OR IGNORE INTO mempool_spends (mempool_item_hash, coin_id, puzzle_reveal, solution)
		VALUES (?, ?, ?, ?)
	`, spend.MempoolItemID, spend.CoinID, spend.PuzzleReveal, spend.Solution)
	if err != nil {
		return fmt.Errorf("db: insert mempool spend %s/%s: %w", spend.MempoolItemID, spend.CoinID, err)
	}
	return nil
}

// UpdateMempoolItemStatus transitions a bundle between pending/confirmed/
// evicted.
func (t *Tx) UpdateMempoolItemStatus(ctx context.Context, id models.Hash, status models.MempoolItemStatus, confirmedHeight *uint32) error {
	_, err := t.q().ExecContext(ctx,
		"UPDATE mempool_items SET status = ?, confirmed_height = ? WHERE hash = ?",
		int(status), confirmedHeight, id)
	if err != nil {
		return fmt.Errorf("db: update mempool item status %s: %w", id, err)
	}
	return nil
}

// TouchMempoolItem bumps last_resubmit_at, used by the resubmission
// ticker after each rebroadcast attempt.
func (s *Store) TouchMempoolItem(ctx context.Context, id models.Hash, at int64) error {
	_, err := s.q().ExecContext(ctx, "UPDATE mempool_items SET last_resubmit_at = ? WHERE hash = ?", at, id)
	if err != nil {
		return fmt.Errorf("db: touch mempool item %s: %w", id, err)
	}
	return nil
}

// InsertMempoolCoin records one coin's role in a locally-submitted
// bundle: an input being spent, an output being created, or (rare, a
// coin that is both its own ancestor in a single bundle) both.
func (t *Tx) InsertMempoolCoin(ctx context.Context, mempoolItemID, coinID models.Hash, isInput, isOutput bool) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO mempool_coins (mempool_item_hash, coin_id, is_input, is_output)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(mempool_item_hash, coin_id) DO UPDATE SET
			is_input = is_input OR excluded.is_input,
			is_output = is_output OR excluded.is_output
	`, mempoolItemID, coinID, boolToInt(isInput), boolToInt(isOutput))
	if err != nil {
		return fmt.Errorf("db: insert mempool coin %s/%s: %w", mempoolItemID, coinID, err)
	}
	return nil
}

// unconfirmedOutputCoinsForItem returns the coin ids this bundle created
// that have not yet confirmed on chain (created_height still null).
func unconfirmedOutputCoinsForItem(ctx context.Context, q querier, mempoolItemID models.Hash) ([]models.Hash, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT mc.coin_id
		FROM mempool_coins mc
		JOIN coins c ON c.hash = mc.coin_id
		WHERE mc.mempool_item_hash = ? AND mc.is_output = 1 AND c.created_height IS NULL
	`, mempoolItemID)
	if err != nil {
		return nil, fmt.Errorf("db: unconfirmed output coins for item %s: %w", mempoolItemID, err)
	}
	defer rows.Close()

	var out []models.Hash
	for rows.Next() {
		var coinID models.Hash
		if err := rows.Scan(&coinID); err != nil {
			return nil, fmt.Errorf("db: unconfirmed output coins scan: %w", err)
		}
		out = append(out, coinID)
	}
	return out, rows.Err()
}

// RemoveMempoolItem deletes a bundle's still-unconfirmed output coins,
// then the bundle itself (cascading to its mempool_spends/mempool_coins
// rows). Callers clear the coins' mempool_item_hash lock separately
// (SetMempoolLock) before calling this. An output coin that has already
// confirmed (created_height set, by the sync manager observing it on
// chain) is left alone; only the ones this bundle's eviction orphans are
// removed.
func (t *Tx) RemoveMempoolItem(ctx context.Context, id models.Hash) error {
	outputs, err := unconfirmedOutputCoinsForItem(ctx, t.q(), id)
	if err != nil {
		return err
	}
	for _, coinID := range outputs {
		if _, err := t.q().ExecContext(ctx, "DELETE FROM coins WHERE hash = ? AND created_height IS NULL", coinID); err != nil {
			return fmt.Errorf("db: remove mempool item %s: delete output coin %s: %w", id, coinID, err)
		}
	}

	_, err = t.q().ExecContext(ctx, "DELETE FROM mempool_items WHERE hash = ?", id)
	if err != nil {
		return fmt.Errorf("db: remove mempool item %s: %w", id, err)
	}
	return nil
}

// MempoolItemsDueForResubmit returns pending items whose last_resubmit_at
// is older than checkEverySeconds, up to limit — the query the
// resubmission ticker polls.
func (s *Store) MempoolItemsDueForResubmit(ctx context.Context, now int64, checkEverySeconds int64, limit int) ([]models.MempoolItem, error) {
	rows, err := s.q().QueryContext(ctx, `
		SELECT hash, status, aggregated_sig, fee_per_cost, submitted_at, last_resubmit_at, confirmed_height
		FROM mempool_items
		WHERE status = ? AND (? - last_resubmit_at) >= ?
		LIMIT ?
	`, int(models.MempoolItemPending), now, checkEverySeconds, limit)
	if err != nil {
		return nil, fmt.Errorf("db: mempool items due for resubmit: %w", err)
	}
	defer rows.Close()

	var out []models.MempoolItem
	for rows.Next() {
		var item models.MempoolItem
		var status int
		if err := rows.Scan(&item.ID, &status, &item.AggregatedSig, &item.FeePerCost,
			&item.SubmittedAt, &item.LastResubmitAt, &item.ConfirmedHeight); err != nil {
			return nil, fmt.Errorf("db: mempool items due for resubmit scan: %w", err)
		}
		item.Status = models.MempoolItemStatus(status)
		out = append(out, item)
	}
	return out, rows.Err()
}

// MempoolSpendsByItemID returns every coin-spend row belonging to a
// bundle, used to rebuild the wire payload on resubmission.
func (s *Store) MempoolSpendsByItemID(ctx context.Context, id models.Hash) ([]models.MempoolSpend, error) {
	rows, err := s.q().QueryContext(ctx,
		"SELECT mempool_item_hash, coin_id, puzzle_reveal, solution FROM mempool_spends WHERE mempool_item_hash = ?", id)
	if err != nil {
		return nil, fmt.Errorf("db: mempool spends by item id %s: %w", id, err)
	}
	defer rows.Close()

	var out []models.MempoolSpend
	for rows.Next() {
		var s models.MempoolSpend
		if err := rows.Scan(&s.MempoolItemID, &s.CoinID, &s.PuzzleReveal, &s.Solution); err != nil {
			return nil, fmt.Errorf("db: mempool spends scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// MempoolItemsForCoin returns every mempool item whose recorded spends
// include coinID. Items that only create coinID are not returned.
func (s *Store) MempoolItemsForCoin(ctx context.Context, coinID models.Hash) ([]models.Hash, error) {
	rows, err := s.q().QueryContext(ctx,
		"SELECT DISTINCT mempool_item_hash FROM mempool_spends WHERE coin_id = ?", coinID)
	if err != nil {
		return nil, fmt.Errorf("db: mempool items for coin %s: %w", coinID, err)
	}
	defer rows.Close()

	var out []models.Hash
	for rows.Next() {
		var h models.Hash
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("db: mempool items for coin scan: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
