package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// InsertPeak records a new observed chain tip.
func (t *Tx) InsertPeak(ctx context.Context, peak models.Peak) error {
	_, err := t.q().ExecContext(ctx,
		"INSERT INTO peaks (height, header_hash) VALUES (?, ?) ON CONFLICT(height) DO UPDATE SET header_hash = excluded.header_hash",
		peak.Height, peak.HeaderHash)
	if err != nil {
		return fmt.Errorf("db: insert peak %d: %w", peak.Height, err)
	}
	return nil
}

// LatestPeak returns the highest recorded peak, or (zero, false, nil) if
// none has ever been recorded (fresh wallet, sync starts from genesis).
func (s *Store) LatestPeak(ctx context.Context) (models.Peak, bool, error) {
	var p models.Peak
	err := s.q().QueryRowContext(ctx,
		"SELECT height, header_hash FROM peaks ORDER BY height DESC LIMIT 1",
	).Scan(&p.Height, &p.HeaderHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Peak{}, false, nil
	}
	if err != nil {
		return models.Peak{}, false, fmt.Errorf("db: latest peak: %w", err)
	}
	return p, true, nil
}

// PopPeaksAbove deletes every recorded peak above height, the store-side
// half of reorg handling: the sync manager calls this once it has
// determined the fork point.
func (t *Tx) PopPeaksAbove(ctx context.Context, height uint32) error {
	_, err := t.q().ExecContext(ctx, "DELETE FROM peaks WHERE height > ?", height)
	if err != nil {
		return fmt.Errorf("db: pop peaks above %d: %w", height, err)
	}
	return nil
}

// UnwindCoinsAbove clears created/spent heights recorded above a popped
// block so the sync manager can re-apply the corrected chain state. A
// coin created above height keeps its row but loses its asset and p2
// classification too, so the puzzle classification queue picks it up
// again.
func (t *Tx) UnwindCoinsAbove(ctx context.Context, height uint32) error {
	if _, err := t.q().ExecContext(ctx,
		"UPDATE coins SET spent_height = NULL, is_children_synced = 0 WHERE spent_height > ?", height,
	); err != nil {
		return fmt.Errorf("db: unwind spent coins above %d: %w", height, err)
	}
	if _, err := t.q().ExecContext(ctx,
		"UPDATE coins SET created_height = NULL, asset_hash = NULL, p2_puzzle_hash = NULL WHERE created_height > ?", height,
	); err != nil {
		return fmt.Errorf("db: unwind created coins above %d: %w", height, err)
	}
	return nil
}
