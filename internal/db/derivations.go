package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rawblock/lightwallet-engine/internal/blscurve"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// InsertDerivation records one entry in the deterministic key-derivation
// ledger. The public key is subgroup-checked first: a malformed derivation
// can never be spent against later, so it is rejected here rather than
// discovered the next time the spend planner reads it back.
func (t *Tx) InsertDerivation(ctx context.Context, d models.Derivation) error {
	if err := blscurve.ValidatePublicKey(d.PublicKey); err != nil {
		return fmt.Errorf("db: insert derivation %d: %w", d.Index, err)
	}
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO derivations (idx, is_hardened, public_key, p2_puzzle_hash)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(idx, is_hardened) DO UPDATE SET
			public_key = excluded.public_key, p2_puzzle_hash = excluded.p2_puzzle_hash
	`, d.Index, boolToInt(d.IsHardened), d.PublicKey, d.P2PuzzleHash)
	if err != nil {
		return fmt.Errorf("db: insert derivation %d: %w", d.Index, err)
	}
	return nil
}

// MaxDerivationIndex returns the highest index recorded for the given
// hardened/unhardened branch, or (-1, nil) if the branch is empty.
func (s *Store) MaxDerivationIndex(ctx context.Context, hardened bool) (int64, error) {
	var maxIdx sql.NullInt64
	err := s.q().QueryRowContext(ctx,
		"SELECT MAX(idx) FROM derivations WHERE is_hardened = ?", boolToInt(hardened),
	).Scan(&maxIdx)
	if err != nil {
		return -1, fmt.Errorf("db: max derivation index: %w", err)
	}
	if !maxIdx.Valid {
		return -1, nil
	}
	return maxIdx.Int64, nil
}

// DerivationByP2PuzzleHash resolves an owned p2 puzzle hash back to its
// derivation entry, used by the puzzle classification queue to recognise
// a coin whose puzzle hash is itself a wallet custody hash.
func (s *Store) DerivationByP2PuzzleHash(ctx context.Context, hash models.Hash) (models.Derivation, bool, error) {
	return derivationByP2PuzzleHash(ctx, s.q(), hash)
}

// DerivationByP2PuzzleHash is the Tx-scoped variant, used by the puzzle
// classification queue to check custody ownership without leaving its
// batch transaction (the store's single-connection pool would otherwise
// deadlock against itself).
func (t *Tx) DerivationByP2PuzzleHash(ctx context.Context, hash models.Hash) (models.Derivation, bool, error) {
	return derivationByP2PuzzleHash(ctx, t.q(), hash)
}

// UnusedDerivationIndex returns the lowest-index derivation on the given
// branch whose p2 puzzle hash has never been assigned to a coin, for the
// spend planner's change-address allocation during its distribute step.
func (s *Store) UnusedDerivationIndex(ctx context.Context, hardened bool) (models.Derivation, bool, error) {
	return unusedDerivationIndex(ctx, s.q(), hardened)
}

// UnusedDerivationIndex is the Tx-scoped variant, so the planner can pick
// a change address inside the same transaction that will go on to lock
// the coins it selects.
func (t *Tx) UnusedDerivationIndex(ctx context.Context, hardened bool) (models.Derivation, bool, error) {
	return unusedDerivationIndex(ctx, t.q(), hardened)
}

func unusedDerivationIndex(ctx context.Context, q querier, hardened bool) (models.Derivation, bool, error) {
	var d models.Derivation
	var isHardened int
	err := q.QueryRowContext(ctx, `
		SELECT d.idx, d.is_hardened, d.public_key, d.p2_puzzle_hash
		FROM derivations d
		WHERE d.is_hardened = ?
		  AND NOT EXISTS (SELECT 1 FROM coins c WHERE c.puzzle_hash = d.p2_puzzle_hash)
		ORDER BY d.idx ASC
		LIMIT 1
	`, boolToInt(hardened)).Scan(&d.Index, &isHardened, &d.PublicKey, &d.P2PuzzleHash)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Derivation{}, false, nil
	}
	if err != nil {
		return models.Derivation{}, false, fmt.Errorf("db: unused derivation index: %w", err)
	}
	d.IsHardened = isHardened != 0
	return d, true, nil
}

// AllPuzzleHashes returns every p2 puzzle hash ever derived, the set the
// sync manager subscribes coin-state updates against on every initial
// sync round.
func (s *Store) AllPuzzleHashes(ctx context.Context) ([]models.Hash, error) {
	rows, err := s.q().QueryContext(ctx, "SELECT p2_puzzle_hash FROM derivations")
	if err != nil {
		return nil, fmt.Errorf("db: all puzzle hashes: %w", err)
	}
	defer rows.Close()

	var hashes []models.Hash
	for rows.Next() {
		var h models.Hash
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("db: scan puzzle hash: %w", err)
		}
		hashes = append(hashes, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db: all puzzle hashes: %w", err)
	}
	return hashes, nil
}

func derivationByP2PuzzleHash(ctx context.Context, q querier, hash models.Hash) (models.Derivation, bool, error) {
	var d models.Derivation
	d.P2PuzzleHash = hash
	var isHardened int
	err := q.QueryRowContext(ctx,
		"SELECT idx, is_hardened, public_key FROM derivations WHERE p2_puzzle_hash = ?", hash,
	).Scan(&d.Index, &isHardened, &d.PublicKey)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Derivation{}, false, nil
	}
	if err != nil {
		return models.Derivation{}, false, fmt.Errorf("db: derivation by p2 puzzle hash %s: %w", hash, err)
	}
	d.IsHardened = isHardened != 0
	return d, true, nil
}
