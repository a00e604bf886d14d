package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// UpsertP2Puzzle inserts or updates the base P2Puzzle row.
func (t *Tx) UpsertP2Puzzle(ctx context.Context, p models.P2Puzzle) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO p2_puzzles (hash, kind, derivation_idx, is_owned)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			kind = excluded.kind, derivation_idx = excluded.derivation_idx, is_owned = excluded.is_owned
	`, p.Hash, int(p.Kind), p.DerivationIdx, boolToInt(p.IsOwned))
	if err != nil {
		return fmt.Errorf("db: upsert p2 puzzle %s: %w", p.Hash, err)
	}
	return nil
}

// P2PuzzleByHash fetches the base P2Puzzle row, or (zero, false, nil) if
// absent.
func (s *Store) P2PuzzleByHash(ctx context.Context, hash models.Hash) (models.P2Puzzle, bool, error) {
	var p models.P2Puzzle
	var kind int
	var isOwned int
	err := s.q().QueryRowContext(ctx,
		"SELECT hash, kind, derivation_idx, is_owned FROM p2_puzzles WHERE hash = ?", hash,
	).Scan(&p.Hash, &kind, &p.DerivationIdx, &isOwned)
	if errors.Is(err, sql.ErrNoRows) {
		return models.P2Puzzle{}, false, nil
	}
	if err != nil {
		return models.P2Puzzle{}, false, fmt.Errorf("db: p2 puzzle by hash %s: %w", hash, err)
	}
	p.Kind = models.P2PuzzleKind(kind)
	p.IsOwned = isOwned != 0
	return p, true, nil
}

// UpsertPublicKeyDetail writes the single-key puzzle detail row.
func (t *Tx) UpsertPublicKeyDetail(ctx context.Context, d models.PublicKeyDetail) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO p2_public_key_info (p2_puzzle_hash, public_key)
		VALUES (?, ?)
		ON CONFLICT(p2_puzzle_hash) DO UPDATE SET public_key = excluded.public_key
	`, d.P2PuzzleHash, d.PublicKey)
	if err != nil {
		return fmt.Errorf("db: upsert public key detail %s: %w", d.P2PuzzleHash, err)
	}
	return nil
}

// UpsertClawbackDetail writes the sender/receiver/expiration detail row.
func (t *Tx) UpsertClawbackDetail(ctx context.Context, d models.ClawbackDetail) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO p2_clawback_info (p2_puzzle_hash, sender_hash, receiver_hash, expiration_seconds)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(p2_puzzle_hash) DO UPDATE SET
			sender_hash = excluded.sender_hash, receiver_hash = excluded.receiver_hash,
			expiration_seconds = excluded.expiration_seconds
	`, d.P2PuzzleHash, d.SenderHash, d.ReceiverHash, d.ExpirationSeconds)
	if err != nil {
		return fmt.Errorf("db: upsert clawback detail %s: %w", d.P2PuzzleHash, err)
	}
	return nil
}

// UpsertOptionContractDetail writes the option p2 puzzle's launcher/finish
// detail row.
func (t *Tx) UpsertOptionContractDetail(ctx context.Context, d models.OptionContractDetail) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO p2_option_info (p2_puzzle_hash, launcher_id, finish_hash)
		VALUES (?, ?, ?)
		ON CONFLICT(p2_puzzle_hash) DO UPDATE SET
			launcher_id = excluded.launcher_id, finish_hash = excluded.finish_hash
	`, d.P2PuzzleHash, d.LauncherID, d.FinishHash)
	if err != nil {
		return fmt.Errorf("db: upsert option contract detail %s: %w", d.P2PuzzleHash, err)
	}
	return nil
}

// UpsertMultisigDetail writes an Arbor or Vault p2 puzzle's member/
// threshold/recovery detail row. isVault distinguishes the two kinds,
// which otherwise share the same member-list shape.
func (t *Tx) UpsertMultisigDetail(ctx context.Context, p2PuzzleHash models.Hash, isVault bool, members []models.PublicKey, threshold uint32, recoveryHash *models.Hash) error {
	packed := make([]byte, 0, len(members)*models.PublicKeySize)
	for _, m := range members {
		packed = append(packed, m[:]...)
	}
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO p2_multisig_info (p2_puzzle_hash, is_vault, members, threshold, recovery_hash)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(p2_puzzle_hash) DO UPDATE SET
			is_vault = excluded.is_vault, members = excluded.members,
			threshold = excluded.threshold, recovery_hash = excluded.recovery_hash
	`, p2PuzzleHash, boolToInt(isVault), packed, threshold, recoveryHash)
	if err != nil {
		return fmt.Errorf("db: upsert multisig detail %s: %w", p2PuzzleHash, err)
	}
	return nil
}
