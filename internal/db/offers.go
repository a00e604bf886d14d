package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// InsertOffer records a new offer, keyed by its nonce: the sha256 of the
// sorted ids of every coin it locks.
func (t *Tx) InsertOffer(ctx context.Context, offer models.Offer) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO offers (hash, nonce, status, expiration_seconds, fee, is_our_offer, encoded_offer)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			status = excluded.status, expiration_seconds = excluded.expiration_seconds,
			encoded_offer = excluded.encoded_offer
	`, offer.ID, offer.Nonce, int(offer.Status), offer.ExpirationSeconds, offer.Fee,
		boolToInt(offer.IsOurOffer), offer.EncodedOffer)
	if err != nil {
		return fmt.Errorf("db: insert offer %s: %w", offer.ID, err)
	}
	return nil
}

// UpdateOfferStatus transitions an offer between pending/active/
// completed/cancelled/expired.
func (t *Tx) UpdateOfferStatus(ctx context.Context, id models.Hash, status models.OfferStatus) error {
	_, err := t.q().ExecContext(ctx, "UPDATE offers SET status = ? WHERE hash = ?", int(status), id)
	if err != nil {
		return fmt.Errorf("db: update offer status %s: %w", id, err)
	}
	return nil
}

// InsertOfferedAsset records one leg (offered or requested) of an offer's
// asset ledger, including any accrued royalty.
func (t *Tx) InsertOfferedAsset(ctx context.Context, leg models.OfferedAsset) error {
	_, err := t.q().ExecContext(ctx, `
		INSERT INTO offered_assets (offer_hash, asset_hash, amount, is_requested, royalty_amount)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(offer_hash, asset_hash, is_requested) DO UPDATE SET
			amount = excluded.amount, royalty_amount = excluded.royalty_amount
	`, leg.OfferID, leg.AssetID, leg.Amount, boolToInt(leg.IsRequested), leg.RoyaltyAmount)
	if err != nil {
		return fmt.Errorf("db: insert offered asset %s/%s: %w", leg.OfferID, leg.AssetID, err)
	}
	return nil
}

// OfferByID fetches an offer row, or (zero, false, nil) if absent.
func (s *Store) OfferByID(ctx context.Context, id models.Hash) (models.Offer, bool, error) {
	var o models.Offer
	o.ID = id
	var status int
	var isOurOffer int
	err := s.q().QueryRowContext(ctx,
		"SELECT nonce, status, expiration_seconds, fee, is_our_offer, encoded_offer FROM offers WHERE hash = ?", id,
	).Scan(&o.Nonce, &status, &o.ExpirationSeconds, &o.Fee, &isOurOffer, &o.EncodedOffer)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Offer{}, false, nil
	}
	if err != nil {
		return models.Offer{}, false, fmt.Errorf("db: offer by id %s: %w", id, err)
	}
	o.Status = models.OfferStatus(status)
	o.IsOurOffer = isOurOffer != 0
	return o, true, nil
}

// OfferedAssetsByOfferID returns every leg of an offer's asset ledger.
func (s *Store) OfferedAssetsByOfferID(ctx context.Context, offerID models.Hash) ([]models.OfferedAsset, error) {
	rows, err := s.q().QueryContext(ctx,
		"SELECT offer_hash, asset_hash, amount, is_requested, royalty_amount FROM offered_assets WHERE offer_hash = ?", offerID)
	if err != nil {
		return nil, fmt.Errorf("db: offered assets by offer id %s: %w", offerID, err)
	}
	defer rows.Close()

	var out []models.OfferedAsset
	for rows.Next() {
		var leg models.OfferedAsset
		var isRequested int
		if err := rows.Scan(&leg.OfferID, &leg.AssetID, &leg.Amount, &isRequested, &leg.RoyaltyAmount); err != nil {
			return nil, fmt.Errorf("db: offered assets scan: %w", err)
		}
		leg.IsRequested = isRequested != 0
		out = append(out, leg)
	}
	return out, rows.Err()
}

// OffersByStatus returns every offer currently in the given status,
// feeding both the expiration sweep and the RPC adapter's offer listing.
func (s *Store) OffersByStatus(ctx context.Context, status models.OfferStatus) ([]models.Offer, error) {
	rows, err := s.q().QueryContext(ctx,
		"SELECT hash, nonce, status, expiration_seconds, fee, is_our_offer, encoded_offer FROM offers WHERE status = ?",
		int(status))
	if err != nil {
		return nil, fmt.Errorf("db: offers by status: %w", err)
	}
	defer rows.Close()

	var out []models.Offer
	for rows.Next() {
		var o models.Offer
		var st int
		var isOurOffer int
		if err := rows.Scan(&o.ID, &o.Nonce, &st, &o.ExpirationSeconds, &o.Fee, &isOurOffer, &o.EncodedOffer); err != nil {
			return nil, fmt.Errorf("db: offers by status scan: %w", err)
		}
		o.Status = models.OfferStatus(st)
		o.IsOurOffer = isOurOffer != 0
		out = append(out, o)
	}
	return out, rows.Err()
}
