package mempool

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// Resubmitter periodically rebroadcasts every still-pending mempool item
// whose last attempt is older than Interval.
type Resubmitter struct {
	ledger   *Ledger
	Interval time.Duration
	Limit    int
}

// NewResubmitter constructs a Resubmitter over ledger. A zero interval
// defaults to 30s, matching the reference wallet's resubmission cadence;
// a zero limit defaults to 50 items per tick.
func NewResubmitter(ledger *Ledger, interval time.Duration, limit int) *Resubmitter {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if limit <= 0 {
		limit = 50
	}
	return &Resubmitter{ledger: ledger, Interval: interval, Limit: limit}
}

// Run loops Tick on Interval until ctx is cancelled, matching the
// puzzle classification queue's Run(ctx, delay) shape so the sync
// manager can register it as a StandingTask.
func (r *Resubmitter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				return err
			}
		}
	}
}

// Tick rebroadcasts every item due for resubmission, advancing
// LastResubmitAt on each that gets at least one Pending/Accepted
// response.
func (r *Resubmitter) Tick(ctx context.Context) error {
	now := r.ledger.clock()
	due, err := r.ledger.store.MempoolItemsDueForResubmit(ctx, now, int64(r.Interval/time.Second), r.Limit)
	if err != nil {
		return fmt.Errorf("mempool: list items due for resubmit: %w", err)
	}

	for _, item := range due {
		if err := r.resubmitOne(ctx, item, now); err != nil {
			log.Printf("mempool: resubmit %s failed: %v", item.ID, err)
		}
	}
	return nil
}

func (r *Resubmitter) resubmitOne(ctx context.Context, item models.MempoolItem, now int64) error {
	spends, err := r.ledger.store.MempoolSpendsByItemID(ctx, item.ID)
	if err != nil {
		return err
	}
	if len(spends) == 0 {
		return nil
	}

	coinSpends := make([]models.CoinSpend, 0, len(spends))
	for _, s := range spends {
		rec, found, err := r.ledger.store.CoinByID(ctx, s.CoinID)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		coinSpends = append(coinSpends, models.CoinSpend{Coin: rec.Coin(), PuzzleReveal: s.PuzzleReveal, Solution: s.Solution})
	}
	if len(coinSpends) == 0 {
		return nil
	}

	bundle := models.SpendBundle{Spends: coinSpends, AggregatedSig: item.AggregatedSig}
	outcome, _, err := r.ledger.broadcast(ctx, bundle)
	if err != nil {
		return err
	}
	if outcome == models.SubmitAccepted || outcome == models.SubmitPending {
		return r.ledger.store.TouchMempoolItem(ctx, item.ID, now)
	}
	return nil
}
