// Package mempool implements the mempool ledger: the record of
// locally-submitted bundles awaiting confirmation, the periodic
// rebroadcast of anything still pending, and eviction once a bundle's
// coins confirm or get displaced. Confirmation-eviction is the sync
// manager's job (it already clears a mempool lock the moment one of its
// stored spends' coins is seen spent on chain); this package owns the
// other half: first insertion and the resubmission cadence.
package mempool

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/rawblock/lightwallet-engine/internal/blscurve"
	"github.com/rawblock/lightwallet-engine/internal/db"
	"github.com/rawblock/lightwallet-engine/internal/peerpool"
	"github.com/rawblock/lightwallet-engine/internal/puzzle"
	"github.com/rawblock/lightwallet-engine/internal/walleterr"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// EventSink is the narrow capability a caller supplies so a submitted
// bundle surfaces as a TransactionSubmitted event upstream, without this
// package importing the sync manager's Event type directly.
type EventSink func(mempoolItemID models.Hash)

// Clock abstracts wall-clock time so tests can control SubmittedAt and
// resubmission-due calculations without sleeping.
type Clock func() int64

// Ledger tracks locally submitted bundles and rebroadcasts whatever is
// still pending on an interval.
type Ledger struct {
	store *db.Store
	pool  *peerpool.Pool
	clock Clock
	emit  EventSink
}

// New constructs a Ledger. emit may be nil if the caller does not want
// TransactionSubmitted events published.
func New(store *db.Store, pool *peerpool.Pool, clock Clock, emit EventSink) *Ledger {
	if clock == nil {
		clock = func() int64 { return time.Now().Unix() }
	}
	return &Ledger{store: store, pool: pool, clock: clock, emit: emit}
}

// Submit records a newly-built, already-signed bundle: it inserts the
// MempoolItem row, decomposes the bundle into its coin-spends, and locks
// every input coin it already knows about under the item's id. It also
// projects the bundle's output coins (its CREATE_COIN results) into the
// coins table with null heights, so spendable-balance queries correctly
// exclude them until the sync manager observes and confirms them on
// chain. A spend whose reveal/solution this wallet cannot decode is
// skipped for projection purposes without failing the submission; its
// outputs still arrive normally once the peer reports them.
func (l *Ledger) Submit(ctx context.Context, bundle models.SpendBundle, feePerCost uint64) (models.Hash, error) {
	if len(bundle.Spends) == 0 {
		return models.Hash{}, walleterr.New(walleterr.KindInvariantViolation, "mempool.Submit", "bundle has no coin spends")
	}
	if err := blscurve.ValidateSignature(bundle.AggregatedSig); err != nil {
		return models.Hash{}, walleterr.Wrap(walleterr.KindInvariantViolation, "mempool.Submit", "aggregated signature is not a valid curve point", err)
	}

	itemID := bundleID(bundle)
	now := l.clock()
	item := models.MempoolItem{
		ID:             itemID,
		Status:         models.MempoolItemPending,
		AggregatedSig:  bundle.AggregatedSig,
		FeePerCost:     feePerCost,
		SubmittedAt:    now,
		LastResubmitAt: now,
	}

	err := l.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.InsertMempoolItem(ctx, item); err != nil {
			return err
		}
		for _, spend := range bundle.Spends {
			coinID := spend.Coin.CoinID()
			mempoolSpend := models.MempoolSpend{
				MempoolItemID: itemID,
				CoinID:        coinID,
				PuzzleReveal:  spend.PuzzleReveal,
				Solution:      spend.Solution,
			}
			if err := tx.InsertMempoolSpend(ctx, mempoolSpend); err != nil {
				return err
			}
			if err := tx.InsertMempoolCoin(ctx, itemID, coinID, true, false); err != nil {
				return err
			}
			known, err := tx.IsKnownCoin(ctx, coinID)
			if err != nil {
				return err
			}
			if known {
				if err := tx.SetMempoolLock(ctx, coinID, &itemID); err != nil {
					return err
				}
			}

			for _, child := range decodeOutputCoins(spend) {
				if err := tx.InsertCoin(ctx, child, nil, nil); err != nil {
					return err
				}
				if err := tx.InsertMempoolCoin(ctx, itemID, child.CoinID(), false, true); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return models.Hash{}, err
	}

	outcome, _, err := l.broadcast(ctx, bundle)
	if err != nil {
		return itemID, err
	}
	if outcome == models.SubmitAccepted || outcome == models.SubmitPending {
		if err := l.store.TouchMempoolItem(ctx, itemID, now); err != nil {
			return itemID, err
		}
	}

	if l.emit != nil {
		l.emit(itemID)
	}
	return itemID, nil
}

// decodeOutputCoins parses spend's puzzle reveal and solution back into
// Programs and enumerates the coins they create. A spend this wallet
// cannot decode (puzzle.DecodeProgram failing, or the solution carrying
// no CREATE_COIN conditions) simply yields no coins rather than an error.
func decodeOutputCoins(spend models.CoinSpend) []models.Coin {
	reveal, err := puzzle.DecodeProgram(spend.PuzzleReveal)
	if err != nil {
		return nil
	}
	solution, err := puzzle.DecodeProgram(spend.Solution)
	if err != nil {
		return nil
	}
	children, err := puzzle.ParseChildren(spend.Coin, reveal, solution)
	if err != nil {
		return nil
	}
	return children
}

// broadcast pushes bundle to every currently reachable peer, returning
// the most favorable outcome seen: on at least one Pending/Accepted
// response from any peer, the caller records that the bundle is now
// live.
func (l *Ledger) broadcast(ctx context.Context, bundle models.SpendBundle) (models.SubmitOutcome, string, error) {
	best := models.SubmitUnknown
	var bestReason string
	var lastErr error

	for _, rec := range l.pool.Peers() {
		if rec.Client == nil {
			continue
		}
		outcome, reason, err := rec.Client.PushTransaction(ctx, bundle)
		if err != nil {
			lastErr = err
			continue
		}
		if outcome == models.SubmitAccepted {
			return outcome, reason, nil
		}
		if outcome == models.SubmitPending && best != models.SubmitAccepted {
			best, bestReason = outcome, reason
		}
	}

	if best == models.SubmitUnknown && lastErr != nil {
		return best, bestReason, lastErr
	}
	return best, bestReason, nil
}

// bundleID hashes the bundle's coin ids in spend order plus its
// aggregated signature, giving every distinct signed bundle a stable
// content-addressed identity to key its stored rows by.
func bundleID(bundle models.SpendBundle) models.Hash {
	h := sha256.New()
	for _, spend := range bundle.Spends {
		coinID := spend.Coin.CoinID()
		h.Write(coinID[:])
	}
	h.Write(bundle.AggregatedSig[:])
	var out models.Hash
	copy(out[:], h.Sum(nil))
	return out
}
