// Package queue implements the puzzle classification queue: the standing
// task that drains unsynced coin rows, fetches whatever parent spends or
// child solutions are needed to classify them, and persists the
// resulting typed rows.
package queue

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rawblock/lightwallet-engine/internal/db"
	"github.com/rawblock/lightwallet-engine/internal/peer"
	"github.com/rawblock/lightwallet-engine/internal/peerpool"
	"github.com/rawblock/lightwallet-engine/internal/puzzle"
	"github.com/rawblock/lightwallet-engine/internal/walleterr"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// Queue pulls unsynced coins and resolves their asset/children bindings.
type Queue struct {
	store            *db.Store
	pool             *peerpool.Pool
	genesisChallenge models.Hash
	batchSizePerPeer int

	// OnRelevant is called with every coin id the batch determined is
	// wallet-relevant, so the sync manager can (re)subscribe to it on the
	// live peer. Optional.
	OnRelevant func(coinIDs []models.Hash)
}

// New constructs a Queue. batchSizePerPeer bounds how many concurrent
// requests go to any one peer per tick.
func New(store *db.Store, pool *peerpool.Pool, genesisChallenge models.Hash, batchSizePerPeer int) *Queue {
	if batchSizePerPeer <= 0 {
		batchSizePerPeer = 5
	}
	return &Queue{store: store, pool: pool, genesisChallenge: genesisChallenge, batchSizePerPeer: batchSizePerPeer}
}

// Run loops ProcessBatch on an interval until ctx is cancelled, matching
// the reference wallet's `start(delay)` shape; it returns on the first
// hard error so the caller (the Sync Manager's standing-task supervisor)
// can log it and restart the whole queue on the next tick.
func (q *Queue) Run(ctx context.Context, delay time.Duration) error {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := q.ProcessBatch(ctx); err != nil {
				return err
			}
		}
	}
}

// fetchResult is one row's outcome, carried out of the fan-out stage so
// persistence can happen inside a single transaction per batch.
type fetchResult struct {
	row            models.CoinRecord
	peerIP         string
	directOwned    bool // row.PuzzleHash is itself a wallet custody hash
	childrenSynced bool
	synced         []syncedItem
	err            error
}

type syncedItem struct {
	coin         models.Coin
	createdHeight *uint32
	spentHeight   *uint32
	kind         puzzle.ChildKind
	isRoot       bool
}

// ProcessBatch runs one tick: pull up to len(peers)*batchSizePerPeer
// unsynced rows, distribute round-robin across live peers, and persist
// whatever each resolves to in a single transaction.
func (q *Queue) ProcessBatch(ctx context.Context) error {
	peers := connectedPeers(q.pool.Peers())
	if len(peers) == 0 {
		return nil
	}

	limit := len(peers) * q.batchSizePerPeer
	rows, err := q.store.UnsyncedCoins(ctx, limit)
	if err != nil {
		return fmt.Errorf("queue: unsynced coins: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	log.Printf("queue: syncing a batch of %d coins across %d peers", len(rows), len(peers))

	results := make([]fetchResult, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, row := range rows {
		i, row := i, row
		rec := peers[i%len(peers)]
		g.Go(func() error {
			results[i] = q.fetchRow(gctx, rec, row)
			return nil
		})
	}
	// fetchRow never returns an error from this Go func itself (errors are
	// carried in fetchResult.err instead), so Wait only surfaces ctx
	// cancellation.
	_ = g.Wait()

	var relevant []models.Hash
	err = q.store.WithTx(ctx, func(tx *db.Tx) error {
		for _, res := range results {
			if res.err != nil {
				q.handleFetchError(res)
				continue
			}
			ids, err := q.persist(ctx, tx, res)
			if err != nil {
				return err
			}
			relevant = append(relevant, ids...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue: persist batch: %w", err)
	}

	if len(relevant) > 0 && q.OnRelevant != nil {
		q.OnRelevant(relevant)
	}
	return nil
}

func connectedPeers(all []peerpool.Record) []peerpool.Record {
	out := make([]peerpool.Record, 0, len(all))
	for _, rec := range all {
		if rec.Client != nil {
			out = append(out, rec)
		}
	}
	return out
}

// handleFetchError applies the standing ban policy: Timeout,
// PeerMisbehaved, and WireError ban the peer for 5 minutes; anything
// else is just logged, leaving the coin unsynced for the next tick.
func (q *Queue) handleFetchError(res fetchResult) {
	switch walleterr.Of(res.err) {
	case walleterr.KindTimeout, walleterr.KindPeerMisbehaved, walleterr.KindWireError:
		q.pool.Ban(res.peerIP, 5*time.Minute, res.err.Error())
	default:
		log.Printf("queue: failed to sync coin %s from %s: %v", res.row.CoinID, res.peerIP, res.err)
	}
}

// fetchRow performs the peer I/O for one unsynced row: resolving its
// asset binding (if unset) and/or its children (if spent and untraced).
func (q *Queue) fetchRow(ctx context.Context, rec peerpool.Record, row models.CoinRecord) fetchResult {
	res := fetchResult{row: row, peerIP: rec.IP}
	coin := row.Coin()

	if row.AssetID == nil {
		item, err := q.resolveAsset(ctx, rec.Client, row, coin)
		if err != nil {
			res.err = err
			return res
		}
		if item != nil {
			res.synced = append(res.synced, *item)
		} else {
			res.directOwned = true
		}
	}

	if row.SpentHeight != nil && !row.IsChildrenSynced {
		children, err := q.resolveChildren(ctx, rec.Client, coin, *row.SpentHeight)
		if err != nil {
			res.err = err
			return res
		}
		res.synced = append(res.synced, children...)
		res.childrenSynced = true
	}

	return res
}

// resolveAsset fetches the coin's parent spend and classifies it. A nil
// item with no error means row.PuzzleHash is itself a wallet custody
// hash (the fast path: no parent fetch needed, it's plain native token).
func (q *Queue) resolveAsset(ctx context.Context, client *peer.Client, row models.CoinRecord, coin models.Coin) (*syncedItem, error) {
	_, owned, err := q.store.DerivationByP2PuzzleHash(ctx, row.PuzzleHash)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, nil
	}

	puzzleReveal, solution, parentCoin, found, err := client.FetchOptionalCoinSpend(ctx, row.ParentCoinInfo)
	if err != nil {
		return nil, err
	}
	if !found {
		// Parent hasn't been observed as spent yet; leave unsynced for a
		// later tick rather than guessing.
		return nil, walleterr.New(walleterr.KindNotFound, "queue.resolveAsset", "parent spend not yet available")
	}

	kind, err := puzzle.Classify(parentCoin, puzzleReveal, solution, coin)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.KindPeerMisbehaved, "queue.resolveAsset", "classify parent spend", err)
	}

	return &syncedItem{coin: coin, createdHeight: row.CreatedHeight, spentHeight: row.SpentHeight, kind: kind, isRoot: true}, nil
}

// resolveChildren fetches the revealed spend of an already-spent coin,
// derives its children, and classifies each one against the peer's
// reported current state.
func (q *Queue) resolveChildren(ctx context.Context, client *peer.Client, coin models.Coin, spentHeight uint32) ([]syncedItem, error) {
	puzzleReveal, solution, err := client.FetchPuzzleAndSolution(ctx, coin.CoinID(), spentHeight)
	if err != nil {
		return nil, err
	}

	children, err := puzzle.ParseChildren(coin, puzzleReveal, solution)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.KindPeerMisbehaved, "queue.resolveChildren", "parse children from solution", err)
	}
	if len(children) == 0 {
		return nil, nil
	}

	childIDs := make([]models.Hash, len(children))
	for i, c := range children {
		childIDs[i] = c.CoinID()
	}
	states, err := client.FetchCoins(ctx, childIDs)
	if err != nil {
		return nil, err
	}
	stateByID := make(map[models.Hash]models.CoinState, len(states))
	for _, s := range states {
		stateByID[s.Coin.CoinID()] = s
	}

	out := make([]syncedItem, 0, len(children))
	for _, child := range children {
		state, ok := stateByID[child.CoinID()]
		if !ok {
			continue // peer doesn't (yet) report this child as existing
		}
		kind, err := puzzle.Classify(coin, puzzleReveal, solution, child)
		if err != nil {
			continue
		}
		out = append(out, syncedItem{
			coin: child, createdHeight: state.CreatedHeight, spentHeight: state.SpentHeight, kind: kind, isRoot: false,
		})
	}
	return out, nil
}

// persist writes one row's resolved outcome and returns every coin id
// that turned out wallet-relevant (for resubscription).
func (q *Queue) persist(ctx context.Context, tx *db.Tx, res fetchResult) ([]models.Hash, error) {
	rootID := res.row.CoinID
	var relevant []models.Hash

	if res.childrenSynced {
		if err := tx.SetChildrenSynced(ctx, rootID); err != nil {
			return nil, err
		}
	}

	if res.directOwned {
		if err := tx.UpsertAsset(ctx, models.Asset{Hash: models.ZeroHash, Kind: models.AssetKindToken, Name: "native"}); err != nil {
			return nil, err
		}
		if err := tx.UpdateCoinClassification(ctx, rootID, models.ZeroHash, res.row.PuzzleHash); err != nil {
			return nil, err
		}
		relevant = append(relevant, rootID)
	}

	for _, item := range res.synced {
		coinID := item.coin.CoinID()
		isRoot := isRootItem(item, rootID)

		if !isRoot {
			known, err := tx.IsKnownCoin(ctx, coinID)
			if err != nil {
				return nil, err
			}
			if known {
				continue
			}
		}

		hashes := custodyP2PuzzleHashes(item.kind)
		relevantKind, err := anyOwned(ctx, tx, hashes)
		if err != nil {
			return nil, err
		}
		if !relevantKind {
			if isRoot {
				if err := tx.DeleteCoin(ctx, coinID); err != nil {
					return nil, err
				}
			}
			continue
		}

		if err := tx.InsertCoin(ctx, item.coin, item.createdHeight, item.spentHeight); err != nil {
			return nil, err
		}

		assetID, p2Hash, err := q.persistKind(ctx, tx, coinID, item.kind)
		if err != nil {
			return nil, err
		}
		if err := tx.UpdateCoinClassification(ctx, coinID, assetID, p2Hash); err != nil {
			return nil, err
		}
		relevant = append(relevant, coinID)
	}

	return relevant, nil
}

func isRootItem(item syncedItem, rootID models.Hash) bool {
	return item.isRoot && item.coin.CoinID() == rootID
}

// anyOwned reports whether at least one of the given p2 puzzle hashes is
// a wallet-derived custody hash.
func anyOwned(ctx context.Context, tx *db.Tx, hashes []models.Hash) (bool, error) {
	for _, h := range hashes {
		_, found, err := tx.DerivationByP2PuzzleHash(ctx, h)
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// custodyP2PuzzleHashes returns the p2 puzzle hash(es) that must be
// wallet-owned for kind to be relevant to this wallet. Launcher and
// Unknown carry none: a launcher's birth coin is only relevant once its
// own spend reveals what it became, and an unrecognized puzzle can never
// be claimed as ours.
func custodyP2PuzzleHashes(kind puzzle.ChildKind) []models.Hash {
	switch k := kind.(type) {
	case puzzle.Cat:
		return []models.Hash{k.P2PuzzleHash}
	case puzzle.Did:
		return []models.Hash{k.P2PuzzleHash}
	case puzzle.Nft:
		return []models.Hash{k.P2PuzzleHash}
	case puzzle.Option:
		return []models.Hash{k.P2PuzzleHash}
	default:
		return nil
	}
}

// persistKind upserts the asset row, its kind-specific info row, and the
// lineage proof for one classified coin, returning (assetID, p2Hash) for
// the caller's UpdateCoinClassification call.
func (q *Queue) persistKind(ctx context.Context, tx *db.Tx, coinID models.Hash, kind puzzle.ChildKind) (models.Hash, models.Hash, error) {
	switch k := kind.(type) {
	case puzzle.Cat:
		if err := tx.UpsertAsset(ctx, models.Asset{Hash: k.AssetID, Kind: models.AssetKindToken}); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		if err := tx.UpsertTokenInfo(ctx, models.TokenInfo{AssetID: k.AssetID}); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		if err := q.insertLineage(ctx, tx, coinID, k.LineageProof); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		return k.AssetID, k.P2PuzzleHash, nil

	case puzzle.Did:
		if err := tx.UpsertAsset(ctx, models.Asset{Hash: k.Info.AssetID, Kind: models.AssetKindDid}); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		if err := tx.UpsertDidInfo(ctx, k.Info); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		if err := q.insertLineage(ctx, tx, coinID, k.LineageProof); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		return k.Info.AssetID, k.P2PuzzleHash, nil

	case puzzle.Nft:
		if err := tx.UpsertAsset(ctx, models.Asset{Hash: k.Info.AssetID, Kind: models.AssetKindNft}); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		if err := tx.UpsertNftInfo(ctx, k.Info); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		if err := q.insertLineage(ctx, tx, coinID, k.LineageProof); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		return k.Info.AssetID, k.P2PuzzleHash, nil

	case puzzle.Option:
		if err := tx.UpsertAsset(ctx, models.Asset{Hash: k.Info.AssetID, Kind: models.AssetKindOption}); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		if err := tx.UpsertOptionInfo(ctx, k.Info); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		if err := q.insertLineage(ctx, tx, coinID, k.LineageProof); err != nil {
			return models.Hash{}, models.Hash{}, err
		}
		return k.Info.AssetID, k.P2PuzzleHash, nil

	default:
		return models.Hash{}, models.Hash{}, walleterr.New(walleterr.KindInvariantViolation, "queue.persistKind",
			fmt.Sprintf("unexpected child kind %T reached persistence", kind))
	}
}

func (q *Queue) insertLineage(ctx context.Context, tx *db.Tx, coinID models.Hash, proof models.LineageProof) error {
	proof.CoinID = coinID
	return tx.InsertLineageProof(ctx, proof)
}
