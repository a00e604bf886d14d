// Package sync is the top-level state machine that owns peer discovery,
// the initial-sync/subscribed role transition for the current wallet,
// incremental application of CoinStateUpdate batches, and reorg
// recovery. Everything else long lived (the puzzle classification
// queue, the NFT metadata fetcher, the mempool resubmitter) runs as a
// standing task the manager dispatches and restarts on a cancellable
// context.
package sync

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rawblock/lightwallet-engine/internal/db"
	"github.com/rawblock/lightwallet-engine/internal/peer"
	"github.com/rawblock/lightwallet-engine/internal/peerpool"
	"github.com/rawblock/lightwallet-engine/internal/walleterr"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// Role is one of the three states the initial-sync role cycles through.
type Role int

const (
	RoleIdle Role = iota
	RoleSyncing
	RoleSubscribed
)

func (r Role) String() string {
	switch r {
	case RoleSyncing:
		return "syncing"
	case RoleSubscribed:
		return "subscribed"
	default:
		return "idle"
	}
}

// roleState is the manager's current position plus which peer (if any)
// it is syncing from or subscribed to.
type roleState struct {
	role Role
	ip   string
}

// DiscoverySource resolves candidate peer addresses; both halves are
// external collaborators (DNS seed lookups and peer-gossip requests
// against an already-connected peer) batched 10-30 at a time.
type DiscoverySource interface {
	DNSSeeds(ctx context.Context, max int) ([]string, error)
	Gossip(ctx context.Context, max int) ([]string, error)
}

// Dialer opens a new peer connection, wrapping peer.Connect so tests can
// substitute an in-process fake.
type Dialer interface {
	Dial(ctx context.Context, addr string) (*peer.Client, error)
}

// StandingTask is a long-lived background job the manager dispatches
// alongside the sync loop and restarts if it exits early. Name is used
// only for logging.
type StandingTask struct {
	Name string
	Run  func(ctx context.Context) error
}

// Options configures one Manager.
type Options struct {
	SyncDelay        time.Duration
	DiscoverPeers    bool
	TargetPeerCount  int
	DiscoveryBatch   int // addresses requested per DNS/gossip round, 10-30
	GenesisChallenge models.Hash

	// WatchedPuzzleHashes returns the current set of puzzle hashes the
	// wallet wants coin-state for; re-evaluated on every initial sync so
	// a derivation-index bump mid-sync is picked up on the next cycle.
	WatchedPuzzleHashes func() []models.Hash
}

// Manager is the sync engine's top-level coordinator.
type Manager struct {
	store     *db.Store
	pool      *peerpool.Pool
	discovery DiscoverySource
	dialer    Dialer
	opts      Options

	mu            sync.Mutex
	role          roleState
	syncCancel    context.CancelFunc
	discoveryTurn int // alternates DNS vs gossip each round

	events   chan Event
	commands chan Command

	submitter TransactionSubmitter

	standingTasks []StandingTask
}

// commandChannelCapacity bounds the command channel from outer callers
// into the manager.
const commandChannelCapacity = 100

// Event is anything the manager emits to the outer event stream.
type Event interface{ isEvent() }

// CoinStateEvent reports a batch of coin rows that just changed.
type CoinStateEvent struct{ Items []models.CoinState }

func (CoinStateEvent) isEvent() {}

// ReorgEvent reports that the manager rolled the store back to height.
type ReorgEvent struct{ Height uint32 }

func (ReorgEvent) isEvent() {}

// TransactionSubmittedEvent reports that a locally-built bundle was
// handed to the mempool ledger. The ledger itself never touches this
// channel directly; it calls back through the narrow EventSink
// capability it was constructed with.
type TransactionSubmittedEvent struct{ MempoolItemID models.Hash }

func (TransactionSubmittedEvent) isEvent() {}

// OfferStatusChangedEvent reports that an offer row transitioned state.
type OfferStatusChangedEvent struct {
	OfferID models.Hash
	Status  models.OfferStatus
}

func (OfferStatusChangedEvent) isEvent() {}

// Emit publishes an event from outside the manager's own goroutine
// (the mempool ledger and offer engine call this through their own
// narrow callback types rather than importing this package's Event
// directly). Like the manager's internal emits, it drops the event on
// the floor rather than blocking if no consumer is attached.
func (m *Manager) Emit(e Event) {
	select {
	case m.events <- e:
	default:
		log.Printf("sync: event channel full, dropping %T", e)
	}
}

// NewManager constructs a Manager in the Idle role. Call AddStandingTask
// for each of the puzzle classification queue, NFT fetcher, and mempool
// resubmitter before calling Run.
func NewManager(store *db.Store, pool *peerpool.Pool, discovery DiscoverySource, dialer Dialer, opts Options) *Manager {
	if opts.DiscoveryBatch == 0 {
		opts.DiscoveryBatch = 20
	}
	return &Manager{
		store:     store,
		pool:      pool,
		discovery: discovery,
		dialer:    dialer,
		opts:      opts,
		events:    make(chan Event, 64),
		commands:  make(chan Command, commandChannelCapacity),
	}
}

// AddStandingTask registers a long-lived job dispatched alongside the
// sync loop. Must be called before Run.
func (m *Manager) AddStandingTask(t StandingTask) {
	m.standingTasks = append(m.standingTasks, t)
}

// Events returns the channel Run publishes CoinStateEvent/ReorgEvent
// values on.
func (m *Manager) Events() <-chan Event { return m.events }

// Run owns the manager for ctx's lifetime: it launches every standing
// task, then loops discovery + role-advancement on SyncDelay until ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context) {
	for _, task := range m.standingTasks {
		go m.runStandingTask(ctx, task)
	}

	ticker := time.NewTicker(m.opts.SyncDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			if m.syncCancel != nil {
				m.syncCancel()
			}
			m.mu.Unlock()
			close(m.events)
			return
		case cmd := <-m.commands:
			m.handleCommand(ctx, cmd)
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// runStandingTask restarts task.Run whenever it returns, logging the
// failure first: each standing task is a long-lived job whose death is
// logged and restarted on the next tick.
func (m *Manager) runStandingTask(ctx context.Context, task StandingTask) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := task.Run(ctx); err != nil {
			log.Printf("sync: standing task %s exited: %v", task.Name, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.opts.SyncDelay):
		}
	}
}

func (m *Manager) tick(ctx context.Context) {
	if m.opts.DiscoverPeers && m.pool.Count() < m.opts.TargetPeerCount {
		m.discoverPeers(ctx)
	}
	m.advanceRole(ctx)
}

// discoverPeers alternates DNS-seed and gossip batches each round,
// dialing every returned address with a bounded per-connection timeout.
func (m *Manager) discoverPeers(ctx context.Context) {
	m.mu.Lock()
	useGossip := m.discoveryTurn%2 == 1
	m.discoveryTurn++
	m.mu.Unlock()

	var addrs []string
	var err error
	if useGossip {
		addrs, err = m.discovery.Gossip(ctx, m.opts.DiscoveryBatch)
	} else {
		addrs, err = m.discovery.DNSSeeds(ctx, m.opts.DiscoveryBatch)
	}
	if err != nil {
		log.Printf("sync: peer discovery failed: %v", err)
		return
	}

	for _, addr := range addrs {
		if !peerpool.ValidAddr(addr) {
			continue
		}
		if m.pool.IsBanned(addr) {
			continue
		}
		client, err := m.dialer.Dial(ctx, addr)
		if err != nil {
			continue
		}
		m.pool.AddPeer(addr, client, false, false)
	}
}

// advanceRole drives the Idle -> Syncing -> Subscribed cycle.
func (m *Manager) advanceRole(ctx context.Context) {
	m.mu.Lock()
	role := m.role
	m.mu.Unlock()

	if role.role != RoleIdle {
		return
	}
	if m.opts.WatchedPuzzleHashes == nil {
		return
	}

	rec, ok := m.pool.AcquirePeer()
	if !ok {
		return
	}

	syncCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.role = roleState{role: RoleSyncing, ip: rec.IP}
	m.syncCancel = cancel
	m.mu.Unlock()

	go func() {
		defer m.pool.Release(rec.IP)
		err := m.runInitialSync(syncCtx, rec.Client)

		m.mu.Lock()
		defer m.mu.Unlock()
		switch {
		case syncCtx.Err() != nil:
			m.role = roleState{role: RoleIdle}
		case err != nil:
			log.Printf("sync: initial sync against %s failed: %v", rec.IP, err)
			m.pool.Ban(rec.IP, 5*time.Minute, err.Error())
			m.role = roleState{role: RoleIdle}
		default:
			m.role = roleState{role: RoleSubscribed, ip: rec.IP}
		}
	}()
}

// runInitialSync pages through RequestPuzzleState for every watched
// puzzle hash until the peer reports is_finished, persisting each page
// inside its own transaction.
func (m *Manager) runInitialSync(ctx context.Context, client *peer.Client) error {
	hashes := m.opts.WatchedPuzzleHashes()
	if len(hashes) == 0 {
		return nil
	}

	var previousTip *models.Hash
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		page, err := client.RequestPuzzleState(ctx, hashes, previousTip, models.PuzzleStateFilters{IncludeSpent: true})
		if err != nil {
			return err
		}

		if err := m.ApplyCoinStateUpdate(ctx, page.Items); err != nil {
			return err
		}

		if page.IsFinished {
			return nil
		}
		previousTip = page.NextTip
	}
}

// ApplyCoinStateUpdate is the incremental-update path shared by initial
// sync and the live subscription: it partitions the batch into newly
// spent vs. newly created, resolves any mempool items the
// spends/confirmations settle, and upserts every coin row in one
// transaction before emitting a CoinStateEvent.
func (m *Manager) ApplyCoinStateUpdate(ctx context.Context, items []models.CoinState) error {
	if len(items) == 0 {
		return nil
	}

	err := m.store.WithTx(ctx, func(tx *db.Tx) error {
		for _, item := range items {
			coinID := item.Coin.CoinID()

			if item.SpentHeight != nil {
				if err := m.resolveMempoolItemsForSpentCoin(ctx, tx, coinID); err != nil {
					return err
				}
			}

			if err := tx.InsertCoin(ctx, item.Coin, item.CreatedHeight, item.SpentHeight); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sync: apply coin state update: %w", err)
	}

	select {
	case m.events <- CoinStateEvent{Items: items}:
	default:
		log.Printf("sync: event channel full, dropping CoinStateEvent for %d items", len(items))
	}
	return nil
}

// resolveMempoolItemsForSpentCoin evicts any mempool item whose bundle
// spent coinID, now that the spend has actually confirmed on chain.
func (m *Manager) resolveMempoolItemsForSpentCoin(ctx context.Context, tx *db.Tx, coinID models.Hash) error {
	itemIDs, err := m.store.MempoolItemsForCoin(ctx, coinID)
	if err != nil {
		return err
	}
	for _, itemID := range itemIDs {
		spends, err := m.store.MempoolSpendsByItemID(ctx, itemID)
		if err != nil {
			return err
		}
		for _, spend := range spends {
			if err := tx.SetMempoolLock(ctx, spend.CoinID, nil); err != nil {
				return err
			}
		}
		if err := tx.RemoveMempoolItem(ctx, itemID); err != nil {
			return err
		}
	}
	return nil
}

// HandlePeak records a new observed chain tip for ip and, if it
// diverges from an already-stored height, triggers reorg recovery.
func (m *Manager) HandlePeak(ctx context.Context, ip string, height uint32, headerHash models.Hash) error {
	if err := m.pool.UpdatePeak(ip, height, headerHash); err != nil {
		return err
	}

	existing, found, err := m.store.LatestPeak(ctx)
	if err != nil {
		return err
	}
	if !found || height >= existing.Height {
		return m.store.WithTx(ctx, func(tx *db.Tx) error {
			return tx.InsertPeak(ctx, models.Peak{Height: height, HeaderHash: headerHash})
		})
	}

	return m.HandleReorg(ctx, height)
}

// HandleReorg pops every peak above height, unwinds affected coins back
// to unsynced, and restarts the initial-sync role so the puzzle
// classification queue re-derives anything that was in the reorged
// range.
func (m *Manager) HandleReorg(ctx context.Context, forkHeight uint32) error {
	err := m.store.WithTx(ctx, func(tx *db.Tx) error {
		if err := tx.PopPeaksAbove(ctx, forkHeight); err != nil {
			return err
		}
		return tx.UnwindCoinsAbove(ctx, forkHeight)
	})
	if err != nil {
		return walleterr.Wrap(walleterr.KindInvariantViolation, "sync.HandleReorg", "unwind above fork height", err)
	}

	m.mu.Lock()
	if m.syncCancel != nil {
		m.syncCancel()
	}
	m.role = roleState{role: RoleIdle}
	m.mu.Unlock()

	select {
	case m.events <- ReorgEvent{Height: forkHeight}:
	default:
	}
	return nil
}

// SwitchWallet aborts any in-flight sync task and resets to Idle so the
// next tick acquires a peer and resyncs for the newly selected wallet.
func (m *Manager) SwitchWallet() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.syncCancel != nil {
		m.syncCancel()
	}
	m.role = roleState{role: RoleIdle}
}

// CurrentRole reports the manager's role and, if not Idle, which peer
// it is syncing from or subscribed to.
func (m *Manager) CurrentRole() (Role, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role.role, m.role.ip
}
