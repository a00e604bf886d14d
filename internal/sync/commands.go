package sync

import (
	"context"
	"log"
	"time"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// Command is one of the commands an outer caller can send the manager:
// SwitchWallet, SwitchNetwork, ConnectPeer, DisconnectPeer,
// SubscribeCoins, SetDiscoverPeers, SetTargetPeers, SubmitTransaction.
type Command interface{ isCommand() }

// SwitchWalletCommand and SwitchNetworkCommand both reduce, at this
// layer, to aborting any in-flight sync and returning to Idle so the
// next tick re-syncs; actually swapping which SQLite file and genesis
// challenge a Manager is built against is the owning process's job
// (it reconstructs the Manager against the newly selected wallet/
// network), not something this struct can do to itself.
type SwitchWalletCommand struct{}

func (SwitchWalletCommand) isCommand() {}

// SwitchNetworkCommand is accepted for the same reason: the manager
// acknowledges the request by resetting to Idle, but the caller is
// responsible for rebuilding the Manager against the new network's
// genesis challenge and peer list.
type SwitchNetworkCommand struct{ NetworkID string }

func (SwitchNetworkCommand) isCommand() {}

// ConnectPeerCommand dials addr and adds it to the pool as a
// user-managed peer: user-added peers are never evicted by the
// discovery loop's target-count logic.
type ConnectPeerCommand struct{ Address string }

func (ConnectPeerCommand) isCommand() {}

// DisconnectPeerCommand drops a peer the caller no longer wants held.
type DisconnectPeerCommand struct{ Address string }

func (DisconnectPeerCommand) isCommand() {}

// SubscribeCoinsCommand asks the manager to fetch and apply the current
// state of a specific set of coin ids outside the normal puzzle-hash
// watch list, e.g. coins a client learned about from an offer file it
// did not derive itself.
type SubscribeCoinsCommand struct{ CoinIDs []models.Hash }

func (SubscribeCoinsCommand) isCommand() {}

// SetDiscoverPeersCommand toggles the discovery loop.
type SetDiscoverPeersCommand struct{ Enabled bool }

func (SetDiscoverPeersCommand) isCommand() {}

// SetTargetPeersCommand changes how many peers the discovery loop tries
// to maintain.
type SetTargetPeersCommand struct{ Count int }

func (SetTargetPeersCommand) isCommand() {}

// SubmitTransactionCommand hands a signed bundle to the mempool ledger
// via the Manager's TransactionSubmitter.
type SubmitTransactionCommand struct {
	Bundle     models.SpendBundle
	FeePerCost uint64
}

func (SubmitTransactionCommand) isCommand() {}

// TransactionSubmitter is the narrow capability the mempool ledger
// satisfies without this package importing internal/mempool.
type TransactionSubmitter interface {
	Submit(ctx context.Context, bundle models.SpendBundle, feePerCost uint64) (models.Hash, error)
}

// Commands returns the channel to send Commands on. Capacity 100; the
// command channel from outer callers into the manager is bounded, so
// producers block on a full channel. Run must be processing for sends
// not to eventually block forever.
func (m *Manager) Commands() chan<- Command { return m.commands }

// SetTransactionSubmitter wires the mempool ledger in. Must be called
// before a SubmitTransactionCommand is sent, or such commands are
// logged and dropped.
func (m *Manager) SetTransactionSubmitter(s TransactionSubmitter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitter = s
}

func (m *Manager) handleCommand(ctx context.Context, cmd Command) {
	switch c := cmd.(type) {
	case SwitchWalletCommand:
		m.SwitchWallet()
	case SwitchNetworkCommand:
		m.SwitchWallet()
	case ConnectPeerCommand:
		m.connectPeer(ctx, c.Address)
	case DisconnectPeerCommand:
		m.pool.RemovePeer(c.Address)
	case SubscribeCoinsCommand:
		m.subscribeCoins(ctx, c.CoinIDs)
	case SetDiscoverPeersCommand:
		m.mu.Lock()
		m.opts.DiscoverPeers = c.Enabled
		m.mu.Unlock()
	case SetTargetPeersCommand:
		m.mu.Lock()
		m.opts.TargetPeerCount = c.Count
		m.mu.Unlock()
	case SubmitTransactionCommand:
		m.submitTransaction(ctx, c)
	default:
		log.Printf("sync: unhandled command %T", cmd)
	}
}

func (m *Manager) connectPeer(ctx context.Context, addr string) {
	dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	client, err := m.dialer.Dial(dialCtx, addr)
	if err != nil {
		log.Printf("sync: ConnectPeer %s failed: %v", addr, err)
		return
	}
	m.pool.AddPeer(addr, client, false, true)
}

// subscribeCoins fetches the current state of coinIDs from whichever
// peer the manager is presently synced against and applies it through
// the normal incremental-update path.
func (m *Manager) subscribeCoins(ctx context.Context, coinIDs []models.Hash) {
	if len(coinIDs) == 0 {
		return
	}
	_, ip := m.CurrentRole()
	if ip == "" {
		log.Printf("sync: SubscribeCoins requested with no subscribed peer, dropping")
		return
	}
	for _, p := range m.pool.Peers() {
		if p.IP != ip || p.Client == nil {
			continue
		}
		page, err := p.Client.RequestCoinState(ctx, coinIDs, nil)
		if err != nil {
			log.Printf("sync: SubscribeCoins RequestCoinState against %s failed: %v", ip, err)
			return
		}
		if err := m.ApplyCoinStateUpdate(ctx, page.Items); err != nil {
			log.Printf("sync: SubscribeCoins apply update failed: %v", err)
		}
		return
	}
}

func (m *Manager) submitTransaction(ctx context.Context, c SubmitTransactionCommand) {
	m.mu.Lock()
	submitter := m.submitter
	m.mu.Unlock()
	if submitter == nil {
		log.Printf("sync: SubmitTransaction received with no TransactionSubmitter wired, dropping")
		return
	}
	itemID, err := submitter.Submit(ctx, c.Bundle, c.FeePerCost)
	if err != nil {
		log.Printf("sync: SubmitTransaction failed: %v", err)
		return
	}
	m.Emit(TransactionSubmittedEvent{MempoolItemID: itemID})
}
