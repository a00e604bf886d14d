// Package peerpool tracks the set of peers the sync manager currently
// holds connections to: which puzzle-state peak each claims, which ones
// are reserved by an in-flight sync task, and which IPs are temporarily
// banned after misbehaving. It holds no persistent state of its own —
// everything here resets on process restart.
package peerpool

import (
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rawblock/lightwallet-engine/internal/peer"
	"github.com/rawblock/lightwallet-engine/internal/walleterr"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// defaultBanCacheSize bounds how many banned IPs are remembered at once;
// an LRU eviction here just means the oldest ban is forgotten early,
// which is acceptable since bans are a soft defense, not an allowlist.
const defaultBanCacheSize = 4096

// Record is one tracked peer: its connection plus whatever it last
// claimed about its view of the chain.
type Record struct {
	IP                string
	Client            *peer.Client
	ClaimedPeakHeight  uint32
	ClaimedHeaderHash  models.Hash
	Trusted            bool
	UserManaged        bool

	reserved bool
}

type banEntry struct {
	until  time.Time
	reason string
}

// Pool is the concurrent peer-IP map this wallet tracks live connections in.
type Pool struct {
	mu    sync.Mutex
	peers map[string]*Record

	bannedMu sync.Mutex
	banned   *lru.Cache[string, banEntry]
}

// New constructs an empty pool with the default banned-IP cache size.
func New() *Pool {
	cache, err := lru.New[string, banEntry](defaultBanCacheSize)
	if err != nil {
		// Only returns an error for a non-positive size, which never
		// happens with a compile-time constant.
		panic(fmt.Sprintf("peerpool: unexpected lru.New error: %v", err))
	}
	return &Pool{peers: make(map[string]*Record), banned: cache}
}

// AddPeer registers a newly connected peer. Re-adding an IP already
// present replaces its connection and resets its claimed peak.
func (p *Pool) AddPeer(ip string, client *peer.Client, trusted, userManaged bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers[ip] = &Record{IP: ip, Client: client, Trusted: trusted, UserManaged: userManaged}
}

// RemovePeer drops a peer, closing its connection if still open.
func (p *Pool) RemovePeer(ip string) {
	p.mu.Lock()
	rec, ok := p.peers[ip]
	if ok {
		delete(p.peers, ip)
	}
	p.mu.Unlock()
	if ok && rec.Client != nil {
		rec.Client.Close()
	}
}

// UpdatePeak records what a peer claims its current chain tip is.
func (p *Pool) UpdatePeak(ip string, height uint32, headerHash models.Hash) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.peers[ip]
	if !ok {
		return walleterr.New(walleterr.KindNotFound, "peerpool.UpdatePeak", "unknown peer "+ip)
	}
	rec.ClaimedPeakHeight = height
	rec.ClaimedHeaderHash = headerHash
	return nil
}

// AcquirePeer returns the connected, unbanned, unreserved peer with the
// highest claimed peak and marks it reserved. The caller must call
// Release(ip) once its sync task ends (cleanly, by error, or by
// cancellation) so the peer becomes acquirable again.
func (p *Pool) AcquirePeer() (*Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := make([]*Record, 0, len(p.peers))
	for _, rec := range p.peers {
		if rec.reserved || p.isBannedLocked(rec.IP) {
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		return nil, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].ClaimedPeakHeight > candidates[j].ClaimedPeakHeight
	})

	best := candidates[0]
	best.reserved = true
	cp := *best
	return &cp, true
}

// Release un-reserves a peer previously returned by AcquirePeer, e.g.
// after the sync manager's task for it completes or is cancelled.
func (p *Pool) Release(ip string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.peers[ip]; ok {
		rec.reserved = false
	}
}

// Ban marks ip as untrustworthy for duration and removes it from the
// live pool. Used by the Timeout/PeerMisbehaved/WireError ban policy.
func (p *Pool) Ban(ip string, duration time.Duration, reason string) {
	p.bannedMu.Lock()
	p.banned.Add(ip, banEntry{until: time.Now().Add(duration), reason: reason})
	p.bannedMu.Unlock()
	p.RemovePeer(ip)
}

// IsBanned reports whether ip is currently within an active ban window,
// lazily clearing the entry once it has expired.
func (p *Pool) IsBanned(ip string) bool {
	p.bannedMu.Lock()
	defer p.bannedMu.Unlock()
	return p.isBannedLockedNoPoolLock(ip)
}

// isBannedLocked is AcquirePeer's internal check; it takes the ban-cache
// lock itself since AcquirePeer only holds the peer-map lock.
func (p *Pool) isBannedLocked(ip string) bool {
	p.bannedMu.Lock()
	defer p.bannedMu.Unlock()
	return p.isBannedLockedNoPoolLock(ip)
}

func (p *Pool) isBannedLockedNoPoolLock(ip string) bool {
	entry, ok := p.banned.Get(ip)
	if !ok {
		return false
	}
	if time.Now().After(entry.until) {
		p.banned.Remove(ip)
		return false
	}
	return true
}

// Peers returns a snapshot of every currently tracked peer.
func (p *Pool) Peers() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, 0, len(p.peers))
	for _, rec := range p.peers {
		out = append(out, *rec)
	}
	return out
}

// Count returns how many peers are currently tracked, used by the sync
// manager's discovery loop to decide whether it is below target.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.peers)
}

// ValidAddr reports whether addr parses as host:port with a usable IP
// or hostname, used to sanity-check gossip/DNS-seed results before
// dialing them.
func ValidAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil || host == "" {
		return false
	}
	return true
}
