package peerpool

import (
	"testing"
	"time"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

func TestAcquirePeerPicksHighestUnreservedPeak(t *testing.T) {
	pool := New()
	pool.AddPeer("10.0.0.1:8444", nil, false, false)
	pool.AddPeer("10.0.0.2:8444", nil, false, false)
	pool.AddPeer("10.0.0.3:8444", nil, false, false)

	if err := pool.UpdatePeak("10.0.0.1:8444", 100, models.Hash{0x01}); err != nil {
		t.Fatalf("UpdatePeak: %v", err)
	}
	if err := pool.UpdatePeak("10.0.0.2:8444", 300, models.Hash{0x02}); err != nil {
		t.Fatalf("UpdatePeak: %v", err)
	}
	if err := pool.UpdatePeak("10.0.0.3:8444", 200, models.Hash{0x03}); err != nil {
		t.Fatalf("UpdatePeak: %v", err)
	}

	rec, ok := pool.AcquirePeer()
	if !ok {
		t.Fatalf("expected a peer to be acquirable")
	}
	if rec.IP != "10.0.0.2:8444" {
		t.Errorf("acquired %s, want the peer with the highest peak", rec.IP)
	}

	// The acquired peer is now reserved and should not be handed out again.
	rec2, ok := pool.AcquirePeer()
	if !ok {
		t.Fatalf("expected a second peer to be acquirable")
	}
	if rec2.IP == rec.IP {
		t.Errorf("acquired the same reserved peer twice")
	}
}

func TestReleaseAllowsReacquisition(t *testing.T) {
	pool := New()
	pool.AddPeer("10.0.0.1:8444", nil, false, false)
	_ = pool.UpdatePeak("10.0.0.1:8444", 50, models.Hash{0x01})

	first, ok := pool.AcquirePeer()
	if !ok {
		t.Fatalf("expected to acquire the only peer")
	}
	if _, ok := pool.AcquirePeer(); ok {
		t.Fatalf("expected no peer acquirable while the only one is reserved")
	}

	pool.Release(first.IP)

	if _, ok := pool.AcquirePeer(); !ok {
		t.Fatalf("expected the peer to be acquirable again after Release")
	}
}

func TestBanRemovesPeerAndBlocksReacquisition(t *testing.T) {
	pool := New()
	pool.AddPeer("10.0.0.9:8444", nil, false, false)
	_ = pool.UpdatePeak("10.0.0.9:8444", 10, models.Hash{0x01})

	pool.Ban("10.0.0.9:8444", time.Minute, "timeout")

	if !pool.IsBanned("10.0.0.9:8444") {
		t.Errorf("expected peer to be banned")
	}
	if pool.Count() != 0 {
		t.Errorf("expected banned peer to be removed from the pool, count = %d", pool.Count())
	}
}

func TestBanExpiresLazily(t *testing.T) {
	pool := New()
	pool.Ban("10.0.0.5:8444", time.Nanosecond, "test")

	time.Sleep(time.Millisecond)

	if pool.IsBanned("10.0.0.5:8444") {
		t.Errorf("expected an expired ban to no longer report banned")
	}
}

func TestUpdatePeakUnknownPeerReturnsNotFound(t *testing.T) {
	pool := New()
	if err := pool.UpdatePeak("no-such-peer:8444", 1, models.Hash{}); err == nil {
		t.Fatalf("expected an error for an unknown peer")
	}
}

func TestValidAddr(t *testing.T) {
	cases := map[string]bool{
		"1.2.3.4:8444":     true,
		"node.example:443": true,
		"no-port":          false,
		"":                 false,
	}
	for addr, want := range cases {
		if got := ValidAddr(addr); got != want {
			t.Errorf("ValidAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
