package discovery

import (
	"context"
	"testing"
)

func TestGossipAlwaysReturnsNoAddresses(t *testing.T) {
	d := NewDNSSeeder([]string{"seed.example.invalid"}, 8444)
	addrs, err := d.Gossip(context.Background(), 20)
	if err != nil {
		t.Fatalf("Gossip: %v", err)
	}
	if len(addrs) != 0 {
		t.Fatalf("len(addrs) = %d, want 0", len(addrs))
	}
}

func TestDNSSeedsSkipsUnresolvableHostnames(t *testing.T) {
	// "invalid" is reserved by RFC 2606 and guaranteed never to resolve,
	// so this exercises the per-hostname error-skip path without needing
	// real network access.
	d := NewDNSSeeder([]string{"seed.example.invalid"}, 8444)
	addrs, err := d.DNSSeeds(context.Background(), 20)
	if err != nil {
		t.Fatalf("DNSSeeds: %v", err)
	}
	if len(addrs) != 0 {
		t.Fatalf("len(addrs) = %d, want 0 for an unresolvable seed", len(addrs))
	}
}
