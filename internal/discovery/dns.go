// Package discovery implements the sync manager's address-discovery
// capability: DNS-seed address resolution. Peer-gossip (asking an
// already-connected peer for more addresses) needs a wire message the
// peer client does not implement, so Gossip here always returns an empty
// batch; DNS seeding alone is enough to bootstrap a peer count from zero.
package discovery

import (
	"context"
	"fmt"
	"net"
)

// DNSSeeder resolves a fixed list of seed hostnames (the selected
// network's dns_introducers entry in networks.toml) into dialable
// host:port addresses.
type DNSSeeder struct {
	Hostnames   []string
	DefaultPort uint16
	resolver    *net.Resolver
}

// NewDNSSeeder builds a seeder for the given hostnames, using the
// standard library's default resolver.
func NewDNSSeeder(hostnames []string, defaultPort uint16) *DNSSeeder {
	return &DNSSeeder{Hostnames: hostnames, DefaultPort: defaultPort, resolver: net.DefaultResolver}
}

// DNSSeeds resolves up to max addresses across the configured hostnames,
// taking them in order and every address of each until max is reached;
// a hostname that fails to resolve is skipped.
func (d *DNSSeeder) DNSSeeds(ctx context.Context, max int) ([]string, error) {
	var addrs []string
	for _, host := range d.Hostnames {
		if len(addrs) >= max {
			break
		}
		ips, err := d.resolver.LookupIPAddr(ctx, host)
		if err != nil {
			continue
		}
		for _, ip := range ips {
			if len(addrs) >= max {
				break
			}
			addrs = append(addrs, fmt.Sprintf("%s:%d", ip.IP.String(), d.DefaultPort))
		}
	}
	return addrs, nil
}

// Gossip always returns no addresses; see the package doc comment.
func (d *DNSSeeder) Gossip(ctx context.Context, max int) ([]string, error) {
	return nil, nil
}
