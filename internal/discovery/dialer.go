package discovery

import (
	"context"
	"crypto/tls"

	"github.com/rawblock/lightwallet-engine/internal/peer"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// PeerDialer implements sync.Dialer by wrapping peer.Connect with the
// network's genesis challenge, so the Sync Manager and the command
// surface's connect_peer command both dial the same way.
type PeerDialer struct {
	GenesisChallenge models.Hash
	TLSConfig        *tls.Config
}

func (d PeerDialer) Dial(ctx context.Context, addr string) (*peer.Client, error) {
	return peer.Connect(ctx, peer.Config{
		Address:          addr,
		TLSConfig:        d.TLSConfig,
		GenesisChallenge: d.GenesisChallenge,
	})
}
