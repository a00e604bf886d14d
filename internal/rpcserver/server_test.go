package rpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rawblock/lightwallet-engine/internal/db"
	"github.com/rawblock/lightwallet-engine/internal/peer"
	"github.com/rawblock/lightwallet-engine/internal/peerpool"
	"github.com/rawblock/lightwallet-engine/internal/sync"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

type noopDiscovery struct{}

func (noopDiscovery) DNSSeeds(ctx context.Context, max int) ([]string, error) { return nil, nil }
func (noopDiscovery) Gossip(ctx context.Context, max int) ([]string, error)   { return nil, nil }

type noopDialer struct{}

func (noopDialer) Dial(ctx context.Context, addr string) (*peer.Client, error) { return nil, nil }

func newTestManager(t *testing.T) (*sync.Manager, *peerpool.Pool) {
	t.Helper()
	store, err := db.Connect(filepath.Join(t.TempDir(), "wallet.sqlite"))
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	pool := peerpool.New()
	manager := sync.NewManager(store, pool, noopDiscovery{}, noopDialer{}, sync.Options{
		SyncDelay:       time.Hour,
		TargetPeerCount: 3,
	})
	return manager, pool
}

func newTestServer(t *testing.T) (*httptest.Server, *sync.Manager, *peerpool.Pool) {
	t.Helper()
	manager, pool := newTestManager(t)
	hub := NewHub()
	go hub.Run()
	srv := NewServer(manager, hub)
	return httptest.NewServer(srv.Engine()), manager, pool
}

// TestPostCommandAcceptsKnownCommand posts a connect_peer command and
// confirms, via the shared pool, that the Sync Manager's own Run loop
// actually consumed it rather than the command merely parsing cleanly.
func TestPostCommandAcceptsKnownCommand(t *testing.T) {
	srv, manager, pool := newTestServer(t)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Run(ctx)

	body := []byte(`{"type":"connect_peer","address":"10.0.0.5:8444"}`)
	resp, err := http.Post(srv.URL+"/api/v1/commands", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	deadline := time.After(time.Second)
	for {
		if pool.Count() > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("connect_peer command was never applied to the pool")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPostCommandRejectsUnknownType(t *testing.T) {
	srv, _, _ := newTestServer(t)
	defer srv.Close()

	body := []byte(`{"type":"do_a_barrel_roll"}`)
	resp, err := http.Post(srv.URL+"/api/v1/commands", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestPostCommandReturns503WhenChannelFull(t *testing.T) {
	manager, _ := newTestManager(t)
	hub := NewHub()
	go hub.Run()
	srv := NewServer(manager, hub)
	testSrv := httptest.NewServer(srv.Engine())
	defer testSrv.Close()

	// Fill the bounded command channel (capacity 100) without anything
	// draining it, so the next post must hit the backpressure path.
	for i := 0; i < 100; i++ {
		manager.Commands() <- sync.SetTargetPeersCommand{Count: i}
	}

	body := []byte(`{"type":"set_target_peers","count":1}`)
	resp, err := http.Post(testSrv.URL+"/api/v1/commands", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestEncodeEventTransactionSubmitted(t *testing.T) {
	var h models.Hash
	h[0] = 0xAB
	payload, err := encodeEvent(sync.TransactionSubmittedEvent{MempoolItemID: h})
	if err != nil {
		t.Fatalf("encodeEvent: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if string(decoded["type"]) != `"transaction_submitted"` {
		t.Fatalf("type = %s, want transaction_submitted", decoded["type"])
	}
}

func TestPumpEventsForwardsToHub(t *testing.T) {
	manager, _ := newTestManager(t)
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go PumpEvents(ctx, manager, hub)

	manager.Emit(sync.ReorgEvent{Height: 42})

	// Hub.Run is not started, so the relayed payload stays on the hub's
	// broadcast channel where the test can read it.
	select {
	case payload := <-hub.broadcast:
		var decoded map[string]json.RawMessage
		if err := json.Unmarshal(payload, &decoded); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if string(decoded["type"]) != `"reorg"` {
			t.Fatalf("type = %s, want reorg", decoded["type"])
		}
	case <-time.After(time.Second):
		t.Fatal("event was never forwarded to the hub")
	}
}
