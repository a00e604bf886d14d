package peer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// fakeServer accepts one connection, sends the handshake frame the real
// protocol would open with, and then answers every request with
// whatever respond returns for that request's type.
func fakeServer(t *testing.T, respond func(msgType string, payload json.RawMessage) frame) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if err := conn.WriteJSON(frame{ID: "handshake", Type: "new_peak_wallet"}); err != nil {
			return
		}

		for {
			var req frame
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := respond(req.Type, req.Payload)
			resp.ID = req.ID
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	return srv
}

func dialTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	addr := strings.TrimPrefix(srv.URL, "http://")
	// The real Connect always dials wss://; tests run over plain ws via
	// an httptest server, so we build the Client by hand instead of
	// going through Connect's TLS dialer.
	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}
	conn, _, err := dialer.Dial("ws://"+addr+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	c := &Client{
		cfg:     Config{Address: addr},
		conn:    conn,
		pending: make(map[string]chan frame),
		closeCh: make(chan struct{}),
	}
	if err := c.awaitHandshake(); err != nil {
		t.Fatalf("awaitHandshake: %v", err)
	}
	go c.readLoop()
	t.Cleanup(func() { c.Close() })
	return c
}

func mustPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestFetchCoinFoundRoundTrip(t *testing.T) {
	coinID := models.Hash{0x01}
	want := models.CoinState{Coin: models.Coin{PuzzleHash: models.Hash{0x02}, Amount: 42}}

	srv := fakeServer(t, func(msgType string, payload json.RawMessage) frame {
		if msgType != "fetch_coin" {
			t.Errorf("unexpected message type %q", msgType)
		}
		return frame{Type: "fetch_coin", Payload: mustPayload(t, struct {
			Found bool              `json:"found"`
			State models.CoinState `json:"state"`
		}{true, want})}
	})
	defer srv.Close()

	c := dialTestClient(t, srv)

	state, found, err := c.FetchCoin(context.Background(), coinID)
	if err != nil {
		t.Fatalf("FetchCoin: %v", err)
	}
	if !found {
		t.Fatalf("expected found=true")
	}
	if state.Coin.Amount != want.Coin.Amount {
		t.Errorf("Amount = %d, want %d", state.Coin.Amount, want.Coin.Amount)
	}
}

func TestFetchCoinNotFound(t *testing.T) {
	srv := fakeServer(t, func(msgType string, payload json.RawMessage) frame {
		return frame{Payload: mustPayload(t, struct {
			Found bool `json:"found"`
		}{false})}
	})
	defer srv.Close()

	c := dialTestClient(t, srv)

	_, found, err := c.FetchCoin(context.Background(), models.Hash{0x09})
	if err != nil {
		t.Fatalf("FetchCoin: %v", err)
	}
	if found {
		t.Fatalf("expected found=false")
	}
}

func TestCallSurfacesRejectionAsError(t *testing.T) {
	srv := fakeServer(t, func(msgType string, payload json.RawMessage) frame {
		return frame{Error: &wireError{Code: "reorg", Message: "fork below requested tip"}}
	})
	defer srv.Close()

	c := dialTestClient(t, srv)

	_, err := c.RequestPuzzleState(context.Background(), []models.Hash{{0x01}}, nil, models.PuzzleStateFilters{})
	if err == nil {
		t.Fatalf("expected an error from a rejected request")
	}
}

func TestCallTimesOutWhenServerNeverResponds(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	srv := fakeServer(t, func(msgType string, payload json.RawMessage) frame {
		<-block
		return frame{}
	})
	defer srv.Close()

	c := dialTestClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, _, _, err := c.FetchOptionalCoinSpend(ctx, models.Hash{0x01})
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
}

func TestPushTransactionMapsStatusStrings(t *testing.T) {
	srv := fakeServer(t, func(msgType string, payload json.RawMessage) frame {
		return frame{Payload: mustPayload(t, struct {
			Status string `json:"status"`
			Reason string `json:"reason,omitempty"`
		}{"failed", "double spend"})}
	})
	defer srv.Close()

	c := dialTestClient(t, srv)

	outcome, reason, err := c.PushTransaction(context.Background(), models.SpendBundle{})
	if err != nil {
		t.Fatalf("PushTransaction: %v", err)
	}
	if outcome != models.SubmitFailed {
		t.Errorf("outcome = %v, want SubmitFailed", outcome)
	}
	if reason != "double spend" {
		t.Errorf("reason = %q, want %q", reason, "double spend")
	}
}
