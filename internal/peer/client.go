// Package peer wraps one full-duplex framed connection to a remote
// coin-set full node. Each exported method on Client corresponds to one
// request class the sync manager, puzzle classification queue, or spend
// planner issues against a peer, and each call carries its own deadline
// rather than sharing one connection-wide timeout.
package peer

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rawblock/lightwallet-engine/internal/puzzle"
	"github.com/rawblock/lightwallet-engine/internal/walleterr"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// Per-call deadlines, ranging 3-45s depending on request class. Point
// queries are cheap; paginated state requests and push_transaction may
// involve mempool validation on the remote side and get more room.
const (
	connectTimeout      = 3 * time.Second
	handshakeTimeout    = 2 * time.Second
	fetchCoinTimeout    = 10 * time.Second
	fetchSpendTimeout   = 15 * time.Second
	requestStateTimeout = 45 * time.Second
	requestChildTimeout = 10 * time.Second
	pushTxTimeout       = 30 * time.Second
)

// Config describes how to dial one peer.
type Config struct {
	Address        string // host:port
	TLSConfig      *tls.Config
	GenesisChallenge models.Hash
}

// Client is one framed connection to a remote full node. All methods are
// safe for concurrent use; requests are correlated by a uuid request id
// and dispatched to the matching waiter by a single background reader.
type Client struct {
	cfg  Config
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan frame
	closed  bool
	closeCh chan struct{}
}

// frame is the envelope exchanged over the wire: a request/response id
// for correlation, a message type, and the opaque payload.
type frame struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *wireError      `json:"error,omitempty"`
}

type wireError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Connect dials addr, completes the TLS + protocol handshake within the
// spec's 2-second ingestion window, and starts the background reader.
// The caller is expected to have already received and validated the
// opening NewPeakWallet message out of band (Peer Pool's concern); here
// we only enforce that the handshake frame itself arrives in time.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	dialer := websocket.Dialer{
		TLSClientConfig:  cfg.TLSConfig,
		HandshakeTimeout: connectTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	u := url.URL{Scheme: "wss", Host: cfg.Address, Path: "/ws"}
	conn, resp, err := dialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.KindTimeout, "peer.Connect", "dial failed", err)
	}
	if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols && resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, walleterr.New(walleterr.KindPeerMisbehaved, "peer.Connect",
			fmt.Sprintf("unexpected handshake status %d", resp.StatusCode))
	}

	c := &Client{
		cfg:     cfg,
		conn:    conn,
		pending: make(map[string]chan frame),
		closeCh: make(chan struct{}),
	}

	if err := c.awaitHandshake(); err != nil {
		conn.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// awaitHandshake reads the opening protocol frame within handshakeTimeout
// and drops the connection if the peer is silent.
func (c *Client) awaitHandshake() error {
	if err := c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout)); err != nil {
		return walleterr.Wrap(walleterr.KindWireError, "peer.Connect", "set read deadline", err)
	}
	var f frame
	if err := c.conn.ReadJSON(&f); err != nil {
		return walleterr.Wrap(walleterr.KindTimeout, "peer.Connect", "handshake window elapsed", err)
	}
	return c.conn.SetReadDeadline(time.Time{})
}

// Close tears down the connection. Any requests still in flight are
// resolved with a WireError-equivalent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.closeCh)
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *Client) readLoop() {
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			c.Close()
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[f.ID]
		if ok {
			delete(c.pending, f.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- f
			close(ch)
		}
	}
}

// call writes a request frame and waits for its correlated response or
// ctx's deadline, whichever comes first.
func (c *Client) call(ctx context.Context, msgType string, payload any) (frame, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return frame{}, walleterr.Wrap(walleterr.KindWireError, "peer.call", "marshal request", err)
	}

	id := uuid.NewString()
	ch := make(chan frame, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return frame{}, walleterr.New(walleterr.KindWireError, "peer.call", "connection closed")
	}
	c.pending[id] = ch
	c.mu.Unlock()

	req := frame{ID: id, Type: msgType, Payload: body}

	c.writeMu.Lock()
	writeErr := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if writeErr != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return frame{}, walleterr.Wrap(walleterr.KindWireError, "peer.call", "write request", writeErr)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return frame{}, walleterr.New(walleterr.KindWireError, "peer.call", "connection closed while waiting")
		}
		if resp.Error != nil {
			msg := resp.Error.Message
			if resp.Error.Code != "" {
				msg = resp.Error.Code + ": " + msg
			}
			return frame{}, walleterr.New(walleterr.KindRejected, "peer.call", msg)
		}
		return resp, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return frame{}, walleterr.Wrap(walleterr.KindTimeout, "peer.call", msgType+" deadline exceeded", ctx.Err())
	}
}

// RequestPuzzleState pages through every coin spendable by the given
// puzzle hashes. Callers loop until the returned page's IsFinished is
// true, threading NextTip into the next call's previousTip. A Reorg
// rejection (surfaced as KindRejected with "reorg" detail) means the
// caller must roll back to the fork height before retrying.
func (c *Client) RequestPuzzleState(ctx context.Context, puzzleHashes []models.Hash, previousTip *models.Hash, filters models.PuzzleStateFilters) (*models.PuzzleStatePage, error) {
	ctx, cancel := context.WithTimeout(ctx, requestStateTimeout)
	defer cancel()

	resp, err := c.call(ctx, "request_puzzle_state", struct {
		PuzzleHashes []models.Hash             `json:"puzzle_hashes"`
		PreviousTip  *models.Hash               `json:"previous_tip,omitempty"`
		Filters      models.PuzzleStateFilters  `json:"filters"`
	}{puzzleHashes, previousTip, filters})
	if err != nil {
		return nil, err
	}

	var page models.PuzzleStatePage
	if err := json.Unmarshal(resp.Payload, &page); err != nil {
		return nil, walleterr.Wrap(walleterr.KindPeerMisbehaved, "peer.RequestPuzzleState", "decode response", err)
	}
	return &page, nil
}

// RequestCoinState is RequestPuzzleState's counterpart for a fixed set
// of coin ids (used to resubscribe to coins whose lineage is already
// known, e.g. after a restart).
func (c *Client) RequestCoinState(ctx context.Context, coinIDs []models.Hash, previousTip *models.Hash) (*models.PuzzleStatePage, error) {
	ctx, cancel := context.WithTimeout(ctx, requestStateTimeout)
	defer cancel()

	resp, err := c.call(ctx, "request_coin_state", struct {
		CoinIDs     []models.Hash `json:"coin_ids"`
		PreviousTip *models.Hash  `json:"previous_tip,omitempty"`
	}{coinIDs, previousTip})
	if err != nil {
		return nil, err
	}

	var page models.PuzzleStatePage
	if err := json.Unmarshal(resp.Payload, &page); err != nil {
		return nil, walleterr.Wrap(walleterr.KindPeerMisbehaved, "peer.RequestCoinState", "decode response", err)
	}
	return &page, nil
}

// FetchCoin performs a point query for a single coin's current state.
// A nil result (found=false) means the peer has no record of the coin
// ever existing, which is distinct from KindNotFound (a local-store
// miss) — the caller decides which is the actual failure.
func (c *Client) FetchCoin(ctx context.Context, coinID models.Hash) (*models.CoinState, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchCoinTimeout)
	defer cancel()

	resp, err := c.call(ctx, "fetch_coin", struct {
		CoinID           models.Hash `json:"coin_id"`
		GenesisChallenge models.Hash `json:"genesis_challenge"`
	}{coinID, c.cfg.GenesisChallenge})
	if err != nil {
		return nil, false, err
	}

	var out struct {
		Found bool              `json:"found"`
		State models.CoinState  `json:"state"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return nil, false, walleterr.Wrap(walleterr.KindPeerMisbehaved, "peer.FetchCoin", "decode response", err)
	}
	if !out.Found {
		return nil, false, nil
	}
	return &out.State, true, nil
}

// FetchOptionalCoinSpend fetches the revealed puzzle+solution of coinID
// if and only if the peer reports it as spent; returns found=false for
// an unspent or unknown coin rather than an error, mirroring
// fetch_optional_coin_spend in the reference wallet's puzzle-sync loop.
func (c *Client) FetchOptionalCoinSpend(ctx context.Context, coinID models.Hash) (puzzle.Program, puzzle.Program, models.Coin, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchSpendTimeout)
	defer cancel()

	resp, err := c.call(ctx, "fetch_optional_coin_spend", struct {
		CoinID           models.Hash `json:"coin_id"`
		GenesisChallenge models.Hash `json:"genesis_challenge"`
	}{coinID, c.cfg.GenesisChallenge})
	if err != nil {
		return puzzle.Program{}, puzzle.Program{}, models.Coin{}, false, err
	}

	var out struct {
		Found        bool           `json:"found"`
		Coin         models.Coin    `json:"coin"`
		PuzzleReveal puzzle.Program `json:"puzzle_reveal"`
		Solution     puzzle.Program `json:"solution"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return puzzle.Program{}, puzzle.Program{}, models.Coin{}, false, walleterr.Wrap(walleterr.KindPeerMisbehaved, "peer.FetchOptionalCoinSpend", "decode response", err)
	}
	if !out.Found {
		return puzzle.Program{}, puzzle.Program{}, models.Coin{}, false, nil
	}
	return out.PuzzleReveal, out.Solution, out.Coin, true, nil
}

// FetchPuzzleAndSolution fetches the revealed spend of a coin already
// known to be spent at spentHeight. Unlike FetchOptionalCoinSpend this
// is unconditional: a missing reveal for a coin the caller knows is
// spent is itself a misbehaving-peer condition.
func (c *Client) FetchPuzzleAndSolution(ctx context.Context, coinID models.Hash, spentHeight uint32) (puzzle.Program, puzzle.Program, error) {
	ctx, cancel := context.WithTimeout(ctx, fetchSpendTimeout)
	defer cancel()

	resp, err := c.call(ctx, "fetch_puzzle_solution", struct {
		CoinID      models.Hash `json:"coin_id"`
		SpentHeight uint32      `json:"spent_height"`
	}{coinID, spentHeight})
	if err != nil {
		return puzzle.Program{}, puzzle.Program{}, err
	}

	var out struct {
		PuzzleReveal *puzzle.Program `json:"puzzle_reveal"`
		Solution     *puzzle.Program `json:"solution"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return puzzle.Program{}, puzzle.Program{}, walleterr.Wrap(walleterr.KindPeerMisbehaved, "peer.FetchPuzzleAndSolution", "decode response", err)
	}
	if out.PuzzleReveal == nil || out.Solution == nil {
		return puzzle.Program{}, puzzle.Program{}, walleterr.New(walleterr.KindPeerMisbehaved, "peer.FetchPuzzleAndSolution", "response is missing the puzzle reveal or solution")
	}
	return *out.PuzzleReveal, *out.Solution, nil
}

// RequestChildren enumerates every on-chain descendant of coinID the
// peer currently knows about, regardless of whether they belong to any
// puzzle hash we track. The Puzzle Queue does not call it; it confirms
// the children ParseChildren derives through FetchCoins instead.
func (c *Client) RequestChildren(ctx context.Context, coinID models.Hash) ([]models.CoinState, error) {
	ctx, cancel := context.WithTimeout(ctx, requestChildTimeout)
	defer cancel()

	resp, err := c.call(ctx, "request_children", struct {
		CoinID models.Hash `json:"coin_id"`
	}{coinID})
	if err != nil {
		return nil, err
	}

	var out struct {
		Children []models.CoinState `json:"children"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return nil, walleterr.Wrap(walleterr.KindPeerMisbehaved, "peer.RequestChildren", "decode response", err)
	}
	return out.Children, nil
}

// FetchCoins batch-resolves the current state of an arbitrary set of
// coin ids, used after ParseChildren to confirm which derived children
// actually exist on chain (the reference wallet's fetch_coins call).
func (c *Client) FetchCoins(ctx context.Context, coinIDs []models.Hash) ([]models.CoinState, error) {
	ctx, cancel := context.WithTimeout(ctx, requestStateTimeout)
	defer cancel()

	resp, err := c.call(ctx, "fetch_coins", struct {
		CoinIDs          []models.Hash `json:"coin_ids"`
		GenesisChallenge models.Hash   `json:"genesis_challenge"`
	}{coinIDs, c.cfg.GenesisChallenge})
	if err != nil {
		return nil, err
	}

	var out struct {
		Coins []models.CoinState `json:"coins"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return nil, walleterr.Wrap(walleterr.KindPeerMisbehaved, "peer.FetchCoins", "decode response", err)
	}
	return out.Coins, nil
}

// PushTransaction submits a signed bundle for mempool admission. The
// peer's verdict (Accepted/Pending/Failed/Unknown) is returned as a
// SubmitOutcome rather than an error — only transport-level failures
// (timeout, wire error, misbehavior) are surfaced as err.
func (c *Client) PushTransaction(ctx context.Context, bundle models.SpendBundle) (models.SubmitOutcome, string, error) {
	ctx, cancel := context.WithTimeout(ctx, pushTxTimeout)
	defer cancel()

	resp, err := c.call(ctx, "push_transaction", struct {
		Bundle models.SpendBundle `json:"bundle"`
	}{bundle})
	if err != nil {
		return models.SubmitUnknown, "", err
	}

	var out struct {
		Status string `json:"status"`
		Reason string `json:"reason,omitempty"`
	}
	if err := json.Unmarshal(resp.Payload, &out); err != nil {
		return models.SubmitUnknown, "", walleterr.Wrap(walleterr.KindPeerMisbehaved, "peer.PushTransaction", "decode response", err)
	}

	switch out.Status {
	case "accepted":
		return models.SubmitAccepted, "", nil
	case "pending":
		return models.SubmitPending, "", nil
	case "failed":
		return models.SubmitFailed, out.Reason, nil
	default:
		return models.SubmitUnknown, out.Reason, nil
	}
}

// Address returns the dialed peer's host:port, used by the Peer Pool for
// ban bookkeeping.
func (c *Client) Address() string { return c.cfg.Address }
