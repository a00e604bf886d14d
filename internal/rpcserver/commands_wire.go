package rpcserver

import (
	"encoding/json"
	"fmt"

	"github.com/rawblock/lightwallet-engine/internal/sync"
	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// commandEnvelope is the wire shape every posted command shares: a
// discriminant naming which sync.Command it carries.
type commandEnvelope struct {
	Type string `json:"type"`
}

// decodeCommand turns one posted JSON body into the sync.Command it
// names. Unknown types are a 400, not a panic.
func decodeCommand(raw []byte) (sync.Command, error) {
	var env commandEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("rpcserver: decode command envelope: %w", err)
	}

	switch env.Type {
	case "switch_wallet":
		return sync.SwitchWalletCommand{}, nil

	case "switch_network":
		var body struct {
			NetworkID string `json:"networkId"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		return sync.SwitchNetworkCommand{NetworkID: body.NetworkID}, nil

	case "connect_peer":
		var body struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		return sync.ConnectPeerCommand{Address: body.Address}, nil

	case "disconnect_peer":
		var body struct {
			Address string `json:"address"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		return sync.DisconnectPeerCommand{Address: body.Address}, nil

	case "subscribe_coins":
		var body struct {
			CoinIDs []models.Hash `json:"coinIds"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		return sync.SubscribeCoinsCommand{CoinIDs: body.CoinIDs}, nil

	case "set_discover_peers":
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		return sync.SetDiscoverPeersCommand{Enabled: body.Enabled}, nil

	case "set_target_peers":
		var body struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		return sync.SetTargetPeersCommand{Count: body.Count}, nil

	case "submit_transaction":
		var body struct {
			Bundle     models.SpendBundle `json:"bundle"`
			FeePerCost uint64              `json:"feePerCost"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, err
		}
		return sync.SubmitTransactionCommand{Bundle: body.Bundle, FeePerCost: body.FeePerCost}, nil

	default:
		return nil, fmt.Errorf("rpcserver: unknown command type %q", env.Type)
	}
}

// eventPayload is the wire shape an event is rendered to before being
// broadcast over the WebSocket hub.
type eventPayload struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func encodeEvent(e sync.Event) ([]byte, error) {
	switch ev := e.(type) {
	case sync.CoinStateEvent:
		return json.Marshal(eventPayload{Type: "coin_state", Data: ev.Items})
	case sync.ReorgEvent:
		return json.Marshal(eventPayload{Type: "reorg", Data: map[string]uint32{"height": ev.Height}})
	case sync.TransactionSubmittedEvent:
		return json.Marshal(eventPayload{Type: "transaction_submitted", Data: map[string]models.Hash{"mempoolItemId": ev.MempoolItemID}})
	case sync.OfferStatusChangedEvent:
		return json.Marshal(eventPayload{Type: "offer_status_changed", Data: map[string]any{
			"offerId": ev.OfferID,
			"status":  ev.Status.String(),
		}})
	default:
		return json.Marshal(eventPayload{Type: fmt.Sprintf("%T", e)})
	}
}
