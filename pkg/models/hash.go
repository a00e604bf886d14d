// Package models holds the data shapes shared across the sync engine, the
// coin/asset store and the spend planner: coins, assets, P2 puzzles,
// derivations, mempool items, offers and peaks.
package models

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// HashSize is the width of every content-addressed identifier in this
// system: coin ids, puzzle hashes, asset ids and header hashes.
const HashSize = chainhash.HashSize

// Hash is a 32-byte content-addressed identifier. It reuses
// chainhash.Hash's backing array but defines its own string/JSON encoding:
// unlike a Bitcoin txid, coin-set identifiers are not byte-reversed for
// display.
type Hash [HashSize]byte

// ZeroHash is the all-zeros hash. It distinguishes the native asset (the
// chain's native token) from every issued CAT.
var ZeroHash Hash

// HashFromBytes copies b into a Hash, erroring if the length is wrong.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return h, fmt.Errorf("models: invalid hash length %d, want %d", len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// HashFromHex decodes a hex string (no byte reversal) into a Hash.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("models: decode hash hex: %w", err)
	}
	return HashFromBytes(b)
}

// Bytes returns a copy of the underlying 32 bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, HashSize)
	copy(out, h[:])
	return out
}

// IsZero reports whether h is the all-zeros hash (the native asset id).
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// String renders h as plain (non-reversed) lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalJSON encodes h as a hex string.
func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// UnmarshalJSON decodes a hex string into h.
func (h *Hash) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := HashFromHex(s)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// Value implements driver.Valuer so a Hash can be bound directly as a
// SQLite BLOB column.
func (h Hash) Value() (driver.Value, error) {
	return h.Bytes(), nil
}

// Scan implements sql.Scanner for reading a BLOB column back into a Hash.
func (h *Hash) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		decoded, err := HashFromBytes(v)
		if err != nil {
			return err
		}
		*h = decoded
		return nil
	case string:
		decoded, err := HashFromHex(v)
		if err != nil {
			return err
		}
		*h = decoded
		return nil
	case nil:
		*h = Hash{}
		return nil
	default:
		return fmt.Errorf("models: cannot scan %T into Hash", src)
	}
}
