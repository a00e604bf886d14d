package models

import (
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// PublicKeySize is the width of a BLS12-381 G1 public key.
const PublicKeySize = 48

// SignatureSize is the width of a BLS12-381 G2 aggregated signature.
const SignatureSize = 96

// PublicKey is an opaque 48-byte BLS public key. Curve membership is
// checked by the blscurve package; aggregation and signing are handled
// entirely by an external signing oracle. This type only carries bytes
// through the store and the wire protocol.
type PublicKey [PublicKeySize]byte

// Signature is an opaque 96-byte BLS aggregated signature.
type Signature [SignatureSize]byte

func (k PublicKey) String() string { return hex.EncodeToString(k[:]) }
func (s Signature) String() string { return hex.EncodeToString(s[:]) }

func (k PublicKey) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }
func (s Signature) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (k *PublicKey) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	b, err := hex.DecodeString(str)
	if err != nil {
		return fmt.Errorf("models: decode public key hex: %w", err)
	}
	if len(b) != PublicKeySize {
		return fmt.Errorf("models: invalid public key length %d, want %d", len(b), PublicKeySize)
	}
	copy(k[:], b)
	return nil
}

func (s *Signature) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	b, err := hex.DecodeString(str)
	if err != nil {
		return fmt.Errorf("models: decode signature hex: %w", err)
	}
	if len(b) != SignatureSize {
		return fmt.Errorf("models: invalid signature length %d, want %d", len(b), SignatureSize)
	}
	copy(s[:], b)
	return nil
}

func (k PublicKey) Value() (driver.Value, error) {
	out := make([]byte, PublicKeySize)
	copy(out, k[:])
	return out, nil
}

func (k *PublicKey) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		if src == nil {
			*k = PublicKey{}
			return nil
		}
		return fmt.Errorf("models: cannot scan %T into PublicKey", src)
	}
	if len(b) != PublicKeySize {
		return fmt.Errorf("models: invalid public key length %d, want %d", len(b), PublicKeySize)
	}
	copy(k[:], b)
	return nil
}

func (s Signature) Value() (driver.Value, error) {
	out := make([]byte, SignatureSize)
	copy(out, s[:])
	return out, nil
}

func (s *Signature) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		if src == nil {
			*s = Signature{}
			return nil
		}
		return fmt.Errorf("models: cannot scan %T into Signature", src)
	}
	if len(b) != SignatureSize {
		return fmt.Errorf("models: invalid signature length %d, want %d", len(b), SignatureSize)
	}
	copy(s[:], b)
	return nil
}
