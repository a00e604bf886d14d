// Package blscurve validates that the BLS12-381 key and signature blobs
// this engine persists are well-formed curve points. It never signs or
// aggregates anything itself: that stays behind the external Signer and
// offers.SignatureAggregator capabilities, out of scope for this module.
// This package exists purely so a malformed 48-byte or 96-byte blob is
// rejected at the Database boundary instead of silently stored and only
// discovered unusable the next time something tries to spend against it.
package blscurve

import (
	"fmt"

	blst "github.com/supranational/blst/bindings/go"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// ValidatePublicKey reports an error if pk does not decode to a point on
// the G1 subgroup. Covers derivation synthetic public keys and p2
// single-key puzzle members.
func ValidatePublicKey(pk models.PublicKey) error {
	p := new(blst.P1Affine).Uncompress(pk[:])
	if p == nil {
		return fmt.Errorf("blscurve: public key %s does not decode to a G1 point", pk)
	}
	if !p.KeyValidate() {
		return fmt.Errorf("blscurve: public key %s is not in the G1 subgroup", pk)
	}
	return nil
}

// ValidateSignature reports an error if sig does not decode to a point on
// the G2 subgroup. Covers mempool-item aggregated signatures.
// Subgroup checking only; it does not verify sig against any message,
// which needs the public keys and signed data the Signer capability
// already consumed before handing this engine a signed bundle.
func ValidateSignature(sig models.Signature) error {
	p := new(blst.P2Affine).Uncompress(sig[:])
	if p == nil {
		return fmt.Errorf("blscurve: signature does not decode to a G2 point")
	}
	if !p.SigValidate(false) {
		return fmt.Errorf("blscurve: signature is not in the G2 subgroup")
	}
	return nil
}
