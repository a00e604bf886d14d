package offers

import (
	"crypto/sha256"
	"sort"

	"github.com/rawblock/lightwallet-engine/pkg/models"
)

// Nonce computes an offer's nonce as sha256 over the sorted ids of every
// coin it locks, order-independent regardless of selection order. The
// locked coins themselves are tied together separately by MakeOffer's
// concurrent-spend assertions (each coin asserting the next one within its
// asset group, plus a ring across every group's primary coin), so
// accepting only some of the locked coins is never a valid spend.
func Nonce(coinIDs []models.Hash) models.Hash {
	sorted := make([]models.Hash, len(coinIDs))
	copy(sorted, coinIDs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].String() < sorted[j].String() })

	h := sha256.New()
	for _, id := range sorted {
		h.Write(id[:])
	}
	var out models.Hash
	copy(out[:], h.Sum(nil))
	return out
}
