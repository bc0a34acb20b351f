package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"math/rand/v2"

	"cases-miniapp-backend/internal/models"
)

// RewardSelector draws from a fixed weighted catalog. It holds no mutable
// state and is safe for concurrent use.
type RewardSelector struct {
	catalog models.Catalog
	total   uint64
	seed    []byte
	uint64n func(n uint64) uint64
}

// NewRewardSelector validates the catalog. seed keys the per-request draw
// and must stay secret.
func NewRewardSelector(catalog models.Catalog, seed []byte) (*RewardSelector, error) {
	if err := catalog.Validate(); err != nil {
		return nil, err
	}

	return &RewardSelector{
		catalog: append(models.Catalog(nil), catalog...),
		total:   catalog.TotalTickets(),
		seed:    append([]byte(nil), seed...),
		uint64n: rand.Uint64N,
	}, nil
}

func (s *RewardSelector) Catalog() models.Catalog {
	return append(models.Catalog(nil), s.catalog...)
}

// Pick walks the cumulative ticket bands and returns the item whose band
// holds r. r is reduced modulo the ticket total first.
func (s *RewardSelector) Pick(r uint64) models.Item {
	r %= s.total
	for _, it := range s.catalog {
		if r < it.Tickets {
			return it
		}
		r -= it.Tickets
	}
	return s.catalog[len(s.catalog)-1]
}

// Draw uses the process random source.
func (s *RewardSelector) Draw() models.Item {
	return s.Pick(s.uint64n(s.total))
}

// DrawFor derives the draw from HMAC-SHA256(seed, userID, requestID), so a
// replayed request sees the prize it was first shown.
func (s *RewardSelector) DrawFor(userID, requestID string) models.Item {
	mac := hmac.New(sha256.New, s.seed)
	mac.Write([]byte(userID))
	mac.Write([]byte{0})
	mac.Write([]byte(requestID))
	sum := mac.Sum(nil)

	return s.Pick(binary.BigEndian.Uint64(sum[:8]))
}
