package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// TTLSet is a membership set whose entries expire on their own instead
// of requiring manual pruning. Used for active-channel and dedup
// tracking.
type TTLSet struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewTTLSet returns a TTLSet whose members expire after ttl.
func NewTTLSet(ttl time.Duration) (*TTLSet, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &TTLSet{cache: c, ttl: ttl}, nil
}

// Add marks key as a member and refreshes its expiry.
func (s *TTLSet) Add(key string) {
	if s == nil || s.cache == nil {
		return
	}
	s.cache.SetWithTTL(key, struct{}{}, 1, s.ttl)
	s.cache.Wait()
}

// Contains reports whether key is a live member.
func (s *TTLSet) Contains(key string) bool {
	if s == nil || s.cache == nil {
		return false
	}
	_, ok := s.cache.Get(key)
	return ok
}

// Close releases the substrate.
func (s *TTLSet) Close() {
	if s == nil || s.cache == nil {
		return
	}
	s.cache.Close()
}
