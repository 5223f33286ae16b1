// Package buffer holds a capped, per-channel recency-ordered message
// window with idle expiration.
package buffer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/recallhq/recall/internal/types"
)

const (
	defaultCapacity = 100
	defaultIdle     = 24 * time.Hour

	numCounters = 100_000
	maxCost     = 1 << 26
	bufferItems = 64
)

// MessageBuffer keeps the most recent messages per channel, newest
// first. The whole channel window expires after the idle duration with
// no new appends. The buffer is ephemeral: it may always be discarded
// and the conversation continues from the persistent store.
type MessageBuffer struct {
	mu       sync.Mutex
	cache    *ristretto.Cache
	capacity int
	idle     time.Duration
}

// New returns a MessageBuffer with the given capacity and idle window.
// Non-positive values fall back to 100 entries and 24 hours.
func New(capacity int, idle time.Duration) (*MessageBuffer, error) {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if idle <= 0 {
		idle = defaultIdle
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: numCounters,
		MaxCost:     maxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &MessageBuffer{cache: c, capacity: capacity, idle: idle}, nil
}

// Append prepends msg to the channel's window, truncates to capacity,
// and resets the idle expiration. Best-effort: substrate failures are
// logged and swallowed, never raised to the caller.
func (b *MessageBuffer) Append(channelID string, msg types.BufferedMessage) {
	if b == nil || b.cache == nil {
		slog.Warn("message buffer unavailable, dropping append", "channel", channelID)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var window []types.BufferedMessage
	if val, ok := b.cache.Get(channelID); ok {
		if existing, ok := val.([]types.BufferedMessage); ok {
			window = existing
		}
	}

	next := make([]types.BufferedMessage, 0, len(window)+1)
	next = append(next, msg)
	next = append(next, window...)
	if len(next) > b.capacity {
		next = next[:b.capacity]
	}

	if !b.cache.SetWithTTL(channelID, next, int64(len(next)), b.idle) {
		slog.Warn("message buffer rejected append", "channel", channelID)
		return
	}
	b.cache.Wait()
}

// Recent returns up to limit most-recent messages for the channel,
// newest first. A cold or unavailable substrate yields an empty slice.
func (b *MessageBuffer) Recent(channelID string, limit int) []types.BufferedMessage {
	if b == nil || b.cache == nil || limit <= 0 {
		return nil
	}

	val, ok := b.cache.Get(channelID)
	if !ok {
		return nil
	}
	window, ok := val.([]types.BufferedMessage)
	if !ok {
		return nil
	}
	if limit > len(window) {
		limit = len(window)
	}
	out := make([]types.BufferedMessage, limit)
	copy(out, window[:limit])
	return out
}

// Close releases the substrate.
func (b *MessageBuffer) Close() {
	if b == nil || b.cache == nil {
		return
	}
	b.cache.Close()
}
