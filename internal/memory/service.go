// Package memory implements the durable memory store: creation with
// validation and expiry, similarity search with keyword fallback, and
// expiration sweeps.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/types"
)

const defaultRetention = 180 * 24 * time.Hour

// Repo is the persistence surface the service needs.
type Repo interface {
	Insert(ctx context.Context, mem types.Memory) error
	SearchSimilar(ctx context.Context, embedding []float32, channelID string, limit int, now time.Time) ([]types.Memory, error)
	SearchKeyword(ctx context.Context, query, channelID string, limit int, now time.Time) ([]types.Memory, error)
	Recent(ctx context.Context, channelID string, limit int, now time.Time) ([]types.Memory, error)
	IncrementReferences(ctx context.Context, ids []string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteByUser(ctx context.Context, userID string) error
}

// Service owns memory lifecycle on top of a Repo.
type Service struct {
	repo      Repo
	retention time.Duration
	now       func() time.Time
}

// NewService returns a memory Service. A non-positive retention falls
// back to 180 days.
func NewService(repo Repo, retention time.Duration) *Service {
	if retention <= 0 {
		retention = defaultRetention
	}
	return &Service{repo: repo, retention: retention, now: time.Now}
}

// WithClock overrides the service clock. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Create validates the candidate, assigns identity and expiration, and
// persists it. A wrong-dimension embedding is dropped so the record is
// persisted keyword-searchable only. Persistence failures are logged
// and swallowed: the return is (nil, nil), meaning "memory not saved",
// and the broader pipeline continues.
func (s *Service) Create(ctx context.Context, candidate types.Memory) (*types.Memory, error) {
	if candidate.Significance < 0 || candidate.Significance > 1 {
		return nil, &types.ValidationError{
			Field:  "significance",
			Reason: fmt.Sprintf("must be within [0,1], got %g", candidate.Significance),
		}
	}
	if !types.ValidMemoryKind(candidate.Kind) {
		return nil, &types.ValidationError{
			Field:  "kind",
			Reason: fmt.Sprintf("unknown memory kind %q", candidate.Kind),
		}
	}

	mem := candidate
	mem.ID = uuid.NewString()
	mem.CreatedAt = s.now()
	expires := mem.CreatedAt.Add(s.retention)
	mem.ExpiresAt = &expires
	mem.ReferenceCount = 0
	if mem.SearchText == "" {
		mem.SearchText = mem.Content
	}
	if len(mem.Embedding) > 0 && len(mem.Embedding) != types.EmbeddingDimensions {
		slog.Warn("dropping embedding with wrong dimensions",
			"memory_id", mem.ID, "got", len(mem.Embedding), "want", types.EmbeddingDimensions)
		mem.Embedding = nil
	}

	if err := s.repo.Insert(ctx, mem); err != nil {
		serr := &types.StorageError{Op: "memory create", Err: err}
		slog.Error("memory not saved", "channel", mem.ChannelID, "kind", mem.Kind, "error", serr)
		return nil, nil
	}
	return &mem, nil
}

// Search returns up to limit relevant, non-expired memories. Vector
// similarity ordering (ascending distance) is preferred when a query
// embedding of the canonical dimension is supplied and the index has
// results; otherwise it falls back to keyword matching ordered by
// significance then recency. Every surfaced record has its reference
// count bumped once, in a single batched update. Never returns an
// error: total failure degrades to an empty result.
func (s *Service) Search(ctx context.Context, query string, embedding []float32, limit int, channelID string) []types.Memory {
	now := s.now()

	var results []types.Memory
	if len(embedding) == types.EmbeddingDimensions {
		found, err := s.repo.SearchSimilar(ctx, embedding, channelID, limit, now)
		if err != nil {
			slog.Warn("vector search unavailable, falling back to keyword",
				"channel", channelID, "error", err)
		} else {
			results = found
		}
	}
	if len(results) == 0 && query != "" {
		found, err := s.repo.SearchKeyword(ctx, query, channelID, limit, now)
		if err != nil {
			slog.Error("keyword search failed", "channel", channelID, "error",
				&types.StorageError{Op: "memory search", Err: err})
			return nil
		}
		results = found
	}
	if len(results) == 0 {
		return nil
	}

	ids := make([]string, 0, len(results))
	for _, mem := range results {
		ids = append(ids, mem.ID)
	}
	if err := s.repo.IncrementReferences(ctx, ids); err != nil {
		slog.Warn("failed to bump memory reference counts", "count", len(ids), "error", err)
	}
	return results
}

// GetRecent returns non-expired memories for the channel ordered by
// creation time descending, tie-broken by significance. Degrades to an
// empty result on storage failure.
func (s *Service) GetRecent(ctx context.Context, channelID string, limit int) []types.Memory {
	results, err := s.repo.Recent(ctx, channelID, limit, s.now())
	if err != nil {
		slog.Error("recent memories unavailable", "channel", channelID, "error",
			&types.StorageError{Op: "memory recent", Err: err})
		return nil
	}
	return results
}

// CleanupExpired deletes every record whose expiration is in the past
// and returns the count removed. Idempotent: a second call with no new
// expirations returns 0.
func (s *Service) CleanupExpired(ctx context.Context) (int, error) {
	removed, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, &types.StorageError{Op: "memory cleanup", Err: err}
	}
	if removed > 0 {
		slog.Info("removed expired memories", "count", removed)
	}
	return int(removed), nil
}

// EraseUser removes every memory attributed to the user, as part of a
// data-erasure request.
func (s *Service) EraseUser(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return &types.StorageError{Op: "memory erase", Err: err}
	}
	return nil
}
