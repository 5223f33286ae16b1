package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/recallhq/recall/internal/types"
)

// memoryModel maps to the memories table.
type memoryModel struct {
	ID        string `gorm:"primaryKey"`
	Content   string
	Kind      string `gorm:"index"`
	ChannelID string `gorm:"index"`
	UserID    string `gorm:"index"`
	// Embedding stores the vector representation for similarity search.
	Embedding *pgvector.Vector `gorm:"type:vector(1536)"`
	// Metadata/Tags/Participants are stored as JSONB.
	Metadata       json.RawMessage `gorm:"type:jsonb"`
	Significance   float64
	SearchText     string
	Tags           json.RawMessage `gorm:"type:jsonb"`
	Context        string
	Participants   json.RawMessage `gorm:"type:jsonb"`
	ReferenceCount int
	CreatedAt      time.Time
	ExpiresAt      *time.Time `gorm:"index"`
}

func (memoryModel) TableName() string {
	return "memories"
}

// MemoryRepo accesses memory records.
type MemoryRepo struct {
	db *gorm.DB
}

// NewMemoryRepo returns a MemoryRepo.
func NewMemoryRepo(db *gorm.DB) *MemoryRepo {
	return &MemoryRepo{db: db}
}

// Insert persists a memory record. A missing embedding leaves the
// vector column NULL, so the record is keyword-searchable only.
func (r *MemoryRepo) Insert(ctx context.Context, mem types.Memory) error {
	record, err := memoryToModel(mem)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert memory: %w", err)
	}
	return nil
}

// SearchSimilar returns non-expired memories ordered by ascending
// cosine distance to the query embedding.
func (r *MemoryRepo) SearchSimilar(ctx context.Context, embedding []float32, channelID string, limit int, now time.Time) ([]types.Memory, error) {
	if len(embedding) == 0 {
		return nil, nil
	}

	conditions := "embedding IS NOT NULL AND (expires_at IS NULL OR expires_at > $2)"
	args := []any{pgvector.NewVector(embedding), now}
	argIndex := 3

	if channelID != "" {
		conditions += fmt.Sprintf(" AND channel_id = $%d", argIndex)
		args = append(args, channelID)
		argIndex++
	}

	query := fmt.Sprintf(`
		SELECT id, content, kind, channel_id, user_id, metadata, significance,
		       search_text, tags, context, participants, reference_count,
		       created_at, expires_at
		FROM memories
		WHERE %s
		ORDER BY embedding <=> $1 ASC
		LIMIT $%d`, conditions, argIndex)
	args = append(args, limit)

	var records []memoryModel
	if err := r.db.WithContext(ctx).
		Raw(query, args...).
		Scan(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to search similar memories: %w", err)
	}
	return memoriesFromModels(records), nil
}

// SearchKeyword returns non-expired memories whose searchable text
// contains the query, ordered by significance then recency.
func (r *MemoryRepo) SearchKeyword(ctx context.Context, query, channelID string, limit int, now time.Time) ([]types.Memory, error) {
	q := r.db.WithContext(ctx).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Where("search_text ILIKE ?", "%"+query+"%").
		Order("significance DESC, created_at DESC").
		Limit(limit)
	if channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}

	var records []memoryModel
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to keyword-search memories: %w", err)
	}
	return memoriesFromModels(records), nil
}

// Recent returns non-expired memories for the channel ordered by
// creation time descending, tie-broken by significance.
func (r *MemoryRepo) Recent(ctx context.Context, channelID string, limit int, now time.Time) ([]types.Memory, error) {
	var records []memoryModel
	if err := r.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at DESC, significance DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to query recent memories: %w", err)
	}
	return memoriesFromModels(records), nil
}

// IncrementReferences bumps reference counts for the given ids in a
// single batched update.
func (r *MemoryRepo) IncrementReferences(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).
		Model(&memoryModel{}).
		Where("id IN ?", ids).
		UpdateColumn("reference_count", gorm.Expr("reference_count + 1")).Error; err != nil {
		return fmt.Errorf("failed to increment reference counts: %w", err)
	}
	return nil
}

// DeleteExpired removes every record whose expiration is set and in
// the past, returning the count removed.
func (r *MemoryRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Delete(&memoryModel{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired memories: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteByUser removes every memory attributed to the user. Part of
// the data-erasure cascade.
func (r *MemoryRepo) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&memoryModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete memories for user: %w", err)
	}
	return nil
}

func memoryToModel(mem types.Memory) (memoryModel, error) {
	var vector *pgvector.Vector
	if len(mem.Embedding) > 0 {
		v := pgvector.NewVector(mem.Embedding)
		vector = &v
	}
	metadata, err := marshalJSON(mem.Metadata)
	if err != nil {
		return memoryModel{}, fmt.Errorf("failed to encode memory metadata: %w", err)
	}
	tags, err := marshalJSON(mem.Tags)
	if err != nil {
		return memoryModel{}, fmt.Errorf("failed to encode memory tags: %w", err)
	}
	participants, err := marshalJSON(mem.Participants)
	if err != nil {
		return memoryModel{}, fmt.Errorf("failed to encode memory participants: %w", err)
	}
	return memoryModel{
		ID:             mem.ID,
		Content:        mem.Content,
		Kind:           mem.Kind,
		ChannelID:      mem.ChannelID,
		UserID:         mem.UserID,
		Embedding:      vector,
		Metadata:       metadata,
		Significance:   mem.Significance,
		SearchText:     mem.SearchText,
		Tags:           tags,
		Context:        mem.Context,
		Participants:   participants,
		ReferenceCount: mem.ReferenceCount,
		CreatedAt:      mem.CreatedAt,
		ExpiresAt:      mem.ExpiresAt,
	}, nil
}

// memoryFromModel converts a database model to the domain struct.
func memoryFromModel(model memoryModel) types.Memory {
	var metadata map[string]any
	var tags []string
	var participants []string
	_ = unmarshalJSON(model.Metadata, &metadata)
	_ = unmarshalJSON(model.Tags, &tags)
	_ = unmarshalJSON(model.Participants, &participants)

	var embedding []float32
	if model.Embedding != nil {
		embedding = model.Embedding.Slice()
	}
	return types.Memory{
		ID:             model.ID,
		Content:        model.Content,
		Kind:           model.Kind,
		ChannelID:      model.ChannelID,
		UserID:         model.UserID,
		Embedding:      embedding,
		Metadata:       metadata,
		Significance:   model.Significance,
		SearchText:     model.SearchText,
		Tags:           tags,
		Context:        model.Context,
		Participants:   participants,
		ReferenceCount: model.ReferenceCount,
		CreatedAt:      model.CreatedAt,
		ExpiresAt:      model.ExpiresAt,
	}
}

func memoriesFromModels(records []memoryModel) []types.Memory {
	results := make([]types.Memory, 0, len(records))
	for _, record := range records {
		results = append(results, memoryFromModel(record))
	}
	return results
}
