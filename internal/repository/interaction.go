package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/recallhq/recall/internal/types"
)

// interactionModel maps to the interactions table. Rows are append-only
// and indexed by timestamp.
type interactionModel struct {
	ID            string `gorm:"primaryKey"`
	OperationType string
	TokensUsed    int
	Cost          float64
	Model         string
	Success       bool
	Error         string
	ChannelID     string    `gorm:"index"`
	UserID        string    `gorm:"index"`
	CreatedAt     time.Time `gorm:"index"`
}

func (interactionModel) TableName() string {
	return "interactions"
}

// InteractionRepo appends and aggregates cost records.
type InteractionRepo struct {
	db *gorm.DB
}

// NewInteractionRepo returns an InteractionRepo.
func NewInteractionRepo(db *gorm.DB) *InteractionRepo {
	return &InteractionRepo{db: db}
}

// Insert appends an interaction record.
func (r *InteractionRepo) Insert(ctx context.Context, rec types.Interaction) error {
	record := interactionModel{
		ID:            rec.ID,
		OperationType: rec.OperationType,
		TokensUsed:    rec.TokensUsed,
		Cost:          rec.Cost,
		Model:         rec.Model,
		Success:       rec.Success,
		Error:         rec.Error,
		ChannelID:     rec.ChannelID,
		UserID:        rec.UserID,
		CreatedAt:     rec.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to insert interaction: %w", err)
	}
	return nil
}

// ChannelUsage aggregates token and cost totals for one channel.
func (r *InteractionRepo) ChannelUsage(ctx context.Context, channelID string) (types.UsageSummary, error) {
	summary := types.UsageSummary{ChannelID: channelID}
	query := `
		SELECT COUNT(*) AS interactions,
		       COALESCE(SUM(tokens_used), 0) AS tokens_used,
		       COALESCE(SUM(cost), 0) AS cost
		FROM interactions
		WHERE channel_id = $1`
	if err := r.db.WithContext(ctx).
		Raw(query, channelID).
		Scan(&summary).Error; err != nil {
		return types.UsageSummary{}, fmt.Errorf("failed to aggregate channel usage: %w", err)
	}
	return summary, nil
}

// DeleteByUser removes the user's attributed records. Part of the
// data-erasure cascade.
func (r *InteractionRepo) DeleteByUser(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&interactionModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete interactions for user: %w", err)
	}
	return nil
}
