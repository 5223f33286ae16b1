package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/recallhq/recall/internal/types"
)

// profileModel maps to the user_profiles table, one row per user.
type profileModel struct {
	UserID           string `gorm:"primaryKey"`
	DisplayName      string
	Notes            string
	InteractionCount int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (profileModel) TableName() string {
	return "user_profiles"
}

// vibeModel maps to the channel_vibes table, one row per channel.
type vibeModel struct {
	ChannelID    string `gorm:"primaryKey"`
	Vibe         string
	Topics       json.RawMessage `gorm:"type:jsonb"`
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (vibeModel) TableName() string {
	return "channel_vibes"
}

// EntityRepo accesses user profiles and channel vibes.
type EntityRepo struct {
	db *gorm.DB
}

// NewEntityRepo returns an EntityRepo.
func NewEntityRepo(db *gorm.DB) *EntityRepo {
	return &EntityRepo{db: db}
}

// GetOrCreateProfile loads the user's profile, creating an empty row
// on first sight.
func (r *EntityRepo) GetOrCreateProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	record := profileModel{UserID: userID}
	if err := r.db.WithContext(ctx).
		Where(profileModel{UserID: userID}).
		FirstOrCreate(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to get or create profile: %w", err)
	}
	return profileFromModel(record), nil
}

// UpdateProfile persists the profile. Callers must invalidate the
// entity cache after this returns.
func (r *EntityRepo) UpdateProfile(ctx context.Context, profile types.UserProfile) error {
	record := profileModel{
		UserID:           profile.UserID,
		DisplayName:      profile.DisplayName,
		Notes:            profile.Notes,
		InteractionCount: profile.InteractionCount,
	}
	if err := r.db.WithContext(ctx).
		Model(&profileModel{UserID: profile.UserID}).
		Updates(&record).Error; err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// DeleteProfile removes the user's profile row. Part of the
// data-erasure cascade.
func (r *EntityRepo) DeleteProfile(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).
		Delete(&profileModel{UserID: userID}).Error; err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

// GetOrCreateVibe loads the channel's vibe record, creating an empty
// row on first sight.
func (r *EntityRepo) GetOrCreateVibe(ctx context.Context, channelID string) (*types.ChannelVibe, error) {
	record := vibeModel{ChannelID: channelID}
	if err := r.db.WithContext(ctx).
		Where(vibeModel{ChannelID: channelID}).
		FirstOrCreate(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to get or create vibe: %w", err)
	}
	return vibeFromModel(record)
}

// UpdateVibe persists the vibe. Callers must invalidate the entity
// cache after this returns.
func (r *EntityRepo) UpdateVibe(ctx context.Context, vibe types.ChannelVibe) error {
	topics, err := marshalJSON(vibe.Topics)
	if err != nil {
		return fmt.Errorf("failed to encode vibe topics: %w", err)
	}
	record := vibeModel{
		ChannelID:    vibe.ChannelID,
		Vibe:         vibe.Vibe,
		Topics:       topics,
		MessageCount: vibe.MessageCount,
	}
	if err := r.db.WithContext(ctx).
		Model(&vibeModel{ChannelID: vibe.ChannelID}).
		Updates(&record).Error; err != nil {
		return fmt.Errorf("failed to update vibe: %w", err)
	}
	return nil
}

func profileFromModel(model profileModel) *types.UserProfile {
	return &types.UserProfile{
		UserID:           model.UserID,
		DisplayName:      model.DisplayName,
		Notes:            model.Notes,
		InteractionCount: model.InteractionCount,
		CreatedAt:        model.CreatedAt,
		UpdatedAt:        model.UpdatedAt,
	}
}

func vibeFromModel(model vibeModel) (*types.ChannelVibe, error) {
	var topics []string
	if err := unmarshalJSON(model.Topics, &topics); err != nil {
		return nil, fmt.Errorf("failed to decode vibe topics: %w", err)
	}
	return &types.ChannelVibe{
		ChannelID:    model.ChannelID,
		Vibe:         model.Vibe,
		Topics:       topics,
		MessageCount: model.MessageCount,
		CreatedAt:    model.CreatedAt,
		UpdatedAt:    model.UpdatedAt,
	}, nil
}
