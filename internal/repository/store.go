// Package repository provides Postgres persistence for memories,
// entities, and the interaction ledger.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Store holds the DB pool and repositories.
type Store struct {
	db           *gorm.DB
	Memories     *MemoryRepo
	Entities     *EntityRepo
	Interactions *InteractionRepo
}

// NewStore initializes the PostgreSQL pool, runs migrations, and wires
// the repositories.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open gorm database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := db.WithContext(ctx).Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to enable pgvector extension: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(
		&memoryModel{},
		&profileModel{},
		&vibeModel{},
		&interactionModel{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	store := &Store{
		db:           db,
		Memories:     NewMemoryRepo(db),
		Entities:     NewEntityRepo(db),
		Interactions: NewInteractionRepo(db),
	}
	return store, nil
}

// DB exposes the underlying pool.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the pool.
func (s *Store) Close() {
	if s.db == nil {
		return
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return
	}
	_ = sqlDB.Close()
}

// marshalJSON encodes a value into JSONB, returning nil for empty values.
func marshalJSON(value any) (json.RawMessage, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	return json.RawMessage(raw), nil
}

// unmarshalJSON decodes JSONB into the provided target.
func unmarshalJSON(data json.RawMessage, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}
