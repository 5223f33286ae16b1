// Package types holds the domain records shared across the subsystem.
package types

import "time"

// EmbeddingDimensions is the canonical vector size for memory embeddings.
const EmbeddingDimensions = 1536

// Memory kinds form a closed enumeration.
const (
	MemoryKindJoke         = "joke"
	MemoryKindFact         = "fact"
	MemoryKindMoment       = "moment"
	MemoryKindPreference   = "preference"
	MemoryKindRelationship = "relationship"
	MemoryKindQuote        = "quote"
)

// MemoryKinds lists every valid memory kind.
var MemoryKinds = []string{
	MemoryKindJoke,
	MemoryKindFact,
	MemoryKindMoment,
	MemoryKindPreference,
	MemoryKindRelationship,
	MemoryKindQuote,
}

// ValidMemoryKind reports whether kind is part of the enumeration.
func ValidMemoryKind(kind string) bool {
	for _, k := range MemoryKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Memory is a durable, searchable record of something worth recalling.
// ReferenceCount only ever increases; it is bumped once per retrieval
// event that surfaces the record.
type Memory struct {
	ID             string         `json:"id"`
	Content        string         `json:"content"`
	Kind           string         `json:"kind"`
	ChannelID      string         `json:"channel_id"`
	UserID         string         `json:"user_id,omitempty"`
	Embedding      []float32      `json:"-"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Significance   float64        `json:"significance"`
	SearchText     string         `json:"search_text"`
	Tags           []string       `json:"tags,omitempty"`
	Context        string         `json:"context,omitempty"`
	Participants   []string       `json:"participants,omitempty"`
	ReferenceCount int            `json:"reference_count"`
	CreatedAt      time.Time      `json:"created_at"`
	ExpiresAt      *time.Time     `json:"expires_at,omitempty"`
}

// Expired reports whether the memory's expiration is set and in the past.
func (m Memory) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && m.ExpiresAt.Before(now)
}

// BufferedMessage is ephemeral conversational context held per channel.
type BufferedMessage struct {
	Text      string    `json:"text"`
	UserID    string    `json:"user_id"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// UserProfile is the persisted projection of a Slack user.
type UserProfile struct {
	UserID           string    `json:"user_id"`
	DisplayName      string    `json:"display_name"`
	Notes            string    `json:"notes"`
	InteractionCount int       `json:"interaction_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ChannelVibe captures the persisted tone of a channel.
type ChannelVibe struct {
	ChannelID    string    `json:"channel_id"`
	Vibe         string    `json:"vibe"`
	Topics       []string  `json:"topics,omitempty"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Interaction is an append-only cost record. Never mutated after creation.
type Interaction struct {
	ID            string    `json:"id"`
	OperationType string    `json:"operation_type"`
	TokensUsed    int       `json:"tokens_used"`
	Cost          float64   `json:"cost"`
	Model         string    `json:"model"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
	ChannelID     string    `json:"channel_id,omitempty"`
	UserID        string    `json:"user_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// UsageSummary aggregates ledger records for one channel.
type UsageSummary struct {
	ChannelID    string  `json:"channel_id"`
	Interactions int64   `json:"interactions"`
	TokensUsed   int64   `json:"tokens_used"`
	Cost         float64 `json:"cost"`
}

// Decision is the typed result of classifying an inbound message.
type Decision struct {
	ShouldFormMemory  bool     `json:"shouldFormMemory"`
	ShouldRespond     bool     `json:"shouldRespond"`
	MemoryType        string   `json:"memoryType,omitempty"`
	Significance      float64  `json:"significance"`
	ExtractedEntities []string `json:"extractedEntities,omitempty"`
}
