// Package agent exposes the context & resilience subsystem to the
// pipeline orchestrator: buffering, cached entities, memory formation,
// retrieval, and cost recording.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/recallhq/recall/internal/buffer"
	"github.com/recallhq/recall/internal/cache"
	"github.com/recallhq/recall/internal/classify"
	"github.com/recallhq/recall/internal/ledger"
	"github.com/recallhq/recall/internal/llm"
	"github.com/recallhq/recall/internal/resilience"
	"github.com/recallhq/recall/internal/types"
)

const (
	entityTypeProfile = "profile"
	entityTypeVibe    = "vibe"

	historyLimit   = 10
	contextLimit   = 5
	fallbackAnswer = "could not generate a response"
)

// MemoryStore is the memory service surface the pipeline consumes.
type MemoryStore interface {
	Create(ctx context.Context, candidate types.Memory) (*types.Memory, error)
	Search(ctx context.Context, query string, embedding []float32, limit int, channelID string) []types.Memory
	GetRecent(ctx context.Context, channelID string, limit int) []types.Memory
	EraseUser(ctx context.Context, userID string) error
}

// EntityStore persists user profiles and channel vibes.
type EntityStore interface {
	GetOrCreateProfile(ctx context.Context, userID string) (*types.UserProfile, error)
	UpdateProfile(ctx context.Context, profile types.UserProfile) error
	DeleteProfile(ctx context.Context, userID string) error
	GetOrCreateVibe(ctx context.Context, channelID string) (*types.ChannelVibe, error)
	UpdateVibe(ctx context.Context, vibe types.ChannelVibe) error
}

// MessageBuffer is the per-channel recency window.
type MessageBuffer interface {
	Append(channelID string, msg types.BufferedMessage)
	Recent(channelID string, limit int) []types.BufferedMessage
}

// CostRecorder appends remote-call outcomes, fire-and-forget.
type CostRecorder interface {
	Record(ctx context.Context, operationType string, tokensUsed int, model string, success bool, attribution ledger.Attribution, callErr error)
}

// InteractionEraser removes a user's ledger attribution on erasure.
type InteractionEraser interface {
	DeleteByUser(ctx context.Context, userID string) error
}

// InboundMessage is one Slack message handed over by the event router.
type InboundMessage struct {
	ChannelID string
	UserID    string
	Text      string
	ThreadID  string
	Timestamp time.Time
}

// Result is the joined outcome of one handled message.
type Result struct {
	Response     string
	Responded    bool
	MemoryFormed bool
	Memory       *types.Memory
}

// Options wires a Pipeline.
type Options struct {
	Memories     MemoryStore
	Entities     EntityStore
	Interactions InteractionEraser
	Buffer       MessageBuffer
	Cache        *cache.EntityCache
	Ledger       CostRecorder
	Chat         llm.ChatClient
	Embedder     llm.Embedder

	ClassifyExec *resilience.Executor
	EmbedExec    *resilience.Executor
	RespondExec  *resilience.Executor

	ActiveChannels *cache.TTLSet
	ChatModel      string
	EmbeddingModel string
	SearchLimit    int
}

// Pipeline is the orchestrator-facing facade. All state behind it is
// process-wide; the persistent store is the only durable truth.
type Pipeline struct {
	memories     MemoryStore
	entities     EntityStore
	interactions InteractionEraser
	buffer       MessageBuffer
	cache        *cache.EntityCache
	ledger       CostRecorder
	chat         llm.ChatClient
	embedder     llm.Embedder

	classifyExec *resilience.Executor
	embedExec    *resilience.Executor
	respondExec  *resilience.Executor

	active         *cache.TTLSet
	chatModel      string
	embeddingModel string
	searchLimit    int
}

// New returns a Pipeline.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		memories:       opts.Memories,
		entities:       opts.Entities,
		interactions:   opts.Interactions,
		buffer:         opts.Buffer,
		cache:          opts.Cache,
		ledger:         opts.Ledger,
		chat:           opts.Chat,
		embedder:       opts.Embedder,
		classifyExec:   opts.ClassifyExec,
		embedExec:      opts.EmbedExec,
		respondExec:    opts.RespondExec,
		active:         opts.ActiveChannels,
		chatModel:      opts.ChatModel,
		embeddingModel: opts.EmbeddingModel,
		searchLimit:    opts.SearchLimit,
	}
	if p.buffer == nil {
		p.buffer = (*buffer.MessageBuffer)(nil)
	}
	if p.searchLimit <= 0 {
		p.searchLimit = 5
	}
	return p
}

// Handle runs the full flow for one inbound message: buffer, cached
// entity reads, classification, then memory formation and response
// generation fanned out concurrently and joined regardless of
// individual failure.
func (p *Pipeline) Handle(ctx context.Context, msg InboundMessage) Result {
	p.BufferMessage(msg.ChannelID, types.BufferedMessage{
		Text:      msg.Text,
		UserID:    msg.UserID,
		ThreadID:  msg.ThreadID,
		Timestamp: msg.Timestamp,
	})
	p.active.Add(msg.ChannelID)

	profile, err := p.GetOrCreateProfile(ctx, msg.UserID)
	if err != nil {
		slog.Warn("profile unavailable, continuing without it", "user", msg.UserID, "error", err)
	}
	vibe, err := p.GetOrCreateVibe(ctx, msg.ChannelID)
	if err != nil {
		slog.Warn("vibe unavailable, continuing without it", "channel", msg.ChannelID, "error", err)
	}

	decision, err := p.classify(ctx, msg)
	if err != nil {
		slog.Error("classification failed, skipping message", "channel", msg.ChannelID, "error", err)
		return Result{}
	}

	var (
		wg        sync.WaitGroup
		mem       *types.Memory
		response  string
		responded bool
	)
	if decision.ShouldFormMemory {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mem = p.FormMemory(ctx, msg, decision)
		}()
	}
	if decision.ShouldRespond {
		wg.Add(1)
		go func() {
			defer wg.Done()
			response = p.respond(ctx, msg, profile, vibe)
			responded = true
		}()
	}
	wg.Wait()

	return Result{
		Response:     response,
		Responded:    responded,
		MemoryFormed: mem != nil,
		Memory:       mem,
	}
}

// FormMemory builds and persists a memory from the message and the
// classifier's decision. Returns nil when no memory is warranted or on
// unrecoverable failure; failures never escape.
func (p *Pipeline) FormMemory(ctx context.Context, msg InboundMessage, decision types.Decision) *types.Memory {
	if !decision.ShouldFormMemory {
		return nil
	}

	embedding := p.embed(ctx, msg.Text, ledger.Attribution{ChannelID: msg.ChannelID, UserID: msg.UserID})

	history := p.buffer.Recent(msg.ChannelID, contextLimit)
	candidate := types.Memory{
		Content:      msg.Text,
		Kind:         decision.MemoryType,
		ChannelID:    msg.ChannelID,
		UserID:       msg.UserID,
		Embedding:    embedding,
		Significance: decision.Significance,
		Tags:         decision.ExtractedEntities,
		Context:      contextSnippet(history),
		Participants: participants(history),
	}
	if msg.ThreadID != "" {
		candidate.Metadata = map[string]any{"thread_id": msg.ThreadID}
	}

	mem, err := p.memories.Create(ctx, candidate)
	if err != nil {
		slog.Warn("memory rejected", "channel", msg.ChannelID, "error", err)
		return nil
	}
	return mem
}

// SearchMemories retrieves relevant memories for a query. Never
// returns an error: embedding failure degrades to keyword search and
// total failure degrades to an empty result.
func (p *Pipeline) SearchMemories(ctx context.Context, query string, limit int, channelID string) []types.Memory {
	if limit <= 0 {
		limit = p.searchLimit
	}
	embedding := p.embed(ctx, query, ledger.Attribution{ChannelID: channelID})
	return p.memories.Search(ctx, query, embedding, limit, channelID)
}

// GetRecentMemories returns the channel's freshest memories.
func (p *Pipeline) GetRecentMemories(ctx context.Context, channelID string, limit int) []types.Memory {
	return p.memories.GetRecent(ctx, channelID, limit)
}

// BufferMessage appends to the channel's recency window, best-effort.
func (p *Pipeline) BufferMessage(channelID string, msg types.BufferedMessage) {
	p.buffer.Append(channelID, msg)
}

// RecentMessages returns buffered history, newest first.
func (p *Pipeline) RecentMessages(channelID string, limit int) []types.BufferedMessage {
	return p.buffer.Recent(channelID, limit)
}

// GetOrCreateProfile returns the user's profile through the entity
// cache, falling back to the persistent store on a miss.
func (p *Pipeline) GetOrCreateProfile(ctx context.Context, userID string) (*types.UserProfile, error) {
	val, err := p.cache.Get(ctx, entityTypeProfile, userID, func(ctx context.Context) (any, error) {
		return p.entities.GetOrCreateProfile(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	profile, ok := val.(*types.UserProfile)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value for profile %s", userID)
	}
	return profile, nil
}

// UpdateProfile persists the profile and then invalidates its cache
// entry, so the next read misses and reloads.
func (p *Pipeline) UpdateProfile(ctx context.Context, profile types.UserProfile) error {
	if err := p.entities.UpdateProfile(ctx, profile); err != nil {
		return err
	}
	p.cache.Invalidate(entityTypeProfile, profile.UserID)
	return nil
}

// GetOrCreateVibe returns the channel's vibe through the entity cache.
func (p *Pipeline) GetOrCreateVibe(ctx context.Context, channelID string) (*types.ChannelVibe, error) {
	val, err := p.cache.Get(ctx, entityTypeVibe, channelID, func(ctx context.Context) (any, error) {
		return p.entities.GetOrCreateVibe(ctx, channelID)
	})
	if err != nil {
		return nil, err
	}
	vibe, ok := val.(*types.ChannelVibe)
	if !ok {
		return nil, fmt.Errorf("unexpected cached value for vibe %s", channelID)
	}
	return vibe, nil
}

// UpdateVibe persists the vibe and invalidates its cache entry.
func (p *Pipeline) UpdateVibe(ctx context.Context, vibe types.ChannelVibe) error {
	if err := p.entities.UpdateVibe(ctx, vibe); err != nil {
		return err
	}
	p.cache.Invalidate(entityTypeVibe, vibe.ChannelID)
	return nil
}

// RecordInteraction appends a remote-call outcome to the cost ledger,
// fire-and-forget.
func (p *Pipeline) RecordInteraction(ctx context.Context, operationType string, tokensUsed int, model string, success bool, attribution ledger.Attribution, callErr error) {
	p.ledger.Record(ctx, operationType, tokensUsed, model, success, attribution, callErr)
}

// EraseUser removes the user's memories, profile, and ledger
// attribution, then invalidates the cached profile.
func (p *Pipeline) EraseUser(ctx context.Context, userID string) error {
	if err := p.memories.EraseUser(ctx, userID); err != nil {
		return err
	}
	if err := p.entities.DeleteProfile(ctx, userID); err != nil {
		return err
	}
	if err := p.interactions.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	p.cache.Invalidate(entityTypeProfile, userID)
	return nil
}

// classify runs the wrapped classification call and parses the
// decision.
func (p *Pipeline) classify(ctx context.Context, msg InboundMessage) (types.Decision, error) {
	attribution := ledger.Attribution{ChannelID: msg.ChannelID, UserID: msg.UserID}
	completion, err := resilience.Execute(ctx, p.classifyExec, func(ctx context.Context) (llm.Completion, error) {
		return p.chat.Complete(ctx, classifierInstruction, classifierPrompt(msg, p.buffer.Recent(msg.ChannelID, historyLimit)))
	})
	p.ledger.Record(ctx, "classify", completion.TokensUsed, p.modelName(completion), err == nil, attribution, err)
	if err != nil {
		return types.Decision{}, err
	}
	return classify.ParseDecision(completion.Text)
}

// respond runs the wrapped response-generation call, blending
// retrieved memories, buffered history, and cached entities. This is
// the primary path: its terminal failure surfaces to the end user as a
// degraded answer.
func (p *Pipeline) respond(ctx context.Context, msg InboundMessage, profile *types.UserProfile, vibe *types.ChannelVibe) string {
	attribution := ledger.Attribution{ChannelID: msg.ChannelID, UserID: msg.UserID}

	embedding := p.embed(ctx, msg.Text, attribution)
	memories := p.memories.Search(ctx, msg.Text, embedding, p.searchLimit, msg.ChannelID)
	history := p.buffer.Recent(msg.ChannelID, historyLimit)

	completion, err := resilience.Execute(ctx, p.respondExec, func(ctx context.Context) (llm.Completion, error) {
		return p.chat.Complete(ctx, responderInstruction, responsePrompt(msg, memories, history, profile, vibe))
	})
	p.ledger.Record(ctx, "response", completion.TokensUsed, p.modelName(completion), err == nil, attribution, err)
	if err != nil {
		slog.Error("response generation failed", "channel", msg.ChannelID, "error", err)
		return fallbackAnswer
	}
	return completion.Text
}

// embed runs the wrapped embedding call. Failure degrades to nil so
// callers fall back to keyword search or unindexed persistence.
func (p *Pipeline) embed(ctx context.Context, text string, attribution ledger.Attribution) []float32 {
	embedding, err := resilience.Execute(ctx, p.embedExec, func(ctx context.Context) ([]float32, error) {
		return p.embedder.Embed(ctx, text)
	})
	p.ledger.Record(ctx, "embed", 0, p.embeddingModel, err == nil, attribution, err)
	if err != nil {
		slog.Warn("embedding unavailable", "error", err)
		return nil
	}
	return embedding
}

func (p *Pipeline) modelName(completion llm.Completion) string {
	if completion.Model != "" {
		return completion.Model
	}
	return p.chatModel
}

func contextSnippet(history []types.BufferedMessage) string {
	if len(history) == 0 {
		return ""
	}
	lines := make([]string, 0, len(history))
	// Oldest first reads naturally in a snippet.
	for i := len(history) - 1; i >= 0; i-- {
		lines = append(lines, fmt.Sprintf("%s: %s", history[i].UserID, history[i].Text))
	}
	return strings.Join(lines, "\n")
}

func participants(history []types.BufferedMessage) []string {
	seen := make(map[string]bool, len(history))
	var out []string
	for _, m := range history {
		if m.UserID == "" || seen[m.UserID] {
			continue
		}
		seen[m.UserID] = true
		out = append(out, m.UserID)
	}
	return out
}
