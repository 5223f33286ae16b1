// Package main wires the context & resilience subsystem and runs the
// maintenance loop. Slack event routing hands messages to
// agent.Pipeline.Handle.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/recallhq/recall/internal/agent"
	"github.com/recallhq/recall/internal/buffer"
	"github.com/recallhq/recall/internal/cache"
	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/ledger"
	"github.com/recallhq/recall/internal/llm"
	"github.com/recallhq/recall/internal/memory"
	"github.com/recallhq/recall/internal/repository"
	"github.com/recallhq/recall/internal/resilience"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	chat, err := llm.NewChat(cfg.OpenAIAPIKey, cfg.LLMModel)
	if err != nil {
		log.Fatalf("failed to create chat client: %v", err)
	}
	embedder, err := llm.NewEmbedder(cfg.OpenAIAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Fatalf("failed to create embedder: %v", err)
	}

	entityCache, err := cache.New(cfg.EntityCacheTTL)
	if err != nil {
		log.Fatalf("failed to create entity cache: %v", err)
	}
	defer entityCache.Close()

	msgBuffer, err := buffer.New(cfg.BufferCapacity, cfg.BufferIdle)
	if err != nil {
		log.Fatalf("failed to create message buffer: %v", err)
	}
	defer msgBuffer.Close()

	activeChannels, err := cache.NewTTLSet(cfg.BufferIdle)
	if err != nil {
		log.Fatalf("failed to create active channel set: %v", err)
	}
	defer activeChannels.Close()

	execOpts := resilience.Options{
		MaxRetries: cfg.MaxRetries,
		Threshold:  cfg.BreakerThreshold,
		Cooldown:   cfg.BreakerCooldown,
	}

	memories := memory.NewService(store.Memories, cfg.MemoryRetention)
	costs := ledger.New(store.Interactions)

	pipeline := agent.New(agent.Options{
		Memories:       memories,
		Entities:       store.Entities,
		Interactions:   store.Interactions,
		Buffer:         msgBuffer,
		Cache:          entityCache,
		Ledger:         costs,
		Chat:           chat,
		Embedder:       embedder,
		ClassifyExec:   resilience.New("classify", execOpts),
		EmbedExec:      resilience.New("embed", execOpts),
		RespondExec:    resilience.New("respond", execOpts),
		ActiveChannels: activeChannels,
		ChatModel:      cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		SearchLimit:    cfg.SearchLimit,
	})
	_ = pipeline // handed to the Slack event router

	slog.Info("recall started",
		"model", cfg.LLMModel, "embedding_model", cfg.EmbeddingModel,
		"retention", cfg.MemoryRetention)

	runCleanupLoop(ctx, memories, cfg.CleanupInterval)
}

// runCleanupLoop periodically sweeps expired memories until the
// context is cancelled.
func runCleanupLoop(ctx context.Context, memories *memory.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := memories.CleanupExpired(ctx); err != nil {
				slog.Error("expired memory sweep failed", "error", err)
			}
		}
	}
}
