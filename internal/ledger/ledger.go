// Package ledger appends an immutable record of every remote-call
// outcome for usage accounting. The ledger is diagnostic, never
// load-bearing for correctness.
package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/internal/types"
)

// Pricing is the per-1000-token rate for one model.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// defaultPrices covers the models the subsystem calls. Unknown models
// record zero cost rather than failing.
var defaultPrices = map[string]Pricing{
	"gpt-4o":                 {InputPer1K: 0.0025, OutputPer1K: 0.01},
	"gpt-4o-mini":            {InputPer1K: 0.00015, OutputPer1K: 0.0006},
	"gpt-4.1-mini":           {InputPer1K: 0.0004, OutputPer1K: 0.0016},
	"text-embedding-3-small": {InputPer1K: 0.00002},
	"text-embedding-3-large": {InputPer1K: 0.00013},
}

// inputShare approximates the input/output token split for chat calls.
const inputShare = 0.5

// Repo is the persistence surface the ledger needs.
type Repo interface {
	Insert(ctx context.Context, rec types.Interaction) error
	ChannelUsage(ctx context.Context, channelID string) (types.UsageSummary, error)
}

// Attribution ties a record to its channel and user.
type Attribution struct {
	ChannelID string
	UserID    string
}

// Ledger computes cost and appends interaction records.
type Ledger struct {
	repo   Repo
	prices map[string]Pricing
	now    func() time.Time
}

// New returns a Ledger with the default price table.
func New(repo Repo) *Ledger {
	return &Ledger{repo: repo, prices: defaultPrices, now: time.Now}
}

// WithPrices overrides the price table. Test hook.
func (l *Ledger) WithPrices(prices map[string]Pricing) *Ledger {
	l.prices = prices
	return l
}

// WithClock overrides the ledger clock. Test hook.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Record computes the cost of a remote-call outcome and appends it.
// Persistence failure is logged and swallowed.
func (l *Ledger) Record(ctx context.Context, operationType string, tokensUsed int, model string, success bool, attribution Attribution, callErr error) {
	rec := types.Interaction{
		ID:            uuid.NewString(),
		OperationType: operationType,
		TokensUsed:    tokensUsed,
		Cost:          l.Cost(model, tokensUsed),
		Model:         model,
		Success:       success,
		ChannelID:     attribution.ChannelID,
		UserID:        attribution.UserID,
		CreatedAt:     l.now(),
	}
	if callErr != nil {
		rec.Error = callErr.Error()
	}

	if err := l.repo.Insert(ctx, rec); err != nil {
		slog.Warn("failed to record interaction",
			"operation", operationType, "model", model, "error",
			&types.StorageError{Op: "ledger record", Err: err})
	}
}

// Cost prices tokensUsed against the model's per-1k rates with a fixed
// input/output split.
func (l *Ledger) Cost(model string, tokensUsed int) float64 {
	pricing, ok := l.prices[model]
	if !ok {
		return 0
	}
	tokens := float64(tokensUsed)
	input := tokens * inputShare
	output := tokens - input
	return input/1000*pricing.InputPer1K + output/1000*pricing.OutputPer1K
}

// ChannelUsage aggregates the ledger for one channel.
func (l *Ledger) ChannelUsage(ctx context.Context, channelID string) (types.UsageSummary, error) {
	summary, err := l.repo.ChannelUsage(ctx, channelID)
	if err != nil {
		return types.UsageSummary{}, &types.StorageError{Op: "ledger usage", Err: err}
	}
	return summary, nil
}
