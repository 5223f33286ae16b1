package ledger

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/recallhq/recall/internal/types"
)

type fakeInteractionRepo struct {
	inserted  []types.Interaction
	insertErr error
}

func (f *fakeInteractionRepo) Insert(_ context.Context, rec types.Interaction) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, rec)
	return nil
}

func (f *fakeInteractionRepo) ChannelUsage(_ context.Context, channelID string) (types.UsageSummary, error) {
	summary := types.UsageSummary{ChannelID: channelID}
	for _, rec := range f.inserted {
		if rec.ChannelID != channelID {
			continue
		}
		summary.Interactions++
		summary.TokensUsed += int64(rec.TokensUsed)
		summary.Cost += rec.Cost
	}
	return summary, nil
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestRecordComputesCostFromPriceTable(t *testing.T) {
	repo := &fakeInteractionRepo{}
	l := New(repo).WithClock(func() time.Time { return time.Unix(5000, 0) })

	l.Record(context.Background(), "response", 2000, "gpt-4o-mini", true,
		Attribution{ChannelID: "C1", UserID: "U1"}, nil)

	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 record, got %d", len(repo.inserted))
	}
	rec := repo.inserted[0]
	// 1000 input tokens and 1000 output tokens at the per-1k rates.
	want := 1.0*0.00015 + 1.0*0.0006
	if !almostEqual(rec.Cost, want) {
		t.Fatalf("expected cost %g, got %g", want, rec.Cost)
	}
	if rec.ID == "" {
		t.Fatalf("expected an assigned identifier")
	}
	if !rec.Success || rec.Error != "" {
		t.Fatalf("unexpected outcome fields: %+v", rec)
	}
	if rec.ChannelID != "C1" || rec.UserID != "U1" {
		t.Fatalf("attribution not carried: %+v", rec)
	}
	if !rec.CreatedAt.Equal(time.Unix(5000, 0)) {
		t.Fatalf("unexpected timestamp: %v", rec.CreatedAt)
	}
}

func TestRecordUnknownModelCostsZero(t *testing.T) {
	repo := &fakeInteractionRepo{}
	l := New(repo)

	l.Record(context.Background(), "classify", 500, "mystery-model", true, Attribution{}, nil)

	if len(repo.inserted) != 1 {
		t.Fatalf("expected 1 record, got %d", len(repo.inserted))
	}
	if repo.inserted[0].Cost != 0 {
		t.Fatalf("expected zero cost for unknown model, got %g", repo.inserted[0].Cost)
	}
}

func TestRecordCarriesFailureOutcome(t *testing.T) {
	repo := &fakeInteractionRepo{}
	l := New(repo)

	l.Record(context.Background(), "classify", 0, "gpt-4o-mini", false,
		Attribution{ChannelID: "C1"}, errors.New("rate limited"))

	rec := repo.inserted[0]
	if rec.Success {
		t.Fatalf("expected failure outcome")
	}
	if rec.Error != "rate limited" {
		t.Fatalf("expected error text to be carried, got %q", rec.Error)
	}
}

func TestRecordSwallowsPersistenceFailure(t *testing.T) {
	repo := &fakeInteractionRepo{insertErr: errors.New("disk full")}
	l := New(repo)

	// Must not panic or propagate.
	l.Record(context.Background(), "response", 100, "gpt-4o-mini", true, Attribution{}, nil)
}

func TestChannelUsageAggregates(t *testing.T) {
	repo := &fakeInteractionRepo{}
	l := New(repo)

	l.Record(context.Background(), "response", 1000, "gpt-4o-mini", true, Attribution{ChannelID: "C1"}, nil)
	l.Record(context.Background(), "classify", 500, "gpt-4o-mini", true, Attribution{ChannelID: "C1"}, nil)
	l.Record(context.Background(), "response", 900, "gpt-4o-mini", true, Attribution{ChannelID: "C2"}, nil)

	summary, err := l.ChannelUsage(context.Background(), "C1")
	if err != nil {
		t.Fatalf("ChannelUsage returned error: %v", err)
	}
	if summary.Interactions != 2 {
		t.Fatalf("expected 2 interactions, got %d", summary.Interactions)
	}
	if summary.TokensUsed != 1500 {
		t.Fatalf("expected 1500 tokens, got %d", summary.TokensUsed)
	}
}
