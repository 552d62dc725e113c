package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"FRBScanner/internal/api"
	"FRBScanner/internal/config"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/infrastructure/llm"
	"FRBScanner/internal/infrastructure/ml"
	"FRBScanner/internal/logging"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Catalog:  config.CatalogConfig{Path: filepath.Join(dir, "frbs.db"), Table: "frbs"},
		State:    config.StateConfig{Path: filepath.Join(dir, "state.db"), LockTTL: time.Hour},
		Proposal: config.ProposalConfig{Channel: config.ChannelOutbox, OutboxDir: filepath.Join(dir, "out")},
	}
}

func TestNewBackendSelection(t *testing.T) {
	t.Parallel()

	if _, ok := NewBackend(config.ExtractionConfig{Backend: config.BackendOpenAI}).(*llm.ChatGPTClient); !ok {
		t.Fatal("openai backend not selected")
	}
	if _, ok := NewBackend(config.ExtractionConfig{Backend: config.BackendInference}).(*ml.Client); !ok {
		t.Fatal("inference backend not selected")
	}
	if _, ok := NewBackend(config.ExtractionConfig{}).(*llm.AnthropicClient); !ok {
		t.Fatal("anthropic should be the default backend")
	}
}

func TestRunWithoutSourcesRecordsEmptyRun(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, err := New(ctx, testConfig(t), logging.Discard())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	res, err := a.Run(ctx, RunRequest{Trigger: domain.TriggerCLI, Days: 3})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Summary.Status != domain.RunSucceeded || res.Summary.Proposal != nil {
		t.Fatalf("unexpected summary: %+v", res.Summary)
	}
	if res.Summary.Since.IsZero() {
		t.Fatal("days did not bound the window")
	}

	stored, err := a.ledger.Get(ctx, res.Summary.RunID)
	if err != nil {
		t.Fatalf("run not recorded: %v", err)
	}
	if stored.Trigger != domain.TriggerCLI {
		t.Fatalf("trigger = %s", stored.Trigger)
	}

	stats, err := a.Catalog().Stats(ctx)
	if err != nil || stats.Total != 0 {
		t.Fatalf("stats = %+v, %v", stats, err)
	}
}

func TestStartRunReturnsRunID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	a, err := New(ctx, testConfig(t), logging.Discard())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })

	summary, err := a.StartRun(ctx, api.RunRequest{DryRun: true})
	if err != nil {
		t.Fatalf("StartRun returned error: %v", err)
	}
	if summary.RunID == "" || summary.Trigger != domain.TriggerManual || !summary.DryRun {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := a.ledger.Get(ctx, summary.RunID)
		if err == nil && stored.Status == domain.RunSucceeded {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("background run did not finish")
}
