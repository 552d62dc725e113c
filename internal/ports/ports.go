package ports

import (
	"context"
	"time"

	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
)

// DocumentSource pulls candidate documents from every configured feed.
// Origin failures are reported, never returned as a run-level error.
type DocumentSource interface {
	FetchAll(ctx context.Context, since time.Time) ([]domain.SourceDocument, []domain.OriginReport)
}

// RelevanceScreen drops documents that cannot describe a localization.
type RelevanceScreen interface {
	Screen(docs []domain.SourceDocument) ([]domain.SourceDocument, error)
}

// ExtractionRequest is what a backend sees of a document.
type ExtractionRequest struct {
	DocumentID string
	Origin     domain.Origin
	System     string
	Prompt     string
}

// ExtractionBackend turns a prompt into the model's raw answer. Validation of
// the answer happens in the extractor, so fixtures can stand in for models.
type ExtractionBackend interface {
	Complete(ctx context.Context, req ExtractionRequest) (string, error)
}

// CatalogReader loads the read-only catalog snapshot.
type CatalogReader interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// CatalogWriter appends approved rows. Only the post-merge apply path uses it;
// pipeline runs never write to the catalog.
type CatalogWriter interface {
	Append(ctx context.Context, records []domain.CatalogRecord) (int, error)
}

// CatalogStatsReader summarizes catalog contents.
type CatalogStatsReader interface {
	Stats(ctx context.Context) (catalog.Stats, error)
}

// ProposalEmitter packages a change as a reviewable unit. It must never write
// to the canonical catalog.
type ProposalEmitter interface {
	Name() string
	Emit(ctx context.Context, change domain.ProposedChange) (domain.ProposalHandle, error)
}

// Notifier announces finished runs to people (Telegram, etc.).
type Notifier interface {
	PublishSummary(ctx context.Context, summary domain.RunSummary) error
}

// RunLedger records runs and guards against overlapping ones.
type RunLedger interface {
	Acquire(ctx context.Context, runID string, ttl time.Duration) error
	Renew(ctx context.Context, runID string, ttl time.Duration) error
	Release(ctx context.Context, runID string) error
	Start(ctx context.Context, summary domain.RunSummary) error
	Finish(ctx context.Context, summary domain.RunSummary) error
	Get(ctx context.Context, runID string) (domain.RunSummary, error)
	List(ctx context.Context, limit int) ([]domain.RunSummary, error)
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
