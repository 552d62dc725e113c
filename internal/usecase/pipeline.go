package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"FRBScanner/internal/dedup"
	"FRBScanner/internal/diff"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/extract"
	"FRBScanner/internal/ports"
	"FRBScanner/internal/validate"
)

const (
	defaultConcurrency = 4
	defaultDocTimeout  = 2 * time.Minute
	defaultLockTTL     = 2 * time.Hour
)

// PipelineDeps wires all driven adapters into the discovery pipeline.
type PipelineDeps struct {
	Source    ports.DocumentSource
	Screen    ports.RelevanceScreen
	Backend   ports.ExtractionBackend
	Catalog   ports.CatalogReader
	Emitter   ports.ProposalEmitter
	Notifier  ports.Notifier
	Ledger    ports.RunLedger
	Validator validate.Validator
	Dedup     dedup.Deduplicator

	Concurrency int
	DocTimeout  time.Duration
	LockTTL     time.Duration
	EmitEmpty   bool

	Logger *slog.Logger
	Now    func() time.Time
}

// RunOptions describes one invocation.
type RunOptions struct {
	Trigger domain.Trigger
	// Since bounds the fetch window; zero means each source's configured window.
	Since  time.Time
	DryRun bool
	// Emitter replaces the configured emitter for this run (dry runs use the outbox).
	Emitter ports.ProposalEmitter
}

// RunResult is everything a caller may report after a run.
type RunResult struct {
	Summary domain.RunSummary
	Change  domain.ProposedChange
}

// Pipeline implements the fetch, extract, validate, dedup, diff, emit workflow.
type Pipeline struct {
	source    ports.DocumentSource
	screen    ports.RelevanceScreen
	extractor *extract.Extractor
	catalog   ports.CatalogReader
	emitter   ports.ProposalEmitter
	notifier  ports.Notifier
	ledger    ports.RunLedger
	validator validate.Validator
	dedup     dedup.Deduplicator

	concurrency int
	docTimeout  time.Duration
	lockTTL     time.Duration
	emitEmpty   bool

	logger *slog.Logger
	now    func() time.Time
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:      deps.Source,
		screen:      deps.Screen,
		catalog:     deps.Catalog,
		emitter:     deps.Emitter,
		notifier:    deps.Notifier,
		ledger:      deps.Ledger,
		validator:   deps.Validator,
		dedup:       deps.Dedup,
		concurrency: deps.Concurrency,
		docTimeout:  deps.DocTimeout,
		lockTTL:     deps.LockTTL,
		emitEmpty:   deps.EmitEmpty,
		logger:      deps.Logger,
		now:         deps.Now,
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.concurrency <= 0 {
		p.concurrency = defaultConcurrency
	}
	if p.docTimeout <= 0 {
		p.docTimeout = defaultDocTimeout
	}
	if p.dedup == (dedup.Deduplicator{}) {
		p.dedup = dedup.New(dedup.DefaultPolicy())
	}
	if p.lockTTL <= 0 {
		p.lockTTL = defaultLockTTL
	}
	p.extractor = extract.NewExtractor(deps.Backend, p.logger.With("component", "extractor"))
	return p
}

// activeRun is a run that holds the lock and has been recorded as started.
type activeRun struct {
	opts    RunOptions
	summary domain.RunSummary
	log     *slog.Logger
}

// Run executes one discovery run. A summary is recorded in the ledger for
// every run that acquired the lock, whatever its outcome. The returned error
// is ErrRunInProgress, ErrCancelled, an *EmissionFailure, or a setup failure.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (RunResult, error) {
	run, err := p.begin(ctx, opts)
	if err != nil {
		return RunResult{}, err
	}
	return p.complete(ctx, run)
}

// Launch takes the run lock and records the start synchronously, then
// finishes the run in the background. done receives the outcome once.
func (p *Pipeline) Launch(ctx context.Context, opts RunOptions) (domain.RunSummary, <-chan error, error) {
	run, err := p.begin(ctx, opts)
	if err != nil {
		return domain.RunSummary{}, nil, err
	}
	done := make(chan error, 1)
	go func() {
		_, err := p.complete(ctx, run)
		done <- err
		close(done)
	}()
	return run.summary, done, nil
}

func (p *Pipeline) begin(ctx context.Context, opts RunOptions) (*activeRun, error) {
	if p.source == nil || p.catalog == nil {
		return nil, errors.New("pipeline is not configured")
	}
	if opts.Trigger == "" {
		opts.Trigger = domain.TriggerManual
	}

	runID := uuid.NewString()
	run := &activeRun{
		opts: opts,
		log:  p.logger.With("run", runID, "trigger", opts.Trigger),
		summary: domain.RunSummary{
			RunID:     runID,
			Trigger:   opts.Trigger,
			Status:    domain.RunRunning,
			StartedAt: p.now().UTC(),
			Since:     opts.Since,
			DryRun:    opts.DryRun,
		},
	}

	if p.ledger != nil {
		if err := p.ledger.Acquire(ctx, runID, p.lockTTL); err != nil {
			return nil, fmt.Errorf("acquire run lock: %w", err)
		}
		if err := p.ledger.Start(ctx, run.summary); err != nil {
			p.release(ctx, run)
			return nil, fmt.Errorf("record run start: %w", err)
		}
	}
	run.log.Info("run started", "since", opts.Since, "dry_run", opts.DryRun)
	return run, nil
}

func (p *Pipeline) release(ctx context.Context, run *activeRun) {
	if p.ledger == nil {
		return
	}
	if err := p.ledger.Release(context.WithoutCancel(ctx), run.summary.RunID); err != nil {
		run.log.Warn("release run lock failed", "error", err)
	}
}

// keepLock renews the run lock every third of its TTL until the returned stop
// function is called, so long extractions do not let the lock expire.
func (p *Pipeline) keepLock(ctx context.Context, run *activeRun) func() {
	if p.ledger == nil {
		return func() {}
	}
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(max(p.lockTTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.ledger.Renew(ctx, run.summary.RunID, p.lockTTL); err != nil {
					run.log.Warn("renew run lock failed", "error", err)
				}
			}
		}
	}()
	return func() {
		close(quit)
		wg.Wait()
	}
}

func (p *Pipeline) complete(ctx context.Context, run *activeRun) (RunResult, error) {
	defer p.release(ctx, run)
	defer p.keepLock(ctx, run)()

	summary := run.summary
	log := run.log
	result, err := p.execute(ctx, run.opts, &summary, log)
	switch {
	case err == nil:
		summary.Status = domain.RunSucceeded
	case errors.Is(err, domain.ErrCancelled):
		summary.Status = domain.RunCancelled
		summary.Error = err.Error()
	default:
		summary.Status = domain.RunFailed
		summary.Error = err.Error()
	}
	summary.FinishedAt = p.now().UTC()
	result.Summary = summary

	if p.ledger != nil {
		if ferr := p.ledger.Finish(context.WithoutCancel(ctx), summary); ferr != nil {
			log.Error("record run finish failed", "error", ferr)
		}
	}
	log.Info("run finished",
		"status", summary.Status,
		"documents", summary.Scanned,
		"candidates", summary.Candidates,
		"new", len(summary.NewNames),
		"held", len(summary.Held),
		"fetch_failures", summary.FetchFailures(),
	)

	if err == nil && summary.Proposal != nil && !summary.DryRun && p.notifier != nil {
		if nerr := p.notifier.PublishSummary(ctx, summary); nerr != nil {
			log.Warn("notify failed", "error", nerr)
		}
	}
	return result, err
}

func (p *Pipeline) execute(ctx context.Context, opts RunOptions, summary *domain.RunSummary, log *slog.Logger) (RunResult, error) {
	var result RunResult

	snap, err := p.catalog.Snapshot(ctx)
	if err != nil {
		return result, fmt.Errorf("load catalog snapshot: %w", err)
	}
	log.Debug("catalog snapshot loaded", "records", snap.Len())

	docs, reports := p.source.FetchAll(ctx, opts.Since)
	summary.Origins = reports
	for _, r := range reports {
		if r.Error != "" {
			log.Warn("origin fetch failed", "source", r.Source, "origin", r.Origin, "error", r.Error)
		}
	}
	if ctx.Err() != nil {
		return result, cancelled(ctx)
	}

	kept := docs
	if p.screen != nil {
		screened, err := p.screen.Screen(docs)
		if err != nil {
			summary.Diagnostic = append(summary.Diagnostic, domain.Diagnostic{Stage: "screen", Message: err.Error()})
			log.Warn("relevance screen failed, keeping all documents", "error", err)
		} else {
			kept = screened
		}
	}
	summary.Screened = len(docs) - len(kept)
	summary.Scanned = len(kept)

	candidates, diags, err := p.extractAll(ctx, kept)
	summary.Diagnostic = append(summary.Diagnostic, diags...)
	if err != nil {
		return result, err
	}
	summary.Candidates = len(candidates)

	var accepted []domain.CandidateRecord
	for _, c := range p.validator.ValidateAll(candidates, snap) {
		switch c.Status.State {
		case domain.StateAccepted:
			accepted = append(accepted, c)
		case domain.StateNeedsReview:
			summary.Review++
			summary.Held = append(summary.Held, held(c))
		default:
			summary.Rejected++
			summary.Dropped = append(summary.Dropped, held(c))
		}
	}
	summary.Accepted = len(accepted)

	part := p.dedup.Deduplicate(accepted, snap)
	summary.Duplicates = len(part.Duplicates)
	summary.Conflicts = len(part.Conflicts)
	for _, c := range part.Conflicts {
		summary.Held = append(summary.Held, held(c))
	}
	for _, c := range part.Duplicates {
		log.Debug("duplicate candidate", "name", c.DisplayName(), "document", c.SourceDocumentID, "duplicate_of", c.DuplicateOf)
	}

	change := diff.Build(part.New, snap, diff.Meta{
		RunID:     summary.RunID,
		CreatedAt: summary.StartedAt,
		Held:      summary.Held,
		Rejected:  summary.Dropped,
		Counts: diff.Counts{
			Documents:  summary.Scanned,
			Candidates: summary.Candidates,
			Accepted:   summary.Accepted,
			Rejected:   summary.Rejected,
			Review:     summary.Review,
			Duplicates: summary.Duplicates,
			Conflicts:  summary.Conflicts,
		},
	})
	result.Change = change
	summary.NewNames = change.Names()

	if ctx.Err() != nil {
		return result, cancelled(ctx)
	}

	if change.Empty() && !p.emitEmpty {
		log.Info("no new records, nothing to propose")
		return result, nil
	}

	emitter := p.emitter
	if opts.Emitter != nil {
		emitter = opts.Emitter
	}
	if emitter == nil {
		return result, &domain.EmissionFailure{Channel: "none", Err: errors.New("no proposal emitter configured")}
	}
	handle, err := emitter.Emit(ctx, change)
	if err != nil {
		var failure *domain.EmissionFailure
		if !errors.As(err, &failure) {
			err = &domain.EmissionFailure{Channel: emitter.Name(), Err: err}
		}
		return result, err
	}
	summary.Proposal = &handle
	log.Info("proposal emitted", "channel", handle.Channel, "id", handle.ID, "url", handle.URL, "reused", handle.Reused)
	return result, nil
}

type extraction struct {
	candidates []domain.CandidateRecord
	diag       *domain.Diagnostic
}

// extractAll runs the extractor over docs with a bounded worker pool. Per
// document failures become diagnostics; cancellation of ctx aborts the run.
func (p *Pipeline) extractAll(ctx context.Context, docs []domain.SourceDocument) ([]domain.CandidateRecord, []domain.Diagnostic, error) {
	results := make([]extraction, len(docs))
	sem := make(chan struct{}, p.concurrency)
	var wg sync.WaitGroup

	for i, doc := range docs {
		if ctx.Err() != nil {
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, doc domain.SourceDocument) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = p.extractOne(ctx, i, doc)
		}(i, doc)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return nil, nil, cancelled(ctx)
	}

	var (
		candidates []domain.CandidateRecord
		diags      []domain.Diagnostic
	)
	for _, r := range results {
		if r.diag != nil {
			diags = append(diags, *r.diag)
		}
		candidates = append(candidates, r.candidates...)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].DocumentSeq != candidates[j].DocumentSeq {
			return candidates[i].DocumentSeq < candidates[j].DocumentSeq
		}
		return candidates[i].ExtractionIndex < candidates[j].ExtractionIndex
	})
	return candidates, diags, nil
}

func (p *Pipeline) extractOne(ctx context.Context, seq int, doc domain.SourceDocument) extraction {
	docCtx, cancel := context.WithTimeout(ctx, p.docTimeout)
	defer cancel()

	found, err := p.extractor.Extract(docCtx, doc)
	if err != nil {
		var schemaErr *domain.ExtractionSchemaError
		stage := "extract"
		if errors.As(err, &schemaErr) {
			stage = "schema"
		}
		p.logger.Warn("extraction failed", "document", doc.ID, "stage", stage, "error", err)
		return extraction{diag: &domain.Diagnostic{DocumentID: doc.ID, Stage: stage, Message: err.Error()}}
	}
	for i := range found {
		found[i].DocumentSeq = seq
	}
	return extraction{candidates: found}
}

func held(c domain.CandidateRecord) domain.HeldCandidate {
	return domain.HeldCandidate{
		Name:        c.DisplayName(),
		DocumentID:  c.SourceDocumentID,
		URL:         c.SourceURL,
		Reason:      c.Status.Reason,
		DuplicateOf: c.DuplicateOf,
	}
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %v", domain.ErrCancelled, context.Cause(ctx))
}
