package parser

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"FRBScanner/internal/config"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
	"FRBScanner/internal/scanner"
)

// StrategySource implements DocumentSource via registered fetcher strategies.
// Sources are fetched concurrently; results are concatenated in configured order.
type StrategySource struct {
	registry *scanner.Registry
	sources  []config.SourceConfig
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.DocumentSource = (*StrategySource)(nil)

// NewStrategySource wires the fetcher registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, log *slog.Logger) *StrategySource {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &StrategySource{
		registry: reg,
		sources:  sources,
		logger:   log,
		now:      time.Now,
	}
}

type sourceResult struct {
	docs   []domain.SourceDocument
	report domain.OriginReport
}

// FetchAll runs every source with its own timeout. A failing source keeps the
// documents it produced before failing and never affects the others.
// A zero since falls back to each source's window.
func (s *StrategySource) FetchAll(ctx context.Context, since time.Time) ([]domain.SourceDocument, []domain.OriginReport) {
	results := make([]sourceResult, len(s.sources))

	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.fetchSource(ctx, src, since)
		}()
	}
	wg.Wait()

	var (
		docs    []domain.SourceDocument
		reports = make([]domain.OriginReport, 0, len(results))
		seen    = map[string]struct{}{}
	)
	for _, res := range results {
		for _, doc := range res.docs {
			if _, dup := seen[doc.ID]; dup {
				continue
			}
			seen[doc.ID] = struct{}{}
			docs = append(docs, doc)
		}
		reports = append(reports, res.report)
	}

	s.logger.Debug("strategy source done", "sources", len(s.sources), "documents", len(docs))
	return docs, reports
}

func (s *StrategySource) fetchSource(ctx context.Context, src config.SourceConfig, since time.Time) sourceResult {
	res := sourceResult{report: domain.OriginReport{Source: src.Name}}

	if s.registry == nil {
		return s.failed(res, src, errors.New("fetcher registry is not configured"))
	}
	fetcher, err := s.registry.Resolve(src.Fetcher)
	if err != nil {
		return s.failed(res, src, err)
	}
	res.report.Origin = fetcher.Origin()

	if since.IsZero() && src.Window > 0 {
		since = s.now().Add(-src.Window)
	}
	if src.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, src.Timeout)
		defer cancel()
	}

	req := scanner.Request{
		Since:    since,
		Source:   src.Name,
		URL:      src.URL,
		PageSize: src.PageSize,
		MaxItems: src.MaxItems,
		FullText: src.FullText,
		Options:  src.Options,
	}

	s.logger.Debug("fetch source", "source", src.Name, "fetcher", src.Fetcher, "since", since.Format(time.RFC3339))
	for doc, err := range fetcher.Fetch(ctx, req) {
		if err != nil {
			res.report.Documents = len(res.docs)
			return s.failed(res, src, err)
		}
		res.docs = append(res.docs, doc)
	}
	res.report.Documents = len(res.docs)
	s.logger.Info("source fetched", "source", src.Name, "documents", len(res.docs))
	return res
}

func (s *StrategySource) failed(res sourceResult, src config.SourceConfig, err error) sourceResult {
	fetchErr := &domain.FetchError{Origin: res.report.Origin, Source: src.Name, Err: err}
	res.report.Error = fetchErr.Error()
	s.logger.Warn("source failed", "source", src.Name, "documents", len(res.docs), "error", err)
	return res
}
