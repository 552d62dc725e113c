package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"FRBScanner/internal/astro"
	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
	"FRBScanner/internal/validate"
)

// CatalogStore is what the catalog maintenance commands need.
type CatalogStore interface {
	ports.CatalogReader
	ports.CatalogWriter
	ports.CatalogStatsReader
}

// CatalogService backs the stats, export and apply commands.
type CatalogService struct {
	store  CatalogStore
	logger *slog.Logger
}

// NewCatalogService wraps a catalog store.
func NewCatalogService(store CatalogStore, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CatalogService{store: store, logger: logger}
}

// Stats summarizes the catalog.
func (s *CatalogService) Stats(ctx context.Context) (catalog.Stats, error) {
	return s.store.Stats(ctx)
}

// Export writes the catalog as CSV with the fixed column set.
func (s *CatalogService) Export(ctx context.Context, w io.Writer) (int, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	records := snap.Records()
	if err := catalog.WriteCSV(w, records); err != nil {
		return 0, fmt.Errorf("write csv: %w", err)
	}
	return len(records), nil
}

// Apply appends the rows of an approved proposal CSV. Every row must pass the
// same range checks as extracted candidates, and any name already catalogued
// aborts the whole apply.
func (s *CatalogService) Apply(ctx context.Context, r io.Reader) (int, error) {
	records, err := catalog.ReadCSV(r)
	if err != nil {
		return 0, fmt.Errorf("read proposal csv: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("load catalog: %w", err)
	}
	check := validate.New(0)
	var problems []error
	for i := range records {
		records[i].Name = astro.NormalizeName(records[i].Name)
		rec := records[i]
		if snap.Contains(rec.Name) {
			problems = append(problems, fmt.Errorf("%s: %w", rec.Name, domain.ErrNameExists))
			continue
		}
		if res := check.Validate(asCandidate(rec), snap); res.State == domain.StateRejected {
			problems = append(problems, fmt.Errorf("%s: %s", rec.Name, res.Reason))
		}
	}
	if len(problems) > 0 {
		return 0, fmt.Errorf("refusing to apply: %w", errors.Join(problems...))
	}

	n, err := s.store.Append(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("append records: %w", err)
	}
	s.logger.Info("proposal applied", "records", n)
	return n, nil
}

func asCandidate(r domain.CatalogRecord) domain.CandidateRecord {
	name, tel, rep := r.Name, r.Telescope, r.Repeater
	ra, dec, dm := r.RA, r.Dec, r.DM
	return domain.CandidateRecord{
		Name:                 &name,
		RA:                   &ra,
		Dec:                  &dec,
		DM:                   &dm,
		Z:                    r.Z,
		EllipseA:             r.EllipseA,
		EllipseB:             r.EllipseB,
		RM:                   r.RM,
		Repeater:             &rep,
		Telescope:            &tel,
		Refs:                 r.Refs,
		ExtractionConfidence: 1,
	}
}
