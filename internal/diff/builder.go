package diff

import (
	"time"

	"FRBScanner/internal/astro"
	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
)

// UnknownTelescope fills the telescope column when no instrument was reported.
const UnknownTelescope = "unknown"

// Counts are the run totals printed in the proposal summary.
type Counts struct {
	Documents  int
	Candidates int
	Accepted   int
	Rejected   int
	Review     int
	Duplicates int
	Conflicts  int
}

// Meta is the run context rendered alongside the additions.
type Meta struct {
	RunID     string
	CreatedAt time.Time
	Held      []domain.HeldCandidate
	Rejected  []domain.HeldCandidate
	Counts    Counts
}

// Build turns deduplicated candidates into an append-only change. Names already
// present in the snapshot are dropped and listed in Excluded; the remaining
// records keep their discovery order.
func Build(records []domain.CandidateRecord, snap *catalog.Snapshot, meta Meta) domain.ProposedChange {
	change := domain.ProposedChange{
		RunID:     meta.RunID,
		CreatedAt: meta.CreatedAt,
	}
	seen := map[string]struct{}{}
	for _, c := range records {
		if c.Name == nil {
			continue
		}
		name := astro.NormalizeName(*c.Name)
		if snap.Contains(name) {
			change.Excluded = append(change.Excluded, name)
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		change.Entries = append(change.Entries, domain.ProposedEntry{
			Record:     ToCatalogRecord(c, snap),
			Provenance: c.Provenances(),
			Notes:      c.Status.Notes,
		})
	}
	change.Summary = RenderSummary(change, meta)
	return change
}

// ToCatalogRecord fills catalog columns from a validated candidate. The
// telescope takes the catalog's spelling when the instrument is known, and
// refs fall back to the originating document ids.
func ToCatalogRecord(c domain.CandidateRecord, snap *catalog.Snapshot) domain.CatalogRecord {
	rec := domain.CatalogRecord{
		Name:      astro.NormalizeName(*c.Name),
		Z:         c.Z,
		EllipseA:  c.EllipseA,
		EllipseB:  c.EllipseB,
		RM:        c.RM,
		Telescope: UnknownTelescope,
		Refs:      append([]string(nil), c.Refs...),
	}
	if c.RA != nil {
		rec.RA = *c.RA
	}
	if c.Dec != nil {
		rec.Dec = *c.Dec
	}
	if c.DM != nil {
		rec.DM = *c.DM
	}
	if c.Repeater != nil {
		rec.Repeater = *c.Repeater
	}
	if c.Telescope != nil && *c.Telescope != "" {
		rec.Telescope = snap.CanonicalTelescope(*c.Telescope)
	}
	if len(rec.Refs) == 0 {
		seen := map[string]struct{}{}
		for _, p := range c.Provenances() {
			if _, ok := seen[p.DocumentID]; ok || p.DocumentID == "" {
				continue
			}
			seen[p.DocumentID] = struct{}{}
			rec.Refs = append(rec.Refs, p.DocumentID)
		}
	}
	return rec
}
