package catalog

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"FRBScanner/internal/astro"
	"FRBScanner/internal/domain"
)

// Snapshot is an immutable copy of the catalog taken once per run.
type Snapshot struct {
	records    []domain.CatalogRecord
	byName     map[string]int
	telescopes map[string]string
}

// Casers are stateful, so each call builds its own.
func foldKey(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// NewSnapshot copies records; later changes to the input do not leak in.
func NewSnapshot(records []domain.CatalogRecord) *Snapshot {
	s := &Snapshot{
		records:    make([]domain.CatalogRecord, 0, len(records)),
		byName:     make(map[string]int, len(records)),
		telescopes: map[string]string{},
	}
	for _, r := range records {
		r.Refs = append([]string(nil), r.Refs...)
		s.byName[astro.NormalizeName(r.Name)] = len(s.records)
		s.records = append(s.records, r)
		if t := strings.TrimSpace(r.Telescope); t != "" {
			key := foldKey(t)
			if _, ok := s.telescopes[key]; !ok {
				s.telescopes[key] = t
			}
		}
	}
	return s
}

// Len returns the number of catalog rows.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Records returns a copy of all rows.
func (s *Snapshot) Records() []domain.CatalogRecord {
	if s == nil {
		return nil
	}
	out := make([]domain.CatalogRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Lookup finds a row by name, tolerant of spacing and case.
func (s *Snapshot) Lookup(name string) (domain.CatalogRecord, bool) {
	if s == nil {
		return domain.CatalogRecord{}, false
	}
	idx, ok := s.byName[astro.NormalizeName(name)]
	if !ok {
		return domain.CatalogRecord{}, false
	}
	return s.records[idx], true
}

// Contains reports whether name is already catalogued.
func (s *Snapshot) Contains(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// KnownTelescope reports whether the instrument appears in the catalog.
func (s *Snapshot) KnownTelescope(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.telescopes[foldKey(name)]
	return ok
}

// CanonicalTelescope returns the catalog spelling of an instrument when one
// exists, so "meerkat" becomes "MeerKAT".
func (s *Snapshot) CanonicalTelescope(name string) string {
	name = strings.TrimSpace(name)
	if s == nil || name == "" {
		return name
	}
	if canonical, ok := s.telescopes[foldKey(name)]; ok {
		return canonical
	}
	return name
}

// Telescopes lists known instruments in catalog spelling, sorted.
func (s *Snapshot) Telescopes() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.telescopes))
	for _, t := range s.telescopes {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
