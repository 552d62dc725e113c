package dedup

import (
	"fmt"
	"math"
	"sort"

	"FRBScanner/internal/astro"
	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
)

// Policy controls positional coincidence. The match radius for a pair is
// max(MinRadiusArcsec, SafetyFactor × the largest ellipse axis of either record).
type Policy struct {
	MinRadiusArcsec float64
	SafetyFactor    float64
}

// DefaultPolicy matches the historical 10 arcsec catalog check.
func DefaultPolicy() Policy {
	return Policy{MinRadiusArcsec: 10, SafetyFactor: 3}
}

// Partition is the deduplicator output. Every input candidate lands in exactly one bucket.
type Partition struct {
	New        []domain.CandidateRecord
	Duplicates []domain.CandidateRecord
	Conflicts  []domain.CandidateRecord
}

type bucket int

const (
	bucketNew bucket = iota
	bucketConflict
)

type entry struct {
	cand   domain.CandidateRecord
	bucket bucket
}

// Deduplicator matches accepted candidates against the snapshot and each other.
type Deduplicator struct {
	policy Policy
}

// New builds a deduplicator; non-positive policy values fall back to defaults.
func New(policy Policy) Deduplicator {
	def := DefaultPolicy()
	if policy.MinRadiusArcsec <= 0 {
		policy.MinRadiusArcsec = def.MinRadiusArcsec
	}
	if policy.SafetyFactor <= 0 {
		policy.SafetyFactor = def.SafetyFactor
	}
	return Deduplicator{policy: policy}
}

// Deduplicate processes candidates in (document, extraction) order. Candidates
// without a name or position must have been rejected earlier and are ignored.
func (d Deduplicator) Deduplicate(accepted []domain.CandidateRecord, snap *catalog.Snapshot) Partition {
	ordered := make([]domain.CandidateRecord, 0, len(accepted))
	for _, c := range accepted {
		if c.Name != nil && c.RA != nil && c.Dec != nil {
			ordered = append(ordered, c)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].DocumentSeq != ordered[j].DocumentSeq {
			return ordered[i].DocumentSeq < ordered[j].DocumentSeq
		}
		return ordered[i].ExtractionIndex < ordered[j].ExtractionIndex
	})

	var (
		part    Partition
		entries []*entry
		byName  = map[string]*entry{}
		records = snap.Records()
	)

	for _, c := range ordered {
		name := astro.NormalizeName(*c.Name)

		if rec, ok := snap.Lookup(name); ok {
			c.DuplicateOf = rec.Name
			part.Duplicates = append(part.Duplicates, c)
			continue
		}

		if e, ok := byName[name]; ok {
			before := e.cand
			survivor, loser := merge(e.cand, c)
			e.cand = survivor
			part.Duplicates = append(part.Duplicates, loser)
			if e.bucket == bucketNew && !samePosition(before, survivor) {
				d.place(e, records, entries)
			}
			continue
		}

		e := &entry{cand: c, bucket: bucketNew}
		d.place(e, records, entries)
		entries = append(entries, e)
		byName[name] = e
	}

	for _, e := range entries {
		switch e.bucket {
		case bucketNew:
			part.New = append(part.New, e.cand)
		case bucketConflict:
			part.Conflicts = append(part.Conflicts, e.cand)
		}
	}
	return part
}

// place checks e's position against the catalog and the other entries of
// this run and moves it, and any in-run neighbour, to the conflict bucket on
// a match.
func (d Deduplicator) place(e *entry, records []domain.CatalogRecord, entries []*entry) {
	if rec, sep, ok := d.nearestRecord(e.cand, records); ok {
		e.bucket = bucketConflict
		e.cand.Status = domain.NeedsReview(fmt.Sprintf("position within %.1f arcsec of catalogued %s", sep, rec.Name))
		return
	}
	other, sep, ok := d.nearestEntry(e.cand, entries, e)
	if !ok {
		return
	}
	e.bucket = bucketConflict
	e.cand.Status = domain.NeedsReview(fmt.Sprintf("position within %.1f arcsec of %s from this run", sep, other.cand.DisplayName()))
	if other.bucket == bucketNew {
		other.bucket = bucketConflict
		other.cand.Status = domain.NeedsReview(fmt.Sprintf("position within %.1f arcsec of %s from this run", sep, e.cand.DisplayName()))
	}
}

func samePosition(a, b domain.CandidateRecord) bool {
	return *a.RA == *b.RA && *a.Dec == *b.Dec &&
		sameAxis(a.EllipseA, b.EllipseA) && sameAxis(a.EllipseB, b.EllipseB)
}

func sameAxis(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// merge folds two same-name candidates. Higher confidence wins; on a tie the
// one already held (earlier document) wins. The survivor keeps the earlier
// discovery position and both provenances.
func merge(held, incoming domain.CandidateRecord) (survivor, loser domain.CandidateRecord) {
	survivor, loser = held, incoming
	if incoming.ExtractionConfidence > held.ExtractionConfidence {
		survivor, loser = incoming, held
		survivor.DocumentSeq = held.DocumentSeq
		survivor.ExtractionIndex = held.ExtractionIndex
		if held.Status.State == domain.StateNeedsReview {
			survivor.Status = held.Status
		}
	}

	merged := make([]domain.Provenance, 0, len(survivor.MergedProvenance)+1+len(loser.MergedProvenance))
	merged = append(merged, survivor.MergedProvenance...)
	merged = append(merged, loser.Provenances()...)
	survivor.MergedProvenance = merged

	loser.MergedProvenance = nil
	loser.DuplicateOf = *survivor.Name
	return survivor, loser
}

func (d Deduplicator) radius(a, b []*float64) float64 {
	widest := 0.0
	for _, axis := range append(a, b...) {
		if axis != nil && *axis > widest {
			widest = *axis
		}
	}
	return math.Max(d.policy.MinRadiusArcsec, d.policy.SafetyFactor*widest)
}

func (d Deduplicator) nearestRecord(c domain.CandidateRecord, records []domain.CatalogRecord) (domain.CatalogRecord, float64, bool) {
	var (
		best  domain.CatalogRecord
		bestD = math.Inf(1)
		found bool
	)
	for _, rec := range records {
		sep := astro.SeparationArcsec(*c.RA, *c.Dec, rec.RA, rec.Dec)
		limit := d.radius([]*float64{c.EllipseA, c.EllipseB}, []*float64{rec.EllipseA, rec.EllipseB})
		if sep < limit && sep < bestD {
			best, bestD, found = rec, sep, true
		}
	}
	return best, bestD, found
}

func (d Deduplicator) nearestEntry(c domain.CandidateRecord, entries []*entry, skip *entry) (*entry, float64, bool) {
	var (
		best  *entry
		bestD = math.Inf(1)
	)
	for _, e := range entries {
		if e == skip {
			continue
		}
		sep := astro.SeparationArcsec(*c.RA, *c.Dec, *e.cand.RA, *e.cand.Dec)
		limit := d.radius([]*float64{c.EllipseA, c.EllipseB}, []*float64{e.cand.EllipseA, e.cand.EllipseB})
		if sep < limit && sep < bestD {
			best, bestD = e, sep
		}
	}
	return best, bestD, best != nil
}
