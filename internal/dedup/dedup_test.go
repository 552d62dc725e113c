package dedup

import (
	"testing"

	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
)

func f(v float64) *float64 { return &v }
func s(v string) *string   { return &v }

func cand(name string, ra, dec, conf float64, seq, idx int) domain.CandidateRecord {
	return domain.CandidateRecord{
		Name:                 s(name),
		RA:                   f(ra),
		Dec:                  f(dec),
		DM:                   f(400),
		ExtractionConfidence: conf,
		SourceDocumentID:     "doc" + string(rune('A'+seq)),
		DocumentSeq:          seq,
		ExtractionIndex:      idx,
		Status:               domain.Accepted(),
	}
}

func names(records []domain.CandidateRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.DisplayName())
	}
	return out
}

var snapshot = catalog.NewSnapshot([]domain.CatalogRecord{
	{Name: "FRB20121102A", RA: 82.9946, Dec: 33.1479, DM: 557, Telescope: "Arecibo"},
	{Name: "FRB20180916B", RA: 29.5031, Dec: 65.7168, DM: 348.8, Telescope: "CHIME", EllipseA: f(5), EllipseB: f(2)},
})

func TestCatalogNameMatchIsDuplicate(t *testing.T) {
	t.Parallel()

	part := New(DefaultPolicy()).Deduplicate([]domain.CandidateRecord{
		cand("FRB 20121102A", 10, 10, 0.9, 0, 0),
	}, snapshot)

	if len(part.Duplicates) != 1 || len(part.New) != 0 || len(part.Conflicts) != 0 {
		t.Fatalf("unexpected partition: new=%v dup=%v conflict=%v", names(part.New), names(part.Duplicates), names(part.Conflicts))
	}
	if part.Duplicates[0].DuplicateOf != "FRB20121102A" {
		t.Fatalf("duplicate_of = %q", part.Duplicates[0].DuplicateOf)
	}
}

func TestInRunSameNameMergesToOneSurvivor(t *testing.T) {
	t.Parallel()

	early := cand("FRB20240101A", 120, 20, 0.8, 0, 0)
	other := cand("FRB20240202B", 200, -30, 0.9, 0, 1)
	late := cand("FRB20240101A", 120.0001, 20, 0.95, 2, 0)
	late.Z = f(0.3)

	part := New(DefaultPolicy()).Deduplicate([]domain.CandidateRecord{late, other, early}, snapshot)

	if got := names(part.New); len(got) != 2 || got[0] != "FRB20240101A" || got[1] != "FRB20240202B" {
		t.Fatalf("unexpected survivors: %v", got)
	}
	survivor := part.New[0]
	if survivor.Z == nil || *survivor.Z != 0.3 {
		t.Fatal("higher-confidence fields must win")
	}
	if survivor.DocumentSeq != 0 || survivor.ExtractionIndex != 0 {
		t.Fatalf("survivor must keep earliest position, got %d/%d", survivor.DocumentSeq, survivor.ExtractionIndex)
	}
	if len(survivor.Provenances()) != 2 {
		t.Fatalf("expected both provenances, got %d", len(survivor.Provenances()))
	}
	if len(part.Duplicates) != 1 || part.Duplicates[0].DuplicateOf != "FRB20240101A" {
		t.Fatalf("loser not marked duplicate: %+v", part.Duplicates)
	}
	if part.Duplicates[0].SourceDocumentID != early.SourceDocumentID {
		t.Fatal("lower-confidence candidate should lose")
	}
}

func TestMergedSurvivorPositionIsRechecked(t *testing.T) {
	t.Parallel()

	held := cand("FRB20240303C", 200, 10, 0.6, 0, 0)
	// 2 arcsec from catalogued FRB20121102A.
	moved := cand("FRB20240303C", 82.9946, 33.1479+2.0/3600, 0.95, 1, 0)

	part := New(DefaultPolicy()).Deduplicate([]domain.CandidateRecord{held, moved}, snapshot)

	if len(part.New) != 0 {
		t.Fatalf("moved survivor must not be proposed: %v", names(part.New))
	}
	if got := names(part.Conflicts); len(got) != 1 || got[0] != "FRB20240303C" {
		t.Fatalf("unexpected conflicts: %v", got)
	}
	if part.Conflicts[0].Status.State != domain.StateNeedsReview || *part.Conflicts[0].RA != 82.9946 {
		t.Fatalf("conflict should carry the winning position under review: %+v", part.Conflicts[0])
	}
	if len(part.Duplicates) != 1 || part.Duplicates[0].SourceDocumentID != held.SourceDocumentID {
		t.Fatalf("unexpected duplicates: %+v", part.Duplicates)
	}
}

func TestMergedSurvivorMovingOntoRunNeighbourHoldsBoth(t *testing.T) {
	t.Parallel()

	held := cand("FRB20240404D", 10, 10, 0.6, 0, 0)
	neighbour := cand("FRB20240505E", 300, -40, 0.9, 0, 1)
	moved := cand("FRB20240404D", 300, -40+3.0/3600, 0.95, 1, 0)

	part := New(DefaultPolicy()).Deduplicate([]domain.CandidateRecord{held, neighbour, moved}, nil)

	if len(part.New) != 0 {
		t.Fatalf("expected no new records, got %v", names(part.New))
	}
	if got := names(part.Conflicts); len(got) != 2 || got[0] != "FRB20240404D" || got[1] != "FRB20240505E" {
		t.Fatalf("both candidates should be held: %v", got)
	}
}

func TestEqualConfidenceKeepsEarlierDocument(t *testing.T) {
	t.Parallel()

	a := cand("FRB20240101A", 120, 20, 0.9, 0, 0)
	b := cand("FRB20240101A", 120, 20, 0.9, 1, 0)
	b.Z = f(1.1)

	part := New(DefaultPolicy()).Deduplicate([]domain.CandidateRecord{b, a}, nil)
	if len(part.New) != 1 || part.New[0].SourceDocumentID != a.SourceDocumentID || part.New[0].Z != nil {
		t.Fatalf("earlier document should win ties: %+v", part.New)
	}
}

func TestSpatialMatchAgainstCatalogIsConflict(t *testing.T) {
	t.Parallel()

	// 6 arcsec in declination from FRB20121102A.
	near := cand("FRB20990101A", 82.9946, 33.1479+6.0/3600, 0.9, 0, 0)
	far := cand("FRB20990101B", 82.9946, 33.1479+30.0/3600, 0.9, 0, 1)

	part := New(DefaultPolicy()).Deduplicate([]domain.CandidateRecord{near, far}, snapshot)

	if got := names(part.Conflicts); len(got) != 1 || got[0] != "FRB20990101A" {
		t.Fatalf("unexpected conflicts: %v", got)
	}
	if part.Conflicts[0].Status.State != domain.StateNeedsReview {
		t.Fatal("conflict must be held for review")
	}
	if got := names(part.New); len(got) != 1 || got[0] != "FRB20990101B" {
		t.Fatalf("unexpected new: %v", got)
	}
}

func TestEllipseWidensMatchRadius(t *testing.T) {
	t.Parallel()

	// FRB20180916B has a 5 arcsec axis, so the radius is 15 arcsec.
	c := cand("FRB20990202A", 29.5031, 65.7168+12.0/3600, 0.9, 0, 0)
	part := New(DefaultPolicy()).Deduplicate([]domain.CandidateRecord{c}, snapshot)
	if len(part.Conflicts) != 1 {
		t.Fatalf("expected conflict within widened radius, got new=%v", names(part.New))
	}

	narrow := New(Policy{MinRadiusArcsec: 10, SafetyFactor: 1}).Deduplicate([]domain.CandidateRecord{c}, snapshot)
	if len(narrow.New) != 1 {
		t.Fatalf("expected new with safety factor 1, got conflicts=%v", names(narrow.Conflicts))
	}
}

func TestInRunSpatialPairHoldsBoth(t *testing.T) {
	t.Parallel()

	a := cand("FRB20990303A", 300, -40, 0.9, 0, 0)
	b := cand("FRB20990303B", 300, -40+2.0/3600, 0.9, 1, 0)
	c := cand("FRB20990404A", 10, 10, 0.9, 1, 1)

	part := New(DefaultPolicy()).Deduplicate([]domain.CandidateRecord{a, b, c}, nil)

	if got := names(part.Conflicts); len(got) != 2 || got[0] != "FRB20990303A" || got[1] != "FRB20990303B" {
		t.Fatalf("both candidates should be held: %v", got)
	}
	if got := names(part.New); len(got) != 1 || got[0] != "FRB20990404A" {
		t.Fatalf("unexpected new: %v", got)
	}
}

func TestEveryCandidateLandsInOneBucket(t *testing.T) {
	t.Parallel()

	in := []domain.CandidateRecord{
		cand("FRB20121102A", 82.9946, 33.1479, 0.9, 0, 0),
		cand("FRB20240101A", 120, 20, 0.9, 0, 1),
		cand("FRB20240101A", 120, 20, 0.7, 1, 0),
		cand("FRB20990101A", 82.9946, 33.1480, 0.9, 1, 1),
		cand("FRB20240505C", 250, 5, 0.9, 2, 0),
	}
	part := New(DefaultPolicy()).Deduplicate(in, snapshot)
	if total := len(part.New) + len(part.Duplicates) + len(part.Conflicts); total != len(in) {
		t.Fatalf("partition lost candidates: %d of %d", total, len(in))
	}
}
