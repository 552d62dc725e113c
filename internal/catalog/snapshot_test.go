package catalog

import (
	"testing"

	"FRBScanner/internal/domain"
)

func TestSnapshotLookupIsSpacingInsensitive(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot([]domain.CatalogRecord{
		{Name: "FRB20220610A", RA: 340, Dec: -9, DM: 1458, Telescope: "ASKAP", Refs: []string{"Ryder2023"}},
	})

	for _, name := range []string{"FRB20220610A", "FRB 20220610A", "frb20220610a"} {
		if !snap.Contains(name) {
			t.Fatalf("expected %q to be found", name)
		}
	}
	if snap.Contains("FRB20230101A") {
		t.Fatalf("unexpected match for absent name")
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	t.Parallel()

	records := []domain.CatalogRecord{{Name: "FRB20220610A", Refs: []string{"a"}}}
	snap := NewSnapshot(records)

	records[0].Name = "changed"
	records[0].Refs[0] = "changed"

	got, ok := snap.Lookup("FRB20220610A")
	if !ok {
		t.Fatalf("snapshot lost record after input mutation")
	}
	if got.Refs[0] != "a" {
		t.Fatalf("refs leaked from input: %v", got.Refs)
	}

	out := snap.Records()
	out[0].Name = "mutated"
	if again, _ := snap.Lookup("FRB20220610A"); again.Name != "FRB20220610A" {
		t.Fatalf("Records() exposed internal state")
	}
}

func TestCanonicalTelescope(t *testing.T) {
	t.Parallel()

	snap := NewSnapshot([]domain.CatalogRecord{
		{Name: "FRB20190608B", Telescope: "ASKAP"},
		{Name: "FRB20201124A", Telescope: "MeerKAT"},
	})

	if got := snap.CanonicalTelescope("meerkat"); got != "MeerKAT" {
		t.Fatalf("expected MeerKAT, got %s", got)
	}
	if got := snap.CanonicalTelescope("DSA-110"); got != "DSA-110" {
		t.Fatalf("unknown telescope should pass through, got %s", got)
	}
	if !snap.KnownTelescope("askap") || snap.KnownTelescope("FAST") {
		t.Fatalf("KnownTelescope misreported")
	}
	if got := snap.Telescopes(); len(got) != 2 || got[0] != "ASKAP" {
		t.Fatalf("unexpected telescope list %v", got)
	}
}
