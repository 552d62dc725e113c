package catalog

import (
	"bytes"
	"strings"
	"testing"

	"FRBScanner/internal/domain"
)

func TestWriteCSVUsesCatalogColumns(t *testing.T) {
	t.Parallel()

	z := 0.0337
	var buf bytes.Buffer
	err := WriteCSV(&buf, []domain.CatalogRecord{{
		Name: "FRB20180916B", RA: 29.50312, Dec: 65.71675, DM: 348.772, Z: &z,
		Repeater: true, Telescope: "CHIME", Refs: []string{"Marcote2020", "ATel#13000"},
	}})
	if err != nil {
		t.Fatalf("WriteCSV returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "Name,ra,dec,DM,z,ee_a,ee_b,RM,repeater,telescope,refs" {
		t.Fatalf("unexpected header: %s", lines[0])
	}
	if lines[1] != `FRB20180916B,29.50312,65.71675,348.772,0.0337,,,,yes,CHIME,"Marcote2020, ATel#13000"` {
		t.Fatalf("unexpected row: %s", lines[1])
	}
}

func TestReadCSVToleratesSpellings(t *testing.T) {
	t.Parallel()

	in := "Name,ra,dec,DM,z,ee_a,ee_b,RM,repeater,telescope,refs,notes\n" +
		"FRB20121102A,82.9946,33.1479,557,0.19273,0.1,0.1,,1,Arecibo,Chatterjee2017; Tendulkar2017,x\n" +
		"FRB20190523A,207.065,72.4697,760.8,nan,,,,no,DSA-10,Ravi2019\n"

	records, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatalf("ReadCSV returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0]
	if !first.Repeater || first.Z == nil || *first.Z != 0.19273 || !first.HasEllipse() || first.RM != nil {
		t.Fatalf("unexpected first record: %+v", first)
	}
	if len(first.Refs) != 2 || first.Refs[1] != "Tendulkar2017" {
		t.Fatalf("unexpected refs: %v", first.Refs)
	}
	if records[1].Repeater || records[1].Z != nil {
		t.Fatalf("unexpected second record: %+v", records[1])
	}
}

func TestReadCSVRejectsMissingColumns(t *testing.T) {
	t.Parallel()

	if _, err := ReadCSV(strings.NewReader("Name,ra\nFRB1,1\n")); err == nil {
		t.Fatal("expected missing column error")
	}
	if _, err := ReadCSV(strings.NewReader("Name,ra,dec,DM\nFRB1,abc,1,1\n")); err == nil {
		t.Fatal("expected parse error")
	}
}
