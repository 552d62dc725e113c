package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
)

type memCatalog struct {
	records []domain.CatalogRecord
}

func (m *memCatalog) Snapshot(context.Context) (*catalog.Snapshot, error) {
	return catalog.NewSnapshot(m.records), nil
}

func (m *memCatalog) Append(_ context.Context, records []domain.CatalogRecord) (int, error) {
	m.records = append(m.records, records...)
	return len(records), nil
}

func (m *memCatalog) Stats(context.Context) (catalog.Stats, error) {
	return catalog.Stats{Total: len(m.records)}, nil
}

const proposalCSV = `Name,ra,dec,DM,z,ee_a,ee_b,RM,repeater,telescope,refs
FRB20230101A,150,-9,500,,,,,yes,MeerKAT,ATel#16000
`

func TestApplyAppendsNewRows(t *testing.T) {
	t.Parallel()

	store := &memCatalog{records: []domain.CatalogRecord(existing)}
	svc := NewCatalogService(store, nil)

	n, err := svc.Apply(context.Background(), strings.NewReader(proposalCSV))
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if n != 1 || len(store.records) != 2 {
		t.Fatalf("applied %d, catalog has %d rows", n, len(store.records))
	}
	if got := store.records[1]; got.Name != "FRB20230101A" || !got.Repeater {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestApplyRefusesExistingNames(t *testing.T) {
	t.Parallel()

	store := &memCatalog{records: []domain.CatalogRecord(existing)}
	svc := NewCatalogService(store, nil)

	csv := proposalCSV + "FRB 20220610A,340,-9,1458,,,,,no,ASKAP,\n"
	_, err := svc.Apply(context.Background(), strings.NewReader(csv))
	if !errors.Is(err, domain.ErrNameExists) {
		t.Fatalf("err = %v, want ErrNameExists", err)
	}
	if len(store.records) != 1 {
		t.Fatal("partial apply wrote rows")
	}
}

func TestApplyRejectsOutOfRangeRows(t *testing.T) {
	t.Parallel()

	store := &memCatalog{}
	svc := NewCatalogService(store, nil)

	csv := "Name,ra,dec,DM,z,ee_a,ee_b,RM,repeater,telescope,refs\nFRB20230202B,400,10,300,,,,,no,CHIME,\n"
	if _, err := svc.Apply(context.Background(), strings.NewReader(csv)); err == nil {
		t.Fatal("expected range error")
	}
	if len(store.records) != 0 {
		t.Fatal("invalid row written")
	}
}

func TestExportWritesCatalogColumns(t *testing.T) {
	t.Parallel()

	svc := NewCatalogService(&memCatalog{records: []domain.CatalogRecord(existing)}, nil)
	var buf bytes.Buffer
	n, err := svc.Export(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Export returned error: %v", err)
	}
	if n != 1 {
		t.Fatalf("exported %d rows", n)
	}
	header, _, _ := strings.Cut(buf.String(), "\n")
	if header != strings.Join(catalog.Columns, ",") {
		t.Fatalf("header = %q", header)
	}
}
