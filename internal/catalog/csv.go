package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"FRBScanner/internal/domain"
)

// Columns is the fixed catalog column order shared by the table, CSV export and proposals.
var Columns = []string{"Name", "ra", "dec", "DM", "z", "ee_a", "ee_b", "RM", "repeater", "telescope", "refs"}

// WriteCSV writes a header row followed by one row per record.
func WriteCSV(w io.Writer, records []domain.CatalogRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return fmt.Errorf("write %s: %w", r.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row renders a record in column order.
func Row(r domain.CatalogRecord) []string {
	return []string{
		r.Name,
		FormatFloat(&r.RA),
		FormatFloat(&r.Dec),
		FormatFloat(&r.DM),
		FormatFloat(r.Z),
		FormatFloat(r.EllipseA),
		FormatFloat(r.EllipseB),
		FormatFloat(r.RM),
		FormatRepeater(r.Repeater),
		r.Telescope,
		JoinRefs(r.Refs),
	}
}

// ReadCSV parses a catalog CSV. Columns are located by header name, so extra
// columns are ignored; Name, ra, dec and DM are required.
func ReadCSV(r io.Reader) ([]domain.CatalogRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	pos := map[string]int{}
	for i, h := range header {
		pos[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"name", "ra", "dec", "dm"} {
		if _, ok := pos[required]; !ok {
			return nil, fmt.Errorf("csv is missing column %q", required)
		}
	}

	var out []domain.CatalogRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cell := func(col string) string {
			if i, ok := pos[col]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		rec, err := parseRow(cell)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
}

func parseRow(cell func(string) string) (domain.CatalogRecord, error) {
	rec := domain.CatalogRecord{
		Name:      cell("name"),
		Telescope: cell("telescope"),
		Repeater:  ParseRepeater(cell("repeater")),
		Refs:      SplitRefs(cell("refs")),
	}
	if rec.Name == "" {
		return rec, errors.New("empty name")
	}
	var err error
	for _, req := range []struct {
		col string
		dst *float64
	}{{"ra", &rec.RA}, {"dec", &rec.Dec}, {"dm", &rec.DM}} {
		if *req.dst, err = strconv.ParseFloat(cell(req.col), 64); err != nil {
			return rec, fmt.Errorf("%s %s: %w", rec.Name, req.col, err)
		}
	}
	for _, opt := range []struct {
		col string
		dst **float64
	}{{"z", &rec.Z}, {"ee_a", &rec.EllipseA}, {"ee_b", &rec.EllipseB}, {"rm", &rec.RM}} {
		if *opt.dst, err = ParseOptionalFloat(cell(opt.col)); err != nil {
			return rec, fmt.Errorf("%s %s: %w", rec.Name, opt.col, err)
		}
	}
	return rec, nil
}

// FormatFloat renders a value with the shortest exact representation; nil is empty.
func FormatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// ParseOptionalFloat treats empty cells and the usual null spellings as missing.
func ParseOptionalFloat(s string) (*float64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "nan", "null", "none", "-":
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FormatRepeater writes the catalog's yes/no spelling.
func FormatRepeater(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// ParseRepeater accepts yes/no, true/false and 1/0.
func ParseRepeater(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "t", "1":
		return true
	}
	return false
}

// JoinRefs joins references the way the catalog stores them.
func JoinRefs(refs []string) string {
	return strings.Join(refs, ", ")
}

// SplitRefs splits a stored reference cell on commas or semicolons.
func SplitRefs(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
