package extract

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
)

type fixtureBackend struct {
	answer string
	err    error
	seen   []ports.ExtractionRequest
}

func (f *fixtureBackend) Complete(_ context.Context, req ports.ExtractionRequest) (string, error) {
	f.seen = append(f.seen, req)
	return f.answer, f.err
}

var telegram = domain.SourceDocument{
	ID:      "ATel#16000",
	Origin:  domain.OriginTelegram,
	URL:     "https://www.astronomerstelegram.org/?read=16000",
	Title:   "Localization of FRB 20230101A",
	RawText: "We localized FRB 20230101A to RA 10h00m, Dec -9°00′ with DM 500.",
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestExtractSexagesimalTelegram(t *testing.T) {
	t.Parallel()

	backend := &fixtureBackend{answer: "```json\n" + `[{
		"name": "FRB 20230101A",
		"ra": "10h00m",
		"dec": "-9°00′",
		"dm": 500,
		"z": null,
		"repeater": true,
		"telescope": "chime",
		"refs": ["ATel #16000", " ", "ATel #16000"],
		"confidence": 0.92,
		"excerpt": "We localized FRB 20230101A"
	}]` + "\n```"}

	ex := NewExtractor(backend, nil)
	got, err := ex.Extract(context.Background(), telegram)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(got))
	}

	c := got[0]
	if c.Name == nil || *c.Name != "FRB20230101A" {
		t.Fatalf("unexpected name: %v", c.DisplayName())
	}
	if c.RA == nil || !approx(*c.RA, 150) {
		t.Fatalf("unexpected ra: %v", c.RA)
	}
	if c.Dec == nil || !approx(*c.Dec, -9) {
		t.Fatalf("unexpected dec: %v", c.Dec)
	}
	if c.DM == nil || *c.DM != 500 {
		t.Fatalf("unexpected dm: %v", c.DM)
	}
	if c.Z != nil {
		t.Fatalf("expected nil redshift, got %v", *c.Z)
	}
	if c.Repeater == nil || !*c.Repeater {
		t.Fatal("expected repeater=true")
	}
	if c.Telescope == nil || *c.Telescope != "CHIME" {
		t.Fatalf("unexpected telescope: %v", c.Telescope)
	}
	if len(c.Refs) != 1 || c.Refs[0] != "ATel #16000" {
		t.Fatalf("unexpected refs: %v", c.Refs)
	}
	if c.SourceDocumentID != telegram.ID || c.Origin != domain.OriginTelegram || c.ExtractionConfidence != 0.92 {
		t.Fatalf("provenance not recorded: %+v", c.Provenance())
	}

	if len(backend.seen) != 1 || backend.seen[0].System != SystemPrompt {
		t.Fatal("backend did not receive the system prompt")
	}
	if !strings.Contains(backend.seen[0].Prompt, telegram.RawText) {
		t.Fatal("prompt does not carry the document text")
	}
}

func TestParseAcceptsEnvelopeAndDecimalDegrees(t *testing.T) {
	t.Parallel()

	answer := `{"frbs": [
		{"name": "FRB20240210A", "ra": 8.78, "dec": "-10.52", "dm": 283.7, "z": 0.0237, "ee_a": 0.5, "ee_b": 0.3, "confidence": 0.8},
		{"name": "20240304A", "ra": null, "dec": 12.0, "confidence": 0.4}
	]}`
	got, err := Parse(telegram, answer)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
	if !approx(*got[0].RA, 8.78) || !approx(*got[0].Dec, -10.52) {
		t.Fatalf("unexpected coordinates: %v %v", *got[0].RA, *got[0].Dec)
	}
	if got[0].ExtractionIndex != 0 || got[1].ExtractionIndex != 1 {
		t.Fatal("extraction order not recorded")
	}
	if *got[1].Name != "FRB20240304A" || got[1].RA != nil {
		t.Fatalf("unexpected second candidate: %s ra=%v", got[1].DisplayName(), got[1].RA)
	}
	if got[1].RawExcerpt == "" {
		t.Fatal("excerpt should fall back to document text")
	}
}

func TestParseEmptyArray(t *testing.T) {
	t.Parallel()

	got, err := Parse(telegram, " [] ")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
}

func TestParseRejectsSchemaViolations(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"prose":              "I found one FRB: FRB20230101A",
		"empty":              "   ",
		"unknown key":        `[{"name": "FRB20230101A", "ra": 150, "dec": -9, "confidence": 0.9, "host": "NGC 1"}]`,
		"dm as string":       `[{"name": "FRB20230101A", "ra": 150, "dec": -9, "dm": "500", "confidence": 0.9}]`,
		"missing confidence": `[{"name": "FRB20230101A", "ra": 150, "dec": -9}]`,
		"confidence range":   `[{"name": "FRB20230101A", "ra": 150, "dec": -9, "confidence": 1.5}]`,
		"bad sexagesimal":    `[{"name": "FRB20230101A", "ra": "10h75m", "dec": -9, "confidence": 0.9}]`,
		"non-object element": `[{"name": "FRB20230101A", "ra": 150, "dec": -9, "confidence": 0.9}, 42]`,
		"wrong envelope":     `{"records": []}`,
		"trailing content":   `[] []`,
	}

	for name, answer := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := Parse(telegram, answer)
			var schemaErr *domain.ExtractionSchemaError
			if !errors.As(err, &schemaErr) {
				t.Fatalf("expected ExtractionSchemaError, got %v", err)
			}
			if schemaErr.DocumentID != telegram.ID {
				t.Fatalf("unexpected document id: %s", schemaErr.DocumentID)
			}
			if len(got) != 0 {
				t.Fatalf("expected zero candidates, got %d", len(got))
			}
		})
	}
}

func TestExtractBackendFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("timeout")
	ex := NewExtractor(&fixtureBackend{err: boom}, nil)
	got, err := ex.Extract(context.Background(), telegram)
	if !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected no candidates, got %d", len(got))
	}
}

func TestStripFences(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"```json\n[]\n```": "[]",
		"```\n[1]\n```":    "[1]",
		"```json []```":    "[]",
		"[]":               "[]",
	}
	for in, want := range cases {
		if got := StripFences(in); got != want {
			t.Fatalf("StripFences(%q) = %q, want %q", in, got, want)
		}
	}
}
