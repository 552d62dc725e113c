package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"FRBScanner/internal/astro"
	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
)

const maxExcerptRunes = 400

// Extractor turns documents into candidate records through a model backend.
// Any deviation from the answer schema discards the whole answer.
type Extractor struct {
	backend ports.ExtractionBackend
	logger  *slog.Logger
}

// NewExtractor wires the backend used for every document.
func NewExtractor(backend ports.ExtractionBackend, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Extractor{backend: backend, logger: logger}
}

// Extract returns the candidates of one document in answer order. The error is
// an *domain.ExtractionSchemaError for malformed answers, or the backend failure.
func (e *Extractor) Extract(ctx context.Context, doc domain.SourceDocument) ([]domain.CandidateRecord, error) {
	if e.backend == nil {
		return nil, errors.New("extraction backend is not configured")
	}

	raw, err := e.backend.Complete(ctx, ports.ExtractionRequest{
		DocumentID: doc.ID,
		Origin:     doc.Origin,
		System:     SystemPrompt,
		Prompt:     BuildPrompt(doc),
	})
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", doc.ID, err)
	}

	candidates, err := Parse(doc, raw)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("document extracted", "document", doc.ID, "candidates", len(candidates))
	return candidates, nil
}

// answerRecord mirrors one element of the model answer.
type answerRecord struct {
	Name       *string    `json:"name"`
	RA         coordinate `json:"ra"`
	Dec        coordinate `json:"dec"`
	DM         *float64   `json:"dm"`
	Z          *float64   `json:"z"`
	EllipseA   *float64   `json:"ee_a"`
	EllipseB   *float64   `json:"ee_b"`
	RM         *float64   `json:"rm"`
	Repeater   *bool      `json:"repeater"`
	Telescope  *string    `json:"telescope"`
	Refs       []string   `json:"refs"`
	Confidence *float64   `json:"confidence"`
	Excerpt    string     `json:"excerpt"`
}

// coordinate accepts a JSON number (degrees), a string (degrees or
// sexagesimal) or null.
type coordinate struct {
	number *float64
	text   *string
}

func (c *coordinate) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case bytes.Equal(trimmed, []byte("null")):
		*c = coordinate{}
		return nil
	case len(trimmed) > 0 && trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = coordinate{text: &s}
		return nil
	default:
		var f float64
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return fmt.Errorf("coordinate must be a number or string: %w", err)
		}
		*c = coordinate{number: &f}
		return nil
	}
}

func (c coordinate) resolve(parse func(string) (float64, error)) (*float64, error) {
	switch {
	case c.number != nil:
		v := *c.number
		return &v, nil
	case c.text != nil:
		if strings.TrimSpace(*c.text) == "" {
			return nil, nil
		}
		v, err := parse(*c.text)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, nil
	}
}

type envelope struct {
	FRBs []json.RawMessage `json:"frbs"`
}

// Parse validates a raw model answer against the schema and converts it to
// candidates attributed to doc.
func Parse(doc domain.SourceDocument, raw string) ([]domain.CandidateRecord, error) {
	schemaErr := func(format string, args ...any) error {
		return &domain.ExtractionSchemaError{DocumentID: doc.ID, Reason: fmt.Sprintf(format, args...)}
	}

	payload := strings.TrimSpace(StripFences(raw))
	if payload == "" {
		return nil, schemaErr("empty answer")
	}

	var elements []json.RawMessage
	switch payload[0] {
	case '[':
		if err := decodeStrict(payload, &elements); err != nil {
			return nil, schemaErr("answer is not a JSON array: %v", err)
		}
	case '{':
		var env envelope
		if err := decodeStrict(payload, &env); err != nil {
			return nil, schemaErr("answer object must only hold \"frbs\": %v", err)
		}
		if env.FRBs == nil {
			return nil, schemaErr("answer object has no \"frbs\" array")
		}
		elements = env.FRBs
	default:
		return nil, schemaErr("answer is not JSON")
	}

	candidates := make([]domain.CandidateRecord, 0, len(elements))
	for i, element := range elements {
		var rec answerRecord
		if err := decodeStrict(string(element), &rec); err != nil {
			return nil, schemaErr("record %d: %v", i, err)
		}
		cand, err := toCandidate(doc, rec, i)
		if err != nil {
			return nil, schemaErr("record %d: %v", i, err)
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

func toCandidate(doc domain.SourceDocument, rec answerRecord, index int) (domain.CandidateRecord, error) {
	if rec.Confidence == nil {
		return domain.CandidateRecord{}, errors.New("confidence is required")
	}
	conf := *rec.Confidence
	if conf < 0 || conf > 1 || math.IsNaN(conf) {
		return domain.CandidateRecord{}, fmt.Errorf("confidence %v outside [0,1]", conf)
	}

	ra, err := rec.RA.resolve(astro.ParseRA)
	if err != nil {
		return domain.CandidateRecord{}, fmt.Errorf("ra: %w", err)
	}
	dec, err := rec.Dec.resolve(astro.ParseDec)
	if err != nil {
		return domain.CandidateRecord{}, fmt.Errorf("dec: %w", err)
	}

	cand := domain.CandidateRecord{
		Name:                 normalizedName(rec.Name),
		RA:                   ra,
		Dec:                  dec,
		DM:                   rec.DM,
		Z:                    rec.Z,
		EllipseA:             rec.EllipseA,
		EllipseB:             rec.EllipseB,
		RM:                   rec.RM,
		Repeater:             rec.Repeater,
		Telescope:            normalizedTelescope(rec.Telescope),
		Refs:                 cleanRefs(rec.Refs),
		SourceDocumentID:     doc.ID,
		SourceURL:            doc.URL,
		Origin:               doc.Origin,
		ExtractionConfidence: conf,
		RawExcerpt:           excerpt(rec.Excerpt, doc.RawText),
		ExtractionIndex:      index,
	}
	return cand, nil
}

// StripFences removes a surrounding Markdown code fence such as ```json ... ```.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func decodeStrict(payload string, v any) error {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing content after JSON value")
	}
	return nil
}

func normalizedName(name *string) *string {
	if name == nil {
		return nil
	}
	n := astro.NormalizeName(*name)
	if n == "" {
		return nil
	}
	return &n
}

func normalizedTelescope(tel *string) *string {
	if tel == nil {
		return nil
	}
	t := strings.Join(strings.Fields(astro.NormalizeText(*tel)), " ")
	if t == "" {
		return nil
	}
	if t == strings.ToLower(t) {
		t = cases.Upper(language.Und).String(t)
	}
	return &t
}

func cleanRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	seen := map[string]struct{}{}
	for _, r := range refs {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func excerpt(fromModel, text string) string {
	s := strings.TrimSpace(fromModel)
	if s == "" {
		s = strings.Join(strings.Fields(text), " ")
	}
	runes := []rune(s)
	if len(runes) > maxExcerptRunes {
		return string(runes[:maxExcerptRunes])
	}
	return s
}
