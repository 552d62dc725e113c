package domain

import "time"

// Origin identifies the feed a document came from.
type Origin string

const (
	OriginTelegram Origin = "telegram"
	OriginPreprint Origin = "preprint"
)

// CatalogRecord is one localized FRB row of the canonical catalog.
type CatalogRecord struct {
	Name      string
	RA        float64
	Dec       float64
	DM        float64
	Z         *float64
	EllipseA  *float64
	EllipseB  *float64
	RM        *float64
	Repeater  bool
	Telescope string
	Refs      []string
}

// HasEllipse reports whether both localization ellipse axes are set.
func (r CatalogRecord) HasEllipse() bool {
	return r.EllipseA != nil && r.EllipseB != nil
}

// SourceDocument is a fetched unit of raw text. It lives for one run only.
type SourceDocument struct {
	ID          string
	Origin      Origin
	URL         string
	Title       string
	Authors     string
	PublishedAt time.Time
	FetchedAt   time.Time
	RawText     string
}

// Provenance ties a candidate back to the document it was read from.
type Provenance struct {
	DocumentID string
	Origin     Origin
	URL        string
	Confidence float64
	Excerpt    string
}

// CandidateRecord is extractor output before validation. Every catalog field is optional.
type CandidateRecord struct {
	Name      *string
	RA        *float64
	Dec       *float64
	DM        *float64
	Z         *float64
	EllipseA  *float64
	EllipseB  *float64
	RM        *float64
	Repeater  *bool
	Telescope *string
	Refs      []string

	SourceDocumentID     string
	SourceURL            string
	Origin               Origin
	ExtractionConfidence float64
	RawExcerpt           string

	// DocumentSeq is the discovery position of the source document in the run;
	// ExtractionIndex is the position of the record inside that document.
	DocumentSeq     int
	ExtractionIndex int

	Status           ValidationResult
	DuplicateOf      string
	MergedProvenance []Provenance
}

// DisplayName returns the candidate name or a placeholder for logs and reports.
func (c CandidateRecord) DisplayName() string {
	if c.Name == nil || *c.Name == "" {
		return "(unnamed)"
	}
	return *c.Name
}

// Provenance returns the candidate's own provenance entry.
func (c CandidateRecord) Provenance() Provenance {
	return Provenance{
		DocumentID: c.SourceDocumentID,
		Origin:     c.Origin,
		URL:        c.SourceURL,
		Confidence: c.ExtractionConfidence,
		Excerpt:    c.RawExcerpt,
	}
}

// Provenances lists the candidate's own provenance followed by merged ones.
func (c CandidateRecord) Provenances() []Provenance {
	out := make([]Provenance, 0, 1+len(c.MergedProvenance))
	out = append(out, c.Provenance())
	return append(out, c.MergedProvenance...)
}

// ValidationState enumerates validator outcomes.
type ValidationState string

const (
	StateAccepted    ValidationState = "accepted"
	StateNeedsReview ValidationState = "needs_review"
	StateRejected    ValidationState = "rejected"
)

// ValidationResult tags a candidate. Notes are informational and never change the state.
type ValidationResult struct {
	State  ValidationState
	Reason string
	Notes  []string
}

func Accepted(notes ...string) ValidationResult {
	return ValidationResult{State: StateAccepted, Notes: notes}
}

func NeedsReview(reason string) ValidationResult {
	return ValidationResult{State: StateNeedsReview, Reason: reason}
}

func Rejected(reason string) ValidationResult {
	return ValidationResult{State: StateRejected, Reason: reason}
}

// ProposedEntry is one catalog addition with the documents it came from.
type ProposedEntry struct {
	Record     CatalogRecord
	Provenance []Provenance
	Notes      []string
}

// ProposedChange is an append-only change set awaiting human review.
type ProposedChange struct {
	RunID     string
	CreatedAt time.Time
	Entries   []ProposedEntry
	// Excluded lists names dropped because they already exist in the catalog.
	Excluded []string
	Summary  string
}

// Records returns the additions in proposal order.
func (p ProposedChange) Records() []CatalogRecord {
	out := make([]CatalogRecord, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, e.Record)
	}
	return out
}

// Names returns the proposed names in order.
func (p ProposedChange) Names() []string {
	out := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, e.Record.Name)
	}
	return out
}

// Empty reports whether there is nothing to review.
func (p ProposedChange) Empty() bool {
	return len(p.Entries) == 0
}

// ProposalHandle points at the reviewable unit created for a change.
type ProposalHandle struct {
	Channel string `json:"channel"`
	ID      string `json:"id"`
	URL     string `json:"url,omitempty"`
	Branch  string `json:"branch,omitempty"`
	Reused  bool   `json:"reused,omitempty"`
}
