package validate

import (
	"fmt"

	"FRBScanner/internal/astro"
	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
)

// Rejection and review reasons. They appear verbatim in run summaries.
const (
	ReasonMissingField      = "missing required field"
	ReasonCoordinateRange   = "coordinate out of range"
	ReasonInvalidDM         = "invalid DM"
	ReasonInvalidRedshift   = "invalid redshift"
	ReasonInvalidEllipse    = "invalid localization ellipse"
	ReasonLowConfidence     = "low confidence"
	ReasonIncompleteEllipse = "incomplete localization ellipse"
	ReasonMissingDM         = "missing DM"
)

// Validator applies the catalog rules in a fixed order; the first failing rule wins.
type Validator struct {
	threshold float64
}

// New builds a validator with the given extraction-confidence threshold.
func New(threshold float64) Validator {
	return Validator{threshold: threshold}
}

// Validate is pure: the same candidate and snapshot always yield the same result.
func (v Validator) Validate(c domain.CandidateRecord, snap *catalog.Snapshot) domain.ValidationResult {
	if c.Name == nil || *c.Name == "" || c.RA == nil || c.Dec == nil {
		return domain.Rejected(ReasonMissingField)
	}
	if !astro.ValidRA(*c.RA) || !astro.ValidDec(*c.Dec) {
		return domain.Rejected(ReasonCoordinateRange)
	}
	if c.DM != nil && *c.DM < 0 {
		return domain.Rejected(ReasonInvalidDM)
	}
	if c.Z != nil && *c.Z < 0 {
		return domain.Rejected(ReasonInvalidRedshift)
	}
	if (c.EllipseA != nil && *c.EllipseA <= 0) || (c.EllipseB != nil && *c.EllipseB <= 0) {
		return domain.Rejected(ReasonInvalidEllipse)
	}

	if c.ExtractionConfidence < v.threshold {
		return domain.NeedsReview(ReasonLowConfidence)
	}
	if (c.EllipseA == nil) != (c.EllipseB == nil) {
		return domain.NeedsReview(ReasonIncompleteEllipse)
	}
	if c.DM == nil || *c.DM == 0 {
		return domain.NeedsReview(ReasonMissingDM)
	}

	var notes []string
	if !astro.IsTNSName(astro.NormalizeName(*c.Name)) {
		notes = append(notes, fmt.Sprintf("name %q is not a TNS designation", *c.Name))
	}
	if c.Telescope != nil && !snap.KnownTelescope(*c.Telescope) {
		notes = append(notes, fmt.Sprintf("telescope %q is new to the catalog", *c.Telescope))
	}
	if c.Telescope == nil {
		notes = append(notes, "telescope not reported")
	}
	return domain.Accepted(notes...)
}

// ValidateAll tags every candidate in place order and returns them with Status set.
func (v Validator) ValidateAll(candidates []domain.CandidateRecord, snap *catalog.Snapshot) []domain.CandidateRecord {
	out := make([]domain.CandidateRecord, len(candidates))
	for i, c := range candidates {
		c.Status = v.Validate(c, snap)
		out[i] = c
	}
	return out
}
