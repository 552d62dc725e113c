package diff

import (
	"fmt"
	"strings"

	"FRBScanner/internal/astro"
	"FRBScanner/internal/catalog"
	"FRBScanner/internal/domain"
)

// RenderSummary produces the Markdown body reviewers read before merging.
func RenderSummary(change domain.ProposedChange, meta Meta) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# FRB catalog update\n\n")
	if change.RunID != "" {
		fmt.Fprintf(&b, "Run `%s`", change.RunID)
		if !change.CreatedAt.IsZero() {
			fmt.Fprintf(&b, " on %s", change.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
		}
		b.WriteString(".\n\n")
	}

	fmt.Fprintf(&b, "## New records (%d)\n\n", len(change.Entries))
	if len(change.Entries) == 0 {
		b.WriteString("No new localized FRBs.\n\n")
	}
	for _, e := range change.Entries {
		writeEntry(&b, e)
	}

	if len(meta.Held) > 0 {
		fmt.Fprintf(&b, "## Held for review (%d)\n\n", len(meta.Held))
		writeHeld(&b, meta.Held)
	}
	if len(meta.Rejected) > 0 {
		fmt.Fprintf(&b, "## Rejected (%d)\n\n", len(meta.Rejected))
		writeHeld(&b, meta.Rejected)
	}
	if len(change.Excluded) > 0 {
		fmt.Fprintf(&b, "## Already catalogued (%d)\n\n", len(change.Excluded))
		for _, name := range change.Excluded {
			fmt.Fprintf(&b, "- %s\n", name)
		}
		b.WriteString("\n")
	}

	c := meta.Counts
	b.WriteString("## Run counts\n\n")
	b.WriteString("| documents | candidates | accepted | needs review | rejected | duplicates | conflicts |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d | %d |\n",
		c.Documents, c.Candidates, c.Accepted, c.Review, c.Rejected, c.Duplicates, c.Conflicts)

	return b.String()
}

func writeEntry(b *strings.Builder, e domain.ProposedEntry) {
	r := e.Record
	fmt.Fprintf(b, "### %s\n\n", r.Name)
	fmt.Fprintf(b, "- Position: RA %.5f°, Dec %+.5f° (%s, %s)\n", r.RA, r.Dec, astro.FormatRA(r.RA), astro.FormatDec(r.Dec))
	if r.HasEllipse() {
		fmt.Fprintf(b, "- Localization ellipse: %s × %s arcsec\n", catalog.FormatFloat(r.EllipseA), catalog.FormatFloat(r.EllipseB))
	}
	fmt.Fprintf(b, "- Telescope: %s\n", r.Telescope)
	fmt.Fprintf(b, "- DM: %s pc cm⁻³\n", catalog.FormatFloat(&r.DM))
	fmt.Fprintf(b, "- z: %s\n", orNA(catalog.FormatFloat(r.Z)))
	if r.RM != nil {
		fmt.Fprintf(b, "- RM: %s rad m⁻²\n", catalog.FormatFloat(r.RM))
	}
	fmt.Fprintf(b, "- Repeater: %s\n", catalog.FormatRepeater(r.Repeater))
	for _, n := range e.Notes {
		fmt.Fprintf(b, "- Note: %s\n", n)
	}
	b.WriteString("- Sources:\n")
	for _, p := range e.Provenance {
		fmt.Fprintf(b, "  - %s (confidence %.2f)\n", link(p.DocumentID, p.URL), p.Confidence)
	}
	b.WriteString("\n")
}

func writeHeld(b *strings.Builder, held []domain.HeldCandidate) {
	for _, h := range held {
		line := fmt.Sprintf("- %s: %s", h.Name, h.Reason)
		if h.DuplicateOf != "" {
			line += fmt.Sprintf(" (duplicate of %s)", h.DuplicateOf)
		}
		fmt.Fprintf(b, "%s [%s]\n", line, link(h.DocumentID, h.URL))
	}
	b.WriteString("\n")
}

func link(text, url string) string {
	if url == "" {
		return text
	}
	return fmt.Sprintf("[%s](%s)", text, url)
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}
