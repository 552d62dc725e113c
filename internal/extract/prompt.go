package extract

import (
	"fmt"
	"strings"

	"FRBScanner/internal/domain"
)

// SystemPrompt fixes the output contract the extractor enforces.
const SystemPrompt = `You are an expert radio astronomer curating a catalog of localized Fast Radio Bursts (FRBs).
From the document you are given, extract every FRB that has a localization precise enough to associate it with a host galaxy (arcsecond-level position, host association or redshift).

Answer with a JSON array and nothing else. Each element is an object with exactly these keys:
  "name"       TNS designation such as "FRB20230101A"
  "ra"         right ascension, decimal degrees (number) or sexagesimal string such as "10h00m00s"
  "dec"        declination, decimal degrees (number) or sexagesimal string such as "-09d00m00s"
  "dm"         dispersion measure in pc cm^-3, or null
  "z"          redshift, or null
  "ee_a"       localization ellipse semi-major axis in arcsec, or null
  "ee_b"       localization ellipse semi-minor axis in arcsec, or null
  "rm"         rotation measure in rad m^-2, or null
  "repeater"   true, false, or null when unknown
  "telescope"  detecting instrument, or null
  "refs"       list of references (ATel numbers, arXiv ids, DOIs)
  "confidence" number between 0 and 1 expressing how sure you are that the values are correct
  "excerpt"    the sentence(s) of the document the values were read from

Do not invent values. If the document reports no localized FRB, answer [].`

// BuildPrompt renders the user turn for one document.
func BuildPrompt(doc domain.SourceDocument) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Document: %s (%s)\n", doc.ID, doc.Origin)
	if doc.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", doc.URL)
	}
	if doc.Title != "" {
		fmt.Fprintf(&b, "Title: %s\n", doc.Title)
	}
	if doc.Authors != "" {
		fmt.Fprintf(&b, "Authors: %s\n", doc.Authors)
	}
	if !doc.PublishedAt.IsZero() {
		fmt.Fprintf(&b, "Published: %s\n", doc.PublishedAt.Format("2006-01-02"))
	}
	b.WriteString("\n")
	b.WriteString(doc.RawText)
	return b.String()
}
