package astro

import (
	"regexp"
	"strings"
)

var (
	tnsName    = regexp.MustCompile(`^FRB\d{8}[A-Z]{1,3}$`)
	bareTNSish = regexp.MustCompile(`^\d{8}[A-Z]{1,3}$`)
)

// NormalizeName maps the spellings seen in telegrams and model output
// ("FRB 20230101A", "frb20230101a", "20230101A") to the catalog form
// "FRB20230101A". Names that do not look like FRB designations are only
// trimmed and upper-cased.
func NormalizeName(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(NormalizeText(raw)))
	s = strings.Join(strings.Fields(s), "")
	if bareTNSish.MatchString(s) {
		s = "FRB" + s
	}
	return s
}

// IsTNSName reports whether name is a normalized TNS-style FRB designation.
func IsTNSName(name string) bool {
	return tnsName.MatchString(name)
}
