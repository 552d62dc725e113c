package astro

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Model output and telegram text mix typographic primes, degree and minus
// signs with their ASCII forms. The replacer runs before NFKC, which would
// otherwise fold "º" to "o" and "˚" to a combining ring.
var symbolReplacer = strings.NewReplacer(
	"′′", `"`,
	"′", "'",
	"″", `"`,
	"−", "-",
	"–", "-",
	"—", "-",
	"º", "°",
	"˚", "°",
	"’", "'",
	"”", `"`,
)

// NormalizeText folds compatibility forms and typographic symbols to the
// ASCII-ish forms the coordinate and name parsers expect.
func NormalizeText(s string) string {
	return norm.NFKC.String(symbolReplacer.Replace(s))
}
