package astro

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const arcsecPerDegree = 3600.0

var (
	ErrEmptyCoordinate = errors.New("astro: empty coordinate")
	errBadField        = errors.New("astro: malformed sexagesimal field")
	errMixedUnits      = errors.New("astro: mixed hour and degree markers")
)

// ParseRA converts a right ascension to decimal degrees. Plain numbers and
// anything marked with "°", "d" or "deg" are degrees; other sexagesimal forms
// ("10h00m00s", "10:00:00", "10 00 00") are hours. The result is not range
// checked.
func ParseRA(raw string) (float64, error) {
	s := strings.TrimSpace(NormalizeText(raw))
	if s == "" {
		return 0, ErrEmptyCoordinate
	}
	lower := strings.ToLower(s)
	inDegrees := strings.ContainsAny(lower, "°d")
	if inDegrees && strings.ContainsAny(lower, "h:") {
		return 0, fmt.Errorf("parse ra %q: %w", raw, errMixedUnits)
	}
	neg, fields, err := splitSexagesimal(lower)
	if err != nil {
		return 0, fmt.Errorf("parse ra %q: %w", raw, err)
	}
	v, err := combine(fields)
	if err != nil {
		return 0, fmt.Errorf("parse ra %q: %w", raw, err)
	}
	if neg {
		v = -v
	}
	if inDegrees || len(fields) == 1 && !strings.ContainsAny(lower, "h:") {
		return v, nil
	}
	return v * 15, nil
}

// ParseDec converts a declination to decimal degrees. The sign applies to the
// whole value so "-0 30 00" is -0.5.
func ParseDec(raw string) (float64, error) {
	s := strings.TrimSpace(NormalizeText(raw))
	if s == "" {
		return 0, ErrEmptyCoordinate
	}
	neg, fields, err := splitSexagesimal(strings.ToLower(s))
	if err != nil {
		return 0, fmt.Errorf("parse dec %q: %w", raw, err)
	}
	v, err := combine(fields)
	if err != nil {
		return 0, fmt.Errorf("parse dec %q: %w", raw, err)
	}
	if neg {
		v = -v
	}
	return v, nil
}

func splitSexagesimal(s string) (bool, []float64, error) {
	neg := false
	switch {
	case strings.HasPrefix(s, "-"):
		neg = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "deg")
	s = strings.Map(func(r rune) rune {
		switch r {
		case 'h', 'd', 'm', 's', ':', '°', '\'', '"':
			return ' '
		}
		return r
	}, s)
	parts := strings.Fields(s)
	if len(parts) == 0 || len(parts) > 3 {
		return false, nil, errBadField
	}
	values := make([]float64, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false, nil, errBadField
		}
		values = append(values, v)
	}
	return neg, values, nil
}

func combine(fields []float64) (float64, error) {
	for _, f := range fields[1:] {
		if f >= 60 {
			return 0, errBadField
		}
	}
	v := fields[0]
	if len(fields) > 1 {
		v += fields[1] / 60
	}
	if len(fields) > 2 {
		v += fields[2] / 3600
	}
	return v, nil
}

// ValidRA reports whether ra lies in [0, 360).
func ValidRA(ra float64) bool {
	return ra >= 0 && ra < 360 && !math.IsNaN(ra)
}

// ValidDec reports whether dec lies in [-90, 90].
func ValidDec(dec float64) bool {
	return dec >= -90 && dec <= 90 && !math.IsNaN(dec)
}

// SeparationArcsec is the great-circle distance between two positions, in
// arcseconds, using the haversine formula.
func SeparationArcsec(ra1, dec1, ra2, dec2 float64) float64 {
	lat1, lat2 := radians(dec1), radians(dec2)
	dLat := lat2 - lat1
	dLon := radians(ra2 - ra1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, math.Max(0, h))
	return degrees(2*math.Asin(math.Sqrt(h))) * arcsecPerDegree
}

// FormatRA renders decimal degrees as "HHhMMmSS.SSs".
func FormatRA(ra float64) string {
	total := ra / 15 * 3600
	h := math.Floor(total / 3600)
	m := math.Floor((total - h*3600) / 60)
	sec := total - h*3600 - m*60
	if sec >= 59.995 {
		sec = 0
		m++
	}
	if m >= 60 {
		m = 0
		h++
	}
	return fmt.Sprintf("%02.0fh%02.0fm%05.2fs", math.Mod(h, 24), m, sec)
}

// FormatDec renders decimal degrees as "+DD°MM'SS.S\"".
func FormatDec(dec float64) string {
	sign := "+"
	if dec < 0 {
		sign = "-"
		dec = -dec
	}
	total := dec * 3600
	d := math.Floor(total / 3600)
	m := math.Floor((total - d*3600) / 60)
	sec := total - d*3600 - m*60
	if sec >= 59.95 {
		sec = 0
		m++
	}
	if m >= 60 {
		m = 0
		d++
	}
	return fmt.Sprintf("%s%02.0f°%02.0f'%04.1f\"", sign, d, m, sec)
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }
func degrees(rad float64) float64 { return rad * 180 / math.Pi }
