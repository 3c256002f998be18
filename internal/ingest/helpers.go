package ingest

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

var (
	spaceRe   = regexp.MustCompile(`\s+`)
	zipCityRe = regexp.MustCompile(`(\d{5})\s+(.+)$`)
	amountRe  = regexp.MustCompile(`\d[\d\s\x{00a0}.,]*`)

	stripPolicy = bluemonday.StrictPolicy()
)

// normalizeSpace collapses runs of whitespace (including non-breaking spaces)
// into single spaces and trims the result.
func normalizeSpace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

// cleanText strips any markup from scraped fragments and normalizes spacing.
func cleanText(s string) string {
	return normalizeSpace(stripPolicy.Sanitize(s))
}

// splitAddress breaks a one-line French address into street, zip and city.
// "12 rue des Lilas, 33000 Bordeaux" -> ("12 rue des Lilas", "33000", "Bordeaux").
// When no zip is found the whole string is returned as the street part.
func splitAddress(s string) (street, zip, city string) {
	s = normalizeSpace(s)
	m := zipCityRe.FindStringSubmatchIndex(s)
	if m == nil {
		return s, "", ""
	}
	street = strings.Trim(strings.TrimSpace(s[:m[2]]), ",")
	zip = s[m[2]:m[3]]
	city = strings.TrimSpace(s[m[4]:m[5]])
	return street, zip, city
}

// departmentFromZip derives the department number from a 5-digit postal code.
// Returns 0 when it cannot. Overseas codes (97x) use three digits.
func departmentFromZip(zip string) int {
	if len(zip) < 2 {
		return 0
	}
	if strings.HasPrefix(zip, "97") && len(zip) >= 3 {
		n, _ := strconv.Atoi(zip[:3])
		return n
	}
	n, _ := strconv.Atoi(zip[:2])
	return n
}

// parseEuroAmount extracts a numeric amount from strings like
// "Mise à prix : 150 000 €" or "152.500,00 EUR". Returns nil when no digits
// are present.
func parseEuroAmount(s string) *float64 {
	m := amountRe.FindString(s)
	if m == "" {
		return nil
	}
	m = strings.ReplaceAll(m, "\u00a0", "")
	m = strings.ReplaceAll(m, " ", "")
	// French notation: dot as thousands separator, comma as decimal mark.
	if strings.Contains(m, ",") {
		m = strings.ReplaceAll(m, ".", "")
		m = strings.Replace(m, ",", ".", 1)
	} else if strings.Count(m, ".") > 1 {
		m = strings.ReplaceAll(m, ".", "")
	}
	m = strings.Trim(m, ".,")
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return nil
	}
	return &v
}

var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
}

// parseFrenchDate tries the date layouts seen across the scraped sources.
func parseFrenchDate(s string) (time.Time, bool) {
	s = normalizeSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseIntPtr returns a pointer to the parsed integer, or nil for empty or
// unparseable input.
func parseIntPtr(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
