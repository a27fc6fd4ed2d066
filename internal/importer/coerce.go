package importer

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	dateLayouts = []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006/01/02",
		"02/01/2006",
		"01/02/2006",
		"2/1/2006",
		"02-01-2006",
		"2-1-2006",
	}

	// monthAbbrevs backs the compact "1-Sep" date shape field teams write
	// when the year is implied.
	monthAbbrevs = map[string]time.Month{
		"jan": time.January,
		"feb": time.February,
		"mar": time.March,
		"apr": time.April,
		"may": time.May,
		"jun": time.June,
		"jul": time.July,
		"aug": time.August,
		"sep": time.September,
		"oct": time.October,
		"nov": time.November,
		"dec": time.December,
	}

	truthyTokens = map[string]bool{
		"yes":  true,
		"true": true,
	}
)

// ParseDate interprets raw as a calendar date. It tries, in order: the
// known full layouts, then the compact day-monthAbbrev shape ("1-Sep",
// "01 sep") assumed to fall in now's calendar year. When nothing matches
// it returns def; the boolean reports whether raw itself parsed. An empty
// raw is a clean default, not a parse failure.
func ParseDate(raw string, def time.Time, now time.Time) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, true
	}

	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}

	if ts, ok := parseDayMonth(raw, now.Year()); ok {
		return ts, true
	}

	return def, false
}

// parseDayMonth handles the "1-Sep" shape: one or two day digits, a
// separator, and a three letter month abbreviation.
func parseDayMonth(raw string, year int) (time.Time, bool) {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == '-' || r == '/' || r == ' '
	})
	if len(parts) != 2 {
		return time.Time{}, false
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil || day < 1 || day > 31 {
		return time.Time{}, false
	}

	month, ok := monthAbbrevs[strings.ToLower(parts[1])]
	if !ok {
		return time.Time{}, false
	}

	date := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if date.Day() != day {
		// Day overflowed the month, e.g. "31-Feb".
		return time.Time{}, false
	}
	return date, true
}

// ParseCount parses a non-negative integer count. Blank input and parse
// failures both yield 0; the boolean reports whether raw itself parsed
// (blank counts as parsed, it is ordinary sparse data).
func ParseCount(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n, true
	}
	// Sheets frequently store counts as floats ("42.0").
	if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 {
		return int(f), true
	}
	return 0, false
}

// ParseDecimal parses a float the same way ParseCount parses integers.
func ParseDecimal(raw string) (float64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f, true
	}
	return 0, false
}

// ParseTruthy reports whether raw is one of the accepted truthy tokens.
// Everything else, including blank, is false.
func ParseTruthy(raw string) bool {
	return truthyTokens[strings.ToLower(strings.TrimSpace(raw))]
}

// PhoneProfile describes the national numbering plan used to rewrite
// local phone shapes into international form.
type PhoneProfile struct {
	// CountryCode without the plus, e.g. "966".
	CountryCode string
	// MobilePrefix is the first digit of a bare local mobile number.
	MobilePrefix string
	// TrunkPrefix is the dialing prefix local numbers start with, e.g. "0".
	TrunkPrefix string
}

// DefaultPhoneProfile matches the program's home numbering plan.
func DefaultPhoneProfile() PhoneProfile {
	return PhoneProfile{CountryCode: "966", MobilePrefix: "5", TrunkPrefix: "0"}
}

// NormalizePhone rewrites common local phone shapes into +<country>...
// form: a 9 digit mobile gets the country code prepended, a 10 digit
// number with the trunk prefix loses it before the country code is
// prepended, and 12-13 digit numbers that already carry the country code
// just gain the plus. Values with a leading plus or an unrecognized shape
// pass through unchanged.
func NormalizePhone(raw string, profile PhoneProfile) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "+") {
		return trimmed
	}

	digits := digitsOnly(trimmed)
	switch {
	case len(digits) == 9 && strings.HasPrefix(digits, profile.MobilePrefix):
		return "+" + profile.CountryCode + digits
	case len(digits) == 10 && strings.HasPrefix(digits, profile.TrunkPrefix):
		return "+" + profile.CountryCode + digits[len(profile.TrunkPrefix):]
	case (len(digits) == 12 || len(digits) == 13) && strings.HasPrefix(digits, profile.CountryCode):
		return "+" + digits
	default:
		return trimmed
	}
}

// digitsOnly keeps the digit runes of value, translating Arabic-Indic
// digits to ASCII so numbers typed on Arabic keyboards normalize too.
func digitsOnly(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		case r >= '۰' && r <= '۹':
			b.WriteRune('0' + (r - '۰'))
		}
	}
	return b.String()
}
