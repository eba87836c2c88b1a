package core

// cell.go normalizes raw cell strings into the canonical display form used
// in the output document:
//   - dates    -> ISO date string (2006-01-02)
//   - numbers  -> minimal decimal representation (no trailing zeros)
//   - booleans -> "True" / "False" literals
//   - empty    -> empty string
//
// Normalization is deterministic and locale-independent: the same raw value
// always yields the same output regardless of host settings.

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// cellNumericRegex validates that a string is a plain numeric literal.
// Matches integers, decimals, and scientific notation.
var cellNumericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// Date layouts recognized in cell values. Excel renders dates differently
// depending on the cell style, so several common layouts are accepted; all
// are re-emitted as ISO.
var cellDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01-02-06",
	"1/2/06",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"2006-01-02 15:04:05",
	"1/2/06 15:04",
}

// isoDate is the canonical output layout for date cells.
const isoDate = "2006-01-02"

// NormalizeCell converts a raw cell string into its canonical display form.
// Values that are neither dates, numbers, nor booleans pass through with
// surrounding whitespace trimmed.
func NormalizeCell(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	switch strings.ToUpper(s) {
	case "TRUE":
		return "True"
	case "FALSE":
		return "False"
	}

	if cellNumericRegex.MatchString(s) {
		return normalizeNumber(s)
	}

	if iso, ok := normalizeDate(s); ok {
		return iso
	}

	return s
}

// normalizeNumber renders a numeric literal with the fewest digits that
// round-trip: "100" stays "100", "100.50" becomes "100.5", "1e3" becomes
// "1000". Unparseable input is returned unchanged.
func normalizeNumber(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// normalizeDate tries the recognized layouts in order and re-emits the first
// match as an ISO date string.
func normalizeDate(s string) (string, bool) {
	for _, layout := range cellDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(isoDate), true
		}
	}
	return "", false
}
