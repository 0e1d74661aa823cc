package domain

import (
	"regexp"
	"strings"
)

var nonDigitRe = regexp.MustCompile(`\D`)

// NormalizeZip canonicalizes an arbitrary zip cell to a 5-digit string.
// Non-digit characters are stripped (which also removes a spreadsheet
// artifact ".0" suffix), the first five digits are kept, and shorter values
// are left-padded with zeros to restore stripped leading zeros. A cell with
// no digits at all normalizes to "", the unresolvable sentinel.
//
// NormalizeZip is idempotent: a canonical 5-digit string passes through
// unchanged.
func NormalizeZip(v any) string {
	digits := nonDigitRe.ReplaceAllString(CellString(v), "")
	if digits == "" {
		return ""
	}
	if len(digits) > 5 {
		digits = digits[:5]
	}
	if len(digits) < 5 {
		digits = strings.Repeat("0", 5-len(digits)) + digits
	}
	return digits
}
