package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Record is one data row keyed by its lower-cased, trimmed header strings.
// Cell values are string, float64, or nil (absent).
type Record map[string]any

// numberRe extracts the first signed decimal number from a string cell,
// e.g. "about 1,200 books" (after separator removal) -> "1200".
var numberRe = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)`)

// NormalizeRows converts a raw positional row batch into typed records. The
// first row supplies the header keys; each subsequent row maps positionally.
// Rows shorter than the header get nil for the missing trailing cells, and
// cells beyond the header are ignored. No row is dropped for a length
// mismatch.
func NormalizeRows(rows [][]any) []Record {
	if len(rows) == 0 {
		return nil
	}

	headers := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		headers[i] = strings.ToLower(strings.TrimSpace(CellString(cell)))
	}

	records := make([]Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		rec := make(Record, len(headers))
		for i, key := range headers {
			if key == "" {
				continue
			}
			if i < len(row) {
				rec[key] = row[i]
			} else {
				rec[key] = nil
			}
		}
		records = append(records, rec)
	}
	return records
}

// InferColumn returns the first alias present in the record's keys, trying
// candidates in the given priority order.
func InferColumn(rec Record, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if _, ok := rec[alias]; ok {
			return alias, true
		}
	}
	return "", false
}

// Ordered alias lists for the semantic fields a dataset may carry. Earlier
// aliases win when a sheet contains more than one candidate header.
var (
	ZipAliases       = []string{"zip", "zipcode", "zip code", "postal", "postal code", "zctas"}
	BooksAliases     = []string{"books", "# of books", "book count", "books distributed", "total books"}
	VolunteerAliases = []string{"volunteers", "# of volunteers", "volunteer count", "number of volunteers"}
	SchoolAliases    = []string{"school", "school name", "schools"}
	CountAliases     = []string{"count", "total", "quantity", "num"}
	AddressAliases   = []string{"address", "street address", "school address", "location"}
	NameAliases      = []string{"name", "school name", "school", "site name"}
	LatAliases       = []string{"lat", "latitude", "y", "coord_y"}
	LngAliases       = []string{"lng", "lon", "long", "longitude", "x", "coord_x"}
)

// CellString renders a cell as a string. Numeric cells print without an
// exponent and without a spurious trailing ".0" for whole values.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(v)
	}
}

// CoerceCount turns a count cell into a number. Numeric cells pass through.
// String cells have thousands separators removed and the first signed decimal
// number extracted; anything else, including nil, coerces to 0.
func CoerceCount(v any) float64 {
	switch x := v.(type) {
	case nil:
		return 0
	case float64:
		return x
	case int:
		return float64(x)
	case string:
		s := strings.ReplaceAll(x, ",", "")
		m := numberRe.FindString(s)
		if m == "" {
			return 0
		}
		n, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
