package domain

import "strings"

// DatasetKind identifies which logical dataset a row batch belongs to.
type DatasetKind string

const (
	KindRecipients DatasetKind = "recipients"
	KindVolunteers DatasetKind = "volunteers"
	KindSchools    DatasetKind = "schools"
	KindUnknown    DatasetKind = "unknown"
)

// Classify decides the dataset kind for a batch, headers first and filename
// keywords second. A batch whose headers are ambiguous (zero or more than one
// distinguishing column) falls back to the filename heuristic; if that also
// fails the batch stays KindUnknown and the caller discards it.
func Classify(records []Record, filename string) DatasetKind {
	if len(records) > 0 {
		if kind := ClassifyHeaders(records[0]); kind != KindUnknown {
			return kind
		}
	}
	return ClassifyFilename(filename)
}

// ClassifyHeaders detects the dataset kind from the presence of exactly one
// distinguishing column: a books column means recipients, a volunteers
// column means volunteers, a school column means schools. Zero or multiple
// matches return KindUnknown.
func ClassifyHeaders(rec Record) DatasetKind {
	var matched []DatasetKind
	if hasAnyColumn(rec, BooksAliases) {
		matched = append(matched, KindRecipients)
	}
	if hasAnyColumn(rec, VolunteerAliases) {
		matched = append(matched, KindVolunteers)
	}
	if hasAnyColumn(rec, SchoolAliases) {
		matched = append(matched, KindSchools)
	}
	if len(matched) != 1 {
		return KindUnknown
	}
	return matched[0]
}

// ClassifyFilename matches dataset keywords in a filename, used only when
// header detection is ambiguous.
func ClassifyFilename(filename string) DatasetKind {
	name := strings.ToLower(filename)
	switch {
	case strings.Contains(name, "recipient") || strings.Contains(name, "book"):
		return KindRecipients
	case strings.Contains(name, "volunteer"):
		return KindVolunteers
	case strings.Contains(name, "school"):
		return KindSchools
	default:
		return KindUnknown
	}
}

func hasAnyColumn(rec Record, aliases []string) bool {
	_, ok := InferColumn(rec, aliases)
	return ok
}
