// Package domain models book-distribution outreach data and its map overlay.
//
// # Data Source
//
// Outreach records arrive as spreadsheet exports (CSV or XLSX) produced by
// program coordinators. Three logical datasets exist, each optionally split
// across several files:
//
//	recipients: books distributed per postal code
//	volunteers: volunteer counts per postal code
//	schools:    partner school sites keyed by street address
//
// Header casing, ordering, and exact column names vary between exports, so
// every semantic field carries an ordered alias list (e.g. the zip column may
// be "zip", "zipcode", "postal code", or "zctas"). Which dataset a file
// represents is detected from its distinguishing count column first and from
// filename keywords second; a file matching neither is discarded whole.
//
// # Postal Code Conventions
//
// Zip cells are messy: spreadsheet tools render them as numbers, append a
// trailing ".0", or strip leading zeros. [NormalizeZip] canonicalizes any cell
// to exactly five digits by removing non-digit characters, keeping the first
// five, and left-padding with zeros. An empty cell normalizes to the empty
// string, which is the "unresolvable" sentinel, never to "00000".
//
// Normalized zips resolve to area centroids through a read-only table (see
// the centroid package). A zip with no known centroid is surfaced in the
// unresolved diagnostic list; it never receives a substitute location.
//
// # Heat Scaling
//
// Aggregated counts span several orders of magnitude, so the rendered field
// uses log-compressed min-max normalization:
//
//	intensity = (ln(count - min + 1) / ln(range + 1)) ^ 1.25
//
// When every count is equal the range is zero and all points render at full
// intensity. The 1.25 exponent suppresses low-end visual noise. Color comes
// from a three-stop gradient blended in RGB space; radius is a fixed
// real-world base scaled linearly with intensity. [MetersPerPixel] converts
// real-world radius to screen pixels for the standard Web-Mercator tile
// pyramid and is pure so the renderer can recompute it on every pan or zoom.
//
// # Geocoding
//
// School addresses are resolved through a Nominatim-style service that
// enforces an absolute one-request-per-second limit. [AddressResolver]
// therefore processes addresses strictly in sequence with a minimum
// inter-request gap (1.1 s by default), and a failed lookup is recorded as a
// diagnostic rather than aborting the batch.
package domain
