package domain

import (
	"sort"
	"strconv"
	"strings"
)

// GeoPoint is a WGS-84 coordinate pair in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HeatObservation is one aggregated (location, count) pair feeding the heat
// model. Observations are built once per aggregation key per run and never
// mutated afterward.
type HeatObservation struct {
	Point GeoPoint `json:"point"`
	Count float64  `json:"count"`
}

// VolunteerMarker is one map marker per resolved volunteer zip, carrying the
// summed volunteer count for that zip.
type VolunteerMarker struct {
	Point GeoPoint `json:"point"`
	Count float64  `json:"count"`
}

// CentroidSource resolves a normalized 5-digit zip to its area centroid.
type CentroidSource interface {
	Lookup(zip string) (GeoPoint, bool)
}

// AggregateResult is the output of zip aggregation: one observation per
// resolved zip plus the zips that had no known centroid, sorted ascending
// for deterministic display.
type AggregateResult struct {
	Observations []HeatObservation
	Unresolved   []string
}

// AggregateByZip groups a batch by normalized zip, sums the coerced counts,
// and resolves each zip through the centroid source. Records whose zip cell
// normalizes to the empty sentinel are malformed keys: they contribute to
// neither the aggregate nor the unresolved list. Zips without a centroid go
// to Unresolved and never receive a substitute location.
func AggregateByZip(records []Record, zipCol, countCol string, centroids CentroidSource) AggregateResult {
	sums := make(map[string]float64)
	for _, rec := range records {
		zip := NormalizeZip(rec[zipCol])
		if zip == "" {
			continue
		}
		sums[zip] += CoerceCount(rec[countCol])
	}

	zips := make([]string, 0, len(sums))
	for zip := range sums {
		zips = append(zips, zip)
	}
	sort.Strings(zips)

	var result AggregateResult
	for _, zip := range zips {
		point, ok := centroids.Lookup(zip)
		if !ok {
			result.Unresolved = append(result.Unresolved, zip)
			continue
		}
		result.Observations = append(result.Observations, HeatObservation{
			Point: point,
			Count: sums[zip],
		})
	}
	return result
}

// ObservationsFromCoordinates builds observations from a batch whose records
// already carry latitude/longitude columns, bypassing centroid resolution.
// Rows with an unparseable coordinate are skipped.
func ObservationsFromCoordinates(records []Record, latCol, lngCol, countCol string) []HeatObservation {
	var observations []HeatObservation
	for _, rec := range records {
		lat, latErr := parseCoordinate(rec[latCol])
		lng, lngErr := parseCoordinate(rec[lngCol])
		if latErr != nil || lngErr != nil {
			continue
		}
		observations = append(observations, HeatObservation{
			Point: GeoPoint{Lat: lat, Lng: lng},
			Count: CoerceCount(rec[countCol]),
		})
	}
	return observations
}

func parseCoordinate(v any) (float64, error) {
	if f, ok := v.(float64); ok {
		return f, nil
	}
	return strconv.ParseFloat(strings.TrimSpace(CellString(v)), 64)
}
