package domain

import (
	"context"
	"errors"
)

// ErrNoMatch reports that the geocoding service returned zero candidates
// for an address. It is not a transport failure; the address is simply
// unknown to the provider.
var ErrNoMatch = errors.New("no geocoding match")

// GeocodingResult is the first candidate returned by a geocoding provider.
type GeocodingResult struct {
	Lat         float64
	Lng         float64
	DisplayName string
}

// Geocoder resolves a free-text address to a point. Implementations return
// ErrNoMatch when the lookup succeeded but produced no candidates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (GeocodingResult, error)
}
