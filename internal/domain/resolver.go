package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SchoolPin is one successfully geocoded school site.
type SchoolPin struct {
	Point GeoPoint `json:"point"`
	Label string   `json:"label"`
}

// ResolveResult holds the pins and the per-record failure diagnostics of one
// school batch. Failed entries are a separate list from zip-unresolved
// diagnostics and are never merged with them.
type ResolveResult struct {
	Pins   []SchoolPin
	Failed []string
}

// AddressResolver geocodes school addresses strictly sequentially. The
// backing service enforces a minimum request interval that applies to the
// service as a whole, not to any one batch, so the resolver serializes
// batches and tracks the start time of the previous lookup across them:
// overlapping ResolveSchools calls queue up, and no two requests ever start
// less than minInterval apart.
type AddressResolver struct {
	geocoder    Geocoder
	clock       clockwork.Clock
	minInterval time.Duration
	logger      *slog.Logger

	mu       sync.Mutex // one batch at a time
	lastCall time.Time  // start of the previous lookup, zero before the first
}

// NewAddressResolver creates a resolver. Pass a nil clock to use real time.
func NewAddressResolver(geocoder Geocoder, clock clockwork.Clock, minInterval time.Duration, logger *slog.Logger) *AddressResolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &AddressResolver{
		geocoder:    geocoder,
		clock:       clock,
		minInterval: minInterval,
		logger:      logger,
	}
}

// ResolveSchools processes a school batch one record at a time. Records with
// an empty address never reach the geocoder; they are recorded as failed
// under the record's name (or "Unknown") without consuming a rate-limit
// slot. A lookup failure is recorded under "<name> (<address>)" and the
// batch continues. Each successful lookup yields one pin; records sharing an
// address are never collapsed.
//
// Batches are processed one at a time: a call made while another batch is
// in flight blocks until that batch finishes, and the inter-request gap is
// maintained across the boundary between them.
//
// On context cancellation the partial result is returned along with the
// context error.
func (r *AddressResolver) ResolveSchools(ctx context.Context, records []Record, addressCol, nameCol string) (ResolveResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result ResolveResult
	for _, rec := range records {
		name := strings.TrimSpace(CellString(rec[nameCol]))
		address := strings.TrimSpace(CellString(rec[addressCol]))

		if address == "" {
			result.Failed = append(result.Failed, failLabel(name, ""))
			continue
		}

		if err := r.waitTurn(ctx); err != nil {
			return result, err
		}
		r.lastCall = r.clock.Now()

		geo, err := r.geocoder.Geocode(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			if errors.Is(err, ErrNoMatch) {
				r.logger.Warn("geocode returned no match", "address", address)
			} else {
				r.logger.Warn("geocode failed", "address", address, "error", err)
			}
			result.Failed = append(result.Failed, failLabel(name, address))
			continue
		}

		label := name
		if label == "" {
			label = "School at " + address
		}
		result.Pins = append(result.Pins, SchoolPin{
			Point: GeoPoint{Lat: geo.Lat, Lng: geo.Lng},
			Label: label,
		})
	}
	return result, nil
}

// waitTurn blocks until at least minInterval has passed since the previous
// lookup started, however long ago that was and whichever batch issued it.
func (r *AddressResolver) waitTurn(ctx context.Context) error {
	if r.minInterval <= 0 || r.lastCall.IsZero() {
		return nil
	}
	remaining := r.minInterval - r.clock.Since(r.lastCall)
	if remaining <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.clock.After(remaining):
		return nil
	}
}

func failLabel(name, address string) string {
	if name == "" {
		name = "Unknown"
	}
	if address == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, address)
}
