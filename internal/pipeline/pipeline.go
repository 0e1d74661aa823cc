// Package pipeline orchestrates one upload batch through normalization,
// classification, aggregation or address resolution, and heat rendering.
// The pipeline itself is stateless: it owns its intermediate mappings only
// for the duration of a single Process call and returns immutable results;
// all display bookkeeping lives with the caller.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/MatthiasK31/bookem-heatmap/internal/centroid"
	"github.com/MatthiasK31/bookem-heatmap/internal/domain"
	"github.com/MatthiasK31/bookem-heatmap/internal/observability"
)

// ErrUnclassified marks a batch whose headers and filename both fail to
// indicate a dataset type. The whole file is discarded; nothing is partially
// ingested.
var ErrUnclassified = errors.New("dataset could not be classified")

// ErrGeocodingDisabled marks a school batch arriving while no geocoder is
// configured.
var ErrGeocodingDisabled = errors.New("school geocoding is disabled")

// UploadBatch is one uploaded file: raw positional rows (header row first)
// plus the filename used by the classification fallback.
type UploadBatch struct {
	Filename string
	Rows     [][]any
}

// OverlayResult is the immutable outcome of processing one batch. Only the
// fields matching Kind are populated.
type OverlayResult struct {
	Kind domain.DatasetKind

	HeatPoints []domain.RenderedHeatPoint
	Volunteers []domain.VolunteerMarker
	Schools    []domain.SchoolPin

	// Diagnostics for direct user-facing display. UnresolvedZips and
	// FailedSchools are separate lists and never merged.
	UnresolvedZips []string
	FailedSchools  []string
}

// Overlay is the full renderer-facing collection set, assembled by the
// caller from the latest OverlayResult per dataset kind.
type Overlay struct {
	HeatPoints     []domain.RenderedHeatPoint `json:"heatPoints"`
	Volunteers     []domain.VolunteerMarker   `json:"volunteers"`
	Schools        []domain.SchoolPin         `json:"schools"`
	UnresolvedZips []string                   `json:"unresolvedZips"`
	FailedSchools  []string                   `json:"failedSchools"`
}

// Pipeline turns upload batches into overlay results.
type Pipeline struct {
	table    *centroid.Table
	resolver *domain.AddressResolver // nil when geocoding is disabled
	gradient domain.Gradient
	style    domain.HeatStyle
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// New creates a Pipeline. Pass a nil resolver to reject school batches.
func New(table *centroid.Table, resolver *domain.AddressResolver, gradient domain.Gradient, style domain.HeatStyle, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		table:    table,
		resolver: resolver,
		gradient: gradient,
		style:    style,
		logger:   logger,
		metrics:  metrics,
	}
}

// GeocodingEnabled reports whether school batches can be resolved.
func (p *Pipeline) GeocodingEnabled() bool {
	return p.resolver != nil
}

// Process runs one batch to completion. Classification failures return
// ErrUnclassified; every other problem is contained per record and surfaced
// through the result's diagnostic lists rather than an error.
func (p *Pipeline) Process(ctx context.Context, batch UploadBatch) (OverlayResult, error) {
	start := time.Now()
	defer func() {
		p.metrics.UploadDuration.Observe(time.Since(start).Seconds())
	}()

	records := domain.NormalizeRows(batch.Rows)
	kind := domain.Classify(records, batch.Filename)
	p.metrics.DatasetsClassified.WithLabelValues(string(kind)).Inc()

	switch kind {
	case domain.KindRecipients:
		return p.processRecipients(records, batch.Filename)
	case domain.KindVolunteers:
		return p.processVolunteers(records, batch.Filename)
	case domain.KindSchools:
		return p.processSchools(ctx, records, batch.Filename)
	default:
		p.logger.Warn("discarding unclassifiable batch", "filename", batch.Filename, "rows", len(records))
		return OverlayResult{Kind: domain.KindUnknown}, ErrUnclassified
	}
}

// ProcessGroup runs several uploads of one dataset kind as a single logical
// batch. Datasets are routinely split across files, and counts split that
// way must aggregate before heat rendering; processing the files as
// independent uploads would leave each one's normalization ignorant of the
// others' counts, and a replace-wholesale store would keep only the last
// file. Every batch must classify to the same kind or the group fails.
func (p *Pipeline) ProcessGroup(ctx context.Context, batches []UploadBatch) (OverlayResult, error) {
	if len(batches) == 0 {
		return OverlayResult{Kind: domain.KindUnknown}, ErrUnclassified
	}
	if len(batches) == 1 {
		return p.Process(ctx, batches[0])
	}

	kind := domain.Classify(domain.NormalizeRows(batches[0].Rows), batches[0].Filename)
	switch kind {
	case domain.KindRecipients, domain.KindVolunteers:
		return p.processCountedGroup(kind, batches)
	case domain.KindSchools:
		return p.processSchoolGroup(ctx, batches)
	default:
		p.logger.Warn("discarding unclassifiable group", "filename", batches[0].Filename)
		return OverlayResult{Kind: domain.KindUnknown}, ErrUnclassified
	}
}

// processCountedGroup merges the per-file observations by point before a
// single heat rendering, so min-max normalization spans the whole group.
func (p *Pipeline) processCountedGroup(kind domain.DatasetKind, batches []UploadBatch) (OverlayResult, error) {
	start := time.Now()
	defer func() {
		p.metrics.UploadDuration.Observe(time.Since(start).Seconds())
	}()

	primary := domain.BooksAliases
	if kind == domain.KindVolunteers {
		primary = domain.VolunteerAliases
	}

	sums := make(map[domain.GeoPoint]float64)
	var order []domain.GeoPoint
	unresolvedSet := make(map[string]struct{})
	totalRows := 0

	for _, batch := range batches {
		records := domain.NormalizeRows(batch.Rows)
		got := domain.Classify(records, batch.Filename)
		p.metrics.DatasetsClassified.WithLabelValues(string(got)).Inc()
		if got != kind {
			return OverlayResult{Kind: kind},
				fmt.Errorf("%s: classified as %s, expected %s", batch.Filename, got, kind)
		}

		countCol := p.countColumn(records, primary)
		observations, unresolved, err := p.observations(records, countCol, batch.Filename)
		if err != nil {
			return OverlayResult{Kind: kind}, err
		}
		for _, obs := range observations {
			if _, seen := sums[obs.Point]; !seen {
				order = append(order, obs.Point)
			}
			sums[obs.Point] += obs.Count
		}
		for _, zip := range unresolved {
			unresolvedSet[zip] = struct{}{}
		}
		p.metrics.RowsIngested.WithLabelValues(string(kind)).Add(float64(len(records)))
		totalRows += len(records)
	}

	merged := make([]domain.HeatObservation, 0, len(order))
	for _, point := range order {
		merged = append(merged, domain.HeatObservation{Point: point, Count: sums[point]})
	}
	unresolved := make([]string, 0, len(unresolvedSet))
	for zip := range unresolvedSet {
		unresolved = append(unresolved, zip)
	}
	sort.Strings(unresolved)

	result := OverlayResult{Kind: kind, UnresolvedZips: unresolved}
	switch kind {
	case domain.KindRecipients:
		result.HeatPoints = domain.RenderHeat(merged, p.gradient, p.style)
		p.metrics.HeatPointsRendered.Set(float64(len(result.HeatPoints)))
	case domain.KindVolunteers:
		markers := make([]domain.VolunteerMarker, 0, len(merged))
		for _, obs := range merged {
			markers = append(markers, domain.VolunteerMarker{Point: obs.Point, Count: obs.Count})
		}
		result.Volunteers = markers
	}

	p.logEvent(kind, fmt.Sprintf("%d files", len(batches)), totalRows, len(order), len(unresolved))
	return result, nil
}

// processSchoolGroup resolves each file in turn and concatenates pins and
// failures; school records never aggregate across rows, so no merge beyond
// concatenation is needed.
func (p *Pipeline) processSchoolGroup(ctx context.Context, batches []UploadBatch) (OverlayResult, error) {
	merged := OverlayResult{Kind: domain.KindSchools}
	for _, batch := range batches {
		result, err := p.Process(ctx, batch)
		if err != nil {
			return merged, err
		}
		if result.Kind != domain.KindSchools {
			return merged, fmt.Errorf("%s: classified as %s, expected %s",
				batch.Filename, result.Kind, domain.KindSchools)
		}
		merged.Schools = append(merged.Schools, result.Schools...)
		merged.FailedSchools = append(merged.FailedSchools, result.FailedSchools...)
	}
	return merged, nil
}

func (p *Pipeline) processRecipients(records []domain.Record, filename string) (OverlayResult, error) {
	countCol := p.countColumn(records, domain.BooksAliases)

	observations, unresolved, err := p.observations(records, countCol, filename)
	if err != nil {
		return OverlayResult{Kind: domain.KindRecipients}, err
	}

	result := OverlayResult{
		Kind:           domain.KindRecipients,
		HeatPoints:     domain.RenderHeat(observations, p.gradient, p.style),
		UnresolvedZips: unresolved,
	}

	p.metrics.RowsIngested.WithLabelValues(string(domain.KindRecipients)).Add(float64(len(records)))
	p.metrics.HeatPointsRendered.Set(float64(len(result.HeatPoints)))
	p.logEvent(domain.KindRecipients, filename, len(records), len(result.HeatPoints), len(unresolved))
	return result, nil
}

func (p *Pipeline) processVolunteers(records []domain.Record, filename string) (OverlayResult, error) {
	countCol := p.countColumn(records, domain.VolunteerAliases)

	observations, unresolved, err := p.observations(records, countCol, filename)
	if err != nil {
		return OverlayResult{Kind: domain.KindVolunteers}, err
	}

	markers := make([]domain.VolunteerMarker, 0, len(observations))
	for _, obs := range observations {
		markers = append(markers, domain.VolunteerMarker{Point: obs.Point, Count: obs.Count})
	}

	p.metrics.RowsIngested.WithLabelValues(string(domain.KindVolunteers)).Add(float64(len(records)))
	p.logEvent(domain.KindVolunteers, filename, len(records), len(markers), len(unresolved))
	return OverlayResult{
		Kind:           domain.KindVolunteers,
		Volunteers:     markers,
		UnresolvedZips: unresolved,
	}, nil
}

// observations aggregates a counted batch to points, preferring direct
// lat/lng columns when the sheet carries them and falling back to zip
// centroid resolution otherwise.
func (p *Pipeline) observations(records []domain.Record, countCol, filename string) ([]domain.HeatObservation, []string, error) {
	if len(records) == 0 {
		return nil, nil, nil
	}

	latCol, latOK := domain.InferColumn(records[0], domain.LatAliases)
	lngCol, lngOK := domain.InferColumn(records[0], domain.LngAliases)
	if latOK && lngOK {
		return domain.ObservationsFromCoordinates(records, latCol, lngCol, countCol), nil, nil
	}

	zipCol, ok := domain.InferColumn(records[0], domain.ZipAliases)
	if !ok {
		return nil, nil, fmt.Errorf("%s: no zip or coordinate columns found", filename)
	}

	agg := domain.AggregateByZip(records, zipCol, countCol, p.table)
	p.metrics.UnresolvedZips.Add(float64(len(agg.Unresolved)))
	p.countMalformed(records, zipCol)
	return agg.Observations, agg.Unresolved, nil
}

func (p *Pipeline) processSchools(ctx context.Context, records []domain.Record, filename string) (OverlayResult, error) {
	if p.resolver == nil {
		return OverlayResult{Kind: domain.KindSchools}, ErrGeocodingDisabled
	}
	if len(records) == 0 {
		return OverlayResult{Kind: domain.KindSchools}, nil
	}

	addressCol, ok := domain.InferColumn(records[0], domain.AddressAliases)
	if !ok {
		return OverlayResult{Kind: domain.KindSchools}, fmt.Errorf("%s: no address column found", filename)
	}
	nameCol, _ := domain.InferColumn(records[0], domain.NameAliases)

	resolved, err := p.resolver.ResolveSchools(ctx, records, addressCol, nameCol)
	if err != nil {
		return OverlayResult{Kind: domain.KindSchools}, err
	}

	p.metrics.RowsIngested.WithLabelValues(string(domain.KindSchools)).Add(float64(len(records)))
	p.logEvent(domain.KindSchools, filename, len(records), len(resolved.Pins), len(resolved.Failed))
	return OverlayResult{
		Kind:          domain.KindSchools,
		Schools:       resolved.Pins,
		FailedSchools: resolved.Failed,
	}, nil
}

// countColumn picks the dataset's count column, trying the distinguishing
// aliases first and the generic count aliases second. An absent column
// coerces every count to 0, which renders nothing; that is the correct
// outcome for a sheet with no counts at all.
func (p *Pipeline) countColumn(records []domain.Record, primary []string) string {
	if len(records) == 0 {
		return ""
	}
	if col, ok := domain.InferColumn(records[0], primary); ok {
		return col
	}
	col, _ := domain.InferColumn(records[0], domain.CountAliases)
	return col
}

func (p *Pipeline) countMalformed(records []domain.Record, zipCol string) {
	for _, rec := range records {
		if domain.NormalizeZip(rec[zipCol]) == "" {
			p.metrics.MalformedKeys.Inc()
		}
	}
}

func (p *Pipeline) logEvent(kind domain.DatasetKind, filename string, rows, resolved, diagnostics int) {
	p.logger.Info("batch processed",
		"dataset", string(kind),
		"filename", filename,
		"rows", rows,
		"resolved", resolved,
		"diagnostics", diagnostics,
	)
}
