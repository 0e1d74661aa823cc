package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MatthiasK31/bookem-heatmap/internal/centroid"
	"github.com/MatthiasK31/bookem-heatmap/internal/domain"
	"github.com/MatthiasK31/bookem-heatmap/internal/observability"
	"github.com/MatthiasK31/bookem-heatmap/internal/pipeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTable() *centroid.Table {
	return centroid.New(map[string]domain.GeoPoint{
		"37203": {Lat: 36.1495, Lng: -86.7965},
		"37206": {Lat: 36.1790, Lng: -86.7310},
	})
}

type stubGeocoder struct {
	results map[string]domain.GeocodingResult
}

func (g *stubGeocoder) Geocode(_ context.Context, address string) (domain.GeocodingResult, error) {
	if r, ok := g.results[address]; ok {
		return r, nil
	}
	return domain.GeocodingResult{}, errors.New("not found")
}

func newPipeline(geocoder domain.Geocoder) *pipeline.Pipeline {
	var resolver *domain.AddressResolver
	if geocoder != nil {
		// Interval 0 keeps tests fast; rate-limit behavior is covered by
		// the resolver's own tests.
		resolver = domain.NewAddressResolver(geocoder, nil, 0, testLogger())
	}
	return pipeline.New(testTable(), resolver, domain.DefaultGradient(), domain.DefaultHeatStyle(),
		testLogger(), observability.NewMetricsForTesting())
}

func TestProcess_Recipients(t *testing.T) {
	batch := pipeline.UploadBatch{
		Filename: "recipients.csv",
		Rows: [][]any{
			{"Zip", "Books"},
			{"37203", float64(10)},
			{"37203.0", float64(5)},
			{"99999", float64(3)},
		},
	}

	result, err := newPipeline(nil).Process(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, domain.KindRecipients, result.Kind)
	require.Len(t, result.HeatPoints, 1)
	assert.Equal(t, float64(15), result.HeatPoints[0].Count)
	assert.Equal(t, domain.GeoPoint{Lat: 36.1495, Lng: -86.7965}, result.HeatPoints[0].Point)
	assert.Equal(t, []string{"99999"}, result.UnresolvedZips)
	assert.Empty(t, result.Volunteers)
	assert.Empty(t, result.Schools)
}

func TestProcess_RecipientsWithDirectCoordinates(t *testing.T) {
	batch := pipeline.UploadBatch{
		Filename: "books.csv",
		Rows: [][]any{
			{"lat", "lng", "count"},
			{float64(36.15), float64(-86.80), float64(12)},
			{float64(36.18), float64(-86.73), float64(3)},
		},
	}

	result, err := newPipeline(nil).Process(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, domain.KindRecipients, result.Kind)
	assert.Len(t, result.HeatPoints, 2)
	assert.Empty(t, result.UnresolvedZips)
}

func TestProcess_Volunteers(t *testing.T) {
	batch := pipeline.UploadBatch{
		Filename: "volunteers.csv",
		Rows: [][]any{
			{"zip", "# of volunteers"},
			{"37203", float64(4)},
			{"37206", float64(2)},
			{"37206", float64(1)},
		},
	}

	result, err := newPipeline(nil).Process(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, domain.KindVolunteers, result.Kind)
	require.Len(t, result.Volunteers, 2)
	assert.Empty(t, result.HeatPoints, "volunteer counts are markers, not heat")

	// Aggregation output is sorted by zip, so 37203 comes first.
	assert.Equal(t, float64(4), result.Volunteers[0].Count)
	assert.Equal(t, float64(3), result.Volunteers[1].Count)
}

func TestProcess_Schools(t *testing.T) {
	geocoder := &stubGeocoder{results: map[string]domain.GeocodingResult{
		"123 Main St": {Lat: 36.1, Lng: -86.8},
	}}
	batch := pipeline.UploadBatch{
		Filename: "schools.csv",
		Rows: [][]any{
			{"School Name", "Address"},
			{"Park Ave Elementary", "123 Main St"},
			{"Lost School", "1 Nowhere Ln"},
		},
	}

	result, err := newPipeline(geocoder).Process(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, domain.KindSchools, result.Kind)
	require.Len(t, result.Schools, 1)
	assert.Equal(t, "Park Ave Elementary", result.Schools[0].Label)
	assert.Equal(t, []string{"Lost School (1 Nowhere Ln)"}, result.FailedSchools)
	assert.Empty(t, result.UnresolvedZips, "geocode failures never merge into zip diagnostics")
}

func TestProcess_SchoolsWithoutGeocoder(t *testing.T) {
	batch := pipeline.UploadBatch{
		Filename: "schools.csv",
		Rows: [][]any{
			{"school name", "address"},
			{"Park Ave", "123 Main St"},
		},
	}

	_, err := newPipeline(nil).Process(context.Background(), batch)
	require.ErrorIs(t, err, pipeline.ErrGeocodingDisabled)
}

func TestProcess_Unclassifiable(t *testing.T) {
	batch := pipeline.UploadBatch{
		Filename: "mystery.csv",
		Rows: [][]any{
			{"zip", "count"},
			{"37203", float64(1)},
		},
	}

	result, err := newPipeline(nil).Process(context.Background(), batch)
	require.ErrorIs(t, err, pipeline.ErrUnclassified)
	assert.Equal(t, domain.KindUnknown, result.Kind)
}

func TestProcess_RecipientsMissingZipColumn(t *testing.T) {
	batch := pipeline.UploadBatch{
		Filename: "books.csv",
		Rows: [][]any{
			{"city", "books"},
			{"Nashville", float64(10)},
		},
	}

	_, err := newPipeline(nil).Process(context.Background(), batch)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no zip or coordinate columns")
}

func TestProcess_EmptyBatchWithFilenameHint(t *testing.T) {
	result, err := newPipeline(nil).Process(context.Background(), pipeline.UploadBatch{
		Filename: "recipients.csv",
		Rows:     [][]any{{"zip", "books"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.KindRecipients, result.Kind)
	assert.Empty(t, result.HeatPoints)
}

func TestProcessGroup_RecipientFilesAggregate(t *testing.T) {
	batches := []pipeline.UploadBatch{
		{
			Filename: "recipients-jan.csv",
			Rows: [][]any{
				{"Zip", "Books"},
				{"37203", float64(10)},
				{"99999", float64(3)},
			},
		},
		{
			Filename: "recipients-feb.csv",
			Rows: [][]any{
				{"Zip", "Books"},
				{"37203", float64(5)},
				{"37206", float64(4)},
			},
		},
	}

	result, err := newPipeline(nil).ProcessGroup(context.Background(), batches)
	require.NoError(t, err)

	assert.Equal(t, domain.KindRecipients, result.Kind)
	require.Len(t, result.HeatPoints, 2, "both files' zips contribute points")

	counts := map[domain.GeoPoint]float64{}
	for _, p := range result.HeatPoints {
		counts[p.Point] = p.Count
	}
	assert.Equal(t, float64(15), counts[domain.GeoPoint{Lat: 36.1495, Lng: -86.7965}],
		"counts for the same zip sum across files")
	assert.Equal(t, float64(4), counts[domain.GeoPoint{Lat: 36.1790, Lng: -86.7310}])
	assert.Equal(t, []string{"99999"}, result.UnresolvedZips)
}

func TestProcessGroup_NormalizationSpansAllFiles(t *testing.T) {
	// With per-file processing the lone zip in each file would always
	// render at intensity 1; grouped, the min and max span the files.
	batches := []pipeline.UploadBatch{
		{Filename: "recipients-a.csv", Rows: [][]any{{"Zip", "Books"}, {"37203", float64(1)}}},
		{Filename: "recipients-b.csv", Rows: [][]any{{"Zip", "Books"}, {"37206", float64(100)}}},
	}

	result, err := newPipeline(nil).ProcessGroup(context.Background(), batches)
	require.NoError(t, err)
	require.Len(t, result.HeatPoints, 2)

	intensities := map[float64]float64{}
	for _, p := range result.HeatPoints {
		intensities[p.Count] = p.Intensity
	}
	assert.Equal(t, float64(0), intensities[1])
	assert.Equal(t, float64(1), intensities[100])
}

func TestProcessGroup_MixedKindsRejected(t *testing.T) {
	batches := []pipeline.UploadBatch{
		{Filename: "recipients.csv", Rows: [][]any{{"Zip", "Books"}, {"37203", float64(1)}}},
		{Filename: "volunteers.csv", Rows: [][]any{{"Zip", "Volunteers"}, {"37203", float64(2)}}},
	}

	_, err := newPipeline(nil).ProcessGroup(context.Background(), batches)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "classified as volunteers")
}

func TestProcessGroup_SchoolFilesConcatenate(t *testing.T) {
	geocoder := &stubGeocoder{results: map[string]domain.GeocodingResult{
		"1 First Ave":  {Lat: 36.1, Lng: -86.8},
		"2 Second Ave": {Lat: 36.2, Lng: -86.7},
	}}

	batches := []pipeline.UploadBatch{
		{Filename: "schools-a.csv", Rows: [][]any{
			{"School Name", "Address"},
			{"North", "1 First Ave"},
		}},
		{Filename: "schools-b.csv", Rows: [][]any{
			{"School Name", "Address"},
			{"South", "2 Second Ave"},
			{"Lost", "9 Nowhere Ln"},
		}},
	}

	result, err := newPipeline(geocoder).ProcessGroup(context.Background(), batches)
	require.NoError(t, err)

	assert.Equal(t, domain.KindSchools, result.Kind)
	require.Len(t, result.Schools, 2)
	assert.Equal(t, []string{"Lost (9 Nowhere Ln)"}, result.FailedSchools)
}

func TestProcessGroup_SingleFileMatchesProcess(t *testing.T) {
	batch := pipeline.UploadBatch{
		Filename: "recipients.csv",
		Rows: [][]any{
			{"Zip", "Books"},
			{"37203", float64(10)},
		},
	}

	single, err := newPipeline(nil).Process(context.Background(), batch)
	require.NoError(t, err)
	grouped, err := newPipeline(nil).ProcessGroup(context.Background(), []pipeline.UploadBatch{batch})
	require.NoError(t, err)

	assert.Equal(t, single, grouped)
}
