package domain

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testObservations(counts ...float64) []HeatObservation {
	obs := make([]HeatObservation, len(counts))
	for i, c := range counts {
		obs[i] = HeatObservation{
			Point: GeoPoint{Lat: 36.1 + float64(i)*0.01, Lng: -86.8},
			Count: c,
		}
	}
	return obs
}

func TestRenderHeat_ZeroCountExcluded(t *testing.T) {
	points := RenderHeat(testObservations(0, 10, 0, 5), DefaultGradient(), DefaultHeatStyle())
	require.Len(t, points, 2)
	for _, p := range points {
		assert.Greater(t, p.Count, float64(0))
	}
}

func TestRenderHeat_AllZero(t *testing.T) {
	assert.Nil(t, RenderHeat(testObservations(0, 0), DefaultGradient(), DefaultHeatStyle()))
	assert.Nil(t, RenderHeat(nil, DefaultGradient(), DefaultHeatStyle()))
}

func TestRenderHeat_EqualCountsFullIntensity(t *testing.T) {
	// Zero range must map every point to maximum intensity, not NaN.
	points := RenderHeat(testObservations(7, 7, 7), DefaultGradient(), DefaultHeatStyle())
	require.Len(t, points, 3)
	for _, p := range points {
		assert.Equal(t, float64(1), p.Intensity)
		assert.False(t, math.IsNaN(p.Intensity))
	}
}

func TestRenderHeat_SinglePoint(t *testing.T) {
	points := RenderHeat(testObservations(42), DefaultGradient(), DefaultHeatStyle())
	require.Len(t, points, 1)
	assert.Equal(t, float64(1), points[0].Intensity)
}

func TestRenderHeat_MinMaxEndpoints(t *testing.T) {
	points := RenderHeat(testObservations(3, 10, 250), DefaultGradient(), DefaultHeatStyle())
	require.Len(t, points, 3)

	assert.Equal(t, float64(0), points[0].Intensity, "min count maps to zero intensity")
	assert.Equal(t, float64(1), points[2].Intensity, "max count maps to full intensity")
}

func TestRenderHeat_MonotonicInCount(t *testing.T) {
	points := RenderHeat(testObservations(1, 5, 20, 80, 320), DefaultGradient(), DefaultHeatStyle())
	require.Len(t, points, 5)
	for i := 1; i < len(points); i++ {
		assert.GreaterOrEqual(t, points[i].Intensity, points[i-1].Intensity)
	}
}

func TestRenderHeat_AlphaLaws(t *testing.T) {
	points := RenderHeat(testObservations(1, 100), DefaultGradient(), DefaultHeatStyle())
	require.Len(t, points, 2)

	for _, p := range points {
		wantCenter := math.Min(1, 0.55+p.Intensity*0.65)
		assert.InDelta(t, wantCenter, p.CenterAlpha, 1e-9)
		assert.InDelta(t, math.Max(0.3, wantCenter*0.75), p.MidAlpha, 1e-9)
	}
}

func TestRenderHeat_RadiusScalesWithIntensity(t *testing.T) {
	style := DefaultHeatStyle()
	points := RenderHeat(testObservations(1, 100), DefaultGradient(), style)
	require.Len(t, points, 2)

	base := style.DiameterMiles / 2 * 1609.344
	assert.InDelta(t, base*style.MinScale, points[0].RadiusMeters, 1e-6)
	assert.InDelta(t, base*style.MaxScale, points[1].RadiusMeters, 1e-6)
	assert.Greater(t, points[1].RadiusMeters, points[0].RadiusMeters)
}

func TestRenderHeat_Idempotent(t *testing.T) {
	obs := testObservations(3, 10, 250)
	first := RenderHeat(obs, DefaultGradient(), DefaultHeatStyle())
	second := RenderHeat(obs, DefaultGradient(), DefaultHeatStyle())

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("repeated render differs (-first +second):\n%s", diff)
	}
}

func TestGradient_At(t *testing.T) {
	g := DefaultGradient()

	assert.Equal(t, g.Low.Hex(), g.At(0).Hex())
	assert.Equal(t, g.Mid.Hex(), g.At(0.5).Hex())
	assert.Equal(t, g.High.Hex(), g.At(1).Hex())

	// Out-of-range intensities clamp instead of extrapolating.
	assert.Equal(t, g.Low.Hex(), g.At(-3).Hex())
	assert.Equal(t, g.High.Hex(), g.At(7).Hex())
}

func TestMetersPerPixel(t *testing.T) {
	// At the equator the value is the tile scale constant over 2^zoom.
	assert.InDelta(t, 156543.034, MetersPerPixel(0, 0), 1e-6)
	assert.InDelta(t, 156543.034/1024, MetersPerPixel(0, 10), 1e-6)

	// Each zoom level halves the ground resolution.
	assert.InDelta(t, MetersPerPixel(36.16, 12)/2, MetersPerPixel(36.16, 13), 1e-9)

	// Higher latitude shrinks meters per pixel by cos(lat).
	assert.InDelta(t, 156543.034*math.Cos(36.16*math.Pi/180), MetersPerPixel(36.16, 0), 1e-6)
}

func TestPixelRadius(t *testing.T) {
	mpp := MetersPerPixel(36.16, 12)
	assert.InDelta(t, 400/mpp, PixelRadius(400, 36.16, 12), 1e-9)
}
