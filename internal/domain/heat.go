package domain

import (
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// webMercatorScale is the ground resolution in meters per pixel at zoom 0 on
// the equator for the standard 256px Web-Mercator tile pyramid.
const webMercatorScale = 156543.034

const metersPerMile = 1609.344

// intensityExponent compresses low-end visual noise: normalized values are
// raised to this power before color and radius mapping.
const intensityExponent = 1.25

// Gradient is a three-stop color ramp. Intensity 0 maps to Low, 0.5 to Mid,
// and 1 to High, with linear RGB interpolation between the bracketing stops.
type Gradient struct {
	Low  colorful.Color
	Mid  colorful.Color
	High colorful.Color
}

// DefaultGradient is the blue → pink → red ramp used by the map overlay.
func DefaultGradient() Gradient {
	return Gradient{
		Low:  mustHex("#2c7fb8"),
		Mid:  mustHex("#f768a1"),
		High: mustHex("#d7191c"),
	}
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// At returns the gradient color for an intensity, clamped to [0, 1].
func (g Gradient) At(t float64) colorful.Color {
	t = clamp01(t)
	if t <= 0.5 {
		return g.Low.BlendRgb(g.Mid, t*2).Clamped()
	}
	return g.Mid.BlendRgb(g.High, (t-0.5)*2).Clamped()
}

// HeatStyle configures the real-world footprint of a rendered point.
type HeatStyle struct {
	// DiameterMiles is the base footprint; half of it is the base radius.
	DiameterMiles float64
	// MinScale and MaxScale bound the radius multiplier, which grows
	// linearly with intensity.
	MinScale float64
	MaxScale float64
}

// DefaultHeatStyle matches the production overlay: quarter-mile base radius
// scaled 1.2x at the low end up to 3x at full intensity.
func DefaultHeatStyle() HeatStyle {
	return HeatStyle{
		DiameterMiles: 0.5,
		MinScale:      1.2,
		MaxScale:      3.0,
	}
}

func (s HeatStyle) baseRadiusMeters() float64 {
	return s.DiameterMiles / 2 * metersPerMile
}

// RenderedHeatPoint is one overlay primitive ready for the map renderer.
// Alpha fades from CenterAlpha at the point center through MidAlpha at the
// mid-radius stop to fully transparent at the outer edge.
type RenderedHeatPoint struct {
	Point        GeoPoint `json:"point"`
	Count        float64  `json:"count"`
	Intensity    float64  `json:"intensity"`
	Color        string   `json:"color"`
	CenterAlpha  float64  `json:"centerAlpha"`
	MidAlpha     float64  `json:"midAlpha"`
	RadiusMeters float64  `json:"radiusMeters"`
}

// RenderHeat maps observations to rendering-ready points. Observations with
// a zero count are excluded entirely. Intensity is log-compressed min-max
// normalization over the positive counts; when all counts are equal the
// range is zero and every point maps to full intensity rather than NaN.
// RenderHeat is a pure function of its inputs and safe to call on every
// viewport change.
func RenderHeat(observations []HeatObservation, gradient Gradient, style HeatStyle) []RenderedHeatPoint {
	var positive []HeatObservation
	for _, obs := range observations {
		if obs.Count > 0 {
			positive = append(positive, obs)
		}
	}
	if len(positive) == 0 {
		return nil
	}

	minCount, maxCount := positive[0].Count, positive[0].Count
	for _, obs := range positive[1:] {
		minCount = math.Min(minCount, obs.Count)
		maxCount = math.Max(maxCount, obs.Count)
	}
	countRange := maxCount - minCount

	points := make([]RenderedHeatPoint, 0, len(positive))
	for _, obs := range positive {
		normalized := 1.0
		if countRange > 0 {
			normalized = math.Log(obs.Count-minCount+1) / math.Log(countRange+1)
		}
		intensity := math.Pow(normalized, intensityExponent)

		centerAlpha := math.Min(1, 0.55+intensity*0.65)
		scale := style.MinScale + intensity*(style.MaxScale-style.MinScale)

		points = append(points, RenderedHeatPoint{
			Point:        obs.Point,
			Count:        obs.Count,
			Intensity:    intensity,
			Color:        gradient.At(intensity).Hex(),
			CenterAlpha:  centerAlpha,
			MidAlpha:     math.Max(0.3, centerAlpha*0.75),
			RadiusMeters: style.baseRadiusMeters() * scale,
		})
	}
	return points
}

// MetersPerPixel returns the Web-Mercator ground resolution at a latitude
// and zoom level. The renderer divides a point's real-world radius by this
// to get its on-screen radius, recomputed on every viewport change.
func MetersPerPixel(lat, zoom float64) float64 {
	return webMercatorScale * math.Cos(lat*math.Pi/180) / math.Pow(2, zoom)
}

// PixelRadius converts a real-world radius in meters to screen pixels at a
// latitude and zoom level.
func PixelRadius(radiusMeters, lat, zoom float64) float64 {
	return radiusMeters / MetersPerPixel(lat, zoom)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
