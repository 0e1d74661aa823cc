package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Centroid table overlay; empty means embedded defaults only.
	CentroidTablePath string

	// Geocoder configuration.
	GeocoderEnabled     bool
	GeocoderBaseURL     string
	GeocoderUserAgent   string
	GeocoderTimeout     time.Duration
	GeocoderMinInterval time.Duration
	GeocoderCacheSize   int

	// Heat rendering style.
	HeatDiameterMiles float64
	HeatMinScale      float64
	HeatMaxScale      float64
}

// Load reads configuration from environment variables, applying defaults
// where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	geocoderTimeout, err := parseDuration("GEOCODER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	minInterval, err := parseDuration("GEOCODER_MIN_INTERVAL", "1.1s")
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("GEOCODER_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	diameter, err := parsePositiveFloat("HEAT_DIAMETER_MILES", 0.5)
	if err != nil {
		return nil, err
	}
	minScale, err := parsePositiveFloat("HEAT_MIN_SCALE", 1.2)
	if err != nil {
		return nil, err
	}
	maxScale, err := parsePositiveFloat("HEAT_MAX_SCALE", 3.0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CentroidTablePath: os.Getenv("CENTROID_TABLE_PATH"),

		GeocoderEnabled:     envOrDefault("GEOCODER_ENABLED", "true") == "true",
		GeocoderBaseURL:     envOrDefault("GEOCODER_BASE_URL", "https://nominatim.openstreetmap.org"),
		GeocoderUserAgent:   envOrDefault("GEOCODER_USER_AGENT", "bookem-heatmap/1.0"),
		GeocoderTimeout:     geocoderTimeout,
		GeocoderMinInterval: minInterval,
		GeocoderCacheSize:   cacheSize,

		HeatDiameterMiles: diameter,
		HeatMinScale:      minScale,
		HeatMaxScale:      maxScale,
	}

	if cfg.GeocoderEnabled && cfg.GeocoderBaseURL == "" {
		return nil, errors.New("GEOCODER_ENABLED is true but GEOCODER_BASE_URL is empty")
	}
	if cfg.GeocoderEnabled && cfg.GeocoderUserAgent == "" {
		return nil, errors.New("GEOCODER_ENABLED is true but GEOCODER_USER_AGENT is empty")
	}
	if cfg.HeatMaxScale < cfg.HeatMinScale {
		return nil, errors.New("HEAT_MAX_SCALE must be >= HEAT_MIN_SCALE")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseDuration(key, def string) (time.Duration, error) {
	raw := envOrDefault(key, def)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func parsePositiveFloat(key string, def float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return f, nil
}
