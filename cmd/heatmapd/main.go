package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	_ "github.com/joho/godotenv/autoload"

	"github.com/MatthiasK31/bookem-heatmap/internal/adapter/httpapi"
	"github.com/MatthiasK31/bookem-heatmap/internal/adapter/nominatim"
	"github.com/MatthiasK31/bookem-heatmap/internal/centroid"
	"github.com/MatthiasK31/bookem-heatmap/internal/config"
	"github.com/MatthiasK31/bookem-heatmap/internal/domain"
	"github.com/MatthiasK31/bookem-heatmap/internal/observability"
	"github.com/MatthiasK31/bookem-heatmap/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	table, err := centroid.Load(cfg.CentroidTablePath)
	if err != nil {
		logger.Error("failed to load centroid table", "path", cfg.CentroidTablePath, "error", err)
		os.Exit(1)
	}
	logger.Info("centroid table loaded", "zips", table.Len())

	// Geocoding is feature-flagged: without it, school uploads are rejected
	// but zip-based datasets work normally.
	var resolver *domain.AddressResolver
	if cfg.GeocoderEnabled {
		client := nominatim.NewClient(cfg.GeocoderBaseURL, cfg.GeocoderUserAgent,
			cfg.GeocoderTimeout, metrics, logger)
		geocoder := nominatim.NewCachedGeocoder(client, cfg.GeocoderCacheSize, metrics)
		resolver = domain.NewAddressResolver(geocoder, clockwork.NewRealClock(),
			cfg.GeocoderMinInterval, logger)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("geocoding enabled",
			"base_url", cfg.GeocoderBaseURL,
			"min_interval", cfg.GeocoderMinInterval,
			"cache_size", cfg.GeocoderCacheSize)
	} else {
		metrics.GeocodeEnabled.Set(0)
		logger.Info("geocoding disabled")
	}

	style := domain.HeatStyle{
		DiameterMiles: cfg.HeatDiameterMiles,
		MinScale:      cfg.HeatMinScale,
		MaxScale:      cfg.HeatMaxScale,
	}
	pipe := pipeline.New(table, resolver, domain.DefaultGradient(), style, logger, metrics)

	store := httpapi.NewStore()
	srv := httpapi.NewServer(cfg.HTTPAddr, pipe, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
