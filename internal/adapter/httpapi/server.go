// Package httpapi exposes the overlay pipeline over HTTP: dataset uploads,
// overlay snapshots for the map renderer, user-facing diagnostics, and the
// usual health, readiness, and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MatthiasK31/bookem-heatmap/internal/domain"
	"github.com/MatthiasK31/bookem-heatmap/internal/pipeline"
)

// Server exposes the overlay API.
type Server struct {
	httpServer *http.Server
	pipe       *pipeline.Pipeline
	store      *Store
	logger     *slog.Logger
}

// uploadRequest is one file's worth of raw rows, header row first.
type uploadRequest struct {
	Filename string  `json:"filename"`
	Rows     [][]any `json:"rows"`
}

// NewServer creates the API server and its routes.
func NewServer(addr string, pipe *pipeline.Pipeline, store *Store, logger *slog.Logger) *Server {
	s := &Server{
		pipe:   pipe,
		store:  store,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsAllowAll)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/datasets", s.handleUpload)
	r.Get("/overlay", s.handleOverlay)
	r.Get("/diagnostics", s.handleDiagnostics)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

// handleUpload ingests one uploaded file. Recipients and volunteers process
// synchronously; school batches geocode at a fixed request interval, so they
// run in the background and the response reports 202 Accepted. A new school
// upload supersedes an unfinished one: the stale batch still runs to
// completion but its results are discarded.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if len(req.Rows) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rows are required"})
		return
	}

	batch := pipeline.UploadBatch{Filename: req.Filename, Rows: req.Rows}

	records := domain.NormalizeRows(req.Rows)
	if domain.Classify(records, req.Filename) == domain.KindSchools {
		if !s.pipe.GeocodingEnabled() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": pipeline.ErrGeocodingDisabled.Error(),
			})
			return
		}
		gen := s.store.BeginSchoolBatch()
		go s.resolveSchoolBatch(context.WithoutCancel(r.Context()), batch, gen)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"dataset": domain.KindSchools,
			"status":  "resolving",
			"rows":    len(records),
		})
		return
	}

	result, err := s.pipe.Process(r.Context(), batch)
	switch {
	case errors.Is(err, pipeline.ErrUnclassified):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "file could not be classified as recipients, volunteers, or schools",
		})
		return
	case errors.Is(err, pipeline.ErrGeocodingDisabled):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	case err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	s.store.Apply(result)
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset":        result.Kind,
		"heatPoints":     len(result.HeatPoints),
		"volunteers":     len(result.Volunteers),
		"unresolvedZips": result.UnresolvedZips,
	})
}

func (s *Server) resolveSchoolBatch(ctx context.Context, batch pipeline.UploadBatch, gen uint64) {
	result, err := s.pipe.Process(ctx, batch)
	if err != nil {
		s.logger.Error("school batch failed", "filename", batch.Filename, "error", err)
		return
	}
	if !s.store.CompleteSchoolBatch(gen, result) {
		s.logger.Info("school batch superseded, discarding results",
			"filename", batch.Filename, "pins", len(result.Schools))
	}
}

// handleOverlay returns the current overlay snapshot. Optional bbox query
// parameters (minLat, minLng, maxLat, maxLng) limit heat points to the
// viewport; an optional zoom parameter adds a per-point pixel radius so thin
// clients can skip the Mercator conversion.
func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	overlay := s.store.Snapshot()

	if min, max, ok := parseBBox(r); ok {
		overlay.HeatPoints = s.store.HeatWithin(min, max)
	}

	if zoomStr := r.URL.Query().Get("zoom"); zoomStr != "" {
		zoom, err := strconv.ParseFloat(zoomStr, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid zoom"})
			return
		}
		writeJSON(w, http.StatusOK, withPixelRadii(overlay, zoom))
		return
	}

	writeJSON(w, http.StatusOK, overlay)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, _ *http.Request) {
	overlay := s.store.Snapshot()
	writeJSON(w, http.StatusOK, map[string][]string{
		"unresolvedZips": overlay.UnresolvedZips,
		"failedSchools":  overlay.FailedSchools,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// heatPointView decorates a rendered point with its on-screen radius at a
// requested zoom level.
type heatPointView struct {
	domain.RenderedHeatPoint
	RadiusPx float64 `json:"radiusPx"`
}

type overlayView struct {
	HeatPoints     []heatPointView          `json:"heatPoints"`
	Volunteers     []domain.VolunteerMarker `json:"volunteers"`
	Schools        []domain.SchoolPin       `json:"schools"`
	UnresolvedZips []string                 `json:"unresolvedZips"`
	FailedSchools  []string                 `json:"failedSchools"`
}

func withPixelRadii(overlay pipeline.Overlay, zoom float64) overlayView {
	view := overlayView{
		HeatPoints:     make([]heatPointView, 0, len(overlay.HeatPoints)),
		Volunteers:     overlay.Volunteers,
		Schools:        overlay.Schools,
		UnresolvedZips: overlay.UnresolvedZips,
		FailedSchools:  overlay.FailedSchools,
	}
	for _, p := range overlay.HeatPoints {
		view.HeatPoints = append(view.HeatPoints, heatPointView{
			RenderedHeatPoint: p,
			RadiusPx:          domain.PixelRadius(p.RadiusMeters, p.Point.Lat, zoom),
		})
	}
	return view
}

func parseBBox(r *http.Request) (domain.GeoPoint, domain.GeoPoint, bool) {
	q := r.URL.Query()
	vals := make([]float64, 4)
	for i, key := range []string{"minLat", "minLng", "maxLat", "maxLng"} {
		raw := q.Get(key)
		if raw == "" {
			return domain.GeoPoint{}, domain.GeoPoint{}, false
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.GeoPoint{}, domain.GeoPoint{}, false
		}
		vals[i] = f
	}
	return domain.GeoPoint{Lat: vals[0], Lng: vals[1]}, domain.GeoPoint{Lat: vals[2], Lng: vals[3]}, true
}

// corsAllowAll lets the browser-based map client call the API from any
// origin.
func corsAllowAll(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
