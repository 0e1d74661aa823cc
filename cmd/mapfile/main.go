// mapfile builds renderer overlay files from spreadsheet exports without
// running the HTTP service, and offers centroid table lookups for checking
// zip coverage.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jonboulle/clockwork"
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"

	"github.com/MatthiasK31/bookem-heatmap/internal/adapter/httpapi"
	"github.com/MatthiasK31/bookem-heatmap/internal/adapter/nominatim"
	"github.com/MatthiasK31/bookem-heatmap/internal/centroid"
	"github.com/MatthiasK31/bookem-heatmap/internal/config"
	"github.com/MatthiasK31/bookem-heatmap/internal/domain"
	"github.com/MatthiasK31/bookem-heatmap/internal/ingest"
	"github.com/MatthiasK31/bookem-heatmap/internal/observability"
	"github.com/MatthiasK31/bookem-heatmap/internal/pipeline"
)

var rootCmd = &cobra.Command{
	Use:   "mapfile",
	Short: "Offline overlay builder for the book distribution heatmap",
}

var (
	recipientFiles []string
	volunteerFiles []string
	schoolFiles    []string
	outPath        string
	geocode        bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an overlay JSON file from spreadsheet exports",
	Long: `Reads recipient, volunteer, and school spreadsheets (.csv or .xlsx),
aggregates them, and writes the overlay JSON the map renderer consumes.
School geocoding requires --geocode and honors the configured request
interval, so large school lists take a while.`,
	RunE: runBuild,
}

var nearFlag string

var lookupCmd = &cobra.Command{
	Use:   "lookup [zip...]",
	Short: "Look up centroids in the zip table",
	Long: `Resolves zips against the centroid table. With --near lat,lng it
instead reports the zip whose centroid is closest to the given point.`,
	RunE: runLookup,
}

func init() {
	buildCmd.Flags().StringArrayVar(&recipientFiles, "recipients", nil, "Recipient spreadsheet (repeatable)")
	buildCmd.Flags().StringArrayVar(&volunteerFiles, "volunteers", nil, "Volunteer spreadsheet (repeatable)")
	buildCmd.Flags().StringArrayVar(&schoolFiles, "schools", nil, "School spreadsheet (repeatable)")
	buildCmd.Flags().StringVarP(&outPath, "out", "o", "overlay.json", "Output file path")
	buildCmd.Flags().BoolVar(&geocode, "geocode", false, "Geocode school addresses")

	lookupCmd.Flags().StringVar(&nearFlag, "near", "", "Find the zip nearest to lat,lng")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(lookupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBuild(cmd *cobra.Command, _ []string) error {
	if len(recipientFiles)+len(volunteerFiles)+len(schoolFiles) == 0 {
		return fmt.Errorf("no input files; pass --recipients, --volunteers, or --schools")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel, "text")
	metrics := observability.NewMetrics()

	table, err := centroid.Load(cfg.CentroidTablePath)
	if err != nil {
		return err
	}

	var resolver *domain.AddressResolver
	if geocode {
		client := nominatim.NewClient(cfg.GeocoderBaseURL, cfg.GeocoderUserAgent,
			cfg.GeocoderTimeout, metrics, logger)
		geocoder := nominatim.NewCachedGeocoder(client, cfg.GeocoderCacheSize, metrics)
		resolver = domain.NewAddressResolver(geocoder, clockwork.NewRealClock(),
			cfg.GeocoderMinInterval, logger)
	}

	style := domain.HeatStyle{
		DiameterMiles: cfg.HeatDiameterMiles,
		MinScale:      cfg.HeatMinScale,
		MaxScale:      cfg.HeatMaxScale,
	}
	pipe := pipeline.New(table, resolver, domain.DefaultGradient(), style, logger, metrics)
	store := httpapi.NewStore()

	ctx := cmd.Context()
	kinds := []struct {
		files []string
		kind  domain.DatasetKind
	}{
		{recipientFiles, domain.KindRecipients},
		{volunteerFiles, domain.KindVolunteers},
		{schoolFiles, domain.KindSchools},
	}
	for _, group := range kinds {
		if len(group.files) == 0 {
			continue
		}
		if err := processGroup(ctx, pipe, store, group.files, group.kind); err != nil {
			return err
		}
	}

	overlay := store.Snapshot()
	out, err := json.MarshalIndent(overlay, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return err
	}

	fmt.Printf("wrote %s: %d heat points, %d volunteers, %d schools\n",
		outPath, len(overlay.HeatPoints), len(overlay.Volunteers), len(overlay.Schools))
	if len(overlay.UnresolvedZips) > 0 {
		fmt.Printf("unresolved zips: %s\n", strings.Join(overlay.UnresolvedZips, ", "))
	}
	for _, failed := range overlay.FailedSchools {
		fmt.Printf("could not locate: %s\n", failed)
	}
	return nil
}

// processGroup runs all of a dataset's files as one logical batch, so
// counts split across files aggregate instead of the last file replacing
// the earlier ones in the store.
func processGroup(ctx context.Context, pipe *pipeline.Pipeline, store *httpapi.Store, paths []string, kind domain.DatasetKind) error {
	batches := make([]pipeline.UploadBatch, 0, len(paths))
	for _, path := range paths {
		rows, err := ingest.ReadFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		batches = append(batches, pipeline.UploadBatch{Filename: path, Rows: rows})
	}

	result, err := pipe.ProcessGroup(ctx, batches)
	if err != nil {
		return err
	}
	if result.Kind != kind {
		return fmt.Errorf("%s: classified as %s, expected %s", paths[0], result.Kind, kind)
	}

	if result.Kind == domain.KindSchools {
		store.CompleteSchoolBatch(store.BeginSchoolBatch(), result)
		return nil
	}
	store.Apply(result)
	return nil
}

func runLookup(_ *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	table, err := centroid.Load(cfg.CentroidTablePath)
	if err != nil {
		return err
	}

	if nearFlag != "" {
		point, err := parseLatLng(nearFlag)
		if err != nil {
			return err
		}
		zip, centroidPoint, ok := table.Nearest(point)
		if !ok {
			return fmt.Errorf("centroid table is empty")
		}
		fmt.Printf("%s  %.4f,%.4f\n", zip, centroidPoint.Lat, centroidPoint.Lng)
		return nil
	}

	if len(args) == 0 {
		return fmt.Errorf("pass one or more zips, or --near lat,lng")
	}
	for _, raw := range args {
		zip := domain.NormalizeZip(raw)
		if zip == "" {
			fmt.Printf("%s  (not a zip)\n", raw)
			continue
		}
		if point, ok := table.Lookup(zip); ok {
			fmt.Printf("%s  %.4f,%.4f\n", zip, point.Lat, point.Lng)
		} else {
			fmt.Printf("%s  (no centroid)\n", zip)
		}
	}
	return nil
}

func parseLatLng(s string) (domain.GeoPoint, error) {
	parts := strings.SplitN(s, ",", 2)
	if len(parts) != 2 {
		return domain.GeoPoint{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("invalid latitude %q", parts[0])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.GeoPoint{}, fmt.Errorf("invalid longitude %q", parts[1])
	}
	return domain.GeoPoint{Lat: lat, Lng: lng}, nil
}
