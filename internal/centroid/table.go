// Package centroid provides the read-only zip-to-centroid table backing
// postal aggregation. A default table ships embedded in the binary; a YAML
// overlay file can extend or override it without a code change, since
// production datasets routinely contain zips missing from any shipped
// default.
package centroid

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/dhconnelly/rtreego"
	"gopkg.in/yaml.v3"

	"github.com/MatthiasK31/bookem-heatmap/internal/domain"
)

//go:embed zip_centroids.yaml
var defaultTableYAML []byte

// rectEpsilon is the degenerate rectangle edge used to index point data.
const rectEpsilon = 1e-9

// Table maps 5-digit zips to area centroids and keeps a spatial index over
// them for nearest and bounding-box queries. A Table is immutable after
// construction and safe for concurrent readers.
type Table struct {
	points map[string]domain.GeoPoint
	tree   *rtreego.Rtree
}

type zipEntry struct {
	zip   string
	point domain.GeoPoint
	rect  *rtreego.Rect
}

func (e *zipEntry) Bounds() *rtreego.Rect { return e.rect }

// tableFile is the YAML document shape:
//
//	centroids:
//	  "37203": {lat: 36.1495, lng: -86.7965}
type tableFile struct {
	Centroids map[string]struct {
		Lat float64 `yaml:"lat"`
		Lng float64 `yaml:"lng"`
	} `yaml:"centroids"`
}

// New builds a table from an explicit mapping.
func New(points map[string]domain.GeoPoint) *Table {
	t := &Table{
		points: make(map[string]domain.GeoPoint, len(points)),
		tree:   rtreego.NewTree(2, 25, 50),
	}
	for zip, p := range points {
		t.points[zip] = p
		rect, err := rtreego.NewRect(rtreego.Point{p.Lng, p.Lat}, []float64{rectEpsilon, rectEpsilon})
		if err != nil {
			continue
		}
		t.tree.Insert(&zipEntry{zip: zip, point: p, rect: rect})
	}
	return t
}

// Default returns the table built from the embedded centroid data.
func Default() *Table {
	t, err := parse(defaultTableYAML, nil)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here is
		// a build defect.
		panic(fmt.Sprintf("embedded centroid table: %v", err))
	}
	return t
}

// Load returns the default table extended by the YAML overlay at path.
// Overlay entries win over embedded ones. An empty path loads the default
// table alone.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	overlay, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read centroid table: %w", err)
	}
	t, err := parse(defaultTableYAML, overlay)
	if err != nil {
		return nil, fmt.Errorf("parse centroid table %s: %w", path, err)
	}
	return t, nil
}

func parse(base, overlay []byte) (*Table, error) {
	points := make(map[string]domain.GeoPoint)
	for _, doc := range [][]byte{base, overlay} {
		if len(doc) == 0 {
			continue
		}
		var file tableFile
		if err := yaml.Unmarshal(doc, &file); err != nil {
			return nil, err
		}
		for zip, p := range file.Centroids {
			normalized := domain.NormalizeZip(zip)
			if normalized == "" {
				return nil, fmt.Errorf("invalid zip key %q", zip)
			}
			points[normalized] = domain.GeoPoint{Lat: p.Lat, Lng: p.Lng}
		}
	}
	return New(points), nil
}

// Lookup resolves a normalized zip to its centroid.
func (t *Table) Lookup(zip string) (domain.GeoPoint, bool) {
	p, ok := t.points[zip]
	return p, ok
}

// Nearest returns the zip whose centroid is closest to the given point.
// It is a diagnostic for operator tooling, never a substitute for a missing
// centroid during aggregation.
func (t *Table) Nearest(point domain.GeoPoint) (string, domain.GeoPoint, bool) {
	hit := t.tree.NearestNeighbor(rtreego.Point{point.Lng, point.Lat})
	if hit == nil {
		return "", domain.GeoPoint{}, false
	}
	entry := hit.(*zipEntry)
	return entry.zip, entry.point, true
}

// Within returns the zips whose centroids fall inside the bounding box
// spanned by min and max, in arbitrary order.
func (t *Table) Within(min, max domain.GeoPoint) []string {
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{min.Lng, min.Lat},
		rtreego.Point{max.Lng, max.Lat},
	)
	if err != nil {
		return nil
	}
	hits := t.tree.SearchIntersect(rect)
	zips := make([]string, 0, len(hits))
	for _, hit := range hits {
		zips = append(zips, hit.(*zipEntry).zip)
	}
	return zips
}

// Len reports the number of distinct zips in the table.
func (t *Table) Len() int { return len(t.points) }
