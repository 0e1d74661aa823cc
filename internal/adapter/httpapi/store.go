package httpapi

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/MatthiasK31/bookem-heatmap/internal/domain"
	"github.com/MatthiasK31/bookem-heatmap/internal/pipeline"
)

// Store is the presentation-side bookkeeping for upload results. Each
// category's collections are replaced wholesale by its latest batch, while
// unresolved-zip diagnostics accumulate as a deduplicated set across
// repeated uploads of the same category. School batches resolve
// asynchronously and carry a generation number: a batch that finishes after
// a newer one started is stale and its results are dropped (last writer
// wins).
type Store struct {
	mu sync.Mutex

	heat      []domain.RenderedHeatPoint
	heatIndex *rtreego.Rtree

	volunteers []domain.VolunteerMarker
	schools    []domain.SchoolPin

	unresolved    map[domain.DatasetKind]map[string]struct{}
	failedSchools []string

	schoolGen uint64
	uploads   int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		unresolved: map[domain.DatasetKind]map[string]struct{}{
			domain.KindRecipients: {},
			domain.KindVolunteers: {},
		},
	}
}

// Apply installs a synchronous (recipients or volunteers) batch result.
func (s *Store) Apply(result pipeline.OverlayResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch result.Kind {
	case domain.KindRecipients:
		s.heat = result.HeatPoints
		s.heatIndex = buildHeatIndex(result.HeatPoints)
	case domain.KindVolunteers:
		s.volunteers = result.Volunteers
	default:
		return
	}

	set := s.unresolved[result.Kind]
	for _, zip := range result.UnresolvedZips {
		set[zip] = struct{}{}
	}
	s.uploads++
}

// BeginSchoolBatch registers a new school resolution batch and returns its
// generation token.
func (s *Store) BeginSchoolBatch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.schoolGen++
	return s.schoolGen
}

// CompleteSchoolBatch installs a school batch result unless a newer batch
// has started since gen was issued. Returns false when the result was
// discarded as stale.
func (s *Store) CompleteSchoolBatch(gen uint64, result pipeline.OverlayResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.schoolGen {
		return false
	}
	s.schools = result.Schools
	s.failedSchools = result.FailedSchools
	s.uploads++
	return true
}

// Snapshot assembles the full renderer-facing overlay. Unresolved zips are
// the sorted union across categories; slices are copied so callers never
// alias store internals.
func (s *Store) Snapshot() pipeline.Overlay {
	s.mu.Lock()
	defer s.mu.Unlock()

	return pipeline.Overlay{
		HeatPoints:     append([]domain.RenderedHeatPoint(nil), s.heat...),
		Volunteers:     append([]domain.VolunteerMarker(nil), s.volunteers...),
		Schools:        append([]domain.SchoolPin(nil), s.schools...),
		UnresolvedZips: s.unresolvedSorted(),
		FailedSchools:  append([]string(nil), s.failedSchools...),
	}
}

// HeatWithin returns the heat points whose centers fall inside the bounding
// box spanned by min and max, for viewport-limited overlay queries.
func (s *Store) HeatWithin(min, max domain.GeoPoint) []domain.RenderedHeatPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.heatIndex == nil {
		return nil
	}
	rect, err := rtreego.NewRectFromPoints(
		rtreego.Point{min.Lng, min.Lat},
		rtreego.Point{max.Lng, max.Lat},
	)
	if err != nil {
		return nil
	}

	hits := s.heatIndex.SearchIntersect(rect)
	points := make([]domain.RenderedHeatPoint, 0, len(hits))
	for _, hit := range hits {
		points = append(points, hit.(*heatItem).point)
	}
	return points
}

// CheckReadiness reports nil once at least one upload has been ingested.
func (s *Store) CheckReadiness(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploads == 0 {
		return errors.New("no datasets ingested yet")
	}
	return nil
}

func (s *Store) unresolvedSorted() []string {
	seen := make(map[string]struct{})
	for _, set := range s.unresolved {
		for zip := range set {
			seen[zip] = struct{}{}
		}
	}
	zips := make([]string, 0, len(seen))
	for zip := range seen {
		zips = append(zips, zip)
	}
	sort.Strings(zips)
	return zips
}

type heatItem struct {
	rect  *rtreego.Rect
	point domain.RenderedHeatPoint
}

func (h *heatItem) Bounds() *rtreego.Rect { return h.rect }

func buildHeatIndex(points []domain.RenderedHeatPoint) *rtreego.Rtree {
	tree := rtreego.NewTree(2, 25, 50)
	for _, p := range points {
		rect, err := rtreego.NewRect(
			rtreego.Point{p.Point.Lng, p.Point.Lat},
			[]float64{1e-9, 1e-9},
		)
		if err != nil {
			continue
		}
		tree.Insert(&heatItem{rect: rect, point: p})
	}
	return tree
}
