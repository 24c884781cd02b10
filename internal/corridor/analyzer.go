package corridor

import (
	"math"
	"sort"

	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/jengzang/riskzone-engine/internal/spatial"
)

// Analysis status values
const (
	StatusAnalyzed          = "analyzed"
	StatusNoCrossings       = "no_crossings"
	StatusInsufficientInput = "insufficient_input"
)

// Default analysis parameters
const (
	DefaultProximityKm        = 15.0
	DefaultSamplePoints       = 10
	DefaultMaxRecommendations = 5
)

// Options tunes the proximity test
type Options struct {
	ProximityKm        float64
	SamplePoints       int
	MaxRecommendations int
}

// DefaultOptions returns the standard analysis parameters
func DefaultOptions() Options {
	return Options{
		ProximityKm:        DefaultProximityKm,
		SamplePoints:       DefaultSamplePoints,
		MaxRecommendations: DefaultMaxRecommendations,
	}
}

// CrossedSegment is a registry segment the route passes close to
type CrossedSegment struct {
	SegmentID       string   `json:"segment_id"`
	SegmentName     string   `json:"segment_name"`
	CorridorID      string   `json:"corridor_id"`
	CorridorName    string   `json:"corridor_name"`
	RiskLevel       string   `json:"risk_level"`
	NearestKm       float64  `json:"nearest_km"`
	Recommendations []string `json:"recommendations"`
}

// CorridorRiskAnalysis is the verdict for one route query. It is never persisted.
type CorridorRiskAnalysis struct {
	IsAnalyzed       bool             `json:"is_analyzed"`
	Status           string           `json:"status"`
	OverallRiskLevel string           `json:"overall_risk_level"`
	Segments         []CrossedSegment `json:"segments"`
	Recommendations  []string         `json:"recommendations"`
	RouteDistanceKm  float64          `json:"route_distance_km"`
}

// Analyzer checks routes against the corridor registry.
// It holds no mutable state and may be shared across goroutines.
type Analyzer struct {
	registry *Registry
	opts     Options
}

// NewAnalyzer creates a new route analyzer; zero option fields take defaults
func NewAnalyzer(registry *Registry, opts Options) *Analyzer {
	def := DefaultOptions()
	if opts.ProximityKm <= 0 {
		opts.ProximityKm = def.ProximityKm
	}
	if opts.SamplePoints <= 0 {
		opts.SamplePoints = def.SamplePoints
	}
	if opts.MaxRecommendations <= 0 {
		opts.MaxRecommendations = def.MaxRecommendations
	}
	return &Analyzer{registry: registry, opts: opts}
}

// Registry returns the catalog the analyzer reads
func (a *Analyzer) Registry() *Registry {
	return a.registry
}

// AnalyzeRoute approximates the route by straight-line sampling and reports
// every segment with a waypoint within the proximity threshold of a sample.
func (a *Analyzer) AnalyzeRoute(origin, destination Point) CorridorRiskAnalysis {
	result := CorridorRiskAnalysis{
		Status:           StatusInsufficientInput,
		OverallRiskLevel: models.RiskLevelLow,
		Segments:         []CrossedSegment{},
		Recommendations:  []string{},
	}
	if !origin.Valid() || !destination.Valid() {
		return result
	}

	result.RouteDistanceKm = round2(spatial.HaversineKm(origin.Lat, origin.Lng, destination.Lat, destination.Lng))
	samples := spatial.SampleLine(origin.Lat, origin.Lng, destination.Lat, destination.Lng, a.opts.SamplePoints)

	for _, seg := range a.registry.segments {
		nearest, crossed := a.nearestApproach(samples, seg)
		if !crossed {
			continue
		}
		corridor := a.registry.corridors[a.registry.corridorIndex[seg.CorridorID]]
		result.Segments = append(result.Segments, CrossedSegment{
			SegmentID:       seg.ID,
			SegmentName:     seg.Name,
			CorridorID:      corridor.ID,
			CorridorName:    corridor.Name,
			RiskLevel:       seg.RiskLevel,
			NearestKm:       round2(nearest),
			Recommendations: append([]string(nil), seg.Recommendations...),
		})
	}

	if len(result.Segments) == 0 {
		result.Status = StatusNoCrossings
		return result
	}

	// Stable keeps catalog order among equally severe segments
	sort.SliceStable(result.Segments, func(i, j int) bool {
		return models.RiskLevelRank(result.Segments[i].RiskLevel) > models.RiskLevelRank(result.Segments[j].RiskLevel)
	})

	result.IsAnalyzed = true
	result.Status = StatusAnalyzed
	result.OverallRiskLevel = result.Segments[0].RiskLevel
	result.Recommendations = a.collectRecommendations(result.Segments)
	return result
}

// nearestApproach returns the smallest sample-to-waypoint distance in km and
// whether it is within the proximity threshold
func (a *Analyzer) nearestApproach(samples [][2]float64, seg Segment) (float64, bool) {
	nearest := math.Inf(1)
	for _, s := range samples {
		for _, wp := range seg.Waypoints {
			d := spatial.HaversineKm(s[0], s[1], wp.Lat, wp.Lng)
			if d < nearest {
				nearest = d
			}
		}
	}
	return nearest, nearest <= a.opts.ProximityKm
}

// collectRecommendations walks segments in severity order, deduplicating
// recommendations until the cap is reached
func (a *Analyzer) collectRecommendations(segments []CrossedSegment) []string {
	seen := make(map[string]bool)
	recs := make([]string, 0, a.opts.MaxRecommendations)

	for _, seg := range segments {
		for _, rec := range seg.Recommendations {
			if seen[rec] {
				continue
			}
			seen[rec] = true
			recs = append(recs, rec)
			if len(recs) >= a.opts.MaxRecommendations {
				return recs
			}
		}
	}
	return recs
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
