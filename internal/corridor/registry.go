// Package corridor holds the static highway corridor catalog and the
// route-versus-corridor proximity analysis built on it.
package corridor

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/jengzang/riskzone-engine/internal/geoindex"
	"github.com/jengzang/riskzone-engine/internal/models"
	"gopkg.in/yaml.v2"
)

//go:embed corridors.yaml
var defaultCatalog []byte

// Point is a geographic coordinate in degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point is set and within range
func (p Point) Valid() bool {
	return geoindex.ValidCoordinates(p.Lat, p.Lng)
}

// Segment is a fixed stretch of highway with a pre-assessed risk level
type Segment struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	CorridorID      string   `json:"corridor_id"`
	Waypoints       []Point  `json:"waypoints"`
	RiskLevel       string   `json:"risk_level"`
	AvgEventDensity float64  `json:"avg_event_density"`
	Recommendations []string `json:"recommendations"`
}

// Corridor is a named highway made of ordered segments
type Corridor struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	SegmentIDs []string `json:"segment_ids"`
}

// Registry is an immutable arena of corridors and segments indexed by id.
// It is safe for concurrent use.
type Registry struct {
	version   string
	corridors []Corridor
	segments  []Segment

	corridorIndex map[string]int
	segmentIndex  map[string]int
}

type catalogFile struct {
	Version   string          `yaml:"version"`
	Corridors []corridorEntry `yaml:"corridors"`
}

type corridorEntry struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Segments []segmentEntry `yaml:"segments"`
}

type segmentEntry struct {
	ID              string      `yaml:"id"`
	Name            string      `yaml:"name"`
	RiskLevel       string      `yaml:"risk_level"`
	AvgEventDensity float64     `yaml:"avg_event_density"`
	Waypoints       [][]float64 `yaml:"waypoints"` // [lng, lat]
	Recommendations []string    `yaml:"recommendations"`
}

// DefaultRegistry loads the catalog compiled into the binary
func DefaultRegistry() (*Registry, error) {
	return LoadRegistry(defaultCatalog)
}

// LoadRegistryFile loads a catalog from disk, falling back to the embedded one when path is empty
func LoadRegistryFile(path string) (*Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read corridor catalog %s: %w", path, err)
	}
	return LoadRegistry(data)
}

// LoadRegistry parses and validates a YAML corridor catalog
func LoadRegistry(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse corridor catalog: %w", err)
	}
	if len(file.Corridors) == 0 {
		return nil, fmt.Errorf("corridor catalog is empty")
	}

	reg := &Registry{
		version:       file.Version,
		corridorIndex: make(map[string]int),
		segmentIndex:  make(map[string]int),
	}

	for _, c := range file.Corridors {
		if c.ID == "" {
			return nil, fmt.Errorf("corridor without id")
		}
		if _, dup := reg.corridorIndex[c.ID]; dup {
			return nil, fmt.Errorf("duplicate corridor id: %s", c.ID)
		}
		if len(c.Segments) == 0 {
			return nil, fmt.Errorf("corridor %s has no segments", c.ID)
		}

		corridor := Corridor{ID: c.ID, Name: c.Name}
		for _, s := range c.Segments {
			seg, err := buildSegment(c.ID, s)
			if err != nil {
				return nil, err
			}
			if _, dup := reg.segmentIndex[seg.ID]; dup {
				return nil, fmt.Errorf("duplicate segment id: %s", seg.ID)
			}
			reg.segmentIndex[seg.ID] = len(reg.segments)
			reg.segments = append(reg.segments, seg)
			corridor.SegmentIDs = append(corridor.SegmentIDs, seg.ID)
		}

		reg.corridorIndex[c.ID] = len(reg.corridors)
		reg.corridors = append(reg.corridors, corridor)
	}

	return reg, nil
}

func buildSegment(corridorID string, s segmentEntry) (Segment, error) {
	if s.ID == "" {
		return Segment{}, fmt.Errorf("segment without id in corridor %s", corridorID)
	}
	if models.RiskLevelRank(s.RiskLevel) < 0 {
		return Segment{}, fmt.Errorf("segment %s has unknown risk level %q", s.ID, s.RiskLevel)
	}
	if len(s.Waypoints) == 0 {
		return Segment{}, fmt.Errorf("segment %s has no waypoints", s.ID)
	}

	seg := Segment{
		ID:              s.ID,
		Name:            s.Name,
		CorridorID:      corridorID,
		RiskLevel:       s.RiskLevel,
		AvgEventDensity: s.AvgEventDensity,
		Recommendations: append([]string(nil), s.Recommendations...),
		Waypoints:       make([]Point, 0, len(s.Waypoints)),
	}
	for i, wp := range s.Waypoints {
		if len(wp) != 2 {
			return Segment{}, fmt.Errorf("segment %s waypoint %d must be [lng, lat]", s.ID, i)
		}
		p := Point{Lat: wp[1], Lng: wp[0]}
		if !p.Valid() {
			return Segment{}, fmt.Errorf("segment %s waypoint %d is out of range", s.ID, i)
		}
		seg.Waypoints = append(seg.Waypoints, p)
	}
	return seg, nil
}

// Version returns the catalog version string
func (r *Registry) Version() string {
	return r.version
}

// Corridors returns every corridor in catalog order
func (r *Registry) Corridors() []Corridor {
	out := make([]Corridor, len(r.corridors))
	for i, c := range r.corridors {
		c.SegmentIDs = append([]string(nil), c.SegmentIDs...)
		out[i] = c
	}
	return out
}

// Corridor looks up a corridor by id
func (r *Registry) Corridor(id string) (Corridor, bool) {
	i, ok := r.corridorIndex[id]
	if !ok {
		return Corridor{}, false
	}
	c := r.corridors[i]
	c.SegmentIDs = append([]string(nil), c.SegmentIDs...)
	return c, true
}

// Segment looks up a segment by id
func (r *Registry) Segment(id string) (Segment, bool) {
	i, ok := r.segmentIndex[id]
	if !ok {
		return Segment{}, false
	}
	return cloneSegment(r.segments[i]), true
}

// Segments returns every segment in catalog order
func (r *Registry) Segments() []Segment {
	out := make([]Segment, len(r.segments))
	for i, s := range r.segments {
		out[i] = cloneSegment(s)
	}
	return out
}

func cloneSegment(s Segment) Segment {
	s.Waypoints = append([]Point(nil), s.Waypoints...)
	s.Recommendations = append([]string(nil), s.Recommendations...)
	return s
}
