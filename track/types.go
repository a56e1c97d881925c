// Package track holds the vehicle trajectories and reference line paths the
// matcher works on, and the padded batch container they are packed into.
package track

import (
	"strings"
	"time"

	"github.com/paulmach/orb"
)

// LineKey identifies one reference path: a transit line in one direction.
// The zero value means "no line".
type LineKey struct {
	LineID    string
	Direction string
}

// NoLine labels a sample no candidate line claims.
var NoLine = LineKey{}

func (k LineKey) IsZero() bool { return k == NoLine }

// String renders the key as stored in line_key_detected.
func (k LineKey) String() string {
	if k.Direction == "" {
		return k.LineID
	}
	return k.LineID + ":" + k.Direction
}

// Less orders keys by line then direction. The correction engine relies on
// this order to break priority ties.
func (k LineKey) Less(o LineKey) bool {
	if k.LineID != o.LineID {
		return k.LineID < o.LineID
	}
	return k.Direction < o.Direction
}

// ParseLineKey is the inverse of LineKey.String.
func ParseLineKey(s string) LineKey {
	id, dir, _ := strings.Cut(s, ":")
	return LineKey{LineID: id, Direction: dir}
}

// Sample is one GPS fix.
type Sample struct {
	Time time.Time
	Lat  float64
	Lon  float64
}

// Trajectory is the ordered sequence of fixes for one vehicle over the query window.
type Trajectory struct {
	ID      string
	Samples []Sample
	// ReportedLine is the line the vehicle announced, if any. Matching ignores it.
	ReportedLine LineKey
}

// Points returns the samples as lon/lat points.
func (t Trajectory) Points() []orb.Point {
	pts := make([]orb.Point, len(t.Samples))
	for i, s := range t.Samples {
		pts[i] = orb.Point{s.Lon, s.Lat}
	}
	return pts
}

// ReferencePath is the canonical geometry of one line in one direction.
type ReferencePath struct {
	Key    LineKey
	Points orb.LineString
}
