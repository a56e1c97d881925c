package geom

import (
	"github.com/paulmach/orb"
	"github.com/tidwall/rtree"
)

// PathIndex wraps tidwall/rtree for spatial indexing of reference path extents.
// Items are the row indices of the paths in their batch.
type PathIndex struct {
	tree *rtree.RTreeG[int]
}

// NewPathIndex creates an empty index.
func NewPathIndex() *PathIndex {
	return &PathIndex{
		tree: &rtree.RTreeG[int]{},
	}
}

// Insert adds a path row with the given bounds.
func (r *PathIndex) Insert(row int, bound orb.Bound) {
	r.tree.Insert(
		[2]float64{bound.Min[0], bound.Min[1]},
		[2]float64{bound.Max[0], bound.Max[1]},
		row,
	)
}

// Search returns all rows whose bounds intersect the query bound.
func (r *PathIndex) Search(bound orb.Bound) []int {
	result := make([]int, 0)
	r.tree.Search(
		[2]float64{bound.Min[0], bound.Min[1]},
		[2]float64{bound.Max[0], bound.Max[1]},
		func(min, max [2]float64, row int) bool {
			result = append(result, row)
			return true
		},
	)
	return result
}

// SearchNear returns rows whose bounds come within meters of the query bound.
// A grown bound that crosses the antimeridian is searched again on the other
// side of it.
func (r *PathIndex) SearchNear(bound orb.Bound, meters float64) []int {
	grown := Expand(bound, meters)
	boxes := []orb.Bound{grown}
	if grown.Min[0] < -180 {
		boxes = append(boxes, shiftLon(grown, 360))
	}
	if grown.Max[0] > 180 {
		boxes = append(boxes, shiftLon(grown, -360))
	}
	if len(boxes) == 1 {
		return r.Search(grown)
	}

	seen := make(map[int]struct{})
	result := make([]int, 0)
	for _, box := range boxes {
		for _, row := range r.Search(box) {
			if _, ok := seen[row]; ok {
				continue
			}
			seen[row] = struct{}{}
			result = append(result, row)
		}
	}
	return result
}

func shiftLon(b orb.Bound, degrees float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.Min[0] + degrees, b.Min[1]},
		Max: orb.Point{b.Max[0] + degrees, b.Max[1]},
	}
}

// Size returns the number of indexed paths.
func (r *PathIndex) Size() int {
	return r.tree.Len()
}

// Expand grows a bound by a distance in meters on every side. The longitude
// margin is taken past the latitude farthest from the equator, with slack, so
// the box never under-covers.
func Expand(bound orb.Bound, meters float64) orb.Bound {
	lat := bound.Max[1]
	if -bound.Min[1] > lat {
		lat = -bound.Min[1]
	}
	_, deltaLat := MetersToDegrees(lat, meters)
	deltaLon, _ := MetersToDegrees(min(lat+deltaLat, 90), meters*1.1)
	return orb.Bound{
		Min: orb.Point{bound.Min[0] - deltaLon, bound.Min[1] - deltaLat},
		Max: orb.Point{bound.Max[0] + deltaLon, bound.Max[1] + deltaLat},
	}
}
