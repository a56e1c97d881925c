package geom

import (
	"sort"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
)

func TestPathIndex_Search(t *testing.T) {
	index := NewPathIndex()
	index.Insert(0, orb.Bound{Min: orb.Point{-43.30, -22.95}, Max: orb.Point{-43.20, -22.90}})
	index.Insert(1, orb.Bound{Min: orb.Point{-43.10, -22.85}, Max: orb.Point{-43.00, -22.80}})
	index.Insert(2, orb.Point{-43.25, -22.92}.Bound())
	assert.Equal(t, 3, index.Size())

	got := index.Search(orb.Bound{Min: orb.Point{-43.26, -22.93}, Max: orb.Point{-43.24, -22.91}})
	sort.Ints(got)
	assert.Equal(t, []int{0, 2}, got)

	assert.Empty(t, index.Search(orb.Point{-42.0, -22.0}.Bound()))
}

func TestPathIndex_SearchNear(t *testing.T) {
	index := NewPathIndex()
	index.Insert(7, orb.Point{-43.20, -22.90}.Bound())

	// roughly 410 m east of the indexed point
	query := orb.Point{-43.196, -22.90}.Bound()
	assert.Empty(t, index.SearchNear(query, 300))
	assert.Equal(t, []int{7}, index.SearchNear(query, 500))
}

func TestPathIndex_SearchNearAcrossAntimeridian(t *testing.T) {
	index := NewPathIndex()
	index.Insert(0, orb.Bound{Min: orb.Point{-179.9995, 0}, Max: orb.Point{-179.9995, 0.002}})
	index.Insert(1, orb.Bound{Min: orb.Point{179.9995, 0}, Max: orb.Point{179.9995, 0.002}})
	index.Insert(2, orb.Point{179.0, 0}.Bound())

	// about 111 m west of row 0 once wrapped
	west := orb.Bound{Min: orb.Point{179.9995, 0}, Max: orb.Point{179.9995, 0.002}}
	got := index.SearchNear(west, 300)
	sort.Ints(got)
	assert.Equal(t, []int{0, 1}, got)

	east := orb.Point{-179.9995, 0.001}.Bound()
	got = index.SearchNear(east, 300)
	sort.Ints(got)
	assert.Equal(t, []int{0, 1}, got)

	assert.Empty(t, index.SearchNear(orb.Point{-179.0, 0}.Bound(), 300))
}

func TestExpand_CoversTolerance(t *testing.T) {
	const meters = 300.0
	for _, lat := range []float64{-60, -22.9, 0, 45, 80} {
		b := orb.Point{10, lat}.Bound()
		grown := Expand(b, meters)

		north := GreatCircleDistance(10, lat, 10, grown.Max[1])
		south := GreatCircleDistance(10, lat, 10, grown.Min[1])
		east := GreatCircleDistance(10, lat, grown.Max[0], lat)
		assert.GreaterOrEqual(t, north, meters*0.999, "lat %v", lat)
		assert.GreaterOrEqual(t, south, meters*0.999, "lat %v", lat)
		assert.GreaterOrEqual(t, east, meters, "lat %v", lat)
		assert.True(t, grown.Contains(b.Min))
	}
}
