package matching

import (
	"testing"
	"time"

	"kuanb/gosm-linematch/track"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

const (
	baseLat = -22.90
	baseLon = -43.20
	// 0.004 degrees of longitude is roughly 410 m at baseLat, well past a
	// 300 m tolerance, so consecutive samples never claim each other's points.
	step = 0.004
)

var (
	lineA = track.LineKey{LineID: "A", Direction: "0"}
	lineB = track.LineKey{LineID: "B", Direction: "0"}
	lineC = track.LineKey{LineID: "C", Direction: "1"}
)

// row returns n points along a parallel, starting at sample index first.
func row(lat float64, first, n int) []orb.Point {
	pts := make([]orb.Point, n)
	for i := range pts {
		pts[i] = orb.Point{baseLon + float64(first+i)*step, lat}
	}
	return pts
}

func trajectory(id string, pts ...[]orb.Point) track.Trajectory {
	start := time.Date(2019, 5, 6, 8, 0, 0, 0, time.UTC)
	t := track.Trajectory{ID: id}
	for _, part := range pts {
		for _, p := range part {
			t.Samples = append(t.Samples, track.Sample{
				Time: start.Add(time.Duration(len(t.Samples)) * 30 * time.Second),
				Lat:  p[1],
				Lon:  p[0],
			})
		}
	}
	return t
}

func trajectoryBatch(t *testing.T, ts ...track.Trajectory) *track.Batch {
	t.Helper()
	b, err := track.NewTrajectoryBatch(ts)
	require.NoError(t, err)
	return b
}

func pathBatch(t *testing.T, ps ...track.ReferencePath) *track.Batch {
	t.Helper()
	b, err := track.NewPathBatch(ps)
	require.NoError(t, err)
	return b
}

func path(key track.LineKey, pts []orb.Point) track.ReferencePath {
	return track.ReferencePath{Key: key, Points: orb.LineString(pts)}
}

func lineIDs(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = l.Line.LineID
	}
	return out
}

func repeat(s string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = s
	}
	return out
}
