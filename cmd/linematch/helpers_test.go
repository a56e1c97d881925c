package main

import (
	"testing"
	"time"

	"kuanb/gosm-linematch/matching"
	"kuanb/gosm-linematch/track"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
)

const (
	baseLat = -22.90
	baseLon = -43.20
	step    = 0.004
)

var (
	lineA = track.LineKey{LineID: "A", Direction: "0"}
	lineB = track.LineKey{LineID: "B", Direction: "0"}
	day   = time.Date(2019, 5, 6, 0, 0, 0, 0, time.UTC)
)

func row(lat float64, first, n int) orb.LineString {
	pts := make(orb.LineString, n)
	for i := range pts {
		pts[i] = orb.Point{baseLon + float64(first+i)*step, lat}
	}
	return pts
}

func trajectory(id string, start time.Time, pts orb.LineString) track.Trajectory {
	t := track.Trajectory{ID: id}
	for i, p := range pts {
		t.Samples = append(t.Samples, track.Sample{
			Time: start.Add(time.Duration(i) * 30 * time.Second),
			Lat:  p[1],
			Lon:  p[0],
		})
	}
	return t
}

func referencePaths() []track.ReferencePath {
	return []track.ReferencePath{
		{Key: lineA, Points: row(baseLat, 0, 6)},
		{Key: lineB, Points: row(baseLat-0.05, 0, 6)},
	}
}

func engines(t *testing.T) (*matching.Detector, *matching.Corrector) {
	t.Helper()
	dcfg := matching.DefaultDetectionConfig()
	dcfg.DetectionPercentage = 0.5
	detector, err := matching.NewDetector(dcfg, nil)
	require.NoError(t, err)

	ccfg := matching.DefaultCorrectionConfig()
	ccfg.MinGroupLength = 2
	corrector, err := matching.NewCorrector(ccfg, nil)
	require.NoError(t, err)
	return detector, corrector
}
