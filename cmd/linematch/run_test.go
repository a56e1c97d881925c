package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kuanb/gosm-linematch/config"
	"kuanb/gosm-linematch/matching"
	"kuanb/gosm-linematch/store"
	"kuanb/gosm-linematch/track"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.AppConfig {
	cfg := &config.AppConfig{
		Detection:  matching.DefaultDetectionConfig(),
		Correction: matching.DefaultCorrectionConfig(),
		Kernel:     "parallel",
	}
	cfg.Detection.DetectionPercentage = 0.5
	cfg.Correction.MinGroupLength = 2
	return cfg
}

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "linematch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate())

	ctx := context.Background()
	_, err = st.ReplaceLinePaths(ctx, referencePaths())
	require.NoError(t, err)
	on := trajectory("bus-1", day.Add(8*time.Hour), row(baseLat, 0, 6))
	on.ReportedLine = lineA
	_, err = st.InsertSamples(ctx, []track.Trajectory{
		on,
		trajectory("bus-2", day.Add(9*time.Hour), row(baseLat+0.3, 0, 4)),
		trajectory("bus-3", day.Add(-2*time.Hour), row(baseLat, 0, 6)),
	})
	require.NoError(t, err)
	return st
}

func TestRunMatch(t *testing.T) {
	st := seededStore(t)
	ctx := context.Background()
	flt, err := loadFilters(config.FiltersConfig{}, true)
	require.NoError(t, err)

	perf, err := runMatch(ctx, st, testConfig(), day, day.AddDate(0, 0, 1), flt)
	require.NoError(t, err)

	assert.Equal(t, 2, perf.BusAmount)
	assert.Equal(t, 2, perf.LineAmount)
	assert.Equal(t, 1, perf.CandidatePairs)
	assert.Equal(t, 1, perf.LabeledTrajectories)
	assert.Equal(t, 6, perf.LabeledSamples)

	sum, err := st.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(16), sum.Samples)
	assert.Equal(t, int64(6), sum.LabelledSamples)
	assert.Equal(t, int64(6), sum.AgreeingSamples)
	require.NotNil(t, sum.LastRun)
	assert.Equal(t, store.RunDone, sum.LastRun.Status)
	assert.Equal(t, 6, sum.LastRun.Stats.LabeledSamples)

	candidates, err := st.Candidates(ctx, sum.LastRun.ID)
	require.NoError(t, err)
	assert.True(t, candidates.Contains(lineA, "bus-1"))
}

func TestRunMatch_NoMatchesMarksRunFailed(t *testing.T) {
	st := seededStore(t)
	ctx := context.Background()

	// only the vehicle far from every line is kept
	flt := filters{buses: track.NewIDFilter([]string{"bus-2"}, nil)}
	_, err := runMatch(ctx, st, testConfig(), day, day.AddDate(0, 0, 1), flt)
	assert.ErrorIs(t, err, matching.ErrNoMatches)

	last, err := st.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, last.Status)
	assert.Contains(t, last.Error, "no matches")
}

func TestRunMatch_EmptyWindow(t *testing.T) {
	st := seededStore(t)
	ctx := context.Background()
	flt, err := loadFilters(config.FiltersConfig{}, true)
	require.NoError(t, err)

	perf, err := runMatch(ctx, st, testConfig(), day.AddDate(0, 1, 0), day.AddDate(0, 1, 1), flt)
	require.NoError(t, err)
	assert.Zero(t, perf.BusAmount)
	assert.Zero(t, perf.LabeledSamples)

	last, err := st.LastRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, store.RunDone, last.Status)
	assert.Empty(t, last.Error)

	sum, err := st.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, sum.LabelledSamples)
}

func TestLoadFilters(t *testing.T) {
	_, err := loadFilters(config.FiltersConfig{}, false)
	assert.ErrorContains(t, err, "-everything")

	path := filepath.Join(t.TempDir(), "lines.txt")
	require.NoError(t, os.WriteFile(path, []byte("A,C"), 0o644))
	flt, err := loadFilters(config.FiltersConfig{LineWhitelist: path}, false)
	require.NoError(t, err)
	assert.True(t, flt.lines.Keep("A"))
	assert.False(t, flt.lines.Keep("B"))
	assert.False(t, flt.buses.Active())
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-mode", "status", "-v", "-v", "-bus-whitelist", "buses.txt"})
	require.NoError(t, err)
	assert.Equal(t, "status", opts.mode)
	assert.Equal(t, verbosity(2), opts.verbose)
	assert.Equal(t, "config.yml", opts.configPath)

	merged := mergeFilters(config.FiltersConfig{BusWhitelist: "conf.txt", LineBlacklist: "deny.txt"}, opts.filters)
	assert.Equal(t, config.FiltersConfig{BusWhitelist: "buses.txt", LineBlacklist: "deny.txt"}, merged)

	opts, err = parseFlags([]string{"-v=3"})
	require.NoError(t, err)
	assert.Equal(t, verbosity(3), opts.verbose)

	_, err = parseFlags([]string{"-v=lots"})
	assert.Error(t, err)
}
