package main

import (
	"context"
	"errors"
	"time"

	"kuanb/gosm-linematch/config"
	"kuanb/gosm-linematch/geom"
	"kuanb/gosm-linematch/matching"
	"kuanb/gosm-linematch/monitoring"
	"kuanb/gosm-linematch/store"
	"kuanb/gosm-linematch/track"
)

// filters selects the vehicles and lines a run looks at.
type filters struct {
	buses track.IDFilter
	lines track.IDFilter
}

// loadFilters reads the configured list files. Without any list the caller
// must pass everything.
func loadFilters(f config.FiltersConfig, everything bool) (filters, error) {
	if !f.Any() && !everything {
		return filters{}, errors.New("no whitelist or blacklist given: pass -everything to process all data")
	}
	lists := make([][]string, 4)
	for i, path := range []string{f.BusWhitelist, f.BusBlacklist, f.LineWhitelist, f.LineBlacklist} {
		ids, err := track.LoadIDList(path)
		if err != nil {
			return filters{}, err
		}
		lists[i] = ids
	}
	return filters{
		buses: track.NewIDFilter(lists[0], lists[1]),
		lines: track.NewIDFilter(lists[2], lists[3]),
	}, nil
}

// runMatch labels every sample taken in [from, to) and writes the labels back.
func runMatch(ctx context.Context, st *store.Store, cfg *config.AppConfig, from, to time.Time, flt filters) (perf monitoring.PerformanceData, err error) {
	mes := monitoring.NewMeasure()
	defer func() {
		monitoring.Infof("%s", mes)
	}()

	runID, err := st.BeginRun(ctx, from, to)
	if err != nil {
		return perf, err
	}
	defer func() {
		if ferr := st.FinishRun(ctx, runID, perf, err); ferr != nil {
			monitoring.Errorf("failed to record run %s: %v", runID, ferr)
		}
	}()
	monitoring.Infof("run %s: window %s to %s", runID, from.Format(time.RFC3339), to.Format(time.RFC3339))

	// Data acquisition
	mes.Start("data-acquisition")
	trajectories, err := st.LoadTrajectories(ctx, from, to, flt.buses)
	if err != nil {
		return perf, err
	}
	paths, err := st.LoadReferencePaths(ctx, flt.lines)
	if err != nil {
		return perf, err
	}
	if len(trajectories) == 0 || len(paths) == 0 {
		monitoring.Warnf("run %s: nothing to match, %d trajectories and %d line paths", runID, len(trajectories), len(paths))
		return perf, nil
	}
	trajBatch, err := track.NewTrajectoryBatch(trajectories)
	if err != nil {
		return perf, err
	}
	pathBatch, err := track.NewPathBatch(paths)
	if err != nil {
		return perf, err
	}
	_ = mes.End("data-acquisition")

	kernel := geom.NewKernel(cfg.Kernel, cfg.Detection.Workers)
	monitoring.Infof("using %s kernel", kernel.Name())

	// Line detection
	mes.Start("line-detection")
	detector, err := matching.NewDetector(cfg.Detection, kernel)
	if err != nil {
		return perf, err
	}
	detection, err := detector.Detect(trajBatch, pathBatch)
	if err != nil {
		return perf, err
	}
	perf = matching.Describe(trajBatch, pathBatch, detection.Plan)
	perf.SkippedBatchPairs = detection.SkippedPairs
	perf.CandidatePairs = detection.Candidates.Len()
	perf.Log()
	if err := st.SaveCandidates(ctx, runID, detection.Candidates); err != nil {
		return perf, err
	}
	_ = mes.End("line-detection")

	// Line correction
	mes.Start("line-correction")
	corrector, err := matching.NewCorrector(cfg.Correction, kernel)
	if err != nil {
		return perf, err
	}
	correction, err := corrector.Correct(detection.Candidates, trajBatch, pathBatch)
	if err != nil {
		return perf, err
	}
	perf.ConflictingSamples = correction.Conflicts
	perf.PriorityTies = correction.Ties
	perf.LabeledTrajectories = len(correction.Labels)
	perf.LabeledSamples = correction.MatchedSamples()
	_ = mes.End("line-correction")

	// Database saving
	mes.Start("database-insertion")
	updated, err := st.SaveLabels(ctx, trajectories, correction.Labels)
	if err != nil {
		return perf, err
	}
	_ = mes.End("database-insertion")

	monitoring.Infof("run %s: %d samples updated, %d labelled with a line", runID, updated, perf.LabeledSamples)
	return perf, nil
}
