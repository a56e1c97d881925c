package matching

import (
	"fmt"

	"kuanb/gosm-linematch/geom"
	"kuanb/gosm-linematch/monitoring"
	"kuanb/gosm-linematch/track"
)

// Plan is the sub-batch layout of one detection run.
type Plan struct {
	TrajectoryBatchSize int
	PathBatchSize       int
	// PeakBytes bounds the distance matrix of any single batch pair.
	PeakBytes int64
}

// PlanBatches picks sub-batch sizes no larger than configured and, when a
// memory budget is set, shrinks them until a full-width batch pair fits.
func PlanBatches(trajectories, paths *track.Batch, cfg DetectionConfig) (Plan, error) {
	tw, pw := trajectories.Width(), paths.Width()
	tb := max(1, min(cfg.TrajectoryBatchSize, trajectories.Len()))
	pb := max(1, min(cfg.PathBatchSize, paths.Len()))

	if cfg.MemoryBudgetMB > 0 {
		budget := int64(cfg.MemoryBudgetMB) << 20
		for geom.Bytes(tb, tw, pb, pw) > budget {
			switch {
			case tb >= pb && tb > 1:
				tb = (tb + 1) / 2
			case pb > 1:
				pb = (pb + 1) / 2
			case tb > 1:
				tb = (tb + 1) / 2
			default:
				return Plan{}, fmt.Errorf("%w: %d MB needed, budget %d MB",
					ErrBudgetTooSmall, geom.Bytes(1, tw, 1, pw)>>20, cfg.MemoryBudgetMB)
			}
		}
	}

	return Plan{
		TrajectoryBatchSize: tb,
		PathBatchSize:       pb,
		PeakBytes:           geom.Bytes(tb, tw, pb, pw),
	}, nil
}

// Iterations is the number of batch pairs the plan visits.
func (p Plan) Iterations(trajectories, paths int) int {
	return len(spans(trajectories, p.TrajectoryBatchSize)) * len(spans(paths, p.PathBatchSize))
}

// span is a half-open row range.
type span struct{ lo, hi int }

func spans(n, size int) []span {
	if size <= 0 {
		size = 1
	}
	out := make([]span, 0, (n+size-1)/size)
	for lo := 0; lo < n; lo += size {
		out = append(out, span{lo, min(lo+size, n)})
	}
	return out
}

// Describe reports the sizes involved in matching these batches with plan.
func Describe(trajectories, paths *track.Batch, plan Plan) monitoring.PerformanceData {
	const mb = 1 << 20
	tn, tw := trajectories.Len(), trajectories.Width()
	pn, pw := paths.Len(), paths.Width()
	return monitoring.PerformanceData{
		BusAmount:              tn,
		LineAmount:             pn,
		TotalBusCoordinates:    trajectories.TotalPoints(),
		TotalLineCoordinates:   paths.TotalPoints(),
		BusMatrixMaxPoints:     tw,
		LineMatrixMaxPoints:    pw,
		BusWastedPoints:        tn*tw - trajectories.TotalPoints(),
		LineWastedPoints:       pn*pw - paths.TotalPoints(),
		BusMatrixMB:            float64(16*tn*tw) / mb,
		LineMatrixMB:           float64(16*pn*pw) / mb,
		ExtrapolatedDistanceMB: float64(geom.Bytes(tn, tw, pn, pw)) / mb,
		BatchedDistanceMB:      float64(plan.PeakBytes) / mb,
		Iterations:             plan.Iterations(tn, pn),
		TrajectoryBatchSize:    plan.TrajectoryBatchSize,
		PathBatchSize:          plan.PathBatchSize,
	}
}
