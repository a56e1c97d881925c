package monitoring

import (
	"runtime"
	"time"
)

// RuntimeMetrics holds memory and goroutine statistics
type RuntimeMetrics struct {
	Goroutines   int     `json:"goroutines"`
	AllocMB      float64 `json:"alloc_mb"`       // currently allocated heap
	TotalAllocMB float64 `json:"total_alloc_mb"` // cumulative allocated (includes freed)
	SysMB        float64 `json:"sys_mb"`         // total memory from OS
	HeapAllocMB  float64 `json:"heap_alloc_mb"`
	HeapSysMB    float64 `json:"heap_sys_mb"`
	HeapObjects  uint64  `json:"heap_objects"`
	NumGC        uint32  `json:"num_gc"`
}

// ReadRuntimeMetrics collects current runtime statistics
func ReadRuntimeMetrics() RuntimeMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return RuntimeMetrics{
		Goroutines:   runtime.NumGoroutine(),
		AllocMB:      float64(m.Alloc) / 1024 / 1024,
		TotalAllocMB: float64(m.TotalAlloc) / 1024 / 1024,
		SysMB:        float64(m.Sys) / 1024 / 1024,
		HeapAllocMB:  float64(m.HeapAlloc) / 1024 / 1024,
		HeapSysMB:    float64(m.HeapSys) / 1024 / 1024,
		HeapObjects:  m.HeapObjects,
		NumGC:        m.NumGC,
	}
}

// StartMetricsLogger logs runtime metrics every interval until stop is closed.
func StartMetricsLogger(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m := ReadRuntimeMetrics()
				Infof("[metrics] goroutines=%d alloc=%.2fMB sys=%.2fMB heap_objects=%d gc_cycles=%d",
					m.Goroutines, m.AllocMB, m.SysMB, m.HeapObjects, m.NumGC)
			}
		}
	}()
}

// PerformanceData summarises the shape of one matching run.
type PerformanceData struct {
	BusAmount              int     `json:"bus-amount"`
	LineAmount             int     `json:"line-amount"`
	TotalBusCoordinates    int     `json:"total-bus-coordinates"`
	TotalLineCoordinates   int     `json:"total-line-coordinates"`
	BusMatrixMaxPoints     int     `json:"bus-matrix-max-points"`
	LineMatrixMaxPoints    int     `json:"line-matrix-max-points"`
	BusWastedPoints        int     `json:"bus-wasted-points"`
	LineWastedPoints       int     `json:"line-wasted-points"`
	BusMatrixMB            float64 `json:"total-size-bus-matrix-mbytes"`
	LineMatrixMB           float64 `json:"total-size-line-matrix-mbytes"`
	ExtrapolatedDistanceMB float64 `json:"extrapolated-maximum-d-size-mbytes"`
	BatchedDistanceMB      float64 `json:"maximum-d-size-batched-mbytes"`
	Iterations             int     `json:"iterations-amount"`
	TrajectoryBatchSize    int     `json:"bus-step-size"`
	PathBatchSize          int     `json:"line-step-size"`
	SkippedBatchPairs      int     `json:"skipped-batch-pairs,omitempty"`
	CandidatePairs         int     `json:"candidate-pairs,omitempty"`
	ConflictingSamples     int     `json:"conflicting-samples,omitempty"`
	PriorityTies           int     `json:"priority-ties,omitempty"`
	LabeledTrajectories    int     `json:"labeled-trajectories,omitempty"`
	LabeledSamples         int     `json:"labeled-samples,omitempty"`
}

// Log writes the block at info level.
func (p PerformanceData) Log() {
	Infof("buses=%d lines=%d bus_coords=%d line_coords=%d bus_width=%d line_width=%d",
		p.BusAmount, p.LineAmount, p.TotalBusCoordinates, p.TotalLineCoordinates, p.BusMatrixMaxPoints, p.LineMatrixMaxPoints)
	Infof("wasted bus=%d line=%d matrices bus=%.2fMB line=%.2fMB d_full=%.2fMB d_batched=%.2fMB iterations=%d",
		p.BusWastedPoints, p.LineWastedPoints, p.BusMatrixMB, p.LineMatrixMB, p.ExtrapolatedDistanceMB, p.BatchedDistanceMB, p.Iterations)
}
