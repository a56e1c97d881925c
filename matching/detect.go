package matching

import (
	"math"
	"runtime"

	"kuanb/gosm-linematch/geom"
	"kuanb/gosm-linematch/monitoring"
	"kuanb/gosm-linematch/track"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Detector flags the reference paths each trajectory plausibly travelled.
type Detector struct {
	cfg    DetectionConfig
	kernel geom.Kernel
}

// NewDetector validates cfg. A nil kernel uses the serial one.
func NewDetector(cfg DetectionConfig, kernel geom.Kernel) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if kernel == nil {
		kernel = geom.SerialKernel{}
	}
	return &Detector{cfg: cfg, kernel: kernel}, nil
}

// Detection is the outcome of one detection run.
type Detection struct {
	// Percentages has one row per trajectory and one column per path. NaN
	// marks pairs with no information: an empty trajectory or a path without
	// valid points.
	Percentages *mat.Dense
	Candidates  *CandidateTable
	Plan        Plan
	// SkippedPairs counts batch pairs the spatial prefilter proved empty.
	SkippedPairs int
}

// Detect scores every (trajectory, path) pair and keeps those whose
// belonging percentage is strictly above the detection threshold.
func (d *Detector) Detect(trajectories, paths *track.Batch) (*Detection, error) {
	if trajectories.Len() == 0 || paths.Len() == 0 {
		monitoring.Infof("detection skipped: %d trajectories, %d paths", trajectories.Len(), paths.Len())
		return &Detection{Candidates: NewCandidateTable()}, nil
	}

	plan, err := PlanBatches(trajectories, paths, d.cfg)
	if err != nil {
		return nil, err
	}

	pct, skipped := d.percentages(trajectories, paths, plan)
	table := Threshold(pct, trajectories, paths, d.cfg.DetectionPercentage)

	monitoring.Infof("detection: %d trajectories x %d paths in %d batch pairs (%d skipped), %d candidate pairs",
		trajectories.Len(), paths.Len(), plan.Iterations(trajectories.Len(), paths.Len()), skipped, table.Len())

	return &Detection{
		Percentages:  pct,
		Candidates:   table,
		Plan:         plan,
		SkippedPairs: skipped,
	}, nil
}

// Threshold builds the candidate table from a percentage matrix.
func Threshold(pct *mat.Dense, trajectories, paths *track.Batch, threshold float64) *CandidateTable {
	table := NewCandidateTable()
	if pct == nil {
		return table
	}
	rows, cols := pct.Dims()
	for i := 0; i < rows; i++ {
		id := trajectories.Entry(i).ID
		for j := 0; j < cols; j++ {
			// NaN never compares greater, so uninformative pairs drop out here
			if v := pct.At(i, j); v > threshold {
				table.Add(paths.Entry(j).Key(), id, v)
			}
		}
	}
	return table
}

type batchPair struct {
	t, p span
}

func (d *Detector) percentages(trajectories, paths *track.Batch, plan Plan) (*mat.Dense, int) {
	tSpans := spans(trajectories.Len(), plan.TrajectoryBatchSize)
	pSpans := spans(paths.Len(), plan.PathBatchSize)

	var near map[int]struct{}
	var index *geom.PathIndex
	if d.cfg.Prefilter {
		index = pathIndex(paths)
	}

	pairs := make([]batchPair, 0, len(tSpans)*len(pSpans))
	skipped := make([]bool, 0, cap(pairs))
	for _, ts := range tSpans {
		if index != nil {
			near = nearRows(index, trajectories, ts, d.cfg.DistanceTolerance)
		}
		for _, ps := range pSpans {
			pairs = append(pairs, batchPair{t: ts, p: ps})
			skipped = append(skipped, index != nil && !anyIn(near, ps))
		}
	}

	blocks := make([]*mat.Dense, len(pairs))
	workers := d.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for k, bp := range pairs {
		if skipped[k] {
			blocks[k] = emptyBlock(trajectories, paths, bp)
			continue
		}
		g.Go(func() error {
			blocks[k] = d.belongingBlock(trajectories, paths, bp)
			monitoring.Debugf("detection batch trajectories[%d:%d] x paths[%d:%d] done", bp.t.lo, bp.t.hi, bp.p.lo, bp.p.hi)
			return nil
		})
	}
	_ = g.Wait()

	full := mat.NewDense(trajectories.Len(), paths.Len(), nil)
	nSkipped := 0
	for k, bp := range pairs {
		if skipped[k] {
			nSkipped++
		}
		full.Slice(bp.t.lo, bp.t.hi, bp.p.lo, bp.p.hi).(*mat.Dense).Copy(blocks[k])
	}
	return full, nSkipped
}

// belongingBlock computes the percentages of one batch pair. It only reads
// the batches and returns a fresh matrix.
func (d *Detector) belongingBlock(trajectories, paths *track.Batch, bp batchPair) *mat.Dense {
	a := trajectories.Rows(bp.t.lo, bp.t.hi)
	b := paths.Rows(bp.p.lo, bp.p.hi)
	dm, missing := d.kernel.Distances(a, b)

	tol := d.cfg.DistanceTolerance
	block := mat.NewDense(a.Rows, b.Rows, nil)
	for i := 0; i < a.Rows; i++ {
		n := trajectories.Entry(bp.t.lo + i).Length
		for j := 0; j < b.Rows; j++ {
			if n == 0 || b.Width-missing[j] == 0 {
				block.Set(i, j, math.NaN())
				continue
			}
			below := 0
			for p := 0; p < n; p++ {
				if nanMin(dm.Block(i, p, j)) < tol {
					below++
				}
			}
			block.Set(i, j, float64(below)/float64(n))
		}
	}
	return block
}

// emptyBlock is the block of a pair the prefilter ruled out: zero wherever
// both sides have points.
func emptyBlock(trajectories, paths *track.Batch, bp batchPair) *mat.Dense {
	block := mat.NewDense(bp.t.hi-bp.t.lo, bp.p.hi-bp.p.lo, nil)
	for i := bp.t.lo; i < bp.t.hi; i++ {
		for j := bp.p.lo; j < bp.p.hi; j++ {
			if trajectories.Entry(i).Length == 0 || paths.Entry(j).Length == 0 {
				block.Set(i-bp.t.lo, j-bp.p.lo, math.NaN())
			}
		}
	}
	return block
}

// nanMin is the minimum ignoring NaN; NaN when nothing is left.
func nanMin(xs []float64) float64 {
	m := math.NaN()
	for _, x := range xs {
		if x < m || (math.IsNaN(m) && !math.IsNaN(x)) {
			m = x
		}
	}
	return m
}

func pathIndex(paths *track.Batch) *geom.PathIndex {
	index := geom.NewPathIndex()
	for j := 0; j < paths.Len(); j++ {
		if bound, ok := paths.Bound(j, j+1); ok {
			index.Insert(j, bound)
		}
	}
	return index
}

// nearRows returns the path rows whose extent comes within tol of any
// trajectory in the span.
func nearRows(index *geom.PathIndex, trajectories *track.Batch, ts span, tol float64) map[int]struct{} {
	near := make(map[int]struct{})
	for i := ts.lo; i < ts.hi; i++ {
		bound, ok := trajectories.Bound(i, i+1)
		if !ok {
			continue
		}
		for _, row := range index.SearchNear(bound, tol) {
			near[row] = struct{}{}
		}
	}
	return near
}

func anyIn(set map[int]struct{}, s span) bool {
	for j := s.lo; j < s.hi; j++ {
		if _, ok := set[j]; ok {
			return true
		}
	}
	return false
}
