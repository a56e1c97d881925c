package matching

import (
	"math"
	"runtime"
	"sort"

	"kuanb/gosm-linematch/geom"
	"kuanb/gosm-linematch/monitoring"
	"kuanb/gosm-linematch/track"

	"golang.org/x/sync/errgroup"
)

// maxResolvePasses bounds the resolve/re-smooth loop. Smoothing can revive a
// short run a resolution just cleared; a last resolution without smoothing
// settles anything left after these passes.
const maxResolvePasses = 8

// Label is the line assigned to one trajectory sample. Line is track.NoLine
// when no candidate claims the sample.
type Label struct {
	Index int
	Line  track.LineKey
}

// Correction is the outcome of one correction run.
type Correction struct {
	// Labels holds, per trajectory with at least one candidate line, one
	// label per true sample in temporal order.
	Labels map[string][]Label
	// Conflicts counts samples claimed by more than one line after the first smoothing.
	Conflicts int
	// Ties counts conflict resolutions where several lines had the top
	// priority; the lowest line key won them.
	Ties int
}

// MatchedSamples counts labels naming a line.
func (c *Correction) MatchedSamples() int {
	n := 0
	for _, labels := range c.Labels {
		for _, l := range labels {
			if !l.Line.IsZero() {
				n++
			}
		}
	}
	return n
}

// Corrector assigns a single line to every sample of detected trajectories.
type Corrector struct {
	cfg    CorrectionConfig
	kernel geom.Kernel
}

// NewCorrector validates cfg. A nil kernel uses the serial one.
func NewCorrector(cfg CorrectionConfig, kernel geom.Kernel) (*Corrector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if kernel == nil {
		kernel = geom.SerialKernel{}
	}
	return &Corrector{cfg: cfg, kernel: kernel}, nil
}

type trajectoryResult struct {
	labels    []Label
	conflicts int
	ties      int
	ok        bool
}

// Correct labels every trajectory that appears in table. It returns
// ErrNoMatches when no sample of any trajectory ends up with a line.
func (c *Corrector) Correct(table *CandidateTable, trajectories, paths *track.Batch) (*Correction, error) {
	byTrajectory := table.ByTrajectory()
	ids := make([]string, 0, len(byTrajectory))
	for id := range byTrajectory {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	results := make([]trajectoryResult, len(ids))
	workers := c.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for k, id := range ids {
		row, ok := trajectories.IndexOf(track.LineKey{LineID: id})
		if !ok {
			monitoring.Warnf("correction: trajectory %q is not in the batch", id)
			continue
		}
		g.Go(func() error {
			results[k] = c.correctTrajectory(trajectories, row, paths, byTrajectory[id])
			return nil
		})
	}
	_ = g.Wait()

	out := &Correction{Labels: make(map[string][]Label, len(ids))}
	for k, id := range ids {
		r := results[k]
		if !r.ok {
			continue
		}
		out.Labels[id] = r.labels
		out.Conflicts += r.conflicts
		out.Ties += r.ties
	}

	matched := out.MatchedSamples()
	monitoring.Infof("correction: %d trajectories labelled, %d matched samples, %d conflicts, %d ties",
		len(out.Labels), matched, out.Conflicts, out.Ties)
	if matched == 0 {
		return nil, ErrNoMatches
	}
	return out, nil
}

func (c *Corrector) correctTrajectory(trajectories *track.Batch, row int, paths *track.Batch, lines []track.LineKey) trajectoryResult {
	n := trajectories.Entry(row).Length
	if n == 0 {
		return trajectoryResult{}
	}
	traj := trajectories.Row(row)

	keys := make([]track.LineKey, 0, len(lines))
	belonging := make([][]uint8, 0, len(lines))
	for _, line := range lines {
		j, ok := paths.IndexOf(line)
		if !ok || paths.Entry(j).Length == 0 {
			continue
		}
		dm, _ := c.kernel.Distances(traj, paths.Row(j))
		b := make([]uint8, n)
		for p := 0; p < n; p++ {
			b[p] = membership(dm.Block(0, p, 0), c.cfg.DistanceTolerance)
		}
		keys = append(keys, line)
		belonging = append(belonging, SmoothRuns(b, c.cfg.MinGroupLength))
	}
	if len(keys) == 0 {
		return trajectoryResult{}
	}

	conflicts, ties := settle(belonging, c.cfg.MinGroupLength, maxResolvePasses)
	return trajectoryResult{
		labels:    labelSamples(keys, belonging),
		conflicts: conflicts,
		ties:      ties,
		ok:        true,
	}
}

// settle resolves conflicts and re-smooths, at most passes times, then
// resolves whatever is left without smoothing so that no sample keeps more
// than one line. It returns the size of the first conflict set and the number
// of ties decided.
func settle(belonging [][]uint8, minGroup, passes int) (conflicts, ties int) {
	for pass := 0; pass < passes; pass++ {
		found := conflictingSamples(belonging)
		if len(found) == 0 {
			return conflicts, ties
		}
		if conflicts == 0 {
			conflicts = len(found)
		}
		ties += resolveConflicts(belonging, found)
		for k := range belonging {
			belonging[k] = SmoothRuns(belonging[k], minGroup)
		}
	}
	if found := conflictingSamples(belonging); len(found) > 0 {
		if conflicts == 0 {
			conflicts = len(found)
		}
		ties += resolveConflicts(belonging, found)
	}
	return conflicts, ties
}

// labelSamples names, per sample, the first line still claiming it.
func labelSamples(keys []track.LineKey, belonging [][]uint8) []Label {
	labels := make([]Label, len(belonging[0]))
	for p := range labels {
		labels[p] = Label{Index: p, Line: track.NoLine}
		for k := range belonging {
			if belonging[k][p] == 1 {
				labels[p].Line = keys[k]
				break
			}
		}
	}
	return labels
}

// membership is the rounded best sigmoid(tol - d) over one row of distances.
func membership(dists []float64, tol float64) uint8 {
	best := 0.0
	for _, d := range dists {
		if s := sigmoid(tol - d); s > best {
			best = s
		}
	}
	return uint8(math.RoundToEven(best))
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// conflictingSamples lists the positions claimed by more than one line.
func conflictingSamples(belonging [][]uint8) []int {
	var conflicts []int
	for p := range belonging[0] {
		claims := 0
		for k := range belonging {
			claims += int(belonging[k][p])
		}
		if claims > 1 {
			conflicts = append(conflicts, p)
		}
	}
	return conflicts
}

// resolveConflicts gives each conflicting sample to the line whose run
// covering it is the longest claiming run, clearing it on every other line.
// Priorities are taken from the arrays as they were on entry. Lines are in
// key order, so equal priorities go to the lowest key. It returns the number
// of samples decided by such a tie.
func resolveConflicts(belonging [][]uint8, conflicts []int) int {
	runs := make([][]Run, len(belonging))
	for k := range belonging {
		runs[k] = Runs(belonging[k])
	}

	ties := 0
	winners := make([]int, len(conflicts))
	for c, pos := range conflicts {
		best, bestPriority, tie := -1, -1, false
		for k := range belonging {
			priority := 0
			if r := RunAt(runs[k], pos); r.Value == 1 {
				priority = r.Length
			}
			switch {
			case priority > bestPriority:
				best, bestPriority, tie = k, priority, false
			case priority == bestPriority:
				tie = true
			}
		}
		winners[c] = best
		if tie {
			ties++
		}
	}

	for c, pos := range conflicts {
		for k := range belonging {
			if k != winners[c] {
				belonging[k][pos] = 0
			}
		}
	}
	return ties
}
