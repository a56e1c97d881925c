package matching

import "sort"

// Run is a maximal block of equal values in a belonging array.
type Run struct {
	Value  uint8
	Start  int
	Length int
}

// End is one past the last position of the run.
func (r Run) End() int { return r.Start + r.Length }

// Runs partitions seq into its runs.
func Runs(seq []uint8) []Run {
	if len(seq) == 0 {
		return nil
	}
	runs := make([]Run, 0, 4)
	cur := Run{Value: seq[0], Start: 0, Length: 1}
	for i := 1; i < len(seq); i++ {
		if seq[i] == cur.Value {
			cur.Length++
			continue
		}
		runs = append(runs, cur)
		cur = Run{Value: seq[i], Start: i, Length: 1}
	}
	return append(runs, cur)
}

// RunAt returns the run covering pos. runs must partition a sequence that
// contains pos.
func RunAt(runs []Run, pos int) Run {
	i := sort.Search(len(runs), func(i int) bool { return runs[i].End() > pos })
	return runs[i]
}

// SmoothRuns flips every run shorter than minLength to the opposite value.
// It is a single pass over the runs of the input: flipped blocks are not
// merged with their neighbours and re-examined. The input is not modified.
func SmoothRuns(seq []uint8, minLength int) []uint8 {
	out := make([]uint8, len(seq))
	copy(out, seq)
	for _, r := range Runs(seq) {
		if r.Length >= minLength {
			continue
		}
		flipped := 1 - r.Value
		for i := r.Start; i < r.End(); i++ {
			out[i] = flipped
		}
	}
	return out
}
