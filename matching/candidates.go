package matching

import (
	"sort"

	"kuanb/gosm-linematch/track"
)

// CandidateTable maps each reference path to the trajectories detected on it,
// with the belonging percentage that qualified them. Pairs under the
// threshold are absent.
type CandidateTable struct {
	lines map[track.LineKey]map[string]float64
}

func NewCandidateTable() *CandidateTable {
	return &CandidateTable{lines: make(map[track.LineKey]map[string]float64)}
}

// Add records a qualifying pair.
func (t *CandidateTable) Add(line track.LineKey, trajectory string, percentage float64) {
	m, ok := t.lines[line]
	if !ok {
		m = make(map[string]float64)
		t.lines[line] = m
	}
	m[trajectory] = percentage
}

// Contains reports whether the pair qualified.
func (t *CandidateTable) Contains(line track.LineKey, trajectory string) bool {
	_, ok := t.lines[line][trajectory]
	return ok
}

// Percentage returns the belonging percentage of a qualifying pair.
func (t *CandidateTable) Percentage(line track.LineKey, trajectory string) (float64, bool) {
	p, ok := t.lines[line][trajectory]
	return p, ok
}

// Len counts qualifying pairs.
func (t *CandidateTable) Len() int {
	n := 0
	for _, m := range t.lines {
		n += len(m)
	}
	return n
}

// Lines returns the lines with at least one trajectory, sorted.
func (t *CandidateTable) Lines() []track.LineKey {
	keys := make([]track.LineKey, 0, len(t.lines))
	for k := range t.lines {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

// Trajectories returns the trajectories detected on line, sorted.
func (t *CandidateTable) Trajectories(line track.LineKey) []string {
	ids := make([]string, 0, len(t.lines[line]))
	for id := range t.lines[line] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByTrajectory inverts the table: trajectory -> sorted candidate lines.
func (t *CandidateTable) ByTrajectory() map[string][]track.LineKey {
	out := make(map[string][]track.LineKey)
	for _, line := range t.Lines() {
		for id := range t.lines[line] {
			out[id] = append(out[id], line)
		}
	}
	return out
}

// Each visits every pair in line then trajectory order.
func (t *CandidateTable) Each(fn func(line track.LineKey, trajectory string, percentage float64)) {
	for _, line := range t.Lines() {
		for _, id := range t.Trajectories(line) {
			fn(line, id, t.lines[line][id])
		}
	}
}
