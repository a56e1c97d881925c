package track

import (
	"fmt"
	"os"
	"strings"
)

// IDFilter keeps identifiers that are on the allow list (when one is set)
// and not on the deny list.
type IDFilter struct {
	allow map[string]struct{}
	deny  map[string]struct{}
}

// NewIDFilter builds a filter. A nil allow list allows everything.
func NewIDFilter(allow, deny []string) IDFilter {
	f := IDFilter{}
	if allow != nil {
		f.allow = toSet(allow)
	}
	if len(deny) > 0 {
		f.deny = toSet(deny)
	}
	return f
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Active reports whether the filter restricts anything.
func (f IDFilter) Active() bool { return f.allow != nil || f.deny != nil }

// Keep reports whether id passes the filter.
func (f IDFilter) Keep(id string) bool {
	if f.allow != nil {
		if _, ok := f.allow[id]; !ok {
			return false
		}
	}
	_, denied := f.deny[id]
	return !denied
}

// LoadIDList reads identifiers from a file separated by commas or newlines.
// An empty path returns nil.
func LoadIDList(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read id list: %w", err)
	}
	return ParseIDList(string(data)), nil
}

// ParseIDList splits on commas and newlines, dropping blanks.
func ParseIDList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			ids = append(ids, f)
		}
	}
	return ids
}

// FilterTrajectories drops trajectories the filter rejects.
func FilterTrajectories(ts []Trajectory, f IDFilter) []Trajectory {
	out := ts[:0:0]
	for _, t := range ts {
		if f.Keep(t.ID) {
			out = append(out, t)
		}
	}
	return out
}

// FilterPaths drops reference paths whose line the filter rejects.
func FilterPaths(ps []ReferencePath, f IDFilter) []ReferencePath {
	out := ps[:0:0]
	for _, p := range ps {
		if f.Keep(p.Key.LineID) {
			out = append(out, p)
		}
	}
	return out
}
