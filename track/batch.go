package track

import (
	"errors"
	"fmt"
	"math"

	"kuanb/gosm-linematch/geom"
	"kuanb/gosm-linematch/monitoring"

	"github.com/paulmach/orb"
)

var (
	ErrLengthExceedsWidth = errors.New("row length exceeds batch width")
	ErrDuplicateEntry     = errors.New("duplicate batch entry")
)

// Entry describes one batch row. Direction is empty for trajectories.
type Entry struct {
	ID        string
	Direction string
	Length    int
	// Invalid counts positions below Length whose fix was out of range and
	// is stored as NaN.
	Invalid int
}

func (e Entry) Key() LineKey { return LineKey{LineID: e.ID, Direction: e.Direction} }

// Row is the input to NewBatch.
type Row struct {
	ID        string
	Direction string
	Points    []orb.Point
}

// Batch is an immutable dense container of padded rows plus the parallel
// list of row entries. Positions at or past a row's Length hold NaN, and so
// do invalid fixes inside it: they keep their index but never match.
type Batch struct {
	points  geom.PointBatch
	entries []Entry
	index   map[LineKey]int
}

// NewBatch packs rows into a batch of the given padded width. A width below
// zero uses the longest row. Rows may be empty; they stay all-NaN. Only
// structural problems fail: a row longer than the width or a repeated key.
func NewBatch(width int, rows []Row) (*Batch, error) {
	if width < 0 {
		width = 0
		for _, r := range rows {
			width = max(width, len(r.Points))
		}
	}

	data := make([]float64, len(rows)*width*2)
	for i := range data {
		data[i] = math.NaN()
	}

	b := &Batch{
		points: geom.PointBatch{
			Data:   data,
			Rows:   len(rows),
			Width:  width,
			Stride: width,
		},
		entries: make([]Entry, len(rows)),
		index:   make(map[LineKey]int, len(rows)),
	}

	for i, r := range rows {
		if len(r.Points) > width {
			return nil, fmt.Errorf("%w: %q has %d points, width %d", ErrLengthExceedsWidth, r.ID, len(r.Points), width)
		}
		key := LineKey{LineID: r.ID, Direction: r.Direction}
		if _, dup := b.index[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateEntry, key)
		}
		invalid := 0
		for p, pt := range r.Points {
			if !ValidCoordinate(pt) {
				invalid++
				continue
			}
			k := (i*width + p) * 2
			data[k] = pt[1]
			data[k+1] = pt[0]
		}
		if invalid > 0 {
			monitoring.Warnf("%s: %d of %d positions are not valid coordinates, they will not match any line",
				key, invalid, len(r.Points))
		}
		b.entries[i] = Entry{ID: r.ID, Direction: r.Direction, Length: len(r.Points), Invalid: invalid}
		b.index[key] = i
	}
	return b, nil
}

// ValidCoordinate reports whether pt is a finite longitude/latitude pair in range.
func ValidCoordinate(pt orb.Point) bool {
	lon, lat := pt[0], pt[1]
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// NewTrajectoryBatch packs trajectories in the given order.
func NewTrajectoryBatch(trajectories []Trajectory) (*Batch, error) {
	rows := make([]Row, len(trajectories))
	for i, t := range trajectories {
		rows[i] = Row{ID: t.ID, Points: t.Points()}
	}
	return NewBatch(-1, rows)
}

// NewPathBatch packs reference paths in the given order.
func NewPathBatch(paths []ReferencePath) (*Batch, error) {
	rows := make([]Row, len(paths))
	for i, p := range paths {
		rows[i] = Row{ID: p.Key.LineID, Direction: p.Key.Direction, Points: p.Points}
	}
	return NewBatch(-1, rows)
}

// Len returns the number of rows.
func (b *Batch) Len() int { return len(b.entries) }

// Width returns the padded width.
func (b *Batch) Width() int { return b.points.Stride }

// Entry returns the entry of row i.
func (b *Batch) Entry(i int) Entry { return b.entries[i] }

// Entries returns a copy of all row entries.
func (b *Batch) Entries() []Entry {
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// IndexOf finds the row of an identifier.
func (b *Batch) IndexOf(key LineKey) (int, bool) {
	i, ok := b.index[key]
	return i, ok
}

// TotalPoints sums the true lengths of all rows.
func (b *Batch) TotalPoints() int {
	n := 0
	for _, e := range b.entries {
		n += e.Length
	}
	return n
}

// Rows returns rows [lo, hi) as a kernel batch narrowed to the longest
// true length among them.
func (b *Batch) Rows(lo, hi int) geom.PointBatch {
	longest := 0
	for _, e := range b.entries[lo:hi] {
		longest = max(longest, e.Length)
	}
	return b.points.Slice(lo, hi).Narrow(longest)
}

// Row returns row i narrowed to its own true length.
func (b *Batch) Row(i int) geom.PointBatch {
	return b.points.Slice(i, i+1).Narrow(b.entries[i].Length)
}

// Bound returns the extent of rows [lo, hi). ok is false when every row is empty.
func (b *Batch) Bound(lo, hi int) (bound orb.Bound, ok bool) {
	for i := lo; i < hi; i++ {
		for p := 0; p < b.entries[i].Length; p++ {
			lat, lon := b.points.At(i, p)
			if math.IsNaN(lat) {
				continue
			}
			pt := orb.Point{lon, lat}
			if !ok {
				bound = pt.Bound()
				ok = true
				continue
			}
			bound = bound.Extend(pt)
		}
	}
	return bound, ok
}
