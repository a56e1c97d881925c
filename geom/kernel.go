package geom

import (
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// PointBatch is a dense batch of padded point rows.
// Row r, position p is stored at Data[(r*Stride+p)*2] (lat) and the next slot (lon).
// Positions past a row's true length hold NaN.
type PointBatch struct {
	Data   []float64
	Rows   int
	Width  int // positions visible to the kernel, <= Stride
	Stride int // positions allocated per row
}

// At returns the latitude and longitude of a row position in degrees.
func (b PointBatch) At(row, pos int) (lat, lon float64) {
	i := (row*b.Stride + pos) * 2
	return b.Data[i], b.Data[i+1]
}

// Slice returns rows [lo, hi) sharing the same backing array.
func (b PointBatch) Slice(lo, hi int) PointBatch {
	return PointBatch{
		Data:   b.Data[lo*b.Stride*2 : hi*b.Stride*2],
		Rows:   hi - lo,
		Width:  b.Width,
		Stride: b.Stride,
	}
}

// Narrow hides positions at or past width. Callers pass the largest true
// length in the batch so the kernel never walks pure padding.
func (b PointBatch) Narrow(width int) PointBatch {
	if width > b.Stride {
		width = b.Stride
	}
	b.Width = width
	return b
}

// DistanceMatrix holds great-circle distances in meters for every
// (a row, a position, b row, b position) combination.
type DistanceMatrix struct {
	Data   []float64
	ARows  int
	AWidth int
	BRows  int
	BWidth int
}

// At returns the distance between a[i][p] and b[j][q].
func (m DistanceMatrix) At(i, p, j, q int) float64 {
	return m.Data[((i*m.AWidth+p)*m.BRows+j)*m.BWidth+q]
}

// Block returns the distances from a[i][p] to every position of b row j.
func (m DistanceMatrix) Block(i, p, j int) []float64 {
	start := ((i*m.AWidth+p)*m.BRows + j) * m.BWidth
	return m.Data[start : start+m.BWidth]
}

// Bytes is the size of a float64 distance matrix for the given shape.
func Bytes(aRows, aWidth, bRows, bWidth int) int64 {
	return 8 * int64(aRows) * int64(aWidth) * int64(bRows) * int64(bWidth)
}

// Kernel computes batched pairwise distances. The second return value counts,
// per b row, how many of its Width positions are missing (NaN).
type Kernel interface {
	Distances(a, b PointBatch) (DistanceMatrix, []int)
	Name() string
}

// NewKernel returns the kernel registered under name, falling back to the serial one.
func NewKernel(name string, workers int) Kernel {
	switch name {
	case "parallel":
		return ParallelKernel{Workers: workers}
	default:
		return SerialKernel{}
	}
}

// SerialKernel evaluates the whole matrix on the calling goroutine.
type SerialKernel struct{}

func (SerialKernel) Name() string { return "serial" }

func (SerialKernel) Distances(a, b PointBatch) (DistanceMatrix, []int) {
	dm := newDistanceMatrix(a, b)
	pa := prepare(a)
	pb := prepare(b)
	fillRows(dm, pa, pb, 0, a.Rows)
	return dm, missingCounts(b)
}

// ParallelKernel splits the a rows across a bounded goroutine pool. Each
// goroutine owns a disjoint range of the output.
type ParallelKernel struct {
	Workers int
}

func (ParallelKernel) Name() string { return "parallel" }

func (k ParallelKernel) Distances(a, b PointBatch) (DistanceMatrix, []int) {
	dm := newDistanceMatrix(a, b)
	pa := prepare(a)
	pb := prepare(b)

	workers := k.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > a.Rows {
		workers = a.Rows
	}
	if workers <= 1 {
		fillRows(dm, pa, pb, 0, a.Rows)
		return dm, missingCounts(b)
	}

	var g errgroup.Group
	chunk := (a.Rows + workers - 1) / workers
	for lo := 0; lo < a.Rows; lo += chunk {
		hi := min(lo+chunk, a.Rows)
		g.Go(func() error {
			fillRows(dm, pa, pb, lo, hi)
			return nil
		})
	}
	_ = g.Wait()
	return dm, missingCounts(b)
}

// prepared caches radians and cos(lat) for each visible position.
type prepared struct {
	lat, cosLat, lon []float64
	rows, width      int
}

func prepare(b PointBatch) prepared {
	n := b.Rows * b.Width
	p := prepared{
		lat:    make([]float64, n),
		cosLat: make([]float64, n),
		lon:    make([]float64, n),
		rows:   b.Rows,
		width:  b.Width,
	}
	for r := 0; r < b.Rows; r++ {
		for q := 0; q < b.Width; q++ {
			lat, lon := b.At(r, q)
			k := r*b.Width + q
			p.lat[k] = lat * degToRad
			p.cosLat[k] = math.Cos(p.lat[k])
			p.lon[k] = lon * degToRad
		}
	}
	return p
}

func newDistanceMatrix(a, b PointBatch) DistanceMatrix {
	return DistanceMatrix{
		Data:   make([]float64, a.Rows*a.Width*b.Rows*b.Width),
		ARows:  a.Rows,
		AWidth: a.Width,
		BRows:  b.Rows,
		BWidth: b.Width,
	}
}

func fillRows(dm DistanceMatrix, a, b prepared, lo, hi int) {
	out := lo * a.width * b.rows * b.width
	for i := lo; i < hi; i++ {
		for p := 0; p < a.width; p++ {
			ka := i*a.width + p
			lat1, cos1, lon1 := a.lat[ka], a.cosLat[ka], a.lon[ka]
			for kb := range b.lat {
				dm.Data[out] = haversine(lat1, cos1, lon1, b.lat[kb], b.cosLat[kb], b.lon[kb])
				out++
			}
		}
	}
}

func missingCounts(b PointBatch) []int {
	counts := make([]int, b.Rows)
	for r := 0; r < b.Rows; r++ {
		for q := 0; q < b.Width; q++ {
			lat, lon := b.At(r, q)
			if math.IsNaN(lat) || math.IsNaN(lon) {
				counts[r]++
			}
		}
	}
	return counts
}
