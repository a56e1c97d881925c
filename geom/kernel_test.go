package geom

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// batch packs rows of (lat, lon) pairs padded with NaN to width.
func batch(width int, rows ...[][2]float64) PointBatch {
	data := make([]float64, len(rows)*width*2)
	for i := range data {
		data[i] = math.NaN()
	}
	for r, pts := range rows {
		for p, pt := range pts {
			k := (r*width + p) * 2
			data[k], data[k+1] = pt[0], pt[1]
		}
	}
	return PointBatch{Data: data, Rows: len(rows), Width: width, Stride: width}
}

func TestSerialKernel_Distances(t *testing.T) {
	a := batch(2,
		[][2]float64{{-22.90, -43.20}, {-22.91, -43.21}},
		[][2]float64{{-22.95, -43.25}},
	)
	b := batch(3,
		[][2]float64{{-22.90, -43.20}, {-22.95, -43.25}, {-22.91, -43.21}},
		nil,
	)

	dm, missing := SerialKernel{}.Distances(a, b)
	require.Len(t, dm.Data, 2*2*2*3)
	assert.Equal(t, []int{0, 3}, missing)

	for i := 0; i < a.Rows; i++ {
		for p := 0; p < a.Width; p++ {
			alat, alon := a.At(i, p)
			for j := 0; j < b.Rows; j++ {
				for q := 0; q < b.Width; q++ {
					blat, blon := b.At(j, q)
					want := GreatCircleDistance(alon, alat, blon, blat)
					got := dm.At(i, p, j, q)
					if math.IsNaN(want) {
						assert.True(t, math.IsNaN(got), "(%d,%d,%d,%d)", i, p, j, q)
						continue
					}
					assert.InDelta(t, want, got, 1e-9, "(%d,%d,%d,%d)", i, p, j, q)
				}
			}
		}
	}

	assert.Zero(t, dm.At(0, 0, 0, 0))
	assert.Zero(t, dm.At(1, 0, 0, 1))
	assert.True(t, math.IsNaN(dm.At(1, 1, 0, 0)), "padding on a propagates")
	assert.Len(t, dm.Block(0, 1, 1), 3)
}

func TestParallelKernel_MatchesSerial(t *testing.T) {
	rows := make([][][2]float64, 7)
	for r := range rows {
		for p := 0; p <= r%4; p++ {
			rows[r] = append(rows[r], [2]float64{-22.9 + float64(r)*0.01, -43.2 + float64(p)*0.01})
		}
	}
	a := batch(4, rows...)
	b := batch(4, rows[2:5]...)

	want, wantMissing := SerialKernel{}.Distances(a, b)
	for _, workers := range []int{0, 1, 3, 16} {
		got, gotMissing := ParallelKernel{Workers: workers}.Distances(a, b)
		if diff := cmp.Diff(want, got, cmpopts.EquateNaNs()); diff != "" {
			t.Errorf("workers=%d mismatch (-serial +parallel):\n%s", workers, diff)
		}
		assert.Equal(t, wantMissing, gotMissing)
	}
}

func TestKernel_EmptyBatches(t *testing.T) {
	a := batch(0, nil, nil)
	b := batch(2, [][2]float64{{1, 1}})
	dm, missing := SerialKernel{}.Distances(a, b)
	assert.Empty(t, dm.Data)
	assert.Equal(t, []int{0}, missing)

	dm, missing = ParallelKernel{}.Distances(batch(0), batch(0))
	assert.Empty(t, dm.Data)
	assert.Empty(t, missing)
}

func TestPointBatch_SliceAndNarrow(t *testing.T) {
	b := batch(3,
		[][2]float64{{1, 2}},
		[][2]float64{{3, 4}, {5, 6}},
		[][2]float64{{7, 8}, {9, 10}, {11, 12}},
	)

	s := b.Slice(1, 3)
	assert.Equal(t, 2, s.Rows)
	lat, lon := s.At(0, 1)
	assert.Equal(t, 5.0, lat)
	assert.Equal(t, 6.0, lon)

	n := s.Narrow(2)
	assert.Equal(t, 2, n.Width)
	assert.Equal(t, 3, n.Stride)
	lat, _ = n.At(1, 1)
	assert.Equal(t, 9.0, lat)

	assert.Equal(t, 3, b.Narrow(10).Width)
}

func TestNewKernel(t *testing.T) {
	assert.Equal(t, "serial", NewKernel("serial", 0).Name())
	assert.Equal(t, "serial", NewKernel("", 0).Name())
	k := NewKernel("parallel", 4)
	assert.Equal(t, "parallel", k.Name())
	assert.Equal(t, ParallelKernel{Workers: 4}, k)
}

func TestBytes(t *testing.T) {
	assert.Equal(t, int64(8*2*3*4*5), Bytes(2, 3, 4, 5))
	assert.Zero(t, Bytes(0, 10, 10, 10))
}
