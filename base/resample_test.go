package base_test

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/base"
)

func TestSeqToGrid(t *testing.T) {
	x := ts.MustRandn([]int64{2, 16, 8}, gotch.Float, gotch.CPU)
	grid, err := base.SeqToGrid(x)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 8, 4, 4}, grid.MustSize())

	// round trip restores the sequence.
	seq := base.GridToSeq(grid)
	require.Equal(t, []int64{2, 16, 8}, seq.MustSize())
	require.Equal(t, x.Float64Values(), seq.MustContiguous(false).Float64Values())
}

func TestSeqToGridNotSquare(t *testing.T) {
	x := ts.MustZeros([]int64{1, 12, 4}, gotch.Float, gotch.CPU)
	_, err := base.SeqToGrid(x)
	require.Error(t, err)
	require.True(t, errors.Is(err, base.ErrNotSquare))

	_, err = base.SeqToGrid(ts.MustZeros([]int64{4, 4}, gotch.Float, gotch.CPU))
	require.Error(t, err)
}

func TestResize(t *testing.T) {
	x := ts.MustRandn([]int64{1, 3, 8, 8}, gotch.Float, gotch.CPU)

	up := base.Resize(x, []int64{16, 16})
	require.Equal(t, []int64{1, 3, 16, 16}, up.MustSize())

	same := base.Resize(x, []int64{8, 8})
	require.Equal(t, x.Float64Values(), same.Float64Values())

	ref := ts.MustZeros([]int64{1, 1, 4, 2}, gotch.Float, gotch.CPU)
	require.Equal(t, []int64{1, 3, 4, 2}, base.ResizeLike(x, ref).MustSize())
}

func TestResizeNearestKeepsLabels(t *testing.T) {
	mask := ts.MustOfSlice([]float32{
		0, 0, 1, 1,
		0, 0, 1, 1,
		1, 1, 0, 0,
		1, 1, 0, 0,
	}).MustView([]int64{1, 1, 4, 4}, true)

	down := base.ResizeNearest(mask, []int64{2, 2})
	require.Equal(t, []float64{0, 1, 1, 0}, down.Float64Values())
}
