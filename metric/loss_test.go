package metric_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/metric"
)

func fixture() (pred, target *ts.Tensor) {
	pslice := []int64{1, 0, 0, 1, 0, 0, 1, 0, 0}
	tslice := []int64{1, 0, 0, 1, 1, 0, 1, 0, 0}

	pred = ts.MustOfSlice(pslice).MustView([]int64{1, 3, 3}, true)
	target = ts.MustOfSlice(tslice).MustView([]int64{1, 3, 3}, true)
	return pred, target
}

func TestJaccardIndex(t *testing.T) {
	pred, target := fixture()

	iou := metric.JaccardIndex(pred, target, 2)
	require.InDelta(t, (0.75+5.0/6.0)/2, iou, 1e-4)
}

func TestIoU(t *testing.T) {
	pred, target := fixture()

	iou := metric.IoU(pred, target)
	require.InDelta(t, 0.75, iou, 1e-4)
}

func TestDiceCoeff(t *testing.T) {
	pred, target := fixture()

	dice := metric.DiceCoeff(pred, target)
	require.InDelta(t, 0.8571, dice, 1e-4)
}

func TestEmptyMasks(t *testing.T) {
	empty := ts.MustZeros([]int64{1, 4, 4}, gotch.Float, gotch.CPU)
	require.Equal(t, 1.0, metric.DiceCoeff(empty, empty))
	require.Equal(t, 1.0, metric.IoU(empty, empty))
}

func TestDiceCoeffBatch(t *testing.T) {
	prob := ts.MustOfSlice([]float32{0.9, 0.1, 0.2, 0.8, 0.7, 0.6, 0.1, 0.1}).MustView([]int64{2, 1, 2, 2}, true)
	target := ts.MustOfSlice([]float32{1, 0, 0, 1, 0, 0, 1, 1}).MustView([]int64{2, 1, 2, 2}, true)

	// first sample matches exactly, second has no overlap.
	require.InDelta(t, 0.5, metric.DiceCoeffBatch(prob, target), 1e-6)
	require.InDelta(t, 0.5, metric.IoUBatch(prob, target), 1e-6)
}

func TestBCEWithLogitsLoss(t *testing.T) {
	logit := ts.MustOfSlice([]float64{0, 0, 0, 0}).MustView([]int64{1, 1, 2, 2}, true)
	target := ts.MustOfSlice([]float64{0, 1, 0, 1}).MustView([]int64{1, 1, 2, 2}, true)

	loss := metric.BCEWithLogitsLoss(logit, target)
	require.InDelta(t, 0.693147, loss.Float64Values()[0], 1e-5)
}

func outputs(b int64) []*ts.Tensor {
	return []*ts.Tensor{
		ts.MustRandn([]int64{b, 1, 16, 16}, gotch.Float, gotch.CPU),
		ts.MustRandn([]int64{b, 1, 4, 4}, gotch.Float, gotch.CPU),
		ts.MustRandn([]int64{b, 1, 2, 2}, gotch.Float, gotch.CPU),
	}
}

func TestWBCENonNegative(t *testing.T) {
	loss := metric.NewWBCE()
	require.Equal(t, []float64{0.8, 0.13, 0.07}, loss.Weights)

	for i := 0; i < 5; i++ {
		target := ts.MustRandint(2, []int64{3, 1, 16, 16}, gotch.Float, gotch.CPU)
		l, err := loss.Forward(outputs(3), target)
		require.NoError(t, err)
		require.GreaterOrEqual(t, l.Float64Values()[0], 0.0)
	}
}

func TestWBCEBatchOrderInvariant(t *testing.T) {
	outs := outputs(2)
	target := ts.MustRandint(2, []int64{2, 1, 16, 16}, gotch.Float, gotch.CPU)

	loss := metric.NewWBCE()
	l1, err := loss.Forward(outs, target)
	require.NoError(t, err)

	idx := ts.MustOfSlice([]int64{1, 0})
	var swapped []*ts.Tensor
	for _, o := range outs {
		swapped = append(swapped, o.MustIndexSelect(0, idx, false))
	}
	l2, err := loss.Forward(swapped, target.MustIndexSelect(0, idx, false))
	require.NoError(t, err)

	require.InDelta(t, l1.Float64Values()[0], l2.Float64Values()[0], 1e-6)
}

func TestWBCEWeights(t *testing.T) {
	// with zero logits every scale contributes ln 2.
	zeros := []*ts.Tensor{
		ts.MustZeros([]int64{1, 1, 8, 8}, gotch.Float, gotch.CPU),
		ts.MustZeros([]int64{1, 1, 4, 4}, gotch.Float, gotch.CPU),
	}
	target := ts.MustOnes([]int64{1, 1, 8, 8}, gotch.Float, gotch.CPU)

	l, err := metric.NewWBCE(1, 2).Forward(zeros, target)
	require.NoError(t, err)
	require.InDelta(t, 3*0.693147, l.Float64Values()[0], 1e-5)
}

func TestWBCEMismatch(t *testing.T) {
	target := ts.MustZeros([]int64{1, 1, 16, 16}, gotch.Float, gotch.CPU)

	_, err := metric.NewWBCE(0.5, 0.5).Forward(outputs(1), target)
	require.Error(t, err)

	_, err = metric.NewWBCE().Forward(outputs(1), ts.MustZeros([]int64{16, 16}, gotch.Float, gotch.CPU))
	require.Error(t, err)
}
