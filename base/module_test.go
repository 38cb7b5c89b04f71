package base_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/base"
)

func TestConv2dKaimingInit(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	conv := base.Conv2d(vs.Root().Sub("conv"), 64, 128, 3, 1, 1)

	ws := conv.Ws.Float64Values()
	var sum, sq float64
	for _, v := range ws {
		sum += v
		sq += v * v
	}
	n := float64(len(ws))
	mean := sum / n
	std := math.Sqrt(sq/n - mean*mean)

	require.InDelta(t, 0.0, mean, 0.005)
	require.InDelta(t, math.Sqrt(2.0/(128*9)), std, 0.005)

	for _, b := range conv.Bs.Float64Values() {
		require.Equal(t, 0.0, b)
	}
}

func TestConv2dRelu(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	block := base.Conv2dRelu(vs.Root().Sub("mff"), 8, 4, 1, 0, 1)

	vars := vs.Variables()
	for _, name := range []string{"mff.conv.weight", "mff.bn.weight", "mff.bn.bias", "mff.bn.running_mean", "mff.bn.running_var"} {
		_, ok := vars[name]
		require.True(t, ok, name)
	}
	_, ok := vars["mff.conv.bias"]
	require.False(t, ok)

	bnWeight := vars["mff.bn.weight"]
	for _, v := range bnWeight.Float64Values() {
		require.Equal(t, 1.0, v)
	}

	x := ts.MustRandn([]int64{2, 8, 5, 5}, gotch.Float, gotch.CPU)
	y := block.ForwardT(x, true)
	require.Equal(t, []int64{2, 4, 5, 5}, y.MustSize())
	for _, v := range y.Float64Values() {
		require.GreaterOrEqual(t, v, 0.0)
	}
}

func TestConvTranspose2x(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	up := base.ConvTranspose2x(vs.Root().Sub("up"), 6, 3)

	x := ts.MustRandn([]int64{1, 6, 7, 9}, gotch.Float, gotch.CPU)
	require.Equal(t, []int64{1, 3, 14, 18}, up.Forward(x).MustSize())
}
