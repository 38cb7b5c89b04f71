package segforest_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/segforest"
)

func randn(size ...int64) *ts.Tensor {
	return ts.MustRandn(size, gotch.Float, gotch.CPU)
}

func TestMFF(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	mff := segforest.NewMFF(vs.Root().Sub("mff"), 16, 5)

	out := mff.ForwardT(randn(2, 8, 8, 8), randn(2, 4, 4, 4), randn(2, 2, 2, 2), randn(2, 2, 1, 1), true)
	require.Equal(t, []int64{2, 5, 8, 8}, out.MustSize())
	for _, v := range out.Float64Values() {
		require.GreaterOrEqual(t, v, 0.0)
	}
}

func TestMFFChannelMismatch(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	mff := segforest.NewMFF(vs.Root().Sub("mff"), 16, 5)

	require.Panics(t, func() {
		mff.ForwardT(randn(1, 8, 4, 4), randn(1, 8, 2, 2), randn(1, 8, 1, 1), randn(1, 8, 1, 1), false)
	})
}

func TestMSMD(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	msmd := segforest.NewMSMD(vs.Root().Sub("msmd"), 32, 16, 1)

	fine, mid, coarse := msmd.ForwardT(randn(2, 32, 16, 16), randn(2, 32, 8, 8), randn(2, 32, 4, 4), true)
	require.Equal(t, []int64{2, 1, 16, 16}, fine.MustSize())
	require.Equal(t, []int64{2, 1, 16, 16}, mid.MustSize())
	require.Equal(t, []int64{2, 1, 8, 8}, coarse.MustSize())
}

func TestMSMDOddResolution(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	msmd := segforest.NewMSMD(vs.Root().Sub("msmd"), 32, 16, 2)

	var fine, mid, coarse *ts.Tensor
	require.NotPanics(t, func() {
		fine, mid, coarse = msmd.ForwardT(randn(1, 32, 15, 15), randn(1, 32, 8, 8), randn(1, 32, 4, 4), false)
	})
	require.Equal(t, []int64{1, 2, 15, 15}, fine.MustSize())
	require.Equal(t, []int64{1, 2, 15, 15}, mid.MustSize())
	require.Equal(t, []int64{1, 2, 8, 8}, coarse.MustSize())
}

func TestMSMDParameterNames(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	segforest.NewMSMD(vs.Root().Sub("msmd"), 32, 16, 1)

	vars := vs.Variables()
	shapes := map[string][]int64{
		"msmd.conv_level1.weight":      {1, 32, 1, 1},
		"msmd.transpose_level3.weight": {32, 16, 4, 4},
		"msmd.conv_level3.weight":      {1, 48, 1, 1},
		"msmd.transpose_level2.weight": {48, 16, 4, 4},
		"msmd.conv_level2.weight":      {1, 48, 1, 1},
	}
	for name, shape := range shapes {
		v, ok := vars[name]
		require.True(t, ok, name)
		require.Equal(t, shape, v.MustSize(), name)
	}
}
