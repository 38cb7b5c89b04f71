package base

import (
	"math"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// KaimingInit returns a zero-mean normal initializer scaled for ReLU
// activations in fan-out mode: std = sqrt(2 / (cOut * ksize * ksize)).
func KaimingInit(cOut, ksize int64) nn.Init {
	fanOut := float64(cOut * ksize * ksize)
	return nn.NewRandnInit(0.0, math.Sqrt(2.0/fanOut))
}

func convConfig(cOut, ksize, padding, stride int64, bias bool) *nn.Conv2DConfig {
	config := nn.DefaultConv2DConfig()
	config.Bias = bias
	config.Stride = []int64{stride, stride}
	config.Padding = []int64{padding, padding}
	config.WsInit = KaimingInit(cOut, ksize)
	config.BsInit = nn.NewConstInit(0.0)

	return config
}

// Conv2d creates Conv2D module.
func Conv2d(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	return nn.NewConv2D(p, cIn, cOut, ksize, convConfig(cOut, ksize, padding, stride, true))
}

// Conv2dNoBias creates Conv2D with no bias.
func Conv2dNoBias(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.Conv2D {
	return nn.NewConv2D(p, cIn, cOut, ksize, convConfig(cOut, ksize, padding, stride, false))
}

// BatchNorm2d creates a BatchNorm with scale=1 and shift=0.
func BatchNorm2d(p *nn.Path, c int64) *nn.BatchNorm {
	config := nn.DefaultBatchNormConfig()
	config.WsInit = nn.NewConstInit(1.0)
	config.BsInit = nn.NewConstInit(0.0)

	return nn.BatchNorm2D(p, c, config)
}

// Conv2dRelu creates a SequentialT composing of Conv2D No bias, BatchNorm
// and a ReLU activation. Parameters live under `conv` and `bn`.
func Conv2dRelu(p *nn.Path, cIn, cOut, ksize, padding, stride int64) *nn.SequentialT {
	seq := nn.SeqT()
	seq.Add(Conv2dNoBias(p.Sub("conv"), cIn, cOut, ksize, padding, stride))
	seq.Add(BatchNorm2d(p.Sub("bn"), cOut))
	seq.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))

	return seq
}

// ConvTranspose2x creates a transposed convolution (kernel 4, stride 2,
// padding 1) that exactly doubles height and width.
func ConvTranspose2x(p *nn.Path, cIn, cOut int64) *nn.ConvTranspose2D {
	config := nn.DefaultConvTranspose2DConfig()
	config.Stride = []int64{2, 2}
	config.Padding = []int64{1, 1}

	return nn.NewConvTranspose2D(p, cIn, cOut, []int64{4, 4}, config)
}
