package encoder

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/base"
)

// ResNetEncoder is a ResNet34 backbone (torchvision parameter names) that
// emits its four residual stages as position sequences.
type ResNetEncoder struct {
	layer0 ts.ModuleT
	layer1 ts.ModuleT
	layer2 ts.ModuleT
	layer3 ts.ModuleT
	layer4 ts.ModuleT
}

var _ Encoder = (*ResNetEncoder)(nil)

// ForwardAll implements Encoder interface for ResNetEncoder
func (e *ResNetEncoder) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	xn := rgbNormalize(x)
	x0 := e.layer0.ForwardT(xn, train)
	x1 := e.layer1.ForwardT(x0, train)
	x0.MustDrop()
	x2 := e.layer2.ForwardT(x1, train)
	x3 := e.layer3.ForwardT(x2, train)
	x4 := e.layer4.ForwardT(x3, train)

	states := make([]*ts.Tensor, 0, 5)
	for _, x := range []*ts.Tensor{xn, x1, x2, x3, x4} {
		states = append(states, base.GridToSeq(x))
		x.MustDrop()
	}

	return states
}

// HiddenSizes implements Encoder.
func (e *ResNetEncoder) HiddenSizes() []int64 {
	return []int64{64, 128, 256, 512}
}

// NewResNet34Encoder builds a ResNet34 backbone under p.
func NewResNet34Encoder(p *nn.Path) *ResNetEncoder {
	return &ResNetEncoder{
		layer0: layerZero(p), // NOTE. `conv1` and `bn1` are at root of pretrained model
		layer1: basicLayer(p.Sub("layer1"), 64, 64, 1, 3),
		layer2: basicLayer(p.Sub("layer2"), 64, 128, 2, 4),
		layer3: basicLayer(p.Sub("layer3"), 128, 256, 2, 6),
		layer4: basicLayer(p.Sub("layer4"), 256, 512, 2, 3),
	}
}

func layerZero(p *nn.Path) ts.ModuleT {
	layer0 := nn.SeqT()
	layer0.Add(base.Conv2dNoBias(p.Sub("conv1"), 3, 64, 7, 3, 2))
	layer0.Add(base.BatchNorm2d(p.Sub("bn1"), 64))
	layer0.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustRelu(false)
	}))
	layer0.AddFn(nn.NewFunc(func(xs *ts.Tensor) *ts.Tensor {
		return xs.MustMaxPool2d([]int64{3, 3}, []int64{2, 2}, []int64{1, 1}, []int64{1, 1}, false, false)
	}))

	return layer0
}

func basicLayer(path *nn.Path, cIn, cOut, stride, cnt int64) ts.ModuleT {
	layer := nn.SeqT()
	layer.Add(NewBasicBlock(path.Sub("0"), cIn, cOut, stride))
	for blockIndex := 1; blockIndex < int(cnt); blockIndex++ {
		layer.Add(NewBasicBlock(path.Sub(fmt.Sprint(blockIndex)), cOut, cOut, 1))
	}

	return layer
}

func downSample(path *nn.Path, cIn, cOut, stride int64) ts.ModuleT {
	if stride != 1 || cIn != cOut {
		seq := nn.SeqT()
		seq.Add(base.Conv2dNoBias(path.Sub("0"), cIn, cOut, 1, 0, stride))
		seq.Add(base.BatchNorm2d(path.Sub("1"), cOut))

		return seq
	}
	return nn.SeqT()
}

// BasicBlock is a two-conv residual block with an optional projection shortcut.
type BasicBlock struct {
	Conv1      *nn.Conv2D
	Bn1        *nn.BatchNorm
	Conv2      *nn.Conv2D
	Bn2        *nn.BatchNorm
	Downsample ts.ModuleT
}

// NewBasicBlock creates a BasicBlock mapping cIn to cOut channels at stride.
func NewBasicBlock(path *nn.Path, cIn, cOut, stride int64) *BasicBlock {
	conv1 := base.Conv2dNoBias(path.Sub("conv1"), cIn, cOut, 3, 1, stride)
	bn1 := base.BatchNorm2d(path.Sub("bn1"), cOut)
	conv2 := base.Conv2dNoBias(path.Sub("conv2"), cOut, cOut, 3, 1, 1)
	bn2 := base.BatchNorm2d(path.Sub("bn2"), cOut)
	downsample := downSample(path.Sub("downsample"), cIn, cOut, stride)

	return &BasicBlock{conv1, bn1, conv2, bn2, downsample}
}

// ForwardT implements ts.ModuleT.
func (bb *BasicBlock) ForwardT(x *ts.Tensor, train bool) *ts.Tensor {
	c1 := bb.Conv1.Forward(x)
	bn1Ts := bb.Bn1.ForwardT(c1, train)
	c1.MustDrop()
	relu := bn1Ts.MustRelu(true)
	c2 := bb.Conv2.Forward(relu)
	relu.MustDrop()
	bn2Ts := bb.Bn2.ForwardT(c2, train)
	c2.MustDrop()
	dsl := bb.Downsample.ForwardT(x, train)
	dslAdd := dsl.MustAdd(bn2Ts, true)
	bn2Ts.MustDrop()
	res := dslAdd.MustRelu(true)

	return res
}
