package encoder

import (
	"github.com/pkg/errors"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"
)

// Encoder is encoder interface for a image segmentation model.
//
// ForwardAll returns hidden states: index 0 is the normalized input and
// indexes 1-4 are feature maps at 1/4, 1/8, 1/16 and 1/32 of the input
// resolution. All hidden states are (batch, positions, channels) sequences.
type Encoder interface {
	ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor
	HiddenSizes() []int64
}

// Supported encoder names.
const (
	MiTB0    = "mit-b0"
	ResNet34 = "resnet34"
)

// New creates an encoder by name at path p.
func New(p *nn.Path, name string) (Encoder, error) {
	switch name {
	case MiTB0:
		return NewMiTEncoder(p, MiTB0Config()), nil
	case ResNet34:
		return NewResNet34Encoder(p), nil
	default:
		return nil, errors.Errorf("unknown encoder %q, expected %q or %q", name, MiTB0, ResNet34)
	}
}

func rgbNormalize(x *ts.Tensor) *ts.Tensor {
	meanVals := []float32{0.485, 0.456, 0.406} // image RGB mean
	sdVals := []float32{0.229, 0.224, 0.225}   // image RGB standard error

	device := x.MustDevice()
	mean := ts.MustOfSlice(meanVals).MustView([]int64{1, 3, 1, 1}, true).MustTo(device, true)
	sd := ts.MustOfSlice(sdVals).MustView([]int64{1, 3, 1, 1}, true).MustTo(device, true)

	// x = (x - mean)/sd
	n := x.MustSub(mean, false).MustDiv(sd, true)
	mean.MustDrop()
	sd.MustDrop()

	return n
}
