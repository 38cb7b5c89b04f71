package segforest

import (
	"fmt"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/base"
)

// MFF is the multi-feature fusion module. It brings four feature maps to the
// resolution of the first one, concatenates them and projects the result to a
// fixed channel width with conv(1x1, no bias) -> BatchNorm -> ReLU.
type MFF struct {
	cIn  int64
	cOut int64
	proj *nn.SequentialT
}

// NewMFF creates a fusion module taking cIn concatenated channels to cOut.
func NewMFF(p *nn.Path, cIn, cOut int64) *MFF {
	return &MFF{
		cIn:  cIn,
		cOut: cOut,
		proj: base.Conv2dRelu(p, cIn, cOut, 1, 0, 1),
	}
}

// ForwardT fuses x1..x4 at the resolution of x1.
func (m *MFF) ForwardT(x1, x2, x3, x4 *ts.Tensor, train bool) *ts.Tensor {
	xs := []*ts.Tensor{x1.MustShallowClone()}
	var channels int64 = x1.MustSize()[1]
	for _, x := range []*ts.Tensor{x2, x3, x4} {
		xs = append(xs, base.ResizeLike(x, x1))
		channels += x.MustSize()[1]
	}
	if channels != m.cIn {
		panic(fmt.Sprintf("MFF: expected %d concatenated channels, got %d", m.cIn, channels))
	}

	cat := ts.MustCat(xs, 1)
	for _, x := range xs {
		x.MustDrop()
	}
	out := m.proj.ForwardT(cat, train)
	cat.MustDrop()

	return out
}
