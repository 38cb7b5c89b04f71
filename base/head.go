package base

import "github.com/sugarme/gotch/nn"

// NewSegmentationHead creates a 1x1 projection from cIn feature channels to
// cOut class scores.
func NewSegmentationHead(p *nn.Path, cIn, cOut int64) *nn.Conv2D {
	return Conv2d(p, cIn, cOut, 1, 0, 1)
}
