package segforest

import (
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/base"
)

// MSMD is the multi-scale multi-decoder. From three fused maps ordered
// finest to coarsest it produces class scores at three resolutions.
type MSMD struct {
	convLevel1      *nn.Conv2D
	transposeLevel2 *nn.ConvTranspose2D
	convLevel2      *nn.Conv2D
	transposeLevel3 *nn.ConvTranspose2D
	convLevel3      *nn.Conv2D
}

// NewMSMD creates a decoder for fused maps of cIn channels. Transposed
// convolutions output cMid channels.
func NewMSMD(p *nn.Path, cIn, cMid, classes int64) *MSMD {
	return &MSMD{
		convLevel1:      base.NewSegmentationHead(p.Sub("conv_level1"), cIn, classes),
		transposeLevel2: base.ConvTranspose2x(p.Sub("transpose_level2"), cMid+cIn, cMid),
		convLevel2:      base.NewSegmentationHead(p.Sub("conv_level2"), cMid+cIn, classes),
		transposeLevel3: base.ConvTranspose2x(p.Sub("transpose_level3"), cIn, cMid),
		convLevel3:      base.NewSegmentationHead(p.Sub("conv_level3"), cMid+cIn, classes),
	}
}

// upConcat doubles x with up, resizes it onto skip's grid if the doubling
// did not land exactly there, and concatenates [up(x), skip].
func upConcat(up *nn.ConvTranspose2D, x, skip *ts.Tensor) *ts.Tensor {
	u := up.Forward(x)
	ur := base.ResizeLike(u, skip)
	u.MustDrop()
	cat := ts.MustCat([]*ts.Tensor{ur, skip}, 1)
	ur.MustDrop()

	return cat
}

// ForwardT returns (fine, mid, coarse) score maps at the resolutions of x1,
// x1 and x2 respectively.
func (m *MSMD) ForwardT(x1, x2, x3 *ts.Tensor, train bool) (fine, mid, coarse *ts.Tensor) {
	cat3 := upConcat(m.transposeLevel3, x3, x2)
	coarse = m.convLevel3.Forward(cat3)

	cat2 := upConcat(m.transposeLevel2, cat3, x1)
	cat3.MustDrop()
	mid = m.convLevel2.Forward(cat2)
	cat2.MustDrop()

	fine = m.convLevel1.Forward(x1)

	return fine, mid, coarse
}
