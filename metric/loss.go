package metric

import (
	"github.com/pkg/errors"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/base"
)

// NOTE: reduction: none = 0; mean = 1; sum = 2.
const reductionMean int64 = 1

// BCEWithLogitsLoss computes mean binary cross entropy between logits and a
// {0, 1} target in one numerically stable op.
//
// Ref. https://pytorch.org/docs/stable/generated/torch.nn.BCEWithLogitsLoss.html
func BCEWithLogitsLoss(logit, target *ts.Tensor) *ts.Tensor {
	logitR := logit.MustReshape([]int64{-1}, false)
	targetR := target.MustReshape([]int64{-1}, false)
	if targetR.DType() != logitR.DType() {
		targetR = targetR.MustTotype(logitR.DType(), true)
	}

	loss := logitR.MustBinaryCrossEntropyWithLogits(targetR, ts.NewTensor(), ts.NewTensor(), reductionMean, true)
	targetR.MustDrop()

	return loss
}

// DefaultWBCEWeights are the per-scale weights, finest first.
var DefaultWBCEWeights = []float64{0.8, 0.13, 0.07}

// WBCE is a weighted sum of per-scale BCE-with-logits losses. Each output is
// compared with the target mask resized (nearest neighbour) to its own
// resolution.
type WBCE struct {
	Weights []float64
}

// NewWBCE creates a WBCE loss. Without weights DefaultWBCEWeights is used.
func NewWBCE(weights ...float64) *WBCE {
	if len(weights) == 0 {
		weights = DefaultWBCEWeights
	}
	w := make([]float64, len(weights))
	copy(w, weights)

	return &WBCE{Weights: w}
}

// Forward returns the scalar loss for outputs ordered finest first and a
// (N, C, H, W) target at the finest resolution.
func (l *WBCE) Forward(outputs []*ts.Tensor, target *ts.Tensor) (*ts.Tensor, error) {
	if len(outputs) != len(l.Weights) {
		return nil, errors.Errorf("got %d outputs for %d loss weights", len(outputs), len(l.Weights))
	}
	if dim := len(target.MustSize()); dim != 4 {
		return nil, errors.Errorf("expected 4D target, got %d dimensions", dim)
	}

	var total *ts.Tensor
	for i, out := range outputs {
		tf := target.MustTotype(out.DType(), false)
		tgt := base.ResizeNearest(tf, base.SpatialSize(out))
		tf.MustDrop()

		loss := BCEWithLogitsLoss(out, tgt).MustMulScalar(ts.FloatScalar(l.Weights[i]), true)
		tgt.MustDrop()

		if total == nil {
			total = loss
			continue
		}
		total = total.MustAdd(loss, true)
		loss.MustDrop()
	}

	return total, nil
}
