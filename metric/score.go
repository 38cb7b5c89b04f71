package metric

import (
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/ts"
)

const threshold = 0.5

func binarize(x *ts.Tensor) *ts.Tensor {
	return x.MustGt(ts.FloatScalar(threshold), false).MustTotype(gotch.Double, true)
}

func sum(x *ts.Tensor) float64 {
	s := x.MustSum(gotch.Double, false)
	v := s.Float64Values()[0]
	s.MustDrop()
	return v
}

// overlap returns the intersection and the sum of positives of pred and
// target after thresholding both at 0.5.
func overlap(pred, target *ts.Tensor) (inter, predSum, targetSum float64) {
	p := binarize(pred)
	t := binarize(target)
	pt := p.MustMul(t, false)

	inter, predSum, targetSum = sum(pt), sum(p), sum(t)
	pt.MustDrop()
	p.MustDrop()
	t.MustDrop()

	return inter, predSum, targetSum
}

// DiceCoeff computes 2|P∩T| / (|P| + |T|). Two empty masks score 1.
func DiceCoeff(pred, target *ts.Tensor) float64 {
	inter, p, t := overlap(pred, target)
	if p+t == 0 {
		return 1
	}
	return 2 * inter / (p + t)
}

// IoU computes |P∩T| / |P∪T|. Two empty masks score 1.
func IoU(pred, target *ts.Tensor) float64 {
	inter, p, t := overlap(pred, target)
	union := p + t - inter
	if union == 0 {
		return 1
	}
	return inter / union
}

// DiceCoeffBatch averages DiceCoeff over the first (batch) dimension.
func DiceCoeffBatch(prob, target *ts.Tensor) float64 {
	return batchMean(prob, target, DiceCoeff)
}

// IoUBatch averages IoU over the first (batch) dimension.
func IoUBatch(prob, target *ts.Tensor) float64 {
	return batchMean(prob, target, IoU)
}

func batchMean(prob, target *ts.Tensor, fn func(p, t *ts.Tensor) float64) float64 {
	n := prob.MustSize()[0]
	if n == 0 {
		return 0
	}
	var total float64
	for i := int64(0); i < n; i++ {
		p := prob.MustSelect(0, i, false)
		t := target.MustSelect(0, i, false)
		total += fn(p, t)
		p.MustDrop()
		t.MustDrop()
	}

	return total / float64(n)
}

// JaccardIndex computes mean IoU over nclasses integer class labels.
func JaccardIndex(pred, target *ts.Tensor, nclasses int64) float64 {
	var total float64
	for c := int64(0); c < nclasses; c++ {
		p := pred.MustEq(ts.IntScalar(c), false).MustTotype(gotch.Double, true)
		t := target.MustEq(ts.IntScalar(c), false).MustTotype(gotch.Double, true)
		total += IoU(p, t)
		p.MustDrop()
		t.MustDrop()
	}

	return total / float64(nclasses)
}
