package segforest

import (
	"github.com/pkg/errors"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/base"
	"github.com/sugarme/segforest/encoder"
)

// SegForest composes an encoder, three MFF modules (one per decoder
// resolution) and a MSMD decoder.
//
// Parameters live under `encoder`, `mff1`, `mff2`, `mff3` and `msmd`.
type SegForest struct {
	config  Config
	encoder encoder.Encoder
	mff1    *MFF
	mff2    *MFF
	mff3    *MFF
	msmd    *MSMD
}

// Output holds the three training-time score maps.
type Output struct {
	// Fine is the finest score map resized to the input resolution.
	Fine *ts.Tensor
	// Mid is at 1/4 of the input resolution.
	Mid *ts.Tensor
	// Coarse is at 1/8 of the input resolution.
	Coarse *ts.Tensor
}

// Tensors returns [Fine, Mid, Coarse], the order WBCE expects.
func (o *Output) Tensors() []*ts.Tensor {
	return []*ts.Tensor{o.Fine, o.Mid, o.Coarse}
}

// Drop frees all output tensors.
func (o *Output) Drop() {
	for _, x := range o.Tensors() {
		x.MustDrop()
	}
}

// New creates a SegForest model at path p.
func New(p *nn.Path, cfg Config) (*SegForest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	enc, err := encoder.New(p.Sub("encoder"), cfg.Encoder)
	if err != nil {
		return nil, err
	}

	var cIn int64
	for _, c := range enc.HiddenSizes() {
		cIn += c
	}

	return &SegForest{
		config:  cfg,
		encoder: enc,
		mff1:    NewMFF(p.Sub("mff1"), cIn, cfg.FusionChannels),
		mff2:    NewMFF(p.Sub("mff2"), cIn, cfg.FusionChannels),
		mff3:    NewMFF(p.Sub("mff3"), cIn, cfg.FusionChannels),
		msmd:    NewMSMD(p.Sub("msmd"), cfg.FusionChannels, cfg.DecoderMidChannels, cfg.NumClasses),
	}, nil
}

// Config returns the model configuration.
func (m *SegForest) Config() Config {
	return m.config
}

// ForwardTrain runs the network with BatchNorm in training mode and returns
// all three decoder outputs.
func (m *SegForest) ForwardTrain(x *ts.Tensor) (*Output, error) {
	fine, mid, coarse, err := m.forward(x, true)
	if err != nil {
		return nil, err
	}

	return &Output{Fine: fine, Mid: mid, Coarse: coarse}, nil
}

// Predict runs the network with BatchNorm in evaluation mode and returns the
// finest score map (N, classes, H, W) at the input resolution.
func (m *SegForest) Predict(x *ts.Tensor) (*ts.Tensor, error) {
	fine, mid, coarse, err := m.forward(x, false)
	if err != nil {
		return nil, err
	}
	mid.MustDrop()
	coarse.MustDrop()

	return fine, nil
}

// Segment returns the binary mask {0, 1} obtained by thresholding the
// sigmoid of Predict at 0.5. No gradient is recorded.
func (m *SegForest) Segment(x *ts.Tensor) (*ts.Tensor, error) {
	var (
		mask *ts.Tensor
		err  error
	)
	ts.NoGrad(func() {
		var logits *ts.Tensor
		logits, err = m.Predict(x)
		if err != nil {
			return
		}
		prob := logits.MustSigmoid(true)
		mask = prob.MustGt(ts.FloatScalar(0.5), true).MustTotype(gotch.Float, true)
	})

	return mask, err
}

func (m *SegForest) forward(x *ts.Tensor, train bool) (fine, mid, coarse *ts.Tensor, err error) {
	size := x.MustSize()
	if len(size) != 4 || size[1] != 3 {
		return nil, nil, nil, errors.Errorf("expected (batch, 3, height, width) input, got shape %v", size)
	}

	states := m.encoder.ForwardAll(x, train)
	defer func() {
		for _, s := range states {
			s.MustDrop()
		}
	}()

	var grids []*ts.Tensor
	defer func() {
		for _, g := range grids {
			g.MustDrop()
		}
	}()
	for i := 1; i <= 4; i++ {
		g, err := base.SeqToGrid(states[i])
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "hidden state %d of %dx%d input", i, size[2], size[3])
		}
		grids = append(grids, g)
	}

	f1 := fuse(m.mff1, grids, 0, train)
	f2 := fuse(m.mff2, grids, 1, train)
	f3 := fuse(m.mff3, grids, 2, train)

	fine, mid, coarse = m.msmd.ForwardT(f1, f2, f3, train)
	f1.MustDrop()
	f2.MustDrop()
	f3.MustDrop()

	up := base.Resize(fine, []int64{size[2], size[3]})
	fine.MustDrop()

	return up, mid, coarse, nil
}

// fuse resamples every grid onto grids[target] and runs mff on them.
func fuse(mff *MFF, grids []*ts.Tensor, target int, train bool) *ts.Tensor {
	ref := grids[target]
	rs := make([]*ts.Tensor, len(grids))
	for i, g := range grids {
		rs[i] = base.ResizeLike(g, ref)
	}
	out := mff.ForwardT(rs[0], rs[1], rs[2], rs[3], train)
	for _, r := range rs {
		r.MustDrop()
	}

	return out
}
