package encoder

import (
	"fmt"
	"math"

	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/base"
)

// MiTConfig holds Mix-Transformer hyper-parameters. Slices are per stage.
type MiTConfig struct {
	NumChannels  int64
	HiddenSizes  []int64
	Depths       []int64
	NumHeads     []int64
	SRRatios     []int64
	PatchSizes   []int64
	Strides      []int64
	MLPRatio     int64
	LayerNormEps float64
}

// MiTB0Config returns the SegFormer-B0 configuration.
func MiTB0Config() MiTConfig {
	return MiTConfig{
		NumChannels:  3,
		HiddenSizes:  []int64{32, 64, 160, 256},
		Depths:       []int64{2, 2, 2, 2},
		NumHeads:     []int64{1, 2, 5, 8},
		SRRatios:     []int64{8, 4, 2, 1},
		PatchSizes:   []int64{7, 3, 3, 3},
		Strides:      []int64{4, 2, 2, 2},
		MLPRatio:     4,
		LayerNormEps: 1e-5,
	}
}

// MiTEncoder is the hierarchical Mix-Transformer backbone of SegFormer.
//
// Parameter names follow the HuggingFace SegformerModel state dict so that a
// converted pretrained checkpoint can be restored by name.
type MiTEncoder struct {
	config      MiTConfig
	patchEmbeds []*overlapPatchEmbed
	blocks      [][]*mitBlock
	norms       []*nn.LayerNorm
}

var _ Encoder = (*MiTEncoder)(nil)

// NewMiTEncoder creates a Mix-Transformer encoder at path p.
func NewMiTEncoder(p *nn.Path, config MiTConfig) *MiTEncoder {
	var (
		embeds []*overlapPatchEmbed
		blocks [][]*mitBlock
		norms  []*nn.LayerNorm
	)

	cIn := config.NumChannels
	for i, hidden := range config.HiddenSizes {
		idx := fmt.Sprint(i)
		embeds = append(embeds, newOverlapPatchEmbed(p.Sub("patch_embeddings").Sub(idx), cIn, hidden, config.PatchSizes[i], config.Strides[i], config.LayerNormEps))

		var stage []*mitBlock
		for j := 0; j < int(config.Depths[i]); j++ {
			bp := p.Sub("block").Sub(idx).Sub(fmt.Sprint(j))
			stage = append(stage, newMiTBlock(bp, hidden, config.NumHeads[i], config.SRRatios[i], config.MLPRatio, config.LayerNormEps))
		}
		blocks = append(blocks, stage)
		norms = append(norms, layerNorm(p.Sub("layer_norm").Sub(idx), hidden, config.LayerNormEps))
		cIn = hidden
	}

	return &MiTEncoder{
		config:      config,
		patchEmbeds: embeds,
		blocks:      blocks,
		norms:       norms,
	}
}

// HiddenSizes implements Encoder.
func (e *MiTEncoder) HiddenSizes() []int64 {
	return e.config.HiddenSizes
}

// ForwardAll implements Encoder interface for MiTEncoder.
func (e *MiTEncoder) ForwardAll(x *ts.Tensor, train bool) []*ts.Tensor {
	xn := rgbNormalize(x)
	states := []*ts.Tensor{base.GridToSeq(xn)}

	cur := xn
	for i, embed := range e.patchEmbeds {
		seq, h, w := embed.Forward(cur)
		cur.MustDrop()
		for _, blk := range e.blocks[i] {
			next := blk.Forward(seq, h, w)
			seq.MustDrop()
			seq = next
		}
		out := e.norms[i].Forward(seq)
		seq.MustDrop()
		states = append(states, out)

		cur = seqToGrid(out, h, w)
	}
	cur.MustDrop()

	return states
}

func layerNorm(p *nn.Path, dim int64, eps float64) *nn.LayerNorm {
	config := nn.DefaultLayerNormConfig()
	config.Eps = eps
	return nn.NewLayerNorm(p, []int64{dim}, config)
}

// seqToGrid lays a (B, h*w, C) sequence out as (B, C, h, w).
func seqToGrid(x *ts.Tensor, h, w int64) *ts.Tensor {
	size := x.MustSize()
	xt := x.MustTranspose(1, 2, false)
	return xt.MustReshape([]int64{size[0], size[2], h, w}, true)
}

// overlapPatchEmbed downsamples with a strided convolution whose kernel is
// larger than its stride, then normalizes the flattened patches.
type overlapPatchEmbed struct {
	proj *nn.Conv2D
	norm *nn.LayerNorm
}

func newOverlapPatchEmbed(p *nn.Path, cIn, cOut, patch, stride int64, eps float64) *overlapPatchEmbed {
	return &overlapPatchEmbed{
		proj: base.Conv2d(p.Sub("proj"), cIn, cOut, patch, patch/2, stride),
		norm: layerNorm(p.Sub("layer_norm"), cOut, eps),
	}
}

func (m *overlapPatchEmbed) Forward(x *ts.Tensor) (*ts.Tensor, int64, int64) {
	y := m.proj.Forward(x)
	hw := base.SpatialSize(y)
	seq := base.GridToSeq(y)
	y.MustDrop()
	out := m.norm.Forward(seq)
	seq.MustDrop()

	return out, hw[0], hw[1]
}

// selfAttention is multi-head attention whose keys and values are computed
// from a spatially reduced sequence (reduction ratio srRatio).
type selfAttention struct {
	numHeads int64
	headDim  int64
	srRatio  int64

	query *nn.Linear
	key   *nn.Linear
	value *nn.Linear
	sr    *nn.Conv2D
	norm  *nn.LayerNorm
	dense *nn.Linear
}

func newSelfAttention(p *nn.Path, hidden, heads, srRatio int64, eps float64) *selfAttention {
	sp := p.Sub("self")
	a := &selfAttention{
		numHeads: heads,
		headDim:  hidden / heads,
		srRatio:  srRatio,
		query:    nn.NewLinear(sp.Sub("query"), hidden, hidden, nn.DefaultLinearConfig()),
		key:      nn.NewLinear(sp.Sub("key"), hidden, hidden, nn.DefaultLinearConfig()),
		value:    nn.NewLinear(sp.Sub("value"), hidden, hidden, nn.DefaultLinearConfig()),
		dense:    nn.NewLinear(p.Sub("output").Sub("dense"), hidden, hidden, nn.DefaultLinearConfig()),
	}
	if srRatio > 1 {
		a.sr = base.Conv2d(sp.Sub("sr"), hidden, hidden, srRatio, 0, srRatio)
		a.norm = layerNorm(sp.Sub("layer_norm"), hidden, eps)
	}

	return a
}

// heads reshapes (B, N, C) into (B, heads, N, C/heads).
func (a *selfAttention) heads(x *ts.Tensor, b int64) *ts.Tensor {
	v := x.MustView([]int64{b, -1, a.numHeads, a.headDim}, true)
	return v.MustPermute([]int64{0, 2, 1, 3}, true)
}

func (a *selfAttention) Forward(x *ts.Tensor, h, w int64) *ts.Tensor {
	size := x.MustSize()
	b, n, c := size[0], size[1], size[2]

	q := a.heads(a.query.Forward(x), b)

	kvIn := x
	if a.srRatio > 1 {
		grid := seqToGrid(x, h, w)
		reduced := a.sr.Forward(grid)
		grid.MustDrop()
		seq := base.GridToSeq(reduced)
		reduced.MustDrop()
		kvIn = a.norm.Forward(seq)
		seq.MustDrop()
	}
	k := a.heads(a.key.Forward(kvIn), b)
	v := a.heads(a.value.Forward(kvIn), b)
	if a.srRatio > 1 {
		kvIn.MustDrop()
	}

	kt := k.MustTranspose(-2, -1, true)
	scores := q.MustMatmul(kt, true).MustMulScalar(ts.FloatScalar(1.0/math.Sqrt(float64(a.headDim))), true)
	kt.MustDrop()
	probs := scores.MustSoftmax(-1, scores.DType(), true)

	ctx := probs.MustMatmul(v, true)
	v.MustDrop()
	merged := ctx.MustPermute([]int64{0, 2, 1, 3}, true).MustReshape([]int64{b, n, c}, true)

	out := a.dense.Forward(merged)
	merged.MustDrop()

	return out
}

// mixFFN is the feed-forward network with a 3x3 depthwise convolution
// between its two linear layers.
type mixFFN struct {
	dense1 *nn.Linear
	dwconv *nn.Conv2D
	dense2 *nn.Linear
}

func newMixFFN(p *nn.Path, hidden, ratio int64) *mixFFN {
	inner := hidden * ratio

	config := nn.DefaultConv2DConfig()
	config.Padding = []int64{1, 1}
	config.Groups = inner
	config.WsInit = base.KaimingInit(inner, 3)
	config.BsInit = nn.NewConstInit(0.0)

	return &mixFFN{
		dense1: nn.NewLinear(p.Sub("dense1"), hidden, inner, nn.DefaultLinearConfig()),
		dwconv: nn.NewConv2D(p.Sub("dwconv").Sub("dwconv"), inner, inner, 3, config),
		dense2: nn.NewLinear(p.Sub("dense2"), inner, hidden, nn.DefaultLinearConfig()),
	}
}

func (m *mixFFN) Forward(x *ts.Tensor, h, w int64) *ts.Tensor {
	y := m.dense1.Forward(x)
	grid := seqToGrid(y, h, w)
	y.MustDrop()
	conv := m.dwconv.Forward(grid)
	grid.MustDrop()
	seq := base.GridToSeq(conv)
	conv.MustDrop()
	act := seq.MustGelu("none", true)
	out := m.dense2.Forward(act)
	act.MustDrop()

	return out
}

// mitBlock is a pre-norm transformer block: attention then Mix-FFN, each
// with a residual connection.
type mitBlock struct {
	norm1 *nn.LayerNorm
	attn  *selfAttention
	norm2 *nn.LayerNorm
	mlp   *mixFFN
}

func newMiTBlock(p *nn.Path, hidden, heads, srRatio, mlpRatio int64, eps float64) *mitBlock {
	return &mitBlock{
		norm1: layerNorm(p.Sub("layer_norm_1"), hidden, eps),
		attn:  newSelfAttention(p.Sub("attention"), hidden, heads, srRatio, eps),
		norm2: layerNorm(p.Sub("layer_norm_2"), hidden, eps),
		mlp:   newMixFFN(p.Sub("mlp"), hidden, mlpRatio),
	}
}

func (blk *mitBlock) Forward(x *ts.Tensor, h, w int64) *ts.Tensor {
	n1 := blk.norm1.Forward(x)
	attn := blk.attn.Forward(n1, h, w)
	n1.MustDrop()
	x1 := x.MustAdd(attn, false)
	attn.MustDrop()

	n2 := blk.norm2.Forward(x1)
	ff := blk.mlp.Forward(n2, h, w)
	n2.MustDrop()
	out := x1.MustAdd(ff, true)
	ff.MustDrop()

	return out
}
