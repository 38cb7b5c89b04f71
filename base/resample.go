package base

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sugarme/gotch/ts"
)

// ErrNotSquare is returned when a position sequence can not be laid out as a
// square grid.
var ErrNotSquare = errors.New("number of positions is not a perfect square")

// SpatialSize returns the trailing (height, width) of a 4D tensor.
func SpatialSize(x *ts.Tensor) []int64 {
	size := x.MustSize()
	return []int64{size[len(size)-2], size[len(size)-1]}
}

func sameSize(a, b []int64) bool {
	return len(a) == len(b) && a[0] == b[0] && a[1] == b[1]
}

// Resize resamples x (N, C, H, W) to size [h, w] with bilinear interpolation
// and no corner alignment. It returns a shallow copy when x already has the
// requested size.
func Resize(x *ts.Tensor, size []int64) *ts.Tensor {
	if sameSize(SpatialSize(x), size) {
		return x.MustShallowClone()
	}
	return x.MustUpsampleBilinear2d(size, false, nil, nil, false)
}

// ResizeLike resamples x to the spatial size of ref.
func ResizeLike(x, ref *ts.Tensor) *ts.Tensor {
	return Resize(x, SpatialSize(ref))
}

// ResizeNearest resamples x (N, C, H, W) to size [h, w] with nearest-neighbour
// interpolation. Used for label masks so values stay in {0, 1}.
func ResizeNearest(x *ts.Tensor, size []int64) *ts.Tensor {
	if sameSize(SpatialSize(x), size) {
		return x.MustShallowClone()
	}
	return x.MustUpsampleNearest2d(size, nil, nil, false)
}

// SeqToGrid reshapes a (B, N, C) position sequence into a (B, C, h, w) feature
// map with h = w = sqrt(N).
func SeqToGrid(x *ts.Tensor) (*ts.Tensor, error) {
	size := x.MustSize()
	if len(size) != 3 {
		return nil, errors.Errorf("expected (batch, positions, channels) tensor, got shape %v", size)
	}
	b, n, c := size[0], size[1], size[2]
	h := int64(math.Sqrt(float64(n)))
	for h*h < n {
		h++
	}
	if h*h != n {
		return nil, errors.Wrapf(ErrNotSquare, "got %d positions", n)
	}

	xt := x.MustTranspose(1, 2, false)
	grid := xt.MustReshape([]int64{b, c, h, h}, true)

	return grid, nil
}

// GridToSeq flattens a (B, C, H, W) feature map into a (B, H*W, C) sequence.
func GridToSeq(x *ts.Tensor) *ts.Tensor {
	flat := x.MustFlatten(2, -1, false)
	return flat.MustTranspose(1, 2, true)
}
