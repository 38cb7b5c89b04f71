package mask

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// morphSquare applies a k x k min (erode) or max (dilate) filter. Pixels
// outside the image do not take part.
func morphSquare(src *mat.Dense, k int, erode bool) (*mat.Dense, error) {
	if k < 1 || k%2 == 0 {
		return nil, errors.Errorf("kernel size must be odd and positive, got %d", k)
	}
	rows, cols := src.Dims()
	dst := mat.NewDense(rows, cols, nil)
	r := k / 2

	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := math.Inf(1)
			if !erode {
				v = math.Inf(-1)
			}
			for y := max(0, i-r); y <= min(rows-1, i+r); y++ {
				for x := max(0, j-r); x <= min(cols-1, j+r); x++ {
					if erode {
						v = math.Min(v, src.At(y, x))
					} else {
						v = math.Max(v, src.At(y, x))
					}
				}
			}
			dst.Set(i, j, v)
		}
	}

	return dst, nil
}

// ErodeSquare erodes src with a k x k square kernel.
func ErodeSquare(src *mat.Dense, k int) (*mat.Dense, error) {
	return morphSquare(src, k, true)
}

// DilateSquare dilates src with a k x k square kernel.
func DilateSquare(src *mat.Dense, k int) (*mat.Dense, error) {
	return morphSquare(src, k, false)
}

func repeat(src *mat.Dense, k, n int, fn func(*mat.Dense, int) (*mat.Dense, error)) (*mat.Dense, error) {
	out := src
	for i := 0; i < n; i++ {
		var err error
		if out, err = fn(out, k); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Open erodes n times then dilates n times.
func Open(src *mat.Dense, k, n int) (*mat.Dense, error) {
	eroded, err := repeat(src, k, n, ErodeSquare)
	if err != nil {
		return nil, err
	}
	return repeat(eroded, k, n, DilateSquare)
}

// Close dilates n times then erodes n times.
func Close(src *mat.Dense, k, n int) (*mat.Dense, error) {
	dilated, err := repeat(src, k, n, DilateSquare)
	if err != nil {
		return nil, err
	}
	return repeat(dilated, k, n, ErodeSquare)
}
