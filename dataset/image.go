package dataset

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/chai2010/tiff"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/sugarme/gotch/ts"
	"golang.org/x/image/draw"
)

// ReadImage reads image from file. Supported: png, jpeg and tiff.
func ReadImage(filename string) (image.Image, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	switch ext {
	case ".png":
		img, err = png.Decode(f)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(f)
	case ".tiff", ".tif":
		img, err = tiff.Decode(f)
	default:
		return nil, errors.Errorf("unsupported image format: %v", ext)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %q", filename)
	}

	return img, nil
}

// ToTensor converts an image to a (3, H, W) float tensor in [0, 1].
func ToTensor(img image.Image) *ts.Tensor {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	plane := w * h
	data := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		for c := 0; c < 3; c++ {
			data[c*plane+i] = float32(src.Pix[4*i+c]) / 255
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{3, int64(h), int64(w)}, true)
}

// MaskToTensor converts a mask image to a (1, H, W) float tensor holding 1
// where the gray level is above half intensity and 0 elsewhere.
func MaskToTensor(img image.Image) *ts.Tensor {
	gray := imaging.Grayscale(img)
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	data := make([]float32, w*h)
	for i := range data {
		if gray.Pix[4*i] > 127 {
			data[i] = 1
		}
	}

	return ts.MustOfSlice(data).MustView([]int64{1, int64(h), int64(w)}, true)
}

// TensorToMask converts a (H, W), (1, H, W) or (1, 1, H, W) tensor of {0, 1}
// values to a black/white image.
func TensorToMask(x *ts.Tensor) (*image.Gray, error) {
	size := x.MustSize()
	if len(size) < 2 {
		return nil, errors.Errorf("expected at least 2D tensor, got shape %v", size)
	}
	h, w := size[len(size)-2], size[len(size)-1]
	values := x.Float64Values()
	if int64(len(values)) != h*w {
		return nil, errors.Errorf("expected a single mask, got shape %v", size)
	}

	mask := image.NewGray(image.Rect(0, 0, int(w), int(h)))
	for i, v := range values {
		if v > 0.5 {
			mask.Pix[i] = 255
		}
	}

	return mask, nil
}

// Overlay paints mask over img in red at 25% opacity and saves the result.
func Overlay(img, mask image.Image, path string) error {
	rec := img.Bounds()
	dstImg := image.NewRGBA(rec)
	draw.Draw(dstImg, rec, img, rec.Min, draw.Src)

	red := image.NewRGBA(rec)
	mb := mask.Bounds()
	for y := rec.Min.Y; y < rec.Max.Y; y++ {
		for x := rec.Min.X; x < rec.Max.X; x++ {
			mx, my := mb.Min.X+x-rec.Min.X, mb.Min.Y+y-rec.Min.Y
			if r, _, _, _ := mask.At(mx, my).RGBA(); r > 0x7fff {
				red.Set(x, y, color.RGBA{255, 0, 0, 255})
			}
		}
	}

	alpha := image.NewUniform(color.Alpha{64}) // 25% opacity
	draw.DrawMask(dstImg, rec, red, rec.Min, alpha, image.Point{}, draw.Over)

	if err := imaging.Save(dstImg, path); err != nil {
		return errors.Wrapf(err, "save overlay %q", path)
	}
	return nil
}
