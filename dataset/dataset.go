package dataset

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"github.com/sugarme/gotch/ts"
)

// MaskSuffix is appended to an image stem to name its mask file.
const MaskSuffix = "_mask.png"

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
}

// Pair is an image and its binary mask.
type Pair struct {
	Image string
	Mask  string
}

// MaskName returns the mask file name for an image file name.
func MaskName(imageName string) string {
	base := filepath.Base(imageName)
	return strings.TrimSuffix(base, filepath.Ext(base)) + MaskSuffix
}

// Pairs matches every image in imageDir with `<stem>_mask.png` in maskDir.
// Images without a mask are skipped and counted.
func Pairs(imageDir, maskDir string) ([]Pair, int, error) {
	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "read image dir %q", imageDir)
	}

	var (
		pairs   []Pair
		skipped int
	)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(name))] || strings.HasSuffix(name, MaskSuffix) {
			continue
		}
		maskPath := filepath.Join(maskDir, MaskName(name))
		if _, err := os.Stat(maskPath); err != nil {
			skipped++
			continue
		}
		pairs = append(pairs, Pair{Image: filepath.Join(imageDir, name), Mask: maskPath})
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Image < pairs[j].Image })

	return pairs, skipped, nil
}

// Split puts the first ceil(len(pairs)*validFraction) pairs into valid and
// the rest into train.
func Split(pairs []Pair, validFraction float64) (train, valid []Pair, err error) {
	if validFraction < 0 || validFraction >= 1 {
		return nil, nil, errors.Errorf("validation fraction must be in [0, 1), got %v", validFraction)
	}
	n := int(math.Ceil(float64(len(pairs)) * validFraction))

	return pairs[n:], pairs[:n], nil
}

// ImageMask is one sample: a (3, S, S) image in [0, 1] and a (1, S, S) mask
// in {0, 1}.
type ImageMask struct {
	Image *ts.Tensor
	Mask  *ts.Tensor
}

// Dataset implement dutil.Dataset
type Dataset struct {
	pairs []Pair
	size  int
}

// NewDataset creates a dataset resizing every sample to size x size.
func NewDataset(pairs []Pair, size int) *Dataset {
	return &Dataset{pairs: pairs, size: size}
}

func (ds *Dataset) Len() int {
	return len(ds.pairs)
}

// Item implements Dataset interface
func (ds *Dataset) Item(idx int) (interface{}, error) {
	if idx < 0 || idx >= len(ds.pairs) {
		return nil, errors.Errorf("index %d out of range [0, %d)", idx, len(ds.pairs))
	}
	pair := ds.pairs[idx]

	img, err := ReadImage(pair.Image)
	if err != nil {
		return nil, err
	}
	mask, err := ReadImage(pair.Mask)
	if err != nil {
		return nil, err
	}

	img = imaging.Resize(img, ds.size, ds.size, imaging.Lanczos)
	mask = imaging.Resize(mask, ds.size, ds.size, imaging.NearestNeighbor)

	return ImageMask{
		Image: ToTensor(img),
		Mask:  MaskToTensor(mask),
	}, nil
}

func (ds *Dataset) DType() reflect.Type {
	return reflect.TypeOf(ImageMask{})
}

// Batch stacks a data loader sample (ImageMask or []ImageMask) into
// (N, 3, S, S) images and (N, 1, S, S) masks. Sample tensors are freed.
func Batch(sample interface{}) (images, masks *ts.Tensor, err error) {
	var items []ImageMask
	switch s := sample.(type) {
	case ImageMask:
		items = []ImageMask{s}
	case []ImageMask:
		items = s
	default:
		v := reflect.ValueOf(sample)
		if v.Kind() != reflect.Slice {
			return nil, nil, errors.Errorf("unexpected sample type %T", sample)
		}
		for i := 0; i < v.Len(); i++ {
			item, ok := v.Index(i).Interface().(ImageMask)
			if !ok {
				return nil, nil, errors.Errorf("unexpected batch element type %T", v.Index(i).Interface())
			}
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return nil, nil, errors.New("empty batch")
	}

	var img, mask []*ts.Tensor
	for _, i := range items {
		img = append(img, i.Image)
		mask = append(mask, i.Mask)
	}
	images = ts.MustStack(img, 0)
	for _, x := range img {
		x.MustDrop()
	}
	masks = ts.MustStack(mask, 0)
	for _, x := range mask {
		x.MustDrop()
	}

	return images, masks, nil
}
