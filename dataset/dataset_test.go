package dataset_test

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch/dutil"

	"github.com/sugarme/segforest/dataset"
)

func writeImage(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	require.NoError(t, imaging.Save(imaging.New(w, h, c), path))
}

func writeHalfMask(t *testing.T, path string, w, h int) {
	t.Helper()
	mask := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := w / 2; x < w; x++ {
			mask.SetGray(x, y, color.Gray{255})
		}
	}
	require.NoError(t, imaging.Save(mask, path))
}

func fixtureDirs(t *testing.T, n int) (string, string) {
	t.Helper()
	imgDir := filepath.Join(t.TempDir(), "images")
	maskDir := filepath.Join(t.TempDir(), "masks")
	require.NoError(t, os.MkdirAll(imgDir, 0o755))
	require.NoError(t, os.MkdirAll(maskDir, 0o755))

	for i := 0; i < n; i++ {
		name := filepath.Join(imgDir, "image"+string(rune('a'+i))+".png")
		writeImage(t, name, 40, 30, color.NRGBA{10, 200, 30, 255})
		writeHalfMask(t, filepath.Join(maskDir, dataset.MaskName(name)), 40, 30)
	}
	// an image without a mask.
	writeImage(t, filepath.Join(imgDir, "orphan.jpg"), 8, 8, color.White)

	return imgDir, maskDir
}

func TestPairs(t *testing.T) {
	imgDir, maskDir := fixtureDirs(t, 3)

	pairs, skipped, err := dataset.Pairs(imgDir, maskDir)
	require.NoError(t, err)
	require.Len(t, pairs, 3)
	require.Equal(t, 1, skipped)
	require.Equal(t, filepath.Join(maskDir, "imagea_mask.png"), pairs[0].Mask)

	_, _, err = dataset.Pairs(filepath.Join(imgDir, "nope"), maskDir)
	require.Error(t, err)
}

func TestSplit(t *testing.T) {
	pairs := make([]dataset.Pair, 10)
	train, valid, err := dataset.Split(pairs, 0.25)
	require.NoError(t, err)
	require.Len(t, valid, 3)
	require.Len(t, train, 7)

	_, _, err = dataset.Split(pairs, 1)
	require.Error(t, err)
}

func TestDatasetItem(t *testing.T) {
	imgDir, maskDir := fixtureDirs(t, 1)
	pairs, _, err := dataset.Pairs(imgDir, maskDir)
	require.NoError(t, err)

	ds := dataset.NewDataset(pairs, 16)
	require.Equal(t, 1, ds.Len())

	item, err := ds.Item(0)
	require.NoError(t, err)
	sample := item.(dataset.ImageMask)
	require.Equal(t, []int64{3, 16, 16}, sample.Image.MustSize())
	require.Equal(t, []int64{1, 16, 16}, sample.Mask.MustSize())

	var ones int
	for _, v := range sample.Mask.Float64Values() {
		require.True(t, v == 0 || v == 1)
		if v == 1 {
			ones++
		}
	}
	require.Equal(t, 16*8, ones)

	for _, v := range sample.Image.Float64Values() {
		require.True(t, v >= 0 && v <= 1)
	}

	_, err = ds.Item(1)
	require.Error(t, err)
}

func TestDataLoaderBatch(t *testing.T) {
	imgDir, maskDir := fixtureDirs(t, 4)
	pairs, _, err := dataset.Pairs(imgDir, maskDir)
	require.NoError(t, err)

	ds := dataset.NewDataset(pairs, 8)
	s, err := dutil.NewBatchSampler(ds.Len(), 2, true, true)
	require.NoError(t, err)
	dl, err := dutil.NewDataLoader(ds, s)
	require.NoError(t, err)

	batches := 0
	for dl.HasNext() {
		sample, err := dl.Next()
		require.NoError(t, err)
		images, masks, err := dataset.Batch(sample)
		require.NoError(t, err)
		require.Equal(t, []int64{2, 3, 8, 8}, images.MustSize())
		require.Equal(t, []int64{2, 1, 8, 8}, masks.MustSize())
		batches++
	}
	require.Equal(t, 2, batches)

	_, _, err = dataset.Batch("bogus")
	require.Error(t, err)
}
