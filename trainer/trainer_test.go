package trainer_test

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/segforest/dataset"
	"github.com/sugarme/segforest/logging"
	"github.com/sugarme/segforest/segforest"
	"github.com/sugarme/segforest/trainer"
)

func fixturePairs(t *testing.T, n int) []dataset.Pair {
	t.Helper()
	dir := t.TempDir()
	var pairs []dataset.Pair
	for i := 0; i < n; i++ {
		img := filepath.Join(dir, "tile"+string(rune('a'+i))+".png")
		require.NoError(t, imaging.Save(imaging.New(48, 48, color.NRGBA{20, 160, 40, 255}), img))

		mask := image.NewGray(image.Rect(0, 0, 48, 48))
		for y := 0; y < 48; y++ {
			for x := 0; x < 24; x++ {
				mask.SetGray(x, y, color.Gray{255})
			}
		}
		mpath := filepath.Join(dir, dataset.MaskName(img))
		require.NoError(t, imaging.Save(mask, mpath))
		pairs = append(pairs, dataset.Pair{Image: img, Mask: mpath})
	}
	return pairs
}

func newTrainer(t *testing.T, params trainer.Params) *trainer.Trainer {
	t.Helper()
	vs := nn.NewVarStore(gotch.CPU)
	model, err := segforest.New(vs.Root(), segforest.DefaultConfig())
	require.NoError(t, err)
	tr, err := trainer.New(model, vs, params, logging.NewNop())
	require.NoError(t, err)
	return tr
}

func TestNewInvalidParams(t *testing.T) {
	vs := nn.NewVarStore(gotch.CPU)
	model, err := segforest.New(vs.Root(), segforest.DefaultConfig())
	require.NoError(t, err)

	p := trainer.DefaultParams()
	p.BatchSize = 0
	_, err = trainer.New(model, vs, p, logging.NewNop())
	assert.Error(t, err)

	p = trainer.DefaultParams()
	p.LearningRate = 0
	_, err = trainer.New(model, vs, p, logging.NewNop())
	assert.Error(t, err)

	p = trainer.DefaultParams()
	p.LossWeights = []float64{0.5, 0.5}
	_, err = trainer.New(model, vs, p, logging.NewNop())
	assert.Error(t, err)
}

func TestRun(t *testing.T) {
	if testing.Short() {
		t.Skip("trains a model")
	}
	pairs := fixturePairs(t, 3)
	train := dataset.NewDataset(pairs[:2], 64)
	valid := dataset.NewDataset(pairs[2:], 64)

	params := trainer.DefaultParams()
	params.Epochs = 2
	// larger than the validation split.
	params.BatchSize = 2
	params.CheckpointDir = filepath.Join(t.TempDir(), "ckpt")
	tr := newTrainer(t, params)

	history, err := tr.Run(context.Background(), train, valid)
	require.NoError(t, err)
	require.Len(t, history.Epochs, 2)

	for i, e := range history.Epochs {
		assert.Equal(t, i+1, e.Epoch)
		assert.Greater(t, e.TrainLoss, 0.0)
		assert.Greater(t, e.ValidLoss, 0.0)
		assert.GreaterOrEqual(t, e.Dice, 0.0)
		assert.LessOrEqual(t, e.Dice, 1.0)
		assert.LessOrEqual(t, e.IoU, e.Dice+1e-9)
	}

	require.NotEmpty(t, history.BestCheckpoint)
	assert.Regexp(t, regexp.MustCompile(`^\d{3}_model_\d\.\d{4}_\d\.\d{4}\.ot$`), filepath.Base(history.BestCheckpoint))
	_, err = os.Stat(history.BestCheckpoint)
	require.NoError(t, err)

	plot := filepath.Join(t.TempDir(), "history.png")
	require.NoError(t, history.Plot(plot))
	info, err := os.Stat(plot)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestRunCancelled(t *testing.T) {
	pairs := fixturePairs(t, 2)
	params := trainer.DefaultParams()
	params.Epochs = 1
	params.CheckpointDir = filepath.Join(t.TempDir(), "ckpt")
	tr := newTrainer(t, params)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tr.Run(ctx, dataset.NewDataset(pairs[:1], 64), dataset.NewDataset(pairs[1:], 64))
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(params.CheckpointDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRunEmptyDataset(t *testing.T) {
	tr := newTrainer(t, trainer.DefaultParams())
	pairs := fixturePairs(t, 1)
	_, err := tr.Run(context.Background(), dataset.NewDataset(pairs, 64), dataset.NewDataset(nil, 64))
	assert.Error(t, err)
}

func TestPlotEmptyHistory(t *testing.T) {
	assert.Error(t, (&trainer.History{}).Plot(filepath.Join(t.TempDir(), "x.png")))
}
