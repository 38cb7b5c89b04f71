// Package trainer fits a SegForest model with AdamW on the weighted
// multi-scale loss and keeps the checkpoint with the best validation Dice.
package trainer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/sugarme/gotch"
	"github.com/sugarme/gotch/dutil"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/dataset"
	"github.com/sugarme/segforest/logging"
	"github.com/sugarme/segforest/metric"
	"github.com/sugarme/segforest/segforest"
)

// CheckpointPattern names checkpoints by epoch, Dice and IoU.
const CheckpointPattern = "%03d_model_%.4f_%.4f.ot"

// numOutputs is the number of decoder outputs weighted by the loss.
const numOutputs = 3

// Params holds training hyper-parameters.
type Params struct {
	Epochs        int
	BatchSize     int
	LearningRate  float64
	LossWeights   []float64
	CheckpointDir string
	Device        gotch.Device
	// ReportEvery logs the running loss every n batches; 0 disables it.
	ReportEvery int
}

// DefaultParams returns the default training setup.
func DefaultParams() Params {
	return Params{
		Epochs:        30,
		BatchSize:     4,
		LearningRate:  6e-5,
		LossWeights:   metric.DefaultWBCEWeights,
		CheckpointDir: "checkpoint",
		Device:        gotch.CPU,
		ReportEvery:   10,
	}
}

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch     int
	TrainLoss float64
	ValidLoss float64
	Dice      float64
	IoU       float64
	Duration  time.Duration
}

// History is the outcome of Run.
type History struct {
	Epochs         []EpochStats
	BestCheckpoint string
	BestDice       float64
}

// Trainer runs the training loop.
type Trainer struct {
	model  *segforest.SegForest
	vs     *nn.VarStore
	params Params
	loss   *metric.WBCE
	opt    *nn.Optimizer
	logger logging.Logger
}

// New creates a Trainer with an AdamW optimizer over all trainable
// variables of vs.
func New(model *segforest.SegForest, vs *nn.VarStore, params Params, logger logging.Logger) (*Trainer, error) {
	if params.Epochs < 1 || params.BatchSize < 1 {
		return nil, errors.Errorf("invalid epochs %d or batch size %d", params.Epochs, params.BatchSize)
	}
	if params.LearningRate <= 0 {
		return nil, errors.Errorf("invalid learning rate %v", params.LearningRate)
	}
	if len(params.LossWeights) != numOutputs {
		return nil, errors.Errorf("need %d loss weights (fine, mid, coarse), got %v", numOutputs, params.LossWeights)
	}
	opt, err := nn.DefaultAdamWConfig().Build(vs, params.LearningRate)
	if err != nil {
		return nil, errors.Wrap(err, "build optimizer")
	}

	return &Trainer{
		model:  model,
		vs:     vs,
		params: params,
		loss:   metric.NewWBCE(params.LossWeights...),
		opt:    opt,
		logger: logger,
	}, nil
}

// loader batches ds. The batch size is capped at ds.Len() since the sampler
// rejects batches larger than the dataset.
func loader(ds dutil.Dataset, batchSize int, shuffle bool) (*dutil.DataLoader, error) {
	if n := ds.Len(); batchSize > n {
		batchSize = n
	}
	s, err := dutil.NewBatchSampler(ds.Len(), batchSize, false, shuffle)
	if err != nil {
		return nil, errors.Wrap(err, "create batch sampler")
	}
	dl, err := dutil.NewDataLoader(ds, s)
	if err != nil {
		return nil, errors.Wrap(err, "create data loader")
	}
	return dl, nil
}

// Run trains for Params.Epochs epochs, validating after each one.
// Cancelling ctx stops training between batches.
func (t *Trainer) Run(ctx context.Context, train, valid *dataset.Dataset) (*History, error) {
	if train.Len() == 0 || valid.Len() == 0 {
		return nil, errors.Errorf("need training and validation samples, got %d and %d", train.Len(), valid.Len())
	}
	if err := os.MkdirAll(t.params.CheckpointDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create checkpoint dir %q", t.params.CheckpointDir)
	}
	trainDL, err := loader(train, t.params.BatchSize, true)
	if err != nil {
		return nil, err
	}

	history := &History{BestDice: -1}
	for e := 1; e <= t.params.Epochs; e++ {
		start := time.Now()
		tloss, err := t.trainEpoch(ctx, trainDL)
		if err != nil {
			return history, errors.Wrapf(err, "epoch %d", e)
		}
		vloss, dice, iou, err := t.Validate(ctx, valid)
		if err != nil {
			return history, errors.Wrapf(err, "validate epoch %d", e)
		}

		es := EpochStats{Epoch: e, TrainLoss: tloss, ValidLoss: vloss, Dice: dice, IoU: iou, Duration: time.Since(start)}
		history.Epochs = append(history.Epochs, es)
		t.logger.Infow("epoch done",
			"epoch", e,
			"train_loss", fmt.Sprintf("%6.4f", tloss),
			"valid_loss", fmt.Sprintf("%6.4f", vloss),
			"dice", fmt.Sprintf("%6.4f", dice),
			"iou", fmt.Sprintf("%6.4f", iou),
			"took", es.Duration,
		)

		if dice > history.BestDice {
			path := filepath.Join(t.params.CheckpointDir, fmt.Sprintf(CheckpointPattern, e, dice, iou))
			if err := segforest.Save(t.vs, path); err != nil {
				return history, err
			}
			history.BestDice = dice
			history.BestCheckpoint = path
			t.logger.Infow("saved checkpoint", "path", path)
		}
	}

	return history, nil
}

// eachBatch rewinds dl, drawing a new permutation when shuffle is set, and
// calls fn for every batch until ctx is done.
func eachBatch(ctx context.Context, dl *dutil.DataLoader, shuffle bool, fn func(sample interface{}) error) error {
	dl.Reset(shuffle)
	for dl.HasNext() {
		if err := ctx.Err(); err != nil {
			return err
		}
		sample, err := dl.Next()
		if err != nil {
			return errors.Wrap(err, "load batch")
		}
		if err := fn(sample); err != nil {
			return err
		}
	}
	return nil
}

func (t *Trainer) trainEpoch(ctx context.Context, dl *dutil.DataLoader) (float64, error) {
	var losses []float64
	err := eachBatch(ctx, dl, true, func(sample interface{}) error {
		images, masks, err := dataset.Batch(sample)
		if err != nil {
			return err
		}
		input := images.MustTo(t.params.Device, true)
		target := masks.MustTo(t.params.Device, true)

		out, err := t.model.ForwardTrain(input)
		input.MustDrop()
		if err != nil {
			target.MustDrop()
			return err
		}
		loss, err := t.loss.Forward(out.Tensors(), target)
		out.Drop()
		target.MustDrop()
		if err != nil {
			return err
		}

		t.opt.BackwardStep(loss)
		losses = append(losses, loss.Float64Values()[0])
		loss.MustDrop()

		if n := len(losses); t.params.ReportEvery > 0 && n%t.params.ReportEvery == 0 {
			running, _ := stats.Mean(losses)
			t.logger.Debugw("training", "batch", n, "loss", fmt.Sprintf("%6.4f", running))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	mean, err := stats.Mean(losses)
	if err != nil {
		return 0, errors.Wrap(err, "no training batches")
	}
	return mean, nil
}

// Validate returns the mean BCE loss, Dice and IoU of the model over ds
// with BatchNorm in evaluation mode and no gradient recorded.
func (t *Trainer) Validate(ctx context.Context, ds *dataset.Dataset) (loss, dice, iou float64, err error) {
	dl, err := loader(ds, t.params.BatchSize, false)
	if err != nil {
		return 0, 0, 0, err
	}

	var losses, dices, ious []float64
	err = eachBatch(ctx, dl, false, func(sample interface{}) error {
		images, masks, err := dataset.Batch(sample)
		if err != nil {
			return err
		}
		input := images.MustTo(t.params.Device, true)
		target := masks.MustTo(t.params.Device, true)

		var logits *ts.Tensor
		ts.NoGrad(func() {
			logits, err = t.model.Predict(input)
		})
		input.MustDrop()
		if err != nil {
			target.MustDrop()
			return err
		}

		l := metric.BCEWithLogitsLoss(logits, target)
		losses = append(losses, l.Float64Values()[0])
		l.MustDrop()

		prob := logits.MustSigmoid(true)
		dices = append(dices, metric.DiceCoeffBatch(prob, target))
		ious = append(ious, metric.IoUBatch(prob, target))
		prob.MustDrop()
		target.MustDrop()
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}

	if loss, err = stats.Mean(losses); err != nil {
		return 0, 0, 0, errors.Wrap(err, "no validation batches")
	}
	dice, _ = stats.Mean(dices)
	iou, _ = stats.Mean(ious)

	return loss, dice, iou, nil
}
