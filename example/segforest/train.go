package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/sugarme/gotch/nn"
	"github.com/sugarme/gotch/ts"

	"github.com/sugarme/segforest/dataset"
	"github.com/sugarme/segforest/segforest"
	"github.com/sugarme/segforest/trainer"
)

func TrainCommand() *cobra.Command {
	var (
		imageDir   string
		maskDir    string
		pretrained string
		plotFile   string
		validFrac  float64
		imageSize  int
		seed       int64
		params     = trainer.DefaultParams()
		config     = segforest.DefaultConfig()
	)

	cmd := &cobra.Command{
		Use:   "train -i imageDir -m maskDir",
		Short: "Trains a SegForest model and keeps the best checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ts.ManualSeed(seed)
			params.Device = device()

			pairs, skipped, err := dataset.Pairs(imageDir, maskDir)
			if err != nil {
				return err
			}
			if skipped > 0 {
				logger.Warnw("images without mask skipped", "count", skipped)
			}
			trainPairs, validPairs, err := dataset.Split(pairs, validFrac)
			if err != nil {
				return err
			}
			logger.Infow("dataset", "train", len(trainPairs), "valid", len(validPairs))

			vs := nn.NewVarStore(params.Device)
			model, err := segforest.New(vs.Root(), config)
			if err != nil {
				return err
			}
			if pretrained != "" {
				missing, err := segforest.LoadPretrained(vs, pretrained)
				if err != nil {
					return err
				}
				logger.Infow("loaded pretrained weights", "path", pretrained, "missing", len(missing))
			}

			tr, err := trainer.New(model, vs, params, logger)
			if err != nil {
				return err
			}
			history, err := tr.Run(cmd.Context(),
				dataset.NewDataset(trainPairs, imageSize),
				dataset.NewDataset(validPairs, imageSize))
			if err != nil {
				return err
			}

			printHistory(history)
			if plotFile != "" {
				return history.Plot(plotFile)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&imageDir, "image-dir", "i", "wildfire_images", "training image directory")
	cmd.Flags().StringVarP(&maskDir, "mask-dir", "m", "wildfire_masks", "training mask directory")
	cmd.Flags().StringVarP(&pretrained, "pretrained", "", "", "pretrained encoder weights")
	cmd.Flags().StringVarP(&plotFile, "plot", "", "", "save training curves to this file")
	cmd.Flags().Float64VarP(&validFrac, "valid-fraction", "", 0.2, "fraction of samples held out for validation")
	cmd.Flags().IntVarP(&imageSize, "image-size", "s", 512, "square input size")
	cmd.Flags().Int64VarP(&seed, "random-seed", "x", 42, "random seed")
	cmd.Flags().StringVarP(&config.Encoder, "encoder", "e", config.Encoder, "encoder: mit-b0 or resnet34")
	cmd.Flags().IntVarP(&params.Epochs, "num-epochs", "n", params.Epochs, "number of epochs to train")
	cmd.Flags().IntVarP(&params.BatchSize, "batch-size", "b", params.BatchSize, "batch size")
	cmd.Flags().Float64VarP(&params.LearningRate, "learning-rate", "l", params.LearningRate, "learning rate")
	cmd.Flags().Float64SliceVarP(&params.LossWeights, "loss-weights", "", params.LossWeights, "fine, mid and coarse loss weights")
	cmd.Flags().StringVarP(&params.CheckpointDir, "checkpoint-dir", "o", params.CheckpointDir, "checkpoint directory")
	cmd.Flags().IntVarP(&params.ReportEvery, "report-interval", "r", params.ReportEvery, "loss report interval in batches")

	return cmd
}

func printHistory(h *trainer.History) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"epoch", "train loss", "valid loss", "dice", "iou", "time"})
	for _, e := range h.Epochs {
		t.AppendRow(table.Row{
			e.Epoch,
			fmt.Sprintf("%.4f", e.TrainLoss),
			fmt.Sprintf("%.4f", e.ValidLoss),
			fmt.Sprintf("%.4f", e.Dice),
			fmt.Sprintf("%.4f", e.IoU),
			e.Duration.Round(time.Millisecond),
		})
	}
	t.AppendFooter(table.Row{"best", "", "", fmt.Sprintf("%.4f", h.BestDice), "", h.BestCheckpoint})
	t.Render()
}
