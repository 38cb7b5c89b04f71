// Command segforest downloads wildfire imagery, builds vegetation masks and
// trains or runs the SegForest forest segmentation model.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/sugarme/gotch"

	"github.com/sugarme/segforest/logging"
)

var (
	logLevel  string
	logFormat string
	useCuda   bool

	logger = logging.NewNop()
)

func device() gotch.Device {
	if useCuda {
		return gotch.CudaIfAvailable()
	}
	return gotch.CPU
}

func setup(cmd *cobra.Command, args []string) error {
	l, err := logging.New("segforest", logLevel, logFormat)
	if err != nil {
		return err
	}
	logger = l

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warnw("can not read .env", "error", err)
	}
	return nil
}

func main() {
	root := &cobra.Command{
		Use:               "segforest",
		Short:             "Forest segmentation of satellite imagery",
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	root.PersistentFlags().StringVarP(&logLevel, "log-level", "", "info", "logging level: debug, info, warn or error")
	root.PersistentFlags().StringVarP(&logFormat, "log-format", "", "pretty", "logging format: pretty or json")
	root.PersistentFlags().BoolVarP(&useCuda, "cuda", "", false, "use CUDA when available")

	root.AddCommand(DownloadCommand())
	root.AddCommand(MaskCommand())
	root.AddCommand(TrainCommand())
	root.AddCommand(PredictCommand())
	root.AddCommand(InspectCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
