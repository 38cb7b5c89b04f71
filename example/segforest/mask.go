package main

import (
	"github.com/spf13/cobra"

	"github.com/sugarme/segforest/mask"
)

func MaskCommand() *cobra.Command {
	var (
		imageDir string
		maskDir  string
		lower    []float64
		upper    []float64
		config   = mask.DefaultConfig()
	)

	cmd := &cobra.Command{
		Use:   "mask -i imageDir -o maskDir",
		Short: "Generates vegetation masks for every png image in a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(lower) == 3 {
				config.Lower = mask.HSV{H: lower[0], S: lower[1], V: lower[2]}
			}
			if len(upper) == 3 {
				config.Upper = mask.HSV{H: upper[0], S: upper[1], V: upper[2]}
			}

			gen, err := mask.NewGenerator(config, logger)
			if err != nil {
				return err
			}
			summary, err := gen.ProcessDir(imageDir, maskDir)
			logger.Infow("masks done", "processed", summary.Processed, "placeholders", summary.Placeholders)
			return err
		},
	}

	cmd.Flags().StringVarP(&imageDir, "image-dir", "i", "wildfire_images", "input image directory")
	cmd.Flags().StringVarP(&maskDir, "mask-dir", "o", "wildfire_masks", "output mask directory")
	cmd.Flags().Float64SliceVarP(&lower, "lower", "", nil, "lower HSV bound, e.g. 35,50,50")
	cmd.Flags().Float64SliceVarP(&upper, "upper", "", nil, "upper HSV bound, e.g. 85,255,255")
	cmd.Flags().IntVarP(&config.KernelSize, "kernel", "k", config.KernelSize, "morphology kernel size")
	cmd.Flags().IntVarP(&config.OpenIterations, "open", "", config.OpenIterations, "opening iterations")
	cmd.Flags().IntVarP(&config.CloseIterations, "close", "", config.CloseIterations, "closing iterations")

	return cmd
}
