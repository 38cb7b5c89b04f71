package main

import (
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/sugarme/gotch/nn"

	"github.com/sugarme/segforest/dataset"
	"github.com/sugarme/segforest/segforest"
)

func PredictCommand() *cobra.Command {
	var (
		modelFile string
		outDir    string
		imageSize int
		config    = segforest.DefaultConfig()
	)

	cmd := &cobra.Command{
		Use:   "predict -m model.ot image...",
		Short: "Segments forest in images and writes masks and overlays",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vs := nn.NewVarStore(device())
			model, err := segforest.New(vs.Root(), config)
			if err != nil {
				return err
			}
			if err := segforest.Load(vs, modelFile); err != nil {
				return err
			}

			for _, path := range args {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				if err := predictFile(model, path, outDir, imageSize); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelFile, "model", "m", "", "model checkpoint")
	cmd.Flags().StringVarP(&outDir, "output-dir", "o", ".", "directory for masks and overlays")
	cmd.Flags().IntVarP(&imageSize, "image-size", "s", 512, "square model input size")
	cmd.Flags().StringVarP(&config.Encoder, "encoder", "e", config.Encoder, "encoder: mit-b0 or resnet34")

	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func predictFile(model *segforest.SegForest, path, outDir string, size int) error {
	img, err := dataset.ReadImage(path)
	if err != nil {
		return err
	}
	b := img.Bounds()

	x := dataset.ToTensor(imaging.Resize(img, size, size, imaging.Lanczos)).
		MustUnsqueeze(0, true).
		MustTo(device(), true)
	out, err := model.Segment(x)
	x.MustDrop()
	if err != nil {
		return err
	}
	small, err := dataset.TensorToMask(out)
	out.MustDrop()
	if err != nil {
		return err
	}
	mask := resize.Resize(uint(b.Dx()), uint(b.Dy()), small, resize.NearestNeighbor)

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	maskPath := filepath.Join(outDir, base+dataset.MaskSuffix)
	if err := imaging.Save(mask, maskPath); err != nil {
		return errors.Wrapf(err, "save mask %q", maskPath)
	}
	overlayPath := filepath.Join(outDir, base+"_overlay.png")
	if err := dataset.Overlay(img, mask, overlayPath); err != nil {
		return err
	}

	logger.Infow("segmented", "image", path, "mask", maskPath, "overlay", overlayPath)
	return nil
}
