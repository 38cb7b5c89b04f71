package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sugarme/segforest/imagery"
	"github.com/sugarme/segforest/wildfire"
)

var _ wildfire.Fetcher = (*imagery.Client)(nil)

func DownloadCommand() *cobra.Command {
	var (
		eventsFile string
		outDir     string
		config     = imagery.DefaultConfig()
	)

	cmd := &cobra.Command{
		Use:   "download -i events.csv -o outDir",
		Short: "Downloads pre- and post-fire Sentinel-2 images for every wildfire event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.Project == "" {
				config.Project = os.Getenv("EE_PROJECT")
			}
			if config.CredentialsFile == "" {
				config.CredentialsFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
			}

			f, err := os.Open(eventsFile)
			if err != nil {
				return errors.Wrap(err, "open events")
			}
			events, err := wildfire.ReadEvents(f)
			f.Close()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			client, err := imagery.NewClient(ctx, config, logger)
			if err != nil {
				return err
			}

			report, err := wildfire.Process(ctx, client, events, outDir, logger)
			logger.Infow("download finished",
				"events", report.Events,
				"images", report.Images,
				"placeholders", report.Placeholders,
				"failed", report.Failed,
			)
			return err
		},
	}

	cmd.Flags().StringVarP(&eventsFile, "events", "i", "", "wildfire events CSV file")
	cmd.Flags().StringVarP(&outDir, "output-dir", "o", "wildfire_images", "directory to write images to")
	cmd.Flags().StringVarP(&config.Project, "project", "p", "", "Google Cloud project (default $EE_PROJECT)")
	cmd.Flags().StringVarP(&config.CredentialsFile, "credentials", "", "", "credentials JSON file (default $GOOGLE_APPLICATION_CREDENTIALS)")
	cmd.Flags().StringVarP(&config.Collection, "collection", "", config.Collection, "image collection")
	cmd.Flags().Float64VarP(&config.BufferKm, "buffer-km", "", config.BufferKm, "half side of the region around an event")
	cmd.Flags().IntVarP(&config.DaysRange, "days", "", config.DaysRange, "days searched on both sides of a date")
	cmd.Flags().Float64SliceVarP(&config.CloudThresholds, "cloud", "", config.CloudThresholds, "cloud cover thresholds tried in order")
	cmd.Flags().IntVarP(&config.Width, "width", "", config.Width, "image width")
	cmd.Flags().IntVarP(&config.Height, "height", "", config.Height, "image height")

	_ = cmd.MarkFlagRequired("events")

	return cmd
}
