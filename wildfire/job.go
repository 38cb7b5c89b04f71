package wildfire

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/sugarme/segforest/logging"
)

// Fetcher saves the scene for a location and date to path. placeholder
// reports that a neutral image was written instead of a scene.
type Fetcher interface {
	Fetch(ctx context.Context, lat, lng float64, date time.Time, path string) (placeholder bool, err error)
}

// Report counts the outcome of Process.
type Report struct {
	Events       int
	Images       int
	Placeholders int
	Failed       int
}

// ImagePaths returns the pre- and post-fire image paths of the i-th
// (zero based) event: image{2i+1}.png and image{2i+2}.png.
func ImagePaths(outDir string, i int) (pre, post string) {
	pre = filepath.Join(outDir, fmt.Sprintf("image%d.png", 2*i+1))
	post = filepath.Join(outDir, fmt.Sprintf("image%d.png", 2*i+2))
	return pre, post
}

// Process fetches the pre- and post-fire images of every event into outDir.
// Failures are logged and combined into the returned error; the remaining
// events are still processed unless ctx is done.
func Process(ctx context.Context, f Fetcher, events []Event, outDir string, logger logging.Logger) (Report, error) {
	var report Report
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return report, errors.Wrapf(err, "create output dir %q", outDir)
	}

	var errs error
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return report, multierr.Append(errs, err)
		}
		logger.Infow("processing wildfire", "n", i+1, "event", ev.Name, "location", ev.Location)
		report.Events++

		pre, post := ImagePaths(outDir, i)
		for _, job := range []struct {
			kind string
			date time.Time
			path string
		}{
			{"pre-fire", ev.PreFireDate, pre},
			{"post-fire", ev.PostFireDate, post},
		} {
			placeholder, err := f.Fetch(ctx, ev.Latitude, ev.Longitude, job.date, job.path)
			if err != nil {
				logger.Errorw("fetch failed", "event", ev.Name, "image", job.kind, "error", err)
				errs = multierr.Append(errs, errors.Wrapf(err, "%s %s image", ev.Name, job.kind))
				report.Failed++
				continue
			}
			report.Images++
			if placeholder {
				report.Placeholders++
			}
		}
	}

	return report, errs
}
