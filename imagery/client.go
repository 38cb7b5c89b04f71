package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sugarme/segforest/logging"
)

// ErrNoScene is returned when no scene matches the search at any cloud
// threshold.
var ErrNoScene = errors.New("no suitable scene found")

// AuthError reports that Earth Engine credentials could not be resolved.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return "earth engine authentication failed: " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Scene is one image of the collection.
type Scene struct {
	// Name is the full asset name, e.g.
	// projects/earthengine-public/assets/COPERNICUS/S2_SR/20200101T...
	Name            string
	ID              string
	Time            time.Time
	CloudPercentage float64
}

// Client talks to the Earth Engine REST API.
type Client struct {
	config Config
	http   *http.Client
	logger logging.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient makes the Client use hc as is, skipping credential lookup.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient validates config and resolves credentials. Credential failures
// are returned as *AuthError.
func NewClient(ctx context.Context, config Config, logger logging.Logger, opts ...Option) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid imagery config")
	}
	c := &Client{config: config, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	if c.http != nil {
		return c, nil
	}

	creds, err := credentials(ctx, config.CredentialsFile)
	if err != nil {
		return nil, &AuthError{Err: err}
	}
	if _, err := creds.TokenSource.Token(); err != nil {
		return nil, &AuthError{Err: errors.Wrap(err, "fetch token")}
	}
	c.http = oauth2.NewClient(ctx, creds.TokenSource)
	logger.Infow("earth engine client ready", "project", config.Project)

	return c, nil
}

func credentials(ctx context.Context, file string) (*google.Credentials, error) {
	if file == "" {
		return google.FindDefaultCredentials(ctx, Scope)
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrapf(err, "read credentials %q", file)
	}
	return google.CredentialsFromJSON(ctx, data, Scope)
}

func (c *Client) collectionPath() string {
	return "projects/earthengine-public/assets/" + c.config.Collection
}

func (c *Client) do(ctx context.Context, method, rawURL string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("x-goog-user-project", c.config.Project)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, req.URL.Path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s %s: status %d: %s", method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(data)))
	}

	return data, nil
}

type listImagesResponse struct {
	Images []struct {
		Name       string                 `json:"name"`
		ID         string                 `json:"id"`
		StartTime  time.Time              `json:"startTime"`
		Properties map[string]interface{} `json:"properties"`
	} `json:"images"`
	NextPageToken string `json:"nextPageToken"`
}

// listScenes returns every scene in [start, end) intersecting region whose
// cloud percentage is below maxCloud.
func (c *Client) listScenes(ctx context.Context, region Region, start, end time.Time, maxCloud float64) ([]Scene, error) {
	geojson, err := json.Marshal(region.GeoJSON())
	if err != nil {
		return nil, errors.Wrap(err, "encode region")
	}

	var (
		scenes    []Scene
		pageToken string
	)
	for {
		q := url.Values{}
		q.Set("startTime", start.UTC().Format(time.RFC3339))
		q.Set("endTime", end.UTC().Format(time.RFC3339))
		q.Set("region", string(geojson))
		q.Set("filter", fmt.Sprintf("CLOUDY_PIXEL_PERCENTAGE < %v", maxCloud))
		q.Set("view", "FULL")
		if pageToken != "" {
			q.Set("pageToken", pageToken)
		}

		data, err := c.do(ctx, http.MethodGet, fmt.Sprintf("%s/%s:listImages?%s", c.config.BaseURL, c.collectionPath(), q.Encode()), nil)
		if err != nil {
			return nil, err
		}
		var page listImagesResponse
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, errors.Wrap(err, "decode listImages response")
		}

		for _, img := range page.Images {
			cloud, ok := img.Properties["CLOUDY_PIXEL_PERCENTAGE"].(float64)
			if !ok {
				continue
			}
			scenes = append(scenes, Scene{Name: img.Name, ID: img.ID, Time: img.StartTime, CloudPercentage: cloud})
		}
		if page.NextPageToken == "" {
			return scenes, nil
		}
		pageToken = page.NextPageToken
	}
}

// FindScene returns the least cloudy scene within DaysRange of date over
// region, relaxing the cloud threshold in configured order.
func (c *Client) FindScene(ctx context.Context, region Region, date time.Time) (*Scene, error) {
	start := date.AddDate(0, 0, -c.config.DaysRange)
	end := date.AddDate(0, 0, c.config.DaysRange)
	c.logger.Debugw("searching scenes", "from", start.Format("2006-01-02"), "to", end.Format("2006-01-02"))

	for _, threshold := range c.config.CloudThresholds {
		scenes, err := c.listScenes(ctx, region, start, end, threshold)
		if err != nil {
			return nil, err
		}
		if len(scenes) == 0 {
			c.logger.Infow("no scene below cloud threshold", "threshold", threshold, "date", date.Format("2006-01-02"))
			continue
		}

		best := scenes[0]
		for _, s := range scenes[1:] {
			if s.CloudPercentage < best.CloudPercentage {
				best = s
			}
		}
		c.logger.Infow("found scene", "id", best.ID, "date", best.Time.Format("2006-01-02"), "cloud", fmt.Sprintf("%.1f%%", best.CloudPercentage))
		return &best, nil
	}

	return nil, errors.Wrapf(ErrNoScene, "for %s", date.Format("2006-01-02"))
}

type visualizationRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type getPixelsRequest struct {
	FileFormat string                 `json:"fileFormat"`
	BandIds    []string               `json:"bandIds"`
	Region     map[string]interface{} `json:"region"`
	Grid       struct {
		Dimensions      map[string]int     `json:"dimensions"`
		AffineTransform map[string]float64 `json:"affineTransform"`
		CrsCode         string             `json:"crsCode"`
	} `json:"grid"`
	VisualizationOptions struct {
		Ranges []visualizationRange `json:"ranges"`
	} `json:"visualizationOptions"`
}

// Pixels downloads the scene over region as a true colour PNG.
func (c *Client) Pixels(ctx context.Context, scene *Scene, region Region) (image.Image, error) {
	req := getPixelsRequest{
		FileFormat: "PNG",
		BandIds:    c.config.Bands,
		Region:     region.GeoJSON(),
	}
	req.Grid.Dimensions = map[string]int{"width": c.config.Width, "height": c.config.Height}
	req.Grid.AffineTransform = region.affine(c.config.Width, c.config.Height)
	req.Grid.CrsCode = "EPSG:4326"
	req.VisualizationOptions.Ranges = []visualizationRange{{Min: c.config.VisMin, Max: c.config.VisMax}}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(err, "encode getPixels request")
	}
	data, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/%s:getPixels", c.config.BaseURL, scene.Name), body)
	if err != nil {
		return nil, err
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "decode scene png")
	}

	return img, nil
}

// Placeholder returns the neutral gray image written when a download fails.
func (c *Client) Placeholder() image.Image {
	return imaging.New(c.config.Width, c.config.Height, color.NRGBA{200, 200, 200, 255})
}

// Download saves the scene over region to path. On failure it writes a
// placeholder instead and reports placeholder=true; err is only set when
// nothing could be written or ctx was cancelled.
func (c *Client) Download(ctx context.Context, scene *Scene, region Region, path string) (placeholder bool, err error) {
	img, dlErr := c.Pixels(ctx, scene, region)
	if dlErr == nil {
		if dlErr = imaging.Save(img, path); dlErr == nil {
			c.logger.Infow("saved scene", "id", scene.ID, "path", path)
			return false, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	return true, c.writePlaceholder(path, dlErr)
}

func (c *Client) writePlaceholder(path string, cause error) error {
	c.logger.Warnw("writing placeholder image", "path", path, "error", cause)
	if err := imaging.Save(c.Placeholder(), path); err != nil {
		return multierr.Combine(cause, errors.Wrapf(err, "save placeholder %q", path))
	}
	return nil
}

// Fetch finds the best scene around (lat, lng) for date and saves it to
// path. Search or download failures degrade to a placeholder image; a
// cancelled context is returned as an error with nothing written.
func (c *Client) Fetch(ctx context.Context, lat, lng float64, date time.Time, path string) (placeholder bool, err error) {
	region := RegionAround(lat, lng, c.config.BufferKm)
	scene, err := c.FindScene(ctx, region, date)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return true, c.writePlaceholder(path, err)
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	return c.Download(ctx, scene, region, path)
}
