// Package imagery searches and downloads Sentinel-2 scenes through the
// Earth Engine REST API.
package imagery

import (
	"time"

	"github.com/pkg/errors"
)

// DefaultBaseURL is the Earth Engine REST endpoint.
const DefaultBaseURL = "https://earthengine.googleapis.com/v1"

// Scope is the OAuth2 scope required by the Earth Engine API.
const Scope = "https://www.googleapis.com/auth/earthengine"

// Config configures a Client.
type Config struct {
	// Project is the Google Cloud project billed for requests.
	Project string
	// CredentialsFile is a service account or authorized user JSON file.
	// Empty means application default credentials.
	CredentialsFile string
	BaseURL         string
	// Collection is the image collection asset id.
	Collection string
	// BufferKm is the half side of the square region around an event.
	BufferKm float64
	// DaysRange widens the search window on both sides of the event date.
	DaysRange int
	// CloudThresholds are tried in order until a scene is found.
	CloudThresholds []float64
	Bands           []string
	VisMin          float64
	VisMax          float64
	Width           int
	Height          int
	Timeout         time.Duration
}

// DefaultConfig returns settings for Sentinel-2 surface reflectance true
// colour thumbnails.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Collection:      "COPERNICUS/S2_SR",
		BufferKm:        5,
		DaysRange:       30,
		CloudThresholds: []float64{20, 50},
		Bands:           []string{"B4", "B3", "B2"},
		VisMin:          0,
		VisMax:          3000,
		Width:           800,
		Height:          600,
		Timeout:         60 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case c.Project == "":
		return errors.New("earth engine project is required")
	case c.BaseURL == "" || c.Collection == "":
		return errors.New("base url and collection are required")
	case c.BufferKm <= 0:
		return errors.Errorf("invalid buffer %v km", c.BufferKm)
	case c.DaysRange < 0:
		return errors.Errorf("invalid days range %d", c.DaysRange)
	case len(c.CloudThresholds) == 0:
		return errors.New("at least one cloud threshold is required")
	case len(c.Bands) == 0:
		return errors.New("at least one band is required")
	case c.Width < 1 || c.Height < 1:
		return errors.Errorf("invalid dimensions %dx%d", c.Width, c.Height)
	case c.VisMax <= c.VisMin:
		return errors.Errorf("invalid visualization range [%v, %v]", c.VisMin, c.VisMax)
	}
	return nil
}
