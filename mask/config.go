// Package mask generates binary vegetation masks from RGB rasters by HSV
// thresholding followed by morphological opening and closing.
package mask

import "github.com/pkg/errors"

// HSV is a colour in 8-bit OpenCV scale: H in [0, 180], S and V in [0, 255].
type HSV struct {
	H, S, V float64
}

// Config holds the thresholds and cleanup parameters of a Generator.
type Config struct {
	// Lower and Upper bound the accepted colour range, inclusive.
	Lower HSV
	Upper HSV
	// KernelSize is the side of the square structuring element.
	KernelSize int
	// OpenIterations and CloseIterations are the erosion/dilation repeats
	// of the opening (noise removal) and closing (hole filling) steps.
	OpenIterations  int
	CloseIterations int
	// PlaceholderWidth and PlaceholderHeight size the black mask written
	// when an image can not be processed.
	PlaceholderWidth  int
	PlaceholderHeight int
}

// DefaultConfig returns a broad green range and a 3x3 kernel.
func DefaultConfig() Config {
	return Config{
		Lower:             HSV{35, 50, 50},
		Upper:             HSV{85, 255, 255},
		KernelSize:        3,
		OpenIterations:    2,
		CloseIterations:   2,
		PlaceholderWidth:  800,
		PlaceholderHeight: 600,
	}
}

// Validate checks ranges and kernel parameters.
func (c Config) Validate() error {
	if c.Lower.H > c.Upper.H || c.Lower.S > c.Upper.S || c.Lower.V > c.Upper.V {
		return errors.Errorf("lower bound %v exceeds upper bound %v", c.Lower, c.Upper)
	}
	if c.KernelSize < 1 || c.KernelSize%2 == 0 {
		return errors.Errorf("kernel size must be odd and positive, got %d", c.KernelSize)
	}
	if c.OpenIterations < 0 || c.CloseIterations < 0 {
		return errors.New("iterations must not be negative")
	}
	if c.PlaceholderWidth < 1 || c.PlaceholderHeight < 1 {
		return errors.Errorf("invalid placeholder size %dx%d", c.PlaceholderWidth, c.PlaceholderHeight)
	}
	return nil
}
