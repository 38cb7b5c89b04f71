package segforest

import (
	"github.com/pkg/errors"

	"github.com/sugarme/segforest/encoder"
)

// Config holds SegForest construction options.
type Config struct {
	// Encoder is the backbone name, see encoder.New.
	Encoder string
	// NumClasses is the number of output score channels.
	NumClasses int64
	// FusionChannels is the output width of every MFF module.
	FusionChannels int64
	// DecoderMidChannels is the output width of the MSMD transposed convolutions.
	DecoderMidChannels int64
}

// DefaultConfig returns a SegFormer-B0 backed, single-class configuration.
func DefaultConfig() Config {
	return Config{
		Encoder:            encoder.MiTB0,
		NumClasses:         1,
		FusionChannels:     32,
		DecoderMidChannels: 16,
	}
}

// Validate checks that all widths are positive.
func (c Config) Validate() error {
	switch {
	case c.NumClasses < 1:
		return errors.Errorf("invalid number of classes %d", c.NumClasses)
	case c.FusionChannels < 1:
		return errors.Errorf("invalid fusion channels %d", c.FusionChannels)
	case c.DecoderMidChannels < 1:
		return errors.Errorf("invalid decoder channels %d", c.DecoderMidChannels)
	}
	return nil
}
