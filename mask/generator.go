package mask

import (
	"image"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gonum.org/v1/gonum/mat"

	"github.com/sugarme/segforest/dataset"
	"github.com/sugarme/segforest/logging"
)

// Generator turns RGB rasters into binary masks.
type Generator struct {
	config Config
	logger logging.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(config Config, logger logging.Logger) (*Generator, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid mask config")
	}
	return &Generator{config: config, logger: logger}, nil
}

// ToHSV converts 8-bit RGB to HSV in OpenCV's 8-bit scale.
func ToHSV(r, g, b uint8) HSV {
	c := colorful.Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
	h, s, v := c.Hsv()
	return HSV{
		H: math.Round(h / 2),
		S: math.Round(s * 255),
		V: math.Round(v * 255),
	}
}

func (c Config) inRange(hsv HSV) bool {
	return hsv.H >= c.Lower.H && hsv.H <= c.Upper.H &&
		hsv.S >= c.Lower.S && hsv.S <= c.Upper.S &&
		hsv.V >= c.Lower.V && hsv.V <= c.Upper.V
}

// Threshold returns a matrix holding 1 where the pixel colour falls in the
// configured range.
func (g *Generator) Threshold(img image.Image) (*mat.Dense, error) {
	src := imaging.Clone(img)
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if w == 0 || h == 0 {
		return nil, errors.New("empty image")
	}

	m := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*src.Stride + 4*x
			if g.config.inRange(ToHSV(src.Pix[i], src.Pix[i+1], src.Pix[i+2])) {
				m.Set(y, x, 1)
			}
		}
	}

	return m, nil
}

// Generate thresholds img and cleans the result with an opening then a
// closing. Mask pixels are 255 (in range) or 0.
func (g *Generator) Generate(img image.Image) (*image.Gray, error) {
	m, err := g.Threshold(img)
	if err != nil {
		return nil, err
	}
	if m, err = Open(m, g.config.KernelSize, g.config.OpenIterations); err != nil {
		return nil, err
	}
	if m, err = Close(m, g.config.KernelSize, g.config.CloseIterations); err != nil {
		return nil, err
	}

	rows, cols := m.Dims()
	out := image.NewGray(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			if m.At(y, x) > 0 {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}

	return out, nil
}

// Placeholder returns the black mask written in place of a failed one.
func (g *Generator) Placeholder() *image.Gray {
	return image.NewGray(image.Rect(0, 0, g.config.PlaceholderWidth, g.config.PlaceholderHeight))
}

// GenerateFile writes the mask of imagePath to maskPath. If the image can
// not be read or processed a placeholder mask is written instead and
// placeholder is true; err is only set when nothing could be written.
func (g *Generator) GenerateFile(imagePath, maskPath string) (placeholder bool, err error) {
	out, genErr := g.generateFile(imagePath)
	if genErr == nil {
		if genErr = imaging.Save(out, maskPath); genErr == nil {
			g.logger.Debugw("mask saved", "image", imagePath, "mask", maskPath)
			return false, nil
		}
	}

	g.logger.Warnw("mask generation failed, writing placeholder", "image", imagePath, "error", genErr)
	if err := imaging.Save(g.Placeholder(), maskPath); err != nil {
		return true, multierr.Combine(genErr, errors.Wrapf(err, "save placeholder mask %q", maskPath))
	}
	return true, nil
}

func (g *Generator) generateFile(imagePath string) (*image.Gray, error) {
	img, err := dataset.ReadImage(imagePath)
	if err != nil {
		return nil, err
	}
	return g.Generate(img)
}

// Summary counts the outcome of ProcessDir.
type Summary struct {
	Processed    int
	Placeholders int
}

// ProcessDir writes `<stem>_mask.png` into maskDir for every .png in
// imageDir.
func (g *Generator) ProcessDir(imageDir, maskDir string) (Summary, error) {
	var summary Summary
	if err := os.MkdirAll(maskDir, 0o755); err != nil {
		return summary, errors.Wrapf(err, "create mask dir %q", maskDir)
	}
	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return summary, errors.Wrapf(err, "read image dir %q", imageDir)
	}

	var errs error
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.ToLower(filepath.Ext(name)) != ".png" {
			continue
		}
		g.logger.Infow("generating mask", "image", name)
		placeholder, err := g.GenerateFile(filepath.Join(imageDir, name), filepath.Join(maskDir, dataset.MaskName(name)))
		errs = multierr.Append(errs, err)
		summary.Processed++
		if placeholder {
			summary.Placeholders++
		}
	}

	return summary, errs
}
