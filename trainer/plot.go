package trainer

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot saves the loss and score curves of h to path. The format follows
// the file extension (png, svg, pdf...).
func (h *History) Plot(path string) error {
	if len(h.Epochs) == 0 {
		return errors.New("empty history")
	}

	p := plot.New()
	p.Title.Text = "SegForest training"
	p.X.Label.Text = "epoch"
	p.Legend.Top = true

	train := make(plotter.XYs, len(h.Epochs))
	valid := make(plotter.XYs, len(h.Epochs))
	dice := make(plotter.XYs, len(h.Epochs))
	iou := make(plotter.XYs, len(h.Epochs))
	for i, e := range h.Epochs {
		x := float64(e.Epoch)
		train[i] = plotter.XY{X: x, Y: e.TrainLoss}
		valid[i] = plotter.XY{X: x, Y: e.ValidLoss}
		dice[i] = plotter.XY{X: x, Y: e.Dice}
		iou[i] = plotter.XY{X: x, Y: e.IoU}
	}

	if err := plotutil.AddLinePoints(p,
		"train loss", train,
		"valid loss", valid,
		"dice", dice,
		"iou", iou,
	); err != nil {
		return errors.Wrap(err, "add curves")
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return errors.Wrapf(err, "save plot %q", path)
	}
	return nil
}
