package plots

import (
	"github.com/gomlx/dspfit/pkg/support/fsutil"
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Size of the saved images.
var (
	ImageWidth  = 12 * vg.Inch
	ImageHeight = 6 * vg.Inch
)

// SaveImage plots the points of the given metric type, one line per metric name, and saves it to filePath.
// The image format is taken from the file extension (e.g.: ".png", ".svg").
func SaveImage(filePath, title, metricType string, points Points) error {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return err
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "frame"
	p.Y.Label.Text = metricType
	p.Add(plotter.NewGrid())

	lineIdx := 0
	for _, name := range points.MetricsNames() {
		var xys plotter.XYs
		points.Map(func(pt *Point) {
			if pt.MetricName == name && pt.MetricType == metricType {
				xys = append(xys, plotter.XY{X: pt.Step, Y: pt.Value})
			}
		})
		if len(xys) == 0 {
			continue
		}
		line, err := plotter.NewLine(xys)
		if err != nil {
			return errors.Wrapf(err, "failed to plot %q", name)
		}
		line.Color = plotutil.Color(lineIdx)
		line.Dashes = plotutil.Dashes(lineIdx)
		p.Add(line)
		p.Legend.Add(name, line)
		lineIdx++
	}
	if lineIdx == 0 {
		return errors.Errorf("no points of type %q to plot", metricType)
	}
	if err = p.Save(ImageWidth, ImageHeight, filePath); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", filePath)
	}
	return nil
}
