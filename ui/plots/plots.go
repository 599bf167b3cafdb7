// Package plots collects plot points during a fit, and saves them as JSON (one point per line)
// or as PNG images.
package plots

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"sort"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/dspfit/pkg/fit"
	"github.com/gomlx/dspfit/pkg/support/fsutil"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Metric types.
const (
	MetricTypeLoss      = "loss"
	MetricTypeParameter = "parameter"
)

// Point represents a plot point. It is used to save/load plots.
type Point struct {
	// RunID identifies the fitting run that generated the point.
	RunID string

	// MetricName of this point: "Loss" or the parameter address.
	MetricName string

	// Short name
	Short string

	// MetricType is MetricTypeLoss or MetricTypeParameter.
	// It's used in plotting to aggregate similar metric types in the same plot.
	MetricType string

	// Step is the number of frames processed when the point was collected.
	// Usually, this is an int value, stored as a float64.
	Step float64

	// Value is the metric captured.
	Value float64
}

// Collector of points during a fit.Loop.
type Collector struct {
	// RunID assigned to all collected points.
	RunID string

	rawPoints []Point
	lastStep  float64
}

// AttachCollector attaches to the loop a collector of the loss and the values of the parameters,
// sampled n times during the loop, plus at the end.
func AttachCollector(loop *fit.Loop, n int) *Collector {
	c := &Collector{RunID: uuid.NewString(), lastStep: -1}
	fit.NTimesDuringLoop(loop, n, "plots.Collector", 0, func(loop *fit.Loop, _ *fit.Frame) error {
		c.collect(loop)
		return nil
	})
	loop.OnEnd("plots.Collector", 0, func(loop *fit.Loop) error {
		c.collect(loop)
		return nil
	})
	klog.V(1).Infof("plots: collecting points for run %s", c.RunID)
	return c
}

func (c *Collector) collect(loop *fit.Loop) {
	step := float64(loop.FramesProcessed)
	if step == c.lastStep {
		return
	}
	c.lastStep = step
	c.rawPoints = append(c.rawPoints, Point{
		RunID:      c.RunID,
		MetricName: "Loss",
		Short:      "loss",
		MetricType: MetricTypeLoss,
		Step:       step,
		Value:      loop.Loss,
	})
	for _, p := range loop.Registry.All() {
		c.rawPoints = append(c.rawPoints, Point{
			RunID:      c.RunID,
			MetricName: p.Address,
			Short:      p.Label(),
			MetricType: MetricTypeParameter,
			Step:       step,
			Value:      p.Value,
		})
	}
}

// RawPoints returns the points collected so far, in the order they were collected.
func (c *Collector) RawPoints() []Point {
	return c.rawPoints
}

// Points returns the points collected so far, organized by step.
func (c *Collector) Points() Points {
	return NewPoints(c.rawPoints)
}

// Save the collected points to filePath, appending to the file if it already exists.
func (c *Collector) Save(filePath string) error {
	filePath, err := fsutil.ReplaceTildeInDir(filePath)
	if err != nil {
		return err
	}
	pointWriter, errReport := CreatePointsWriter(filePath)
	for _, p := range c.rawPoints {
		pointWriter <- p
	}
	close(pointWriter)
	return <-errReport
}

// LoadPoints parses all plot points saved in the given file.
func LoadPoints(filePath string) ([]Point, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read Plots file %q", filePath)
	}
	defer func() { _ = f.Close() }()

	// Read previously stored points.
	dec := json.NewDecoder(f)
	var points []Point
	for {
		var point Point
		err := dec.Decode(&point)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "error while decoding plots file %q", filePath)
		}
		points = append(points, point)
	}
	return points, nil
}

// CreatePointsWriter creates a channel to write Point to the given file.
// It creates an errReport channel to report an error (or nil) back at the very end.
// If any error occurs, it stops writing, and will report the error back once pointWriter is closed.
func CreatePointsWriter(filePath string) (pointWriter chan<- Point, errReport <-chan error) {
	pointChan := make(chan Point, 100)
	pointWriter = pointChan
	errChan := make(chan error, 1)
	errReport = errChan
	go func() {
		// Create/append file with upcoming points.
		f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
		if err != nil {
			err = errors.Wrapf(err, "failed to open Plots file %q for append", filePath)
			klog.Errorf("Error: %v", err)
		}
		enc := json.NewEncoder(f)
		for point := range pointChan {
			if err == nil {
				err = enc.Encode(point)
				if err != nil {
					err = errors.Wrapf(err, "failed to encode point %v", point)
					klog.Errorf("Error: %v", err)
				}
			}
		}
		if f != nil {
			if err == nil {
				err = f.Close()
			} else {
				_ = f.Close()
			}
		}
		errChan <- err
	}()
	return
}

// Points is a collection of Point objects organized by their Step value.
// It's a `map[float64][]Point` with several utility methods.
type Points map[float64][]Point

// NewPoints create a Points object from a collection of individual `Point`.
//
// See LoadPoints if you want to read `rawPoints` from a file.
func NewPoints(rawPoints []Point) (points Points) {
	points = make(map[float64][]Point)
	for _, p := range rawPoints {
		points[p.Step] = append(points[p.Step], p)
	}
	return points
}

// Map executes the given function on all individual points, in `Step` order.
// Note that if `p.Step` change, it is not re-index.
func (points Points) Map(fn func(p *Point)) {
	for _, step := range slices.Sorted(maps.Keys(points)) {
		stepPoints := points[step]
		for ii := range stepPoints {
			fn(&stepPoints[ii])
		}
	}
}

// Extract converts the [Points] structure back to a list of individual points.
// The output is sorted by [Point.Step].
func (points Points) Extract() (rawPoints []Point) {
	points.Map(func(p *Point) {
		rawPoints = append(rawPoints, *p)
	})
	return
}

// MetricsNames return the list of metrics names in the whole collection, sorted alphabetically by their type and
// then by their name.
func (points Points) MetricsNames() []string {
	nameToType := make(map[string]string)
	points.Map(func(p *Point) {
		nameToType[p.MetricName] = p.MetricType
	})
	names := slices.Sorted(maps.Keys(nameToType))
	sort.SliceStable(names, func(i, j int) bool {
		return nameToType[names[i]] < nameToType[names[j]]
	})
	return names
}

// TableForMetrics returns a table with the first column being the `Step` followed
// by the columns given by the `metrics` names.
// If `metrics` is empty, it will include all metrics in the table.
func (points Points) TableForMetrics(metrics ...string) string {
	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true).Reverse(true)
	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == lgtable.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	// Headers from metric names.
	if len(metrics) == 0 {
		metrics = points.MetricsNames()
	}
	headers := []string{"Frame"}
	headers = append(headers, metrics...)
	table.Headers(headers...)

	// Add rows:
	for _, step := range slices.Sorted(maps.Keys(points)) {
		row := make([]string, 1+len(metrics))
		row[0] = fmt.Sprintf("%.0f", step)
		for _, pt := range points[step] {
			idx := slices.Index(metrics, pt.MetricName)
			if idx != -1 {
				row[idx+1] = fmt.Sprintf("%g", pt.Value)
			}
		}
		table.Row(row...)
	}
	return table.String()
}

func (points Points) String() string {
	return points.TableForMetrics()
}
