package commandline

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/gomlx/dspfit/pkg/fit"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"
)

// ExtraMetricFn is any function that will give extra values to display along the progress bar.
// It is called at each time the progress bar is updated, from the goroutine running the fit.Loop,
// and it should return a name and the current value when it is called.
type ExtraMetricFn func() (name, value string)

// RefreshPeriod is the time between terminal updates.
var RefreshPeriod = time.Second * 3

// Output where the progress bar and the summary are written to.
var Output io.Writer = os.Stdout

// progressBar holds a progressbar being displayed.
type progressBar struct {
	numFrames         int
	lastFrameReported int
	bar               *progressbar.ProgressBar
	totalAmount       int
	out               io.Writer

	// lipgloss-based rich and asynchronous display for the command-line.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressBarUpdate
	asyncUpdatesDone sync.WaitGroup
	stopOnce         sync.Once
	stopped          bool

	extraMetricFns []ExtraMetricFn
}

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

func (pBar *progressBar) onStart(loop *fit.Loop) error {
	pBar.lastFrameReported = loop.FramesProcessed
	pBar.numFrames = loop.Config.MaxFrames()
	pBar.bar = progressbar.NewOptions(pBar.numFrames,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar.out),
	)
	return nil
}

// onFrame runs in the loop goroutine: everything displayed is read from the loop here, and sent
// as a snapshot to the drawing goroutine.
func (pBar *progressBar) onFrame(loop *fit.Loop, _ *fit.Frame) error {
	if pBar.stopped || pBar.bar.IsFinished() {
		return nil
	}

	// Check whether there is something to update.
	amount := loop.FramesProcessed - pBar.lastFrameReported
	if amount <= 0 {
		return nil
	}

	// Create and enqueue an update to be asynchronously printed.
	update := progressBarUpdate{
		amount: amount,
		rows:   make([][2]string, 0, 5+loop.Registry.Len()+len(pBar.extraMetricFns)),
	}
	update.rows = append(update.rows,
		[2]string{"Frames", fmt.Sprintf("%s of %s", humanizeInt(loop.FramesProcessed), humanizeInt(pBar.numFrames))},
		[2]string{"Iteration", fmt.Sprintf("%d of %d", loop.Iteration, loop.Config.Iterations)},
		[2]string{"Loss", fmt.Sprintf("%.6g", loop.Loss)},
		[2]string{"Stable frames", fmt.Sprintf("%d of %d", loop.StableFrames, loop.Config.Patience+1)},
		[2]string{"Median render duration", FormatDuration(loop.MedianRenderDuration())})
	for _, p := range loop.Registry.All() {
		update.rows = append(update.rows, [2]string{p.Label(), fmt.Sprintf("%.6g (grad %.3g)", p.Value, p.Gradient)})
	}
	for _, extraMetric := range pBar.extraMetricFns {
		name, value := extraMetric()
		update.rows = append(update.rows, [2]string{name, value})
	}
	pBar.updates <- update

	// Add the number of frames run since last time.
	pBar.totalAmount += amount
	pBar.lastFrameReported = loop.FramesProcessed
	return nil
}

func (pBar *progressBar) onEnd(loop *fit.Loop) error {
	pBar.stop()
	if loop.State == fit.StateConverged && !pBar.bar.IsFinished() {
		_ = pBar.bar.Finish()
	}
	_, err := fmt.Fprintln(pBar.out)
	return err
}

// stop closes the updates channel, waits for the pending updates to be drawn and restores the cursor.
// It can be called more than once.
func (pBar *progressBar) stop() {
	pBar.stopOnce.Do(func() {
		pBar.stopped = true
		close(pBar.updates)
		pBar.asyncUpdatesDone.Wait()
		if pBar.termenv != nil {
			pBar.termenv.ShowCursor()
		}
	})
}

// ProgressBarName is the name of the hooks registered by AttachProgressBar.
const ProgressBarName = "dspfit.commandline.progressBar"

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// progressBarUpdate is a snapshot of the loop: name and value of each row of the stats table.
type progressBarUpdate struct {
	amount int
	rows   [][2]string
}

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// newStatsTable returns an empty lipgloss table in the style used by the package.
func newStatsTable() *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
}

// AttachProgressBar creates a commandline progress bar and attaches it to the Loop, so that
// when the Loop is run, it will display a progress bar with the frames processed, the loss and
// the current value of the parameters.
//
// The display is drawn by a goroutine, stopped when the loop ends. Since the end hooks are not run
// when the loop fails, the returned stop function must be called (usually deferred) after Loop.Run
// returns: it is a no-op if the loop already ended.
//
// Optionally, one can provide extraMetrics: functions that are called at every update of
// the progress bar and should return a name (title) and a value to be included in the
// updated print-out.
func AttachProgressBar(loop *fit.Loop, extraMetrics ...ExtraMetricFn) (stop func()) {
	pBar := &progressBar{
		out:            Output,
		extraMetricFns: extraMetrics,
	}
	pBar.isFirstOutput = true
	pBar.termenv = termenv.NewOutput(pBar.out)
	pBar.statsStyle = lipgloss.NewStyle().PaddingLeft(8)
	pBar.statsTable = newStatsTable()
	pBar.updates = make(chan progressBarUpdate, 100) // Large buffer so things are not blocked.
	pBar.asyncUpdatesDone.Add(1)
	go pBar.draw(pBar.updates)
	loop.OnStart(ProgressBarName, 0, pBar.onStart)
	// Run at most 1000 times during the loop or at least every 3 seconds.
	fit.NTimesDuringLoop(loop, 1000, ProgressBarName, 0, pBar.onFrame)
	fit.PeriodicCallback(loop, RefreshPeriod, ProgressBarName, 0, pBar.onFrame)
	loop.OnEnd(ProgressBarName, 0, pBar.onEnd)
	return pBar.stop
}

// draw the updates received until the channel is closed. It only uses the snapshots in the updates.
func (pBar *progressBar) draw(updates <-chan progressBarUpdate) {
	defer pBar.asyncUpdatesDone.Done()
	// Asynchronously draw updates: fitting is usually much faster than the terminal.
	for update := range updates {
		// Exhaust the updates in the buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		// Create the table to be printed.
		pBar.statsTable.Data(lgtable.NewStringData())
		for _, row := range update.rows {
			pBar.statsTable.Row(row[0], row[1])
		}

		// For command-line, we clear the previous lines that will be overwritten:
		// the table rows, its top and bottom borders and the progress bar line.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			numLinesToBackup := len(update.rows) + 2 + 1
			pBar.termenv.CursorPrevLine(numLinesToBackup)
		}
		pBar.isFirstOutput = false

		// Print update.
		_, _ = fmt.Fprintln(pBar.out, pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount) // Prints progress bar line.
		_, _ = fmt.Fprintln(pBar.out)
		pBar.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}
