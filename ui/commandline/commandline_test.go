// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"bytes"
	"flag"
	"os"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gomlx/dspfit/pkg/fit"
	"github.com/gomlx/dspfit/pkg/support/params"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestParams() *params.Params {
	p := params.New()
	p.SetParam("x", 11.0)
	p.SetParam("y", 7)
	p.SetParam("z", false)
	p.SetParam("s", "foo")
	return p
}

func TestParseSettings(t *testing.T) {
	p := createTestParams()

	paramsSet, err := ParseSettings(p, "x=13;z=true;y=1_000;s=bar;")
	require.NoError(t, err)
	require.Equal(t, []string{"x", "z", "y", "s"}, paramsSet)
	assert.Equal(t, 13.0, params.MustGetParam[float64](p, "x"))
	assert.Equal(t, 1000, params.MustGetParam[int](p, "y"))
	assert.True(t, params.MustGetParam[bool](p, "z"))
	assert.Equal(t, "bar", params.MustGetParam[string](p, "s"))

	// Parameter "q" is unknown.
	_, err = ParseSettings(p, "q=3")
	require.Error(t, err)

	// Cannot set the wrong type of value.
	_, err = ParseSettings(p, "y=3.14")
	require.Error(t, err)

	// Missing value.
	_, err = ParseSettings(p, "y")
	require.Error(t, err)

	assert.Equal(t, "\t\"x\": (float64) 13\n\t\"y\": (int) 1000", SprintModifiedSettings(p, []string{"y", "x", "y"}))
	assert.Contains(t, SprintSettings(p), "\t\"s\": (string) bar")
}

func TestParseSettingsFromFile(t *testing.T) {
	p := fit.DefaultParams()
	filePath := filepath.Join(t.TempDir(), "settings.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("# Faster fit.\nlearning_rate=0.5\niterations=10;block_size=4\n"), 0o644))
	paramsSet, err := ParseSettings(p, "loss_function=l1;file:"+filePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"loss_function", "learning_rate", "iterations", "block_size"}, paramsSet)

	config, err := fit.ConfigFromParams(p)
	require.NoError(t, err)
	assert.Equal(t, fit.LossL1, config.LossFunction)
	assert.Equal(t, 0.5, config.LearningRate)
	assert.Equal(t, 10, config.Iterations)
	assert.Equal(t, 4, config.BlockSize)

	_, err = ParseSettings(p, "file:"+filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestCreateSettingsFlag(t *testing.T) {
	p := fit.DefaultParams()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	settings := CreateSettingsFlag(p, fs, "")
	require.NoError(t, fs.Parse([]string{"-set", "epsilon=1e-3"}))
	assert.Equal(t, "epsilon=1e-3", *settings)
	assert.Contains(t, fs.Lookup("set").Usage, `"epsilon": default value is 1e-07`)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.50s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "12.35ms", FormatDuration(12345678*time.Nanosecond))
	assert.Equal(t, "1.50µs", FormatDuration(1500*time.Nanosecond))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
	assert.Equal(t, "2,000 frames/s", FormatRate(1000, 500*time.Millisecond))
	assert.Equal(t, "-", FormatRate(1000, 0))
}

// constGraph always renders the same block: its loss is never under the threshold.
type constGraph struct{}

func (constGraph) NumChannels() int                   { return 3 }
func (constGraph) Render() [][]float64                { return [][]float64{{0}, {1}, {1}} }
func (constGraph) SetParameter(string, float64) error { return nil }

func TestProgressBarAndSummary(t *testing.T) {
	r := fit.NewRegistry()
	require.NoError(t, r.Add("/target/gain", 1))
	config := fit.DefaultConfig()
	config.Iterations = 50
	loop, err := fit.NewLoop(constGraph{}, r, config)
	require.NoError(t, err)

	var buf bytes.Buffer
	Output = &buf
	defer func() { Output = os.Stdout }()
	AttachProgressBar(loop)
	state, err := loop.Run()
	require.NoError(t, err)
	assert.Equal(t, fit.StateExhausted, state)
	assert.Contains(t, buf.String(), "Stable frames")

	buf.Reset()
	require.NoError(t, ReportSummary(&buf, loop))
	summary := buf.String()
	assert.Contains(t, summary, "exhausted")
	assert.Contains(t, summary, "/target/gain")
	assert.Contains(t, summary, "50 of 50")
}

// failingGraph renders nanAfter blocks with a large loss, and NaN afterwards.
type failingGraph struct {
	nanAfter, rendered int
}

func (g *failingGraph) NumChannels() int { return 3 }
func (g *failingGraph) Render() [][]float64 {
	g.rendered++
	if g.rendered > g.nanAfter {
		return [][]float64{{0}, {math.NaN()}, {1}}
	}
	return [][]float64{{0}, {1}, {1}}
}
func (g *failingGraph) SetParameter(string, float64) error { return nil }

// TestProgressBarManyBlocks is meant to be run with -race: the drawing goroutine must only use the
// snapshots it receives, while the loop keeps rendering blocks.
func TestProgressBarManyBlocks(t *testing.T) {
	r := fit.NewRegistry()
	require.NoError(t, r.Add("/target/gain", 1))
	config := fit.DefaultConfig()
	config.Iterations = 20_000
	loop, err := fit.NewLoop(constGraph{}, r, config)
	require.NoError(t, err)

	var buf bytes.Buffer
	Output = &buf
	defer func() { Output = os.Stdout }()
	stop := AttachProgressBar(loop, func() (string, string) { return "Run", "many blocks" })
	defer stop()
	state, err := loop.Run()
	require.NoError(t, err)
	assert.Equal(t, fit.StateExhausted, state)
	out := buf.String()
	assert.Contains(t, out, "Median render duration")
	assert.Contains(t, out, "many blocks")
	assert.Contains(t, out, "20,000 of 20,000")
}

func TestProgressBarStopAfterFailure(t *testing.T) {
	r := fit.NewRegistry()
	require.NoError(t, r.Add("/target/gain", 1))
	config := fit.DefaultConfig()
	config.Iterations = 50
	loop, err := fit.NewLoop(&failingGraph{nanAfter: 30}, r, config)
	require.NoError(t, err)

	var buf bytes.Buffer
	Output = &buf
	defer func() { Output = os.Stdout }()
	stop := AttachProgressBar(loop)
	_, err = loop.Run()
	require.ErrorContains(t, err, "NaN")

	// End hooks were skipped: stop must end the drawing goroutine and restore the cursor.
	done := make(chan struct{})
	go func() {
		stop()
		stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("progress bar goroutine did not stop")
	}
	assert.Contains(t, buf.String(), "Stable frames")
	assert.True(t, strings.HasSuffix(buf.String(), termenv.CSI+termenv.ShowCursorSeq))
}

func TestHumanizeInt(t *testing.T) {
	assert.Equal(t, "1,234,567", humanizeInt(1234567))
	assert.Equal(t, "12", humanizeInt(uint8(12)))
}
