package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exampleArgs(name string) []string {
	dir := filepath.Join("..", "..", "examples", name)
	return []string{
		"--input", filepath.Join(dir, "input.yaml"),
		"--gt", filepath.Join(dir, "gt.yaml"),
		"--diff", filepath.Join(dir, "target.yaml"),
	}
}

func readCSV(t *testing.T, filePath string) [][]string {
	t.Helper()
	f, err := os.Open(filePath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestHelp(t *testing.T) {
	var stdout bytes.Buffer
	assert.Equal(t, 0, run([]string{"--help"}, &stdout))
	assert.True(t, strings.HasPrefix(stdout.String(), "Usage: dspfit --input <file> --gt <file> --diff <file>"))
	assert.Contains(t, stdout.String(), "-lossfunction")
	assert.Contains(t, stdout.String(), "-learningrate")
}

func TestMissingArguments(t *testing.T) {
	var stdout bytes.Buffer
	assert.Equal(t, 1, run([]string{"--input", "in.yaml"}, &stdout))
	assert.Contains(t, stdout.String(), "Please provide input, ground truth, and differentiable transform files.")
	assert.Contains(t, stdout.String(), "Usage:")

	stdout.Reset()
	assert.Equal(t, 1, run(append(exampleArgs("gain"), "-lr", "fast"), &stdout))
}

func TestFitGain(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "loss.csv")
	plotPath := filepath.Join(dir, "loss.png")
	pointsPath := filepath.Join(dir, "points.json")
	var stdout bytes.Buffer
	args := append(exampleArgs("gain"),
		"--csv", csvPath, "--plot", plotPath, "--plot_points", pointsPath, "-lf", "l2", "--learningrate", "0.1")
	require.Equal(t, 0, run(args, &stdout))

	out := stdout.String()
	assert.True(t, strings.HasPrefix(out, "Learning rate: 0.1\nSensitivity: 1e-07\n"))
	assert.Contains(t, out, "Learnable parameter: /target/gain, value: 0.2")
	assert.Contains(t, out, "Sig GT: ")
	assert.Contains(t, out, "ds/dp: ")
	assert.Contains(t, out, "converged")

	records := readCSV(t, csvPath)
	assert.Equal(t, []string{"iteration", "loss", "gradient_gain", "gain"}, records[0])
	assert.Greater(t, len(records), 1+20)
	assert.Less(t, len(records), 1+1000)

	for _, filePath := range []string{plotPath, filepath.Join(dir, "loss_parameters.png"), pointsPath} {
		_, err := os.Stat(filePath)
		assert.NoErrorf(t, err, "file %q should have been created", filePath)
	}
}

func TestFitSettings(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "loss.csv")
	var stdout bytes.Buffer
	args := append(exampleArgs("lowpass"),
		"--csv", csvPath, "--trace=false", "--set", "iterations=5;block_size=8",
		"--lossfunction", "l3") // Unknown loss function falls back to the default.
	require.Equal(t, 0, run(args, &stdout))
	out := stdout.String()
	assert.Contains(t, out, "Learnable parameter: /target/pole, value: 0.2")
	assert.Contains(t, out, "Learnable parameter: /target/gain, value: 1")
	assert.NotContains(t, out, "Sig GT: ")

	records := readCSV(t, csvPath)
	assert.Len(t, records[0], 2+2*2)
	// Either converged early or exhausted the 5 blocks of 8 frames.
	assert.LessOrEqual(t, len(records), 1+5*8)
	assert.Equal(t, "1", records[1][0])
}

func TestFitProgress(t *testing.T) {
	var stdout bytes.Buffer
	args := append(exampleArgs("gain"), "--csv", "", "--progress")
	require.Equal(t, 0, run(args, &stdout))
	out := stdout.String()
	assert.Contains(t, out, "Learnable parameter: /target/gain, value: 0.2")
	assert.Contains(t, out, "Stable frames")
	// The per-frame trace is replaced by the progress bar.
	assert.NotContains(t, out, "Sig GT: ")
}

func TestFitErrors(t *testing.T) {
	var stdout bytes.Buffer
	args := append(exampleArgs("gain"), "--csv", "", "--set", "unknown=1")
	assert.Equal(t, 1, run(args, &stdout))

	stdout.Reset()
	args = []string{"--input", "missing.yaml", "--gt", "missing.yaml", "--diff", "missing.yaml", "--csv", ""}
	assert.Equal(t, 1, run(args, &stdout))

	stdout.Reset()
	args = append(exampleArgs("gain"), "--csv", "", "--backend", "nonexistent")
	assert.Equal(t, 1, run(args, &stdout))
}

func TestParametersPlotPath(t *testing.T) {
	assert.Equal(t, "out/loss_parameters.png", parametersPlotPath("out/loss.png"))
	assert.Equal(t, "loss_parameters", parametersPlotPath("loss"))
}
