package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/goguardml/pkg/artifact"
	"github.com/hed1ad/goguardml/pkg/config"
)

func TestBindFlags(t *testing.T) {
	v := config.NewViper()
	f := trainCmd.Flags()
	require.NoError(t, bindFlags(v, f))

	// Unchanged flags leave defaults in place.
	assert.Equal(t, "model", v.GetString("output_dir"))

	require.NoError(t, f.Set("output", "custom"))
	require.NoError(t, f.Set("seed", "11"))
	t.Cleanup(func() {
		_ = f.Set("output", "model")
		_ = f.Set("seed", "42")
	})

	cfg, err := config.Read(v, "")
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.OutputDir)
	assert.Equal(t, int64(11), cfg.RandomSeed)
}

func TestTrainCommand(t *testing.T) {
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("Duration,Bytes,Label\n")
	for i := range 120 {
		label, base := "normal", 10.0
		if i%3 == 0 {
			label, base = "attack", 100.0
		}
		fmt.Fprintf(&b, "%.1f,%.1f,%s\n", base+float64(i%7), 2*base+float64(i%5), label)
	}
	input := filepath.Join(dir, "train.csv")
	require.NoError(t, os.WriteFile(input, []byte(b.String()), 0o644))

	cfgPath := filepath.Join(dir, "train.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
grid:
  n_estimators: [5]
anomaly:
  trees: 10
  sample_size: 32
`), 0o644))

	output := filepath.Join(dir, "model")
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{
		"--log", "test",
		"--config", cfgPath,
		"train",
		"--input", input,
		"--output", output,
		"--workers", "1",
	})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, stdout.String(), "Test accuracy")
	assert.Contains(t, stdout.String(), "attack")
	assert.FileExists(t, filepath.Join(output, artifact.ClassifierFile))
	assert.FileExists(t, filepath.Join(output, artifact.FeatureNamesFile))
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("GOGUARDML_NORMAL_LABEL", "BENIGN")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"--log", "test", "--config", "", "config"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, stdout.String(), "normal_label: BENIGN")
	assert.Contains(t, stdout.String(), "label_column: Label")
}

func TestUnknownLogMode(t *testing.T) {
	rootCmd.SetArgs([]string{"--log", "prd", "config"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		logMode = "pretty"
	})

	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown log mode "prd"`)
}
