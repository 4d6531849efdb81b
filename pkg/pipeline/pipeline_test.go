package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/goguardml/pkg/artifact"
	"github.com/hed1ad/goguardml/pkg/config"
	"github.com/hed1ad/goguardml/pkg/errs"
	"github.com/hed1ad/goguardml/pkg/search"
)

type class struct {
	name   string
	count  int
	center float64
}

// writeTraffic writes a CSV of well separated Gaussian clusters, one per
// class, plus a text column and a column that is mostly empty.
func writeTraffic(t *testing.T, header string, classes []class) string {
	t.Helper()

	rng := rand.New(rand.NewSource(7))
	var b strings.Builder
	b.WriteString(header + "\n")

	row := 0
	for _, c := range classes {
		for range c.count {
			fmt.Fprintf(&b, "%.4f,%.4f,%.4f,%.4f,%.4f,tcp,",
				c.center+rng.NormFloat64(),
				2*c.center+rng.NormFloat64(),
				-c.center+rng.NormFloat64(),
				rng.Float64()*100,
				c.center*0.5+rng.NormFloat64()*0.5,
			)
			if row%5 == 0 {
				fmt.Fprintf(&b, "%d", row)
			}
			fmt.Fprintf(&b, ",%s\n", c.name)
			row++
		}
	}

	path := filepath.Join(t.TempDir(), "traffic.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

const trafficHeader = " Flow Duration, Fwd Packets,Bwd Packets,Noise,Mean Size,Proto,Sparse,Label"

var defaultClasses = []class{
	{"normal", 700, 0},
	{"dos", 200, 5},
	{"scan", 100, -5},
}

func testConfig(input, output string) *config.Config {
	cfg := config.Default()
	cfg.InputPath = input
	cfg.OutputDir = output
	cfg.Workers = 2
	cfg.Grid = search.Grid{
		NEstimators:     []int{10},
		MaxDepth:        []int{0, 6},
		MinSamplesSplit: []int{2},
		MinSamplesLeaf:  []int{1},
	}
	cfg.Anomaly.Trees = 25
	cfg.Anomaly.SampleSize = 128
	return cfg
}

func TestRun_EndToEnd(t *testing.T) {
	input := writeTraffic(t, trafficHeader, defaultClasses)
	output := filepath.Join(t.TempDir(), "model")
	cfg := testConfig(input, output)
	cfg.ReportPlot = filepath.Join(t.TempDir(), "scores.png")

	res, err := Run(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.FileExists(t, cfg.ReportPlot)
	assert.Equal(t, []string{"Flow Duration", "Fwd Packets", "Bwd Packets", "Noise", "Mean Size"}, res.FeatureNames)
	assert.Equal(t, []string{"Proto"}, res.Excluded)
	assert.Equal(t, []string{"Sparse"}, res.DroppedColumns)
	assert.Zero(t, res.DroppedRows)

	assert.Equal(t, 200, res.TestRows)
	assert.Equal(t, 800, res.TrainRows)
	assert.True(t, res.Stratified)

	// Majority baseline is 0.7.
	assert.Greater(t, res.Accuracy, 0.9)
	assert.Greater(t, res.CVScore, 0.9)
	require.NotNil(t, res.Report)
	require.Len(t, res.Report.Classes, 3)
	assert.Equal(t, "dos", res.Report.Classes[0].Name)
	assert.Equal(t, 40, res.Report.Classes[0].Support)
	assert.Equal(t, 140, res.Report.Classes[1].Support)
	assert.Equal(t, 20, res.Report.Classes[2].Support)

	assert.Equal(t, 700, res.AnomalyRows)

	require.Len(t, res.Artifacts, 5)
	for _, p := range res.Artifacts {
		assert.FileExists(t, p)
	}

	names, err := artifact.LoadFeatureNames(output)
	require.NoError(t, err)
	assert.Equal(t, res.FeatureNames, names)

	enc, err := artifact.LoadLabelEncoder(output)
	require.NoError(t, err)
	assert.Equal(t, []string{"dos", "normal", "scan"}, enc.Classes())

	scaler, err := artifact.LoadScaler(output)
	require.NoError(t, err)
	assert.Equal(t, 5, scaler.NumFeatures())

	clf, err := artifact.LoadClassifier(output)
	require.NoError(t, err)
	assert.Equal(t, res.BestParams.NEstimators, clf.Params().NEstimators)

	det, err := artifact.LoadAnomalyDetector(output)
	require.NoError(t, err)
	assert.InDelta(t, res.AnomalyThreshold, det.Threshold(), 1e-12)
}

func TestRun_Deterministic(t *testing.T) {
	input := writeTraffic(t, trafficHeader, defaultClasses)

	a, err := Run(context.Background(), testConfig(input, filepath.Join(t.TempDir(), "a")), zerolog.Nop())
	require.NoError(t, err)
	b, err := Run(context.Background(), testConfig(input, filepath.Join(t.TempDir(), "b")), zerolog.Nop())
	require.NoError(t, err)

	assert.Equal(t, a.BestParams, b.BestParams)
	assert.Equal(t, a.CVScore, b.CVScore)
	assert.Equal(t, a.Accuracy, b.Accuracy)
	assert.Equal(t, a.AnomalyThreshold, b.AnomalyThreshold)
	assert.NotEqual(t, a.RunID, b.RunID)
}

func TestRun_MissingLabelColumn(t *testing.T) {
	header := strings.Replace(trafficHeader, "Label", "Class", 1)
	input := writeTraffic(t, header, defaultClasses)
	output := filepath.Join(t.TempDir(), "model")

	_, err := Run(context.Background(), testConfig(input, output), zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrSchema), "got %v", err)

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_NoNormalRows(t *testing.T) {
	input := writeTraffic(t, trafficHeader, []class{
		{"dos", 60, 5},
		{"scan", 60, -5},
	})
	output := filepath.Join(t.TempDir(), "model")

	_, err := Run(context.Background(), testConfig(input, output), zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfiguration), "got %v", err)

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_CustomNormalLabel(t *testing.T) {
	input := writeTraffic(t, trafficHeader, []class{
		{"BENIGN", 90, 0},
		{"dos", 30, 5},
	})
	cfg := testConfig(input, filepath.Join(t.TempDir(), "model"))
	cfg.NormalLabel = "BENIGN"

	res, err := Run(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 90, res.AnomalyRows)
}

func TestRun_SingletonClass(t *testing.T) {
	input := writeTraffic(t, trafficHeader, []class{
		{"normal", 60, 0},
		{"dos", 39, 5},
		{"rare", 1, -5},
	})

	t.Run("strict", func(t *testing.T) {
		output := filepath.Join(t.TempDir(), "model")
		_, err := Run(context.Background(), testConfig(input, output), zerolog.Nop())
		require.Error(t, err)
		assert.True(t, errors.Is(err, errs.ErrDataQuality), "got %v", err)

		_, statErr := os.Stat(output)
		assert.True(t, os.IsNotExist(statErr))
	})

	t.Run("fallback", func(t *testing.T) {
		cfg := testConfig(input, filepath.Join(t.TempDir(), "model"))
		cfg.StratifyPolicy = "fallback"

		res, err := Run(context.Background(), cfg, zerolog.Nop())
		require.NoError(t, err)
		assert.False(t, res.Stratified)
		assert.Equal(t, 20, res.TestRows)
		assert.Len(t, res.Artifacts, 5)
	})
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.CVFolds = 1

	_, err := Run(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrConfiguration))
}

func TestRun_Canceled(t *testing.T) {
	input := writeTraffic(t, trafficHeader, defaultClasses)
	output := filepath.Join(t.TempDir(), "model")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, testConfig(input, output), zerolog.Nop())
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
}
