package artifact

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/goguardml/pkg/classifiers/forest"
	"github.com/hed1ad/goguardml/pkg/detectors/iforest"
	"github.com/hed1ad/goguardml/pkg/errs"
	"github.com/hed1ad/goguardml/pkg/preprocess"
)

func fittedSet(t *testing.T) (Set, [][]float64) {
	t.Helper()
	rng := rand.New(rand.NewSource(1))

	X := make([][]float64, 60)
	labels := make([]string, 60)
	for i := range X {
		c := i % 2
		X[i] = []float64{float64(c)*3 + rng.NormFloat64(), rng.NormFloat64()}
		labels[i] = []string{"attack", "normal"}[c]
	}

	enc, err := preprocess.FitLabelEncoder(labels)
	require.NoError(t, err)
	y, err := enc.EncodeAll(labels)
	require.NoError(t, err)

	scaler, err := preprocess.FitStandardScaler(X)
	require.NoError(t, err)
	Z, err := scaler.Transform(X)
	require.NoError(t, err)

	rf := forest.New(forest.WithEstimators(5), forest.WithSeed(42))
	require.NoError(t, rf.Fit(Z, y, enc.Len()))

	det := iforest.New(iforest.WithTrees(10), iforest.WithSeed(42))
	require.NoError(t, det.Fit(Z))

	return Set{
		Classifier:      rf,
		Scaler:          scaler,
		LabelEncoder:    enc,
		AnomalyDetector: det,
		FeatureNames:    []string{"Flow Duration", "Total Fwd Packets"},
	}, Z
}

func TestWriteAndLoadEachUnit(t *testing.T) {
	set, Z := fittedSet(t)
	dir := filepath.Join(t.TempDir(), "model", "nested")

	paths, err := Write(dir, set)
	require.NoError(t, err)
	require.Len(t, paths, 5)
	for _, p := range paths {
		assert.FileExists(t, p)
	}

	t.Run("classifier", func(t *testing.T) {
		rf, err := LoadClassifier(dir)
		require.NoError(t, err)
		want, err := set.Classifier.Predict(Z)
		require.NoError(t, err)
		got, err := rf.Predict(Z)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("scaler", func(t *testing.T) {
		s, err := LoadScaler(dir)
		require.NoError(t, err)
		assert.Equal(t, set.Scaler.Mean(), s.Mean())
		assert.Equal(t, set.Scaler.Scale(), s.Scale())
	})

	t.Run("label encoder", func(t *testing.T) {
		e, err := LoadLabelEncoder(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{"attack", "normal"}, e.Classes())
	})

	t.Run("anomaly detector", func(t *testing.T) {
		d, err := LoadAnomalyDetector(dir)
		require.NoError(t, err)
		want, err := set.AnomalyDetector.Score(Z)
		require.NoError(t, err)
		got, err := d.Score(Z)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("feature names", func(t *testing.T) {
		names, err := LoadFeatureNames(dir)
		require.NoError(t, err)
		assert.Equal(t, set.FeatureNames, names)
	})
}

func TestLoadIndependentOfOtherUnits(t *testing.T) {
	set, _ := fittedSet(t)
	dir := t.TempDir()
	_, err := Write(dir, set)
	require.NoError(t, err)

	for _, name := range []string{ClassifierFile, ScalerFile, AnomalyDetectorFile, FeatureNamesFile} {
		require.NoError(t, os.Remove(filepath.Join(dir, name)))
	}

	e, err := LoadLabelEncoder(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, e.Len())

	_, err = LoadScaler(dir)
	assert.ErrorIs(t, err, errs.ErrSerialization)
}

func TestWriteOverwrites(t *testing.T) {
	set, _ := fittedSet(t)
	dir := t.TempDir()

	_, err := Write(dir, set)
	require.NoError(t, err)

	set.FeatureNames = []string{"a", "b"}
	_, err = Write(dir, set)
	require.NoError(t, err)

	names, err := LoadFeatureNames(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
}

func TestWriteErrors(t *testing.T) {
	set, _ := fittedSet(t)

	incomplete := set
	incomplete.AnomalyDetector = nil
	_, err := Write(t.TempDir(), incomplete)
	assert.ErrorIs(t, err, errs.ErrSerialization)

	noNames := set
	noNames.FeatureNames = nil
	_, err = Write(t.TempDir(), noNames)
	assert.ErrorIs(t, err, errs.ErrSerialization)

	// A regular file where the directory should be.
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	_, err = Write(filepath.Join(blocker, "model"), set)
	assert.ErrorIs(t, err, errs.ErrSerialization)
}

func TestLoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ClassifierFile), []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FeatureNamesFile), []byte("garbage"), 0o644))

	_, err := LoadClassifier(dir)
	assert.ErrorIs(t, err, errs.ErrSerialization)
	_, err = LoadFeatureNames(dir)
	assert.ErrorIs(t, err, errs.ErrSerialization)
}
