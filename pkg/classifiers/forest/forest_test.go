package forest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs returns nClasses well separated gaussian clusters.
func blobs(rng *rand.Rand, perClass, nClasses, features int) ([][]float64, []int) {
	var X [][]float64
	var y []int
	for c := 0; c < nClasses; c++ {
		for i := 0; i < perClass; i++ {
			row := make([]float64, features)
			for j := range row {
				row[j] = float64(c)*5 + rng.NormFloat64()
			}
			X = append(X, row)
			y = append(y, c)
		}
	}
	return X, y
}

func accuracy(y, pred []int) float64 {
	ok := 0
	for i := range y {
		if y[i] == pred[i] {
			ok++
		}
	}
	return float64(ok) / float64(len(y))
}

func TestNewRandomForest(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want Params
	}{
		{
			name: "default configuration",
			want: DefaultParams(),
		},
		{
			name: "custom options",
			opts: []Option{WithEstimators(10), WithMaxDepth(4), WithMinSamplesSplit(5), WithMinSamplesLeaf(2), WithMaxFeatures(3), WithSeed(7)},
			want: Params{NEstimators: 10, MaxDepth: 4, MinSamplesSplit: 5, MinSamplesLeaf: 2, MaxFeatures: 3, Seed: 7},
		},
		{
			name: "params then override",
			opts: []Option{WithParams(Params{NEstimators: 3, MinSamplesSplit: 2, MinSamplesLeaf: 1}), WithSeed(9)},
			want: Params{NEstimators: 3, MinSamplesSplit: 2, MinSamplesLeaf: 1, Seed: 9},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rf := New(tt.opts...)
			assert.Equal(t, tt.want, rf.Params())
		})
	}
}

func TestFitErrors(t *testing.T) {
	tests := []struct {
		name     string
		rf       *RandomForest
		X        [][]float64
		y        []int
		nClasses int
	}{
		{"empty data", New(WithEstimators(2)), nil, nil, 2},
		{"length mismatch", New(WithEstimators(2)), [][]float64{{1}, {2}}, []int{0}, 2},
		{"ragged rows", New(WithEstimators(2)), [][]float64{{1, 2}, {2}}, []int{0, 1}, 2},
		{"label out of range", New(WithEstimators(2)), [][]float64{{1}, {2}}, []int{0, 2}, 2},
		{"no features", New(WithEstimators(2)), [][]float64{{}, {}}, []int{0, 1}, 2},
		{"invalid params", New(WithEstimators(0)), [][]float64{{1}, {2}}, []int{0, 1}, 2},
		{"invalid min split", New(WithMinSamplesSplit(1)), [][]float64{{1}, {2}}, []int{0, 1}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.rf.Fit(tt.X, tt.y, tt.nClasses))
		})
	}
}

func TestFitPredictSeparable(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	X, y := blobs(rng, 100, 3, 4)
	Xt, yt := blobs(rng, 30, 3, 4)

	rf := New(WithEstimators(15), WithSeed(42))
	require.NoError(t, rf.Fit(X, y, 3))
	assert.Equal(t, 3, rf.NumClasses())

	pred, err := rf.Predict(Xt)
	require.NoError(t, err)
	assert.Greater(t, accuracy(yt, pred), 0.95)

	probas, err := rf.PredictProba(Xt)
	require.NoError(t, err)
	for _, p := range probas {
		sum := 0.0
		for _, v := range p {
			sum += v
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
}

func TestMaxDepthLimitsTrees(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	X, y := blobs(rng, 50, 2, 3)
	// Noisy labels force deep trees when unrestricted.
	for i := range y {
		if rng.Float64() < 0.3 {
			y[i] = 1 - y[i]
		}
	}

	shallow := New(WithEstimators(5), WithMaxDepth(2), WithSeed(1))
	require.NoError(t, shallow.Fit(X, y, 2))
	assert.LessOrEqual(t, shallow.MaxDepth(), 2)

	deep := New(WithEstimators(5), WithSeed(1))
	require.NoError(t, deep.Fit(X, y, 2))
	assert.Greater(t, deep.MaxDepth(), 2)
}

func TestFitDeterministicAcrossWorkers(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	X, y := blobs(rng, 60, 3, 5)
	Xt, _ := blobs(rng, 20, 3, 5)

	one := New(WithEstimators(12), WithSeed(42), WithWorkers(1))
	require.NoError(t, one.Fit(X, y, 3))
	many := New(WithEstimators(12), WithSeed(42), WithWorkers(8))
	require.NoError(t, many.Fit(X, y, 3))

	a, err := one.PredictProba(Xt)
	require.NoError(t, err)
	b, err := many.PredictProba(Xt)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPredictErrors(t *testing.T) {
	_, err := New().Predict([][]float64{{1}})
	assert.Error(t, err, "predict before fit")

	rf := New(WithEstimators(2))
	require.NoError(t, rf.Fit([][]float64{{1, 1}, {2, 2}, {8, 8}, {9, 9}}, []int{0, 0, 1, 1}, 2))
	_, err = rf.Predict([][]float64{{1}})
	assert.Error(t, err, "width mismatch")
}

func TestConstantFeaturesYieldLeaf(t *testing.T) {
	X := [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	y := []int{0, 1, 0, 1}

	rf := New(WithEstimators(3), WithSeed(5))
	require.NoError(t, rf.Fit(X, y, 2))
	assert.Equal(t, 0, rf.MaxDepth())

	pred, err := rf.Predict([][]float64{{1, 1}})
	require.NoError(t, err)
	assert.Len(t, pred, 1)
}

func TestSaveLoad(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	X, y := blobs(rng, 40, 3, 4)
	Xt, _ := blobs(rng, 10, 3, 4)

	original := New(WithEstimators(8), WithMaxDepth(6), WithSeed(11))
	require.NoError(t, original.Fit(X, y, 3))

	want, err := original.PredictProba(Xt)
	require.NoError(t, err)

	data, err := original.MarshalBinary()
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	loaded := New()
	require.NoError(t, loaded.UnmarshalBinary(data))
	assert.Equal(t, original.Params(), loaded.Params())

	got, err := loaded.PredictProba(Xt)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = New().MarshalBinary()
	assert.Error(t, err)
	assert.Error(t, New().UnmarshalBinary([]byte("nope")))
}

func TestParamsString(t *testing.T) {
	assert.Equal(t, "n_estimators=100 max_depth=none min_samples_split=2 min_samples_leaf=1", DefaultParams().String())
	p := DefaultParams()
	p.MaxDepth = 8
	assert.Contains(t, p.String(), "max_depth=8")
}

func BenchmarkFit(b *testing.B) {
	X, y := blobs(rand.New(rand.NewSource(1)), 300, 3, 10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rf := New(WithEstimators(20))
		_ = rf.Fit(X, y, 3)
	}
}
