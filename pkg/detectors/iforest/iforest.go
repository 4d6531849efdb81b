// Package iforest implements the Isolation Forest algorithm for anomaly detection.
package iforest

import (
	"bytes"
	"encoding/gob"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/hed1ad/goguardml/pkg/detectors"
)

// IsolationForest implements unsupervised anomaly detection using isolation trees.
type IsolationForest struct {
	mu sync.RWMutex

	// Configuration
	nTrees        int
	sampleSize    int
	contamination float64
	seed          int64
	maxDepth      int

	// Trained model
	trees     []*iTree
	nFeatures int
	trained   bool

	// Statistics from training
	avgPathLength float64
	threshold     float64
	trainSamples  int
}

// iTree represents a single isolation tree.
type iTree struct {
	Root *node
}

// node is a node in the isolation tree. Fields are exported for gob.
type node struct {
	// Split parameters (for internal nodes)
	SplitFeature int
	SplitValue   float64

	// Children
	Left  *node
	Right *node

	// Leaf information
	Size int // number of samples that reached this leaf
}

// Option configures an IsolationForest.
type Option func(*IsolationForest)

// WithTrees sets the number of isolation trees.
func WithTrees(n int) Option {
	return func(f *IsolationForest) {
		f.nTrees = n
	}
}

// WithSampleSize sets the subsample size for each tree.
func WithSampleSize(n int) Option {
	return func(f *IsolationForest) {
		f.sampleSize = n
	}
}

// WithContamination sets the expected proportion of anomalies.
func WithContamination(c float64) Option {
	return func(f *IsolationForest) {
		f.contamination = c
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(f *IsolationForest) {
		f.seed = seed
	}
}

// New creates a new IsolationForest with the given options.
func New(opts ...Option) *IsolationForest {
	cfg := detectors.DefaultConfig()
	f := &IsolationForest{
		nTrees:        cfg.Trees,
		sampleSize:    cfg.SampleSize,
		contamination: cfg.Contamination,
		seed:          cfg.RandomSeed,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// FromConfig creates an IsolationForest from a detector configuration.
func FromConfig(cfg detectors.Config) *IsolationForest {
	return New(
		WithTrees(cfg.Trees),
		WithSampleSize(cfg.SampleSize),
		WithContamination(cfg.Contamination),
		WithSeed(cfg.RandomSeed),
	)
}

func (f *IsolationForest) validate() error {
	switch {
	case f.nTrees < 1:
		return errors.Errorf("iforest: trees must be >= 1, got %d", f.nTrees)
	case f.sampleSize < 2:
		return errors.Errorf("iforest: sample size must be >= 2, got %d", f.sampleSize)
	case !(f.contamination > 0 && f.contamination <= 0.5):
		return errors.Errorf("iforest: contamination must be in (0, 0.5], got %v", f.contamination)
	}
	return nil
}

// Fit trains the Isolation Forest on the provided data. Fitting twice
// with the same data and seed builds identical trees.
func (f *IsolationForest) Fit(data [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.validate(); err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("iforest: empty training data")
	}

	nSamples := len(data)
	nFeatures := len(data[0])
	if nFeatures == 0 {
		return errors.New("iforest: samples have no features")
	}
	for i, row := range data {
		if len(row) != nFeatures {
			return errors.Errorf("iforest: row %d has %d features, want %d", i, len(row), nFeatures)
		}
	}

	// Adjust sample size if needed
	sampleSize := min(f.sampleSize, nSamples)
	f.maxDepth = int(math.Ceil(math.Log2(float64(max(sampleSize, 2)))))
	rng := rand.New(rand.NewSource(f.seed))

	// Build trees
	f.trees = make([]*iTree, f.nTrees)
	for i := 0; i < f.nTrees; i++ {
		// Sample without replacement
		indices := rng.Perm(nSamples)[:sampleSize]
		sample := make([][]float64, sampleSize)
		for j, idx := range indices {
			sample[j] = data[idx]
		}

		f.trees[i] = &iTree{Root: f.buildNode(rng, sample, nFeatures, 0)}
	}

	// Calculate average path length for normalization
	f.avgPathLength = averagePathLength(float64(sampleSize))
	f.nFeatures = nFeatures
	f.trainSamples = nSamples
	f.trained = true

	// The threshold leaves a contamination share of training data above it.
	scores := f.score(data)
	sort.Float64s(scores)
	f.threshold = stat.Quantile(1-f.contamination, stat.LinInterp, scores, nil)

	return nil
}

func (f *IsolationForest) buildNode(rng *rand.Rand, data [][]float64, nFeatures, depth int) *node {
	n := len(data)

	// Terminal conditions
	if depth >= f.maxDepth || n <= 1 {
		return &node{Size: n}
	}

	// Random feature and split value
	feature := rng.Intn(nFeatures)

	// Find min/max for this feature
	minVal, maxVal := data[0][feature], data[0][feature]
	for _, row := range data[1:] {
		minVal = min(minVal, row[feature])
		maxVal = max(maxVal, row[feature])
	}

	// If all values are the same, return leaf
	if minVal == maxVal {
		return &node{Size: n}
	}

	// Random split value
	splitValue := minVal + rng.Float64()*(maxVal-minVal)

	// Partition data
	var leftData, rightData [][]float64
	for _, row := range data {
		if row[feature] < splitValue {
			leftData = append(leftData, row)
		} else {
			rightData = append(rightData, row)
		}
	}

	return &node{
		SplitFeature: feature,
		SplitValue:   splitValue,
		Left:         f.buildNode(rng, leftData, nFeatures, depth+1),
		Right:        f.buildNode(rng, rightData, nFeatures, depth+1),
	}
}

// Score returns anomaly scores in (0, 1] for the given samples.
func (f *IsolationForest) Score(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.check(data); err != nil {
		return nil, err
	}
	return f.score(data), nil
}

// ScoreOne returns the anomaly score for a single sample.
func (f *IsolationForest) ScoreOne(sample []float64) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.check([][]float64{sample}); err != nil {
		return 0, err
	}
	return f.scoreOne(sample), nil
}

// Decision returns score minus threshold; positive values are anomalies.
func (f *IsolationForest) Decision(data [][]float64) ([]float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if err := f.check(data); err != nil {
		return nil, err
	}
	out := f.score(data)
	for i := range out {
		out[i] -= f.threshold
	}
	return out, nil
}

// Predict reports which samples score above the threshold.
func (f *IsolationForest) Predict(data [][]float64) ([]bool, error) {
	decision, err := f.Decision(data)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(decision))
	for i, d := range decision {
		out[i] = d > 0
	}
	return out, nil
}

func (f *IsolationForest) check(data [][]float64) error {
	if !f.trained {
		return errors.New("iforest: model not trained")
	}
	for i, row := range data {
		if len(row) != f.nFeatures {
			return errors.Errorf("iforest: row %d has %d features, want %d", i, len(row), f.nFeatures)
		}
	}
	return nil
}

func (f *IsolationForest) score(data [][]float64) []float64 {
	scores := make([]float64, len(data))
	for i, sample := range data {
		scores[i] = f.scoreOne(sample)
	}
	return scores
}

func (f *IsolationForest) scoreOne(sample []float64) float64 {
	// Average path length across all trees
	var totalPath float64
	for _, tree := range f.trees {
		totalPath += pathLength(sample, tree.Root, 0)
	}
	avgPath := totalPath / float64(len(f.trees))

	// Anomaly score: 2^(-avgPath / c(n))
	// Higher score = more anomalous
	if f.avgPathLength == 0 {
		return 1
	}
	return math.Pow(2, -avgPath/f.avgPathLength)
}

// pathLength calculates the path length for a sample in a tree.
func pathLength(sample []float64, n *node, currentDepth int) float64 {
	if n.Left == nil && n.Right == nil {
		// Leaf node: add expected path length for remaining isolation
		return float64(currentDepth) + averagePathLength(float64(n.Size))
	}

	if sample[n.SplitFeature] < n.SplitValue {
		return pathLength(sample, n.Left, currentDepth+1)
	}
	return pathLength(sample, n.Right, currentDepth+1)
}

// averagePathLength returns the average path length of unsuccessful search in BST.
func averagePathLength(n float64) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	// c(n) = 2*H(n-1) - 2*(n-1)/n, H(i) ~ ln(i) + Euler-Mascheroni constant
	return 2*(math.Log(n-1)+0.5772156649) - 2*(n-1)/n
}

type forestState struct {
	NTrees        int
	SampleSize    int
	Contamination float64
	Seed          int64
	NFeatures     int
	AvgPathLength float64
	Threshold     float64
	TrainSamples  int
	Trees         []*iTree
}

// Save serializes the trained model.
func (f *IsolationForest) Save() ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if !f.trained {
		return nil, errors.New("iforest: model not trained")
	}

	var buf bytes.Buffer
	state := forestState{
		NTrees:        f.nTrees,
		SampleSize:    f.sampleSize,
		Contamination: f.contamination,
		Seed:          f.seed,
		NFeatures:     f.nFeatures,
		AvgPathLength: f.avgPathLength,
		Threshold:     f.threshold,
		TrainSamples:  f.trainSamples,
		Trees:         f.trees,
	}
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, errors.Wrap(err, "iforest: encode")
	}

	return buf.Bytes(), nil
}

// Load deserializes a trained model.
func (f *IsolationForest) Load(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var state forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return errors.Wrap(err, "iforest: decode")
	}
	if len(state.Trees) == 0 {
		return errors.New("iforest: no trees in payload")
	}

	f.nTrees = state.NTrees
	f.sampleSize = state.SampleSize
	f.contamination = state.Contamination
	f.seed = state.Seed
	f.nFeatures = state.NFeatures
	f.avgPathLength = state.AvgPathLength
	f.threshold = state.Threshold
	f.trainSamples = state.TrainSamples
	f.trees = state.Trees
	f.maxDepth = int(math.Ceil(math.Log2(float64(max(min(f.sampleSize, f.trainSamples), 2)))))
	f.trained = true

	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (f *IsolationForest) MarshalBinary() ([]byte, error) {
	return f.Save()
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (f *IsolationForest) UnmarshalBinary(data []byte) error {
	return f.Load(data)
}

// Threshold returns the anomaly threshold fitted from contamination.
func (f *IsolationForest) Threshold() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.threshold
}

// TrainSamples returns the number of rows the model was fit on.
func (f *IsolationForest) TrainSamples() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.trainSamples
}

// Config returns the configuration the forest was built with.
func (f *IsolationForest) Config() detectors.Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return detectors.Config{
		Trees:         f.nTrees,
		SampleSize:    f.sampleSize,
		Contamination: f.contamination,
		RandomSeed:    f.seed,
	}
}

var _ detectors.Detector = (*IsolationForest)(nil)
