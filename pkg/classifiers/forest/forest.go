// Package forest implements a random forest classifier of CART trees.
package forest

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Params are the hyperparameters of a RandomForest.
type Params struct {
	// NEstimators is the number of trees.
	NEstimators int
	// MaxDepth limits tree depth; 0 grows until leaves are pure.
	MaxDepth int
	// MinSamplesSplit is the smallest node that may be split.
	MinSamplesSplit int
	// MinSamplesLeaf is the smallest allowed leaf.
	MinSamplesLeaf int
	// MaxFeatures is the number of features examined per split;
	// 0 means floor(sqrt(p)).
	MaxFeatures int
	// Seed drives bootstrap sampling and feature draws.
	Seed int64
}

// DefaultParams returns the default hyperparameters.
func DefaultParams() Params {
	return Params{
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     0,
		Seed:            42,
	}
}

func (p Params) String() string {
	depth := "none"
	if p.MaxDepth > 0 {
		depth = fmt.Sprint(p.MaxDepth)
	}
	return fmt.Sprintf("n_estimators=%d max_depth=%s min_samples_split=%d min_samples_leaf=%d",
		p.NEstimators, depth, p.MinSamplesSplit, p.MinSamplesLeaf)
}

// Validate reports invalid hyperparameters.
func (p Params) Validate() error {
	switch {
	case p.NEstimators < 1:
		return errors.Errorf("forest: n_estimators must be >= 1, got %d", p.NEstimators)
	case p.MaxDepth < 0:
		return errors.Errorf("forest: max_depth must be >= 0, got %d", p.MaxDepth)
	case p.MinSamplesSplit < 2:
		return errors.Errorf("forest: min_samples_split must be >= 2, got %d", p.MinSamplesSplit)
	case p.MinSamplesLeaf < 1:
		return errors.Errorf("forest: min_samples_leaf must be >= 1, got %d", p.MinSamplesLeaf)
	case p.MaxFeatures < 0:
		return errors.Errorf("forest: max_features must be >= 0, got %d", p.MaxFeatures)
	}
	return nil
}

func (p Params) maxFeatures(nFeatures int) int {
	if p.MaxFeatures > 0 {
		return min(p.MaxFeatures, nFeatures)
	}
	return max(1, int(math.Sqrt(float64(nFeatures))))
}

// RandomForest is a bagged ensemble of classification trees. Tree i is
// grown from seed Seed+i, so a fit is reproducible regardless of how
// many workers build it.
type RandomForest struct {
	params  Params
	workers int

	nClasses  int
	nFeatures int
	trees     []*tree
}

// Option configures a RandomForest.
type Option func(*RandomForest)

// WithParams replaces all hyperparameters.
func WithParams(p Params) Option {
	return func(rf *RandomForest) {
		rf.params = p
	}
}

// WithEstimators sets the number of trees.
func WithEstimators(n int) Option {
	return func(rf *RandomForest) {
		rf.params.NEstimators = n
	}
}

// WithMaxDepth sets the depth limit; 0 means unlimited.
func WithMaxDepth(d int) Option {
	return func(rf *RandomForest) {
		rf.params.MaxDepth = d
	}
}

// WithMinSamplesSplit sets the minimum node size for a split.
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForest) {
		rf.params.MinSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets the minimum leaf size.
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForest) {
		rf.params.MinSamplesLeaf = n
	}
}

// WithMaxFeatures sets the features examined per split.
func WithMaxFeatures(n int) Option {
	return func(rf *RandomForest) {
		rf.params.MaxFeatures = n
	}
}

// WithSeed sets the random seed for reproducibility.
func WithSeed(seed int64) Option {
	return func(rf *RandomForest) {
		rf.params.Seed = seed
	}
}

// WithWorkers bounds the number of trees grown concurrently.
func WithWorkers(n int) Option {
	return func(rf *RandomForest) {
		rf.workers = n
	}
}

// New creates a new RandomForest with the given options.
func New(opts ...Option) *RandomForest {
	rf := &RandomForest{
		params:  DefaultParams(),
		workers: runtime.NumCPU(),
	}
	for _, opt := range opts {
		opt(rf)
	}
	if rf.workers < 1 {
		rf.workers = 1
	}
	return rf
}

// Params returns the hyperparameters.
func (rf *RandomForest) Params() Params {
	return rf.params
}

// NumClasses returns the number of classes seen at fit time.
func (rf *RandomForest) NumClasses() int {
	return rf.nClasses
}

// Fit grows the forest on X with class codes y in [0, nClasses).
func (rf *RandomForest) Fit(X [][]float64, y []int, nClasses int) error {
	if err := rf.params.Validate(); err != nil {
		return err
	}
	n := len(X)
	if n == 0 {
		return errors.New("forest: empty training data")
	}
	if len(y) != n {
		return errors.Errorf("forest: %d rows but %d labels", n, len(y))
	}
	if nClasses < 1 {
		return errors.Errorf("forest: need at least one class, got %d", nClasses)
	}
	p := len(X[0])
	if p == 0 {
		return errors.New("forest: rows have no features")
	}
	for i := range X {
		if len(X[i]) != p {
			return errors.Errorf("forest: row %d has %d features, want %d", i, len(X[i]), p)
		}
		if y[i] < 0 || y[i] >= nClasses {
			return errors.Errorf("forest: label %d at row %d outside [0, %d)", y[i], i, nClasses)
		}
	}

	trees := make([]*tree, rf.params.NEstimators)

	var g errgroup.Group
	g.SetLimit(rf.workers)
	for t := range trees {
		g.Go(func() error {
			rng := rand.New(rand.NewSource(rf.params.Seed + int64(t)))
			sample := make([]int, n)
			for j := range sample {
				sample[j] = rng.Intn(n)
			}
			gr := &grower{
				X:         X,
				y:         y,
				nClasses:  nClasses,
				nFeatures: p,
				params:    rf.params,
				rng:       rng,
			}
			trees[t] = gr.grow(sample)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rf.trees = trees
	rf.nClasses = nClasses
	rf.nFeatures = p
	return nil
}

// PredictProba returns the mean class distribution of all trees per row.
func (rf *RandomForest) PredictProba(X [][]float64) ([][]float64, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("forest: model not trained")
	}

	out := make([][]float64, len(X))
	for i, x := range X {
		if len(x) != rf.nFeatures {
			return nil, errors.Errorf("forest: row %d has %d features, want %d", i, len(x), rf.nFeatures)
		}
		proba := make([]float64, rf.nClasses)
		for _, t := range rf.trees {
			for c, p := range t.proba(x) {
				proba[c] += p
			}
		}
		for c := range proba {
			proba[c] /= float64(len(rf.trees))
		}
		out[i] = proba
	}
	return out, nil
}

// Predict returns the most probable class per row; ties go to the
// lower class code.
func (rf *RandomForest) Predict(X [][]float64) ([]int, error) {
	probas, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(probas))
	for i, proba := range probas {
		best := 0
		for c := 1; c < len(proba); c++ {
			if proba[c] > proba[best] {
				best = c
			}
		}
		out[i] = best
	}
	return out, nil
}

// MaxDepth returns the depth of the deepest tree.
func (rf *RandomForest) MaxDepth() int {
	d := 0
	for _, t := range rf.trees {
		d = max(d, t.depth())
	}
	return d
}

type forestState struct {
	Params    Params
	NClasses  int
	NFeatures int
	Trees     []*tree
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (rf *RandomForest) MarshalBinary() ([]byte, error) {
	if len(rf.trees) == 0 {
		return nil, errors.New("forest: model not trained")
	}

	var buf bytes.Buffer
	state := forestState{
		Params:    rf.params,
		NClasses:  rf.nClasses,
		NFeatures: rf.nFeatures,
		Trees:     rf.trees,
	}
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, errors.Wrap(err, "forest: encode")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (rf *RandomForest) UnmarshalBinary(data []byte) error {
	var state forestState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return errors.Wrap(err, "forest: decode")
	}
	if len(state.Trees) == 0 {
		return errors.New("forest: no trees in payload")
	}

	rf.params = state.Params
	rf.nClasses = state.NClasses
	rf.nFeatures = state.NFeatures
	rf.trees = state.Trees
	if rf.workers < 1 {
		rf.workers = runtime.NumCPU()
	}
	return nil
}
