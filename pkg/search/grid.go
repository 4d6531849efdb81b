// Package search selects classifier hyperparameters by exhaustive grid
// search with stratified k-fold cross-validation.
package search

import (
	"github.com/hed1ad/goguardml/pkg/classifiers/forest"
)

// Grid is a finite hyperparameter space. Every field must be non-empty.
// A MaxDepth of 0 means unlimited depth.
type Grid struct {
	NEstimators     []int `mapstructure:"n_estimators" yaml:"n_estimators,flow"`
	MaxDepth        []int `mapstructure:"max_depth" yaml:"max_depth,flow"`
	MinSamplesSplit []int `mapstructure:"min_samples_split" yaml:"min_samples_split,flow"`
	MinSamplesLeaf  []int `mapstructure:"min_samples_leaf" yaml:"min_samples_leaf,flow"`
}

// DefaultGrid returns a single-point grid of the default forest settings.
func DefaultGrid() Grid {
	return Grid{
		NEstimators:     []int{100},
		MaxDepth:        []int{0},
		MinSamplesSplit: []int{2},
		MinSamplesLeaf:  []int{1},
	}
}

// Size returns the number of combinations.
func (g Grid) Size() int {
	return len(g.NEstimators) * len(g.MaxDepth) * len(g.MinSamplesSplit) * len(g.MinSamplesLeaf)
}

// Combinations enumerates the grid with NEstimators outermost and
// MinSamplesLeaf innermost. This order is the tie-break order of the
// search. Every combination carries seed.
func (g Grid) Combinations(seed int64) []forest.Params {
	out := make([]forest.Params, 0, g.Size())
	for _, n := range g.NEstimators {
		for _, d := range g.MaxDepth {
			for _, s := range g.MinSamplesSplit {
				for _, l := range g.MinSamplesLeaf {
					out = append(out, forest.Params{
						NEstimators:     n,
						MaxDepth:        d,
						MinSamplesSplit: s,
						MinSamplesLeaf:  l,
						Seed:            seed,
					})
				}
			}
		}
	}
	return out
}
