package search

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hed1ad/goguardml/pkg/classifiers/forest"
	"github.com/hed1ad/goguardml/pkg/errs"
	"github.com/hed1ad/goguardml/pkg/metrics"
	"github.com/hed1ad/goguardml/pkg/split"
)

// Estimator is a classifier the search can fit and score.
type Estimator interface {
	Fit(X [][]float64, y []int, nClasses int) error
	Predict(X [][]float64) ([]int, error)
}

// Factory builds an unfitted estimator for one combination.
type Factory func(p forest.Params) Estimator

// ForestFactory builds random forests. Each forest grows its trees one
// at a time, since the search already runs combinations in parallel.
func ForestFactory(p forest.Params) Estimator {
	return forest.New(forest.WithParams(p), forest.WithWorkers(1))
}

// Options configures GridSearch.
type Options struct {
	Grid Grid
	// Folds is the number of cross-validation folds.
	Folds int
	// Seed is passed to every combination.
	Seed int64
	// Workers bounds concurrently evaluated combinations; 0 means NumCPU.
	Workers int
	// Factory defaults to ForestFactory.
	Factory Factory
}

// CVScore is the cross-validation outcome of one combination.
type CVScore struct {
	Params     forest.Params
	FoldScores []float64
	Mean       float64
}

// Result is the outcome of a grid search.
type Result struct {
	Best      forest.Params
	BestScore float64
	// BestIndex is the position of Best in enumeration order.
	BestIndex int
	// Scores holds every combination in enumeration order.
	Scores []CVScore
	// Model is the winning estimator refit on all of X.
	Model Estimator
}

// GridSearch scores every grid combination by mean accuracy across
// stratified folds of (X, y), then refits the best one on all of X.
//
// Combinations run on a bounded worker pool. Each worker reads the shared
// training data and writes only its own slot of the score table; the
// selection happens after every worker has reported. The highest mean
// wins and ties go to the combination enumerated first.
func GridSearch(ctx context.Context, X [][]float64, y []int, nClasses int, opts Options) (*Result, error) {
	if opts.Grid.Size() == 0 {
		return nil, errs.Configuration("hyperparameter grid has an empty dimension")
	}
	if opts.Factory == nil {
		opts.Factory = ForestFactory
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	folds, err := split.StratifiedKFold(y, opts.Folds)
	if err != nil {
		return nil, errs.Configuration("cross-validation: %v", err)
	}

	combos := opts.Grid.Combinations(opts.Seed)
	scores := make([]CVScore, len(combos))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i, p := range combos {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := crossValidate(opts.Factory, p, X, y, nClasses, folds)
			if err != nil {
				return errors.Wrapf(err, "cross-validate %s", p)
			}
			scores[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i].Mean > scores[best].Mean {
			best = i
		}
	}

	model := opts.Factory(combos[best])
	if err := model.Fit(X, y, nClasses); err != nil {
		return nil, errors.Wrapf(err, "refit %s", combos[best])
	}

	return &Result{
		Best:      combos[best],
		BestScore: scores[best].Mean,
		BestIndex: best,
		Scores:    scores,
		Model:     model,
	}, nil
}

func crossValidate(factory Factory, p forest.Params, X [][]float64, y []int, nClasses int, folds []split.Fold) (CVScore, error) {
	score := CVScore{Params: p, FoldScores: make([]float64, len(folds))}

	for f, fold := range folds {
		est := factory(p)
		if err := est.Fit(rows(X, fold.Train), labels(y, fold.Train), nClasses); err != nil {
			return score, errors.Wrapf(err, "fold %d", f)
		}
		pred, err := est.Predict(rows(X, fold.Validation))
		if err != nil {
			return score, errors.Wrapf(err, "fold %d", f)
		}
		acc, err := metrics.Accuracy(labels(y, fold.Validation), pred)
		if err != nil {
			return score, errors.Wrapf(err, "fold %d", f)
		}
		score.FoldScores[f] = acc
		score.Mean += acc
	}
	score.Mean /= float64(len(folds))

	return score, nil
}

func rows(X [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = X[j]
	}
	return out
}

func labels(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
