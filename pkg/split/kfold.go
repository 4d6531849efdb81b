package split

import (
	"github.com/pkg/errors"
)

// Fold is one cross-validation round: fit on Train, score on Validation.
type Fold struct {
	Train      []int
	Validation []int
}

// StratifiedKFold partitions positions 0..len(y)-1 into k folds with
// class proportions as even as possible. Positions are ordered by class
// and then by position and dealt round-robin, so the result is fully
// deterministic and needs no seed.
func StratifiedKFold(y []int, k int) ([]Fold, error) {
	n := len(y)
	if k < 2 {
		return nil, errors.Errorf("kfold: need at least 2 folds, got %d", k)
	}
	if n < k {
		return nil, errors.Errorf("kfold: %d samples cannot fill %d folds", n, k)
	}

	byClass := groupByClass(y)
	member := make([]int, n)
	slot := 0
	for _, c := range sortedKeys(byClass) {
		for _, i := range byClass[c] {
			member[i] = slot % k
			slot++
		}
	}

	folds := make([]Fold, k)
	for i := 0; i < n; i++ {
		for f := range folds {
			if member[i] == f {
				folds[f].Validation = append(folds[f].Validation, i)
			} else {
				folds[f].Train = append(folds[f].Train, i)
			}
		}
	}
	return folds, nil
}
