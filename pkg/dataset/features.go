package dataset

import (
	"github.com/hed1ad/goguardml/pkg/errs"
)

// Features is a numeric feature matrix aligned with a label vector.
type Features struct {
	// Names is the ordered list of feature columns.
	Names []string
	// X holds one row per sample, columns ordered as Names.
	X [][]float64
	// Rows is the source record index of each row of X.
	Rows []int
}

// NumRows returns the number of samples.
func (f *Features) NumRows() int {
	return len(f.X)
}

// NumFeatures returns the number of columns.
func (f *Features) NumFeatures() int {
	return len(f.Names)
}

// Select returns the rows at the given positions, in that order.
// Row slices are shared with f.
func (f *Features) Select(positions []int) *Features {
	out := &Features{
		Names: f.Names,
		X:     make([][]float64, len(positions)),
		Rows:  make([]int, len(positions)),
	}
	for i, p := range positions {
		out.X[i] = f.X[p]
		out.Rows[i] = f.Rows[p]
	}
	return out
}

// Split separates the label column from the numeric feature columns.
// Non-numeric feature columns are returned in excluded rather than
// dropped silently. The label vector is aligned row for row with the
// feature matrix.
func (t *Table) Split() (features *Features, labels []string, excluded []string, err error) {
	label, ok := t.Column(t.labelColumn)
	if !ok {
		return nil, nil, nil, errs.Schema("dataset must contain a %q column", t.labelColumn)
	}

	var numeric []*Column
	for _, col := range t.columns {
		if col.Name == t.labelColumn {
			continue
		}
		if !col.Numeric {
			excluded = append(excluded, col.Name)
			continue
		}
		numeric = append(numeric, col)
	}

	if len(numeric) == 0 {
		return nil, nil, excluded, errs.Schema("no numeric feature columns remain after cleaning")
	}
	if t.NumRows() == 0 {
		return nil, nil, excluded, errs.Schema("no rows remain after cleaning")
	}

	features = &Features{
		Names: make([]string, len(numeric)),
		X:     make([][]float64, t.NumRows()),
		Rows:  t.Rows(),
	}
	for j, col := range numeric {
		features.Names[j] = col.Name
	}
	for i := range features.X {
		row := make([]float64, len(numeric))
		for j, col := range numeric {
			row[j] = col.Values[i]
		}
		features.X[i] = row
	}

	labels = append([]string(nil), label.Cells...)

	return features, labels, excluded, nil
}
