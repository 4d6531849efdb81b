package preprocess

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler standardizes each column to zero mean and unit variance
// using parameters estimated once, at fit time.
//
// A column with zero variance keeps a scale of 1: it is centered but not
// divided, so every transformed value of a constant training column is 0.
type StandardScaler struct {
	mean         []float64
	scale        []float64
	zeroVariance []int
}

// FitStandardScaler estimates per-column population mean and standard
// deviation from X.
func FitStandardScaler(X [][]float64) (*StandardScaler, error) {
	if len(X) == 0 {
		return nil, errors.New("scaler: empty input")
	}
	r, c := len(X), len(X[0])
	if c == 0 {
		return nil, errors.New("scaler: input has no columns")
	}

	s := &StandardScaler{
		mean:  make([]float64, c),
		scale: make([]float64, c),
	}

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		for i := 0; i < r; i++ {
			if len(X[i]) != c {
				return nil, errors.Errorf("scaler: row %d has %d columns, want %d", i, len(X[i]), c)
			}
			col[i] = X[i][j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		s.mean[j] = mean
		s.scale[j] = std
		if std == 0 {
			s.scale[j] = 1
			s.zeroVariance = append(s.zeroVariance, j)
		}
	}

	return s, nil
}

// NumFeatures returns the width the scaler was fit on.
func (s *StandardScaler) NumFeatures() int {
	return len(s.mean)
}

// Mean returns the fitted column means.
func (s *StandardScaler) Mean() []float64 {
	return append([]float64(nil), s.mean...)
}

// Scale returns the fitted column divisors.
func (s *StandardScaler) Scale() []float64 {
	return append([]float64(nil), s.scale...)
}

// ZeroVarianceColumns returns the indices of columns that had zero
// variance at fit time and were left unscaled.
func (s *StandardScaler) ZeroVarianceColumns() []int {
	return append([]int(nil), s.zeroVariance...)
}

// Transform returns a standardized copy of X. The scaler is never refit.
func (s *StandardScaler) Transform(X [][]float64) ([][]float64, error) {
	c := len(s.mean)
	if c == 0 {
		return nil, errors.New("scaler: not fitted")
	}

	out := make([][]float64, len(X))
	for i, x := range X {
		if len(x) != c {
			return nil, errors.Errorf("scaler: row %d has %d columns, want %d", i, len(x), c)
		}
		row := make([]float64, c)
		for j := range row {
			row[j] = (x[j] - s.mean[j]) / s.scale[j]
		}
		out[i] = row
	}
	return out, nil
}

type scalerState struct {
	Mean         []float64
	Scale        []float64
	ZeroVariance []int
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (s *StandardScaler) MarshalBinary() ([]byte, error) {
	if len(s.mean) == 0 {
		return nil, errors.New("scaler: not fitted")
	}
	var buf bytes.Buffer
	state := scalerState{Mean: s.mean, Scale: s.scale, ZeroVariance: s.zeroVariance}
	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		return nil, errors.Wrap(err, "scaler: encode")
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. It only accepts
// a zero-value receiver; fitted scalers are read-only.
func (s *StandardScaler) UnmarshalBinary(data []byte) error {
	if len(s.mean) != 0 {
		return errors.New("scaler: already fitted")
	}
	var state scalerState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return errors.Wrap(err, "scaler: decode")
	}
	if len(state.Mean) == 0 || len(state.Mean) != len(state.Scale) {
		return errors.New("scaler: malformed payload")
	}
	s.mean, s.scale, s.zeroVariance = state.Mean, state.Scale, state.ZeroVariance
	return nil
}
