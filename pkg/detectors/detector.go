// Package detectors provides one-class anomaly detection algorithms.
package detectors

// Detector is the common interface for all anomaly detection algorithms.
type Detector interface {
	// Fit trains the detector on reference data assumed to be normal.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Score returns anomaly scores for the given samples.
	// Higher values indicate more anomalous samples.
	Score(data [][]float64) ([]float64, error)

	// ScoreOne returns the anomaly score for a single sample.
	ScoreOne(sample []float64) (float64, error)

	// Decision returns score minus the fitted threshold; positive values
	// are anomalies.
	Decision(data [][]float64) ([]float64, error)

	// Predict reports which samples are anomalies.
	Predict(data [][]float64) ([]bool, error)

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// Config holds common configuration for detectors.
type Config struct {
	// Trees is the ensemble size.
	Trees int
	// SampleSize is the number of rows drawn for each tree.
	SampleSize int
	// Contamination is the expected proportion of anomalies in training
	// data. It places the decision threshold.
	Contamination float64
	// RandomSeed for reproducibility.
	RandomSeed int64
}

// DefaultConfig returns sensible defaults for detector configuration.
func DefaultConfig() Config {
	return Config{
		Trees:         100,
		SampleSize:    256,
		Contamination: 0.01,
		RandomSeed:    42,
	}
}
