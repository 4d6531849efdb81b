// Package artifact persists fitted pipeline objects as independent gob
// files and loads them back one at a time.
//
// Files carry no version tag and are written one after another: a crash
// part way through can leave a mixed set behind.
package artifact

import (
	"bytes"
	"encoding"
	"encoding/gob"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hed1ad/goguardml/pkg/classifiers/forest"
	"github.com/hed1ad/goguardml/pkg/detectors/iforest"
	"github.com/hed1ad/goguardml/pkg/errs"
	"github.com/hed1ad/goguardml/pkg/preprocess"
)

// File names of the five artifacts inside the output directory.
const (
	ClassifierFile      = "app_id_classifier.gob"
	ScalerFile          = "scaler.gob"
	LabelEncoderFile    = "label_encoder.gob"
	AnomalyDetectorFile = "anomaly_detector.gob"
	FeatureNamesFile    = "feature_names.gob"
)

// Set is everything a training run produces.
type Set struct {
	Classifier      *forest.RandomForest
	Scaler          *preprocess.StandardScaler
	LabelEncoder    *preprocess.LabelEncoder
	AnomalyDetector *iforest.IsolationForest
	FeatureNames    []string
}

type featureNames []string

func (f featureNames) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode([]string(f)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write creates dir if needed and writes the five artifacts in a fixed
// order, replacing files of the same name. It returns the written paths.
func Write(dir string, set Set) ([]string, error) {
	if set.Classifier == nil || set.Scaler == nil || set.LabelEncoder == nil || set.AnomalyDetector == nil {
		return nil, errs.Serialization(errors.New("incomplete artifact set"), "write %s", dir)
	}
	if len(set.FeatureNames) == 0 {
		return nil, errs.Serialization(errors.New("empty feature name list"), "write %s", dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Serialization(err, "create %s", dir)
	}

	units := []struct {
		name string
		v    encoding.BinaryMarshaler
	}{
		{ClassifierFile, set.Classifier},
		{ScalerFile, set.Scaler},
		{LabelEncoderFile, set.LabelEncoder},
		{AnomalyDetectorFile, set.AnomalyDetector},
		{FeatureNamesFile, featureNames(set.FeatureNames)},
	}

	paths := make([]string, 0, len(units))
	for _, u := range units {
		path := filepath.Join(dir, u.name)
		data, err := u.v.MarshalBinary()
		if err != nil {
			return paths, errs.Serialization(err, "encode %s", u.name)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, errs.Serialization(err, "write %s", path)
		}
		paths = append(paths, path)
	}

	return paths, nil
}

func load(path string, v encoding.BinaryUnmarshaler) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errs.Serialization(err, "read %s", path)
	}
	if err := v.UnmarshalBinary(data); err != nil {
		return errs.Serialization(err, "decode %s", path)
	}
	return nil
}

// LoadClassifier reads the classifier artifact from dir.
func LoadClassifier(dir string) (*forest.RandomForest, error) {
	rf := forest.New()
	if err := load(filepath.Join(dir, ClassifierFile), rf); err != nil {
		return nil, err
	}
	return rf, nil
}

// LoadScaler reads the scaler artifact from dir.
func LoadScaler(dir string) (*preprocess.StandardScaler, error) {
	s := new(preprocess.StandardScaler)
	if err := load(filepath.Join(dir, ScalerFile), s); err != nil {
		return nil, err
	}
	return s, nil
}

// LoadLabelEncoder reads the label codec artifact from dir.
func LoadLabelEncoder(dir string) (*preprocess.LabelEncoder, error) {
	e := new(preprocess.LabelEncoder)
	if err := load(filepath.Join(dir, LabelEncoderFile), e); err != nil {
		return nil, err
	}
	return e, nil
}

// LoadAnomalyDetector reads the anomaly model artifact from dir.
func LoadAnomalyDetector(dir string) (*iforest.IsolationForest, error) {
	f := iforest.New()
	if err := load(filepath.Join(dir, AnomalyDetectorFile), f); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadFeatureNames reads the ordered feature name list from dir.
func LoadFeatureNames(dir string) ([]string, error) {
	path := filepath.Join(dir, FeatureNamesFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Serialization(err, "read %s", path)
	}
	var names []string
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&names); err != nil {
		return nil, errs.Serialization(err, "decode %s", path)
	}
	return names, nil
}
