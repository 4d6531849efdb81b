// Package pipeline runs a full training pass: load and clean the dataset,
// fit the label codec and scaler, search classifier hyperparameters,
// evaluate on held-out rows, fit the anomaly detector on normal traffic
// and persist every fitted object.
package pipeline

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/hed1ad/goguardml/pkg/artifact"
	"github.com/hed1ad/goguardml/pkg/classifiers/forest"
	"github.com/hed1ad/goguardml/pkg/config"
	"github.com/hed1ad/goguardml/pkg/dataset"
	"github.com/hed1ad/goguardml/pkg/detectors/iforest"
	"github.com/hed1ad/goguardml/pkg/errs"
	"github.com/hed1ad/goguardml/pkg/metrics"
	"github.com/hed1ad/goguardml/pkg/preprocess"
	"github.com/hed1ad/goguardml/pkg/search"
	"github.com/hed1ad/goguardml/pkg/split"
)

// Result summarizes a completed run.
type Result struct {
	RunID string

	FeatureNames   []string
	Excluded       []string
	DroppedColumns []string
	DroppedRows    int

	TrainRows  int
	TestRows   int
	Stratified bool

	BestParams forest.Params
	CVScore    float64
	Accuracy   float64
	Report     *metrics.Report

	AnomalyRows      int
	AnomalyThreshold float64

	Artifacts []string
}

// Run executes every stage in order and stops at the first failure.
// Nothing is written to cfg.OutputDir unless all fitting succeeded.
func Run(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	policy, err := split.ParsePolicy(cfg.StratifyPolicy)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.NewString()}
	log = log.With().Str("run_id", res.RunID).Logger()

	// Load and clean.
	table, err := dataset.Load(cfg.InputPath, dataset.Options{
		LabelColumn:      cfg.LabelColumn,
		MissingThreshold: cfg.MissingThreshold,
	})
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("path", cfg.InputPath).
		Int("rows", table.SourceRows).
		Strs("columns", table.SourceColumns).
		Msg("Dataset loaded")
	if len(table.DroppedColumns) > 0 {
		log.Info().Strs("columns", table.DroppedColumns).Msg("Dropped sparse columns")
	}
	if table.DroppedRows > 0 {
		log.Info().Int("rows", table.DroppedRows).Msg("Dropped rows with missing values")
	}
	res.DroppedColumns = table.DroppedColumns
	res.DroppedRows = table.DroppedRows

	// Separate features from labels.
	features, labels, excluded, err := table.Split()
	if err != nil {
		return nil, err
	}
	if len(excluded) > 0 {
		log.Warn().Strs("columns", excluded).Msg("Excluded non-numeric feature columns")
	}
	res.FeatureNames = features.Names
	res.Excluded = excluded

	normal := normalPositions(labels, cfg.NormalLabel)
	if len(normal) == 0 {
		return nil, errs.Configuration("no rows labeled %q to train the anomaly detector on", cfg.NormalLabel)
	}

	// Encode labels.
	encoder, err := preprocess.FitLabelEncoder(labels)
	if err != nil {
		return nil, err
	}
	y, err := encoder.EncodeAll(labels)
	if err != nil {
		return nil, err
	}
	log.Info().Strs("classes", encoder.Classes()).Msg("Label classes")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Split and scale.
	parts, err := split.Stratified(y, cfg.TestFraction, cfg.RandomSeed, policy)
	if err != nil {
		return nil, err
	}
	if !parts.Stratified {
		log.Warn().Msg("A class has a single member; split is not stratified")
	}
	res.TrainRows, res.TestRows, res.Stratified = len(parts.Train), len(parts.Test), parts.Stratified
	log.Info().Int("train", res.TrainRows).Int("test", res.TestRows).Msg("Split dataset")

	train, test := features.Select(parts.Train), features.Select(parts.Test)
	yTrain, yTest := pick(y, parts.Train), pick(y, parts.Test)

	scaler, err := preprocess.FitStandardScaler(train.X)
	if err != nil {
		return nil, err
	}
	if zv := scaler.ZeroVarianceColumns(); len(zv) > 0 {
		names := make([]string, len(zv))
		for i, j := range zv {
			names[i] = features.Names[j]
		}
		log.Warn().Strs("columns", names).Msg("Zero-variance columns left unscaled")
	}
	xTrain, err := scaler.Transform(train.X)
	if err != nil {
		return nil, err
	}
	xTest, err := scaler.Transform(test.X)
	if err != nil {
		return nil, err
	}

	// Search hyperparameters.
	log.Info().
		Int("combinations", cfg.Grid.Size()).
		Int("folds", cfg.CVFolds).
		Msg("Searching hyperparameters")
	found, err := search.GridSearch(ctx, xTrain, yTrain, encoder.Len(), search.Options{
		Grid:    cfg.Grid,
		Folds:   cfg.CVFolds,
		Seed:    cfg.RandomSeed,
		Workers: cfg.Workers,
	})
	if err != nil {
		return nil, errors.Wrap(err, "grid search")
	}
	classifier, ok := found.Model.(*forest.RandomForest)
	if !ok {
		return nil, errors.Errorf("grid search returned %T, want *forest.RandomForest", found.Model)
	}
	res.BestParams, res.CVScore = found.Best, found.BestScore
	log.Info().
		Stringer("params", found.Best).
		Float64("cv_accuracy", found.BestScore).
		Msg("Best hyperparameters")

	// Evaluate.
	yPred, err := classifier.Predict(xTest)
	if err != nil {
		return nil, err
	}
	report, err := metrics.NewClassificationReport(yTest, yPred, encoder.Classes())
	if err != nil {
		return nil, err
	}
	res.Accuracy, res.Report = report.Accuracy, report
	log.Info().Float64("accuracy", report.Accuracy).Msg("Test accuracy")
	for _, c := range report.Classes {
		log.Info().
			Str("class", c.Name).
			Float64("precision", c.Precision).
			Float64("recall", c.Recall).
			Float64("f1", c.F1).
			Int("support", c.Support).
			Msg("Class score")
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Fit the anomaly detector on every normal row, scaled like the
	// classifier input.
	detector, err := fitDetector(cfg, features, normal, scaler)
	if err != nil {
		return nil, err
	}
	res.AnomalyRows, res.AnomalyThreshold = detector.TrainSamples(), detector.Threshold()
	log.Info().
		Int("rows", res.AnomalyRows).
		Float64("threshold", res.AnomalyThreshold).
		Msg("Anomaly detector fitted")

	// Persist.
	paths, err := artifact.Write(cfg.OutputDir, artifact.Set{
		Classifier:      classifier,
		Scaler:          scaler,
		LabelEncoder:    encoder,
		AnomalyDetector: detector,
		FeatureNames:    features.Names,
	})
	if err != nil {
		return nil, err
	}
	res.Artifacts = paths
	log.Info().Strs("paths", paths).Msg("Artifacts written")

	if cfg.ReportPlot != "" {
		if err := report.SavePlot(cfg.ReportPlot); err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.ReportPlot).Msg("Score chart saved")
	}

	return res, nil
}

func fitDetector(cfg *config.Config, features *dataset.Features, normal []int, scaler *preprocess.StandardScaler) (*iforest.IsolationForest, error) {
	if len(normal) == 0 {
		return nil, errs.Configuration("no rows labeled %q to train the anomaly detector on", cfg.NormalLabel)
	}
	x, err := scaler.Transform(features.Select(normal).X)
	if err != nil {
		return nil, err
	}
	detector := iforest.FromConfig(cfg.Anomaly.Detector(cfg.RandomSeed))
	if err := detector.Fit(x); err != nil {
		return nil, errors.Wrap(err, "fit anomaly detector")
	}
	return detector, nil
}

func normalPositions(labels []string, normal string) []int {
	var out []int
	for i, l := range labels {
		if l == normal {
			out = append(out, i)
		}
	}
	return out
}

func pick(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, p := range idx {
		out[i] = y[p]
	}
	return out
}
