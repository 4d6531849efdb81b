// Package config loads training settings from defaults, an optional
// config file, GOGUARDML_* environment variables and bound CLI flags.
package config

import (
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hed1ad/goguardml/pkg/dataset"
	"github.com/hed1ad/goguardml/pkg/detectors"
	"github.com/hed1ad/goguardml/pkg/errs"
	"github.com/hed1ad/goguardml/pkg/search"
	"github.com/hed1ad/goguardml/pkg/split"
)

// EnvPrefix prefixes every environment override, e.g. GOGUARDML_OUTPUT_DIR.
const EnvPrefix = "GOGUARDML"

// Config holds every setting of a training run.
type Config struct {
	InputPath        string  `mapstructure:"input_path" yaml:"input_path"`
	OutputDir        string  `mapstructure:"output_dir" yaml:"output_dir"`
	LabelColumn      string  `mapstructure:"label_column" yaml:"label_column"`
	NormalLabel      string  `mapstructure:"normal_label" yaml:"normal_label"`
	MissingThreshold float64 `mapstructure:"missing_threshold" yaml:"missing_threshold"`
	TestFraction     float64 `mapstructure:"test_fraction" yaml:"test_fraction"`
	CVFolds          int     `mapstructure:"cv_folds" yaml:"cv_folds"`
	RandomSeed       int64   `mapstructure:"random_seed" yaml:"random_seed"`
	StratifyPolicy   string  `mapstructure:"stratify_policy" yaml:"stratify_policy"`
	Workers          int     `mapstructure:"workers" yaml:"workers"`
	// ReportPlot, when set, is where a per-class score chart is saved.
	ReportPlot string `mapstructure:"report_plot" yaml:"report_plot"`

	Grid    search.Grid   `mapstructure:"grid" yaml:"grid"`
	Anomaly AnomalyConfig `mapstructure:"anomaly" yaml:"anomaly"`
}

// AnomalyConfig sizes the isolation forest fitted on normal traffic.
type AnomalyConfig struct {
	Trees         int     `mapstructure:"trees" yaml:"trees"`
	SampleSize    int     `mapstructure:"sample_size" yaml:"sample_size"`
	Contamination float64 `mapstructure:"contamination" yaml:"contamination"`
}

// Detector returns the detector configuration seeded with seed.
func (a AnomalyConfig) Detector(seed int64) detectors.Config {
	return detectors.Config{
		Trees:         a.Trees,
		SampleSize:    a.SampleSize,
		Contamination: a.Contamination,
		RandomSeed:    seed,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	grid := search.DefaultGrid()
	det := detectors.DefaultConfig()
	return &Config{
		InputPath:        "dataset/train1.csv",
		OutputDir:        "model",
		LabelColumn:      dataset.DefaultLabelColumn,
		NormalLabel:      "normal",
		MissingThreshold: dataset.DefaultMissingThreshold,
		TestFraction:     0.2,
		CVFolds:          3,
		RandomSeed:       42,
		StratifyPolicy:   string(split.PolicyStrict),
		Workers:          0,
		Grid:             grid,
		Anomaly: AnomalyConfig{
			Trees:         det.Trees,
			SampleSize:    det.SampleSize,
			Contamination: det.Contamination,
		},
	}
}

// NewViper returns a viper instance holding the defaults and wired to the
// environment. Callers may bind flags to it before calling Read.
func NewViper() *viper.Viper {
	d := Default()
	v := viper.New()

	v.SetDefault("input_path", d.InputPath)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("label_column", d.LabelColumn)
	v.SetDefault("normal_label", d.NormalLabel)
	v.SetDefault("missing_threshold", d.MissingThreshold)
	v.SetDefault("test_fraction", d.TestFraction)
	v.SetDefault("cv_folds", d.CVFolds)
	v.SetDefault("random_seed", d.RandomSeed)
	v.SetDefault("stratify_policy", d.StratifyPolicy)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("report_plot", d.ReportPlot)
	v.SetDefault("grid.n_estimators", d.Grid.NEstimators)
	v.SetDefault("grid.max_depth", d.Grid.MaxDepth)
	v.SetDefault("grid.min_samples_split", d.Grid.MinSamplesSplit)
	v.SetDefault("grid.min_samples_leaf", d.Grid.MinSamplesLeaf)
	v.SetDefault("anomaly.trees", d.Anomaly.Trees)
	v.SetDefault("anomaly.sample_size", d.Anomaly.SampleSize)
	v.SetDefault("anomaly.contamination", d.Anomaly.Contamination)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// Read loads the optional config file at path into v and decodes the
// merged settings.
func Read(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads defaults, the optional file at path and the environment.
func Load(path string) (*Config, error) {
	return Read(NewViper(), path)
}

// Validate rejects settings no run could succeed with.
func (c *Config) Validate() error {
	switch {
	case c.InputPath == "":
		return errs.Configuration("input_path is empty")
	case c.OutputDir == "":
		return errs.Configuration("output_dir is empty")
	case c.LabelColumn == "":
		return errs.Configuration("label_column is empty")
	case c.NormalLabel == "":
		return errs.Configuration("normal_label is empty")
	case c.MissingThreshold < 0 || c.MissingThreshold > 1:
		return errs.Configuration("missing_threshold %v outside [0, 1]", c.MissingThreshold)
	case !(c.TestFraction > 0 && c.TestFraction < 1):
		return errs.Configuration("test_fraction %v outside (0, 1)", c.TestFraction)
	case c.CVFolds < 2:
		return errs.Configuration("cv_folds must be >= 2, got %d", c.CVFolds)
	case c.Workers < 0:
		return errs.Configuration("workers must be >= 0, got %d", c.Workers)
	case c.Grid.Size() == 0:
		return errs.Configuration("grid has an empty dimension")
	case c.Anomaly.Trees < 1:
		return errs.Configuration("anomaly.trees must be >= 1, got %d", c.Anomaly.Trees)
	case c.Anomaly.SampleSize < 2:
		return errs.Configuration("anomaly.sample_size must be >= 2, got %d", c.Anomaly.SampleSize)
	case !(c.Anomaly.Contamination > 0 && c.Anomaly.Contamination <= 0.5):
		return errs.Configuration("anomaly.contamination %v outside (0, 0.5]", c.Anomaly.Contamination)
	}

	if _, err := split.ParsePolicy(c.StratifyPolicy); err != nil {
		return err
	}

	for _, p := range c.Grid.Combinations(c.RandomSeed) {
		if err := p.Validate(); err != nil {
			return errs.Configuration("grid: %v", err)
		}
	}
	return nil
}

// WriteYAML writes c in the config file format accepted by Load.
func (c *Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return errors.Wrap(err, "encode config")
	}
	return enc.Close()
}
