package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/hed1ad/goguardml/pkg/config"
	"github.com/hed1ad/goguardml/pkg/logger"
	"github.com/hed1ad/goguardml/pkg/pipeline"
)

var (
	logMode    string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "goguardml-train",
	Short: "Train traffic classification and anomaly models",
	Long: `Offline training for goguardml: fits an application classifier and an
anomaly detector from a labeled CSV of flow features and writes the fitted
models to an output directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		mode, err := logger.ParseMode(logMode)
		if err != nil {
			return err
		}
		logger.Init(mode)
		return nil
	},
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run the training pipeline",
	RunE:  runTrain,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return cfg.WriteYAML(cmd.OutOrStdout())
	},
}

// trainFlags maps train flags to config keys.
var trainFlags = map[string]string{
	"input":           "input_path",
	"output":          "output_dir",
	"normal-label":    "normal_label",
	"seed":            "random_seed",
	"stratify-policy": "stratify_policy",
	"workers":         "workers",
	"plot":            "report_plot",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "pretty", "Log mode: debug, pretty, info, prod, test")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")

	d := config.Default()
	f := trainCmd.Flags()
	f.String("input", d.InputPath, "Labeled CSV dataset")
	f.String("output", d.OutputDir, "Directory for the fitted artifacts")
	f.String("normal-label", d.NormalLabel, "Label of benign traffic used to fit the anomaly detector")
	f.Int64("seed", d.RandomSeed, "Random seed for splitting and model fitting")
	f.String("stratify-policy", d.StratifyPolicy, "Singleton class handling: strict or fallback")
	f.Int("workers", d.Workers, "Concurrent grid-search workers (0 = all CPUs)")
	f.String("plot", d.ReportPlot, "Save a per-class score chart to this image file")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(configCmd)
}

func runTrain(cmd *cobra.Command, args []string) error {
	v := config.NewViper()
	if err := bindFlags(v, cmd.Flags()); err != nil {
		return err
	}

	cfg, err := config.Read(v, configPath)
	if err != nil {
		return err
	}

	log := logger.WithComponent("train")
	res, err := pipeline.Run(cmd.Context(), cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("Training failed")
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Best parameters: %s (cv accuracy %.4f)\n", res.BestParams, res.CVScore)
	fmt.Fprintf(out, "Test accuracy: %.4f\n\n", res.Accuracy)
	fmt.Fprintln(out, res.Report)
	fmt.Fprintf(out, "Anomaly detector: %d normal rows, threshold %.4f\n", res.AnomalyRows, res.AnomalyThreshold)
	for _, p := range res.Artifacts {
		fmt.Fprintf(out, "wrote %s\n", p)
	}
	return nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range trainFlags {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return errors.Wrapf(err, "bind --%s", name)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
