// CLI for evaluating beat and downbeat tracking models.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/nzoschke/beateval/pkg/analysis"
	"github.com/nzoschke/beateval/pkg/config"
	"github.com/nzoschke/beateval/pkg/model"
	"github.com/nzoschke/beateval/pkg/runner"
	"github.com/nzoschke/beateval/pkg/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "app",
	Short:         "Beat and downbeat tracking evaluation",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Evaluate a trained model on the test split of every dataset",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.LoadSettings(viper.New(), cmd.Flags(), cfgFile)
		if err != nil {
			return err
		}
		return runTest(cmd.Context(), settings)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <directory>",
	Short: "Analyze audio files with a trained model and create JSON sidecars",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.LoadSettings(viper.New(), cmd.Flags(), cfgFile)
		if err != nil {
			return err
		}
		force, _ := cmd.Flags().GetBool("force")
		return runAnalyze(settings, args[0], force)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve evaluation results over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		dir, _ := cmd.Flags().GetString("results")
		return server.Run(addr, dir)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (e.g., beateval.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	for _, cmd := range []*cobra.Command{testCmd, analyzeCmd} {
		cmd.Flags().String("logdir", "./", "Path to pre-trained model log directory with checkpoint.")
		cmd.Flags().Bool("cuda", false, "Run inference on GPU 0")
	}

	testCmd.Flags().Bool("preload", false, "Load every example into memory before evaluating")
	testCmd.Flags().Int("num_workers", 0, "Examples loaded ahead concurrently")
	testCmd.Flags().String("output", "results/test.json", "Results JSON path")
	for _, name := range []string{"beatles", "ballroom", "hainsworth", "rwc_popular"} {
		testCmd.Flags().String(name+"_audio_dir", "./data", "")
		testCmd.Flags().String(name+"_annot_dir", "./data", "")
	}

	analyzeCmd.Flags().BoolP("force", "f", false, "Force re-analysis even if JSON exists")

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("results", "results", "Results directory")

	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds a console logger at info, or debug when requested.
func newLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// loadModel reads hparams and opens the newest checkpoint in logdir.
func loadModel(settings *config.Settings, logger *zap.Logger) (model.Model, *config.Hparams, error) {
	hp, err := config.LoadHparams(settings.LogDir)
	if err != nil {
		return nil, nil, err
	}

	var checkpoint string
	if hp.ModelType != string(model.TypeBaseline) {
		checkpoint, err = config.FindCheckpoint(settings.LogDir)
		if err != nil {
			return nil, nil, err
		}
	}

	logger.Info("loading model",
		zap.String("model_type", hp.ModelType),
		zap.String("checkpoint", checkpoint),
		zap.Bool("cuda", settings.CUDA),
	)

	m, err := model.Open(hp, checkpoint, model.Options{CUDA: settings.CUDA})
	if err != nil {
		return nil, nil, fmt.Errorf("load model: %w", err)
	}
	return m, hp, nil
}

func runTest(ctx context.Context, settings *config.Settings) error {
	logger, err := newLogger(settings.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	m, hp, err := loadModel(settings, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	r := &runner.Runner{
		Model:    m,
		Hparams:  hp,
		Settings: settings,
		Logger:   logger,
		Out:      os.Stdout,
	}

	results, err := r.Run(ctx)
	if err != nil {
		return err
	}
	return r.Save(results, settings.Output)
}

func runAnalyze(settings *config.Settings, dir string, force bool) error {
	logger, err := newLogger(settings.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	m, hp, err := loadModel(settings, logger)
	if err != nil {
		return err
	}
	defer m.Close()

	return analysis.New(m, hp, logger).AnalyzeDir(dir, force)
}
