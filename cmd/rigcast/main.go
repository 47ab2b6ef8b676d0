package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/synaptica-ai/rigcast/pkg/common/config"
	"github.com/synaptica-ai/rigcast/pkg/common/logger"
	"github.com/synaptica-ai/rigcast/pkg/common/models"
	"github.com/synaptica-ai/rigcast/pkg/ingestion"
	"github.com/synaptica-ai/rigcast/pkg/pipeline"
	"github.com/synaptica-ai/rigcast/pkg/runs"
	"github.com/synaptica-ai/rigcast/pkg/serving/predictor"
	"github.com/synaptica-ai/rigcast/pkg/storage"
)

// options holds the flags shared by every subcommand.
type options struct {
	rawDir      string
	interimDir  string
	artifactDir string
	runFile     string
	order       string
	marker      string
	logLevel    string

	features      []string
	trainFraction float64
	lookback      int
	lstmUnits     int
	learningRate  float64
	epochs        int
	batchSize     int
	patience      int
	seed          int64
	runID         string

	feature string
	horizon int

	server string
	wait   bool
}

func newRootCmd() *cobra.Command {
	cfg := config.Load()
	opts := &options{}

	root := &cobra.Command{
		Use:           "rigcast",
		Short:         "rigcast - sensor log ingestion and LSTM forecasting pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.InitWithLevel(opts.logLevel)
			logger.Log.SetOutput(cmd.ErrOrStderr())
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&opts.rawDir, "raw-dir", cfg.RawDataDir, "Directory of raw sensor log files")
	pf.StringVar(&opts.interimDir, "interim-dir", cfg.InterimDataDir, "Directory for the interim and split tables")
	pf.StringVar(&opts.artifactDir, "artifact-dir", cfg.ArtifactDir, "Directory for scaler, model and metrics artifacts")
	pf.StringVar(&opts.runFile, "run-file", cfg.RunFile, "YAML file with run parameters")
	pf.StringVar(&opts.order, "order", cfg.IngestOrder, "Directory visiting order: name, modtime or listing")
	pf.StringVar(&opts.marker, "marker", cfg.RawMarker, "Substring that marks a raw data file")
	pf.StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "info"), "Log level")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Combine raw files into the interim table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts)
		},
	}
	splitCmd := &cobra.Command{
		Use:   "split",
		Short: "Split the interim table into train and test tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSplit(cmd, opts)
		},
	}
	trainCmd := &cobra.Command{
		Use:   "train",
		Short: "Train one model per feature on the train table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(cmd, opts)
		},
	}
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Ingest, split and train in one pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, opts)
		},
	}
	predictCmd := &cobra.Command{
		Use:   "predict [values...]",
		Short: "Forecast a feature from its most recent observations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPredict(cmd, opts, args)
		},
	}
	submitCmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a run on a training service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, opts)
		},
	}

	splitCmd.Flags().Float64Var(&opts.trainFraction, "train-fraction", 0, "Fraction of rows in the train table")
	runCmd.Flags().Float64Var(&opts.trainFraction, "train-fraction", 0, "Fraction of rows in the train table")
	for _, c := range []*cobra.Command{trainCmd, runCmd, submitCmd} {
		f := c.Flags()
		f.StringSliceVar(&opts.features, "features", nil, "Features to train, comma separated")
		f.IntVar(&opts.lookback, "lookback", 0, "Window length")
		f.IntVar(&opts.lstmUnits, "lstm-units", 0, "Hidden units of the LSTM layer")
		f.Float64Var(&opts.learningRate, "learning-rate", 0, "Initial RMSprop learning rate")
		f.IntVar(&opts.epochs, "epochs", 0, "Maximum epochs")
		f.IntVar(&opts.batchSize, "batch-size", 0, "Mini-batch size")
		f.IntVar(&opts.patience, "patience", 0, "Early stopping patience")
		f.Int64Var(&opts.seed, "seed", 0, "Weight initialisation seed")
	}
	for _, c := range []*cobra.Command{trainCmd, runCmd} {
		c.Flags().StringVar(&opts.runID, "run-id", "", "Run identifier used for the artifact directory")
	}
	submitCmd.Flags().StringVar(&opts.server, "server", envOr("TRAINING_SERVICE_URL", "http://localhost:"+cfg.TrainingPort), "Training service base URL")
	submitCmd.Flags().BoolVar(&opts.wait, "wait", false, "Poll until the run finishes")
	submitCmd.Flags().Float64Var(&opts.trainFraction, "train-fraction", 0, "Fraction of rows in the train table")

	predictCmd.Flags().StringVar(&opts.feature, "feature", "", "Feature to forecast")
	predictCmd.Flags().IntVar(&opts.horizon, "horizon", 1, "Number of steps to forecast")
	_ = predictCmd.MarkFlagRequired("feature")

	root.AddCommand(ingestCmd, splitCmd, trainCmd, runCmd, predictCmd, submitCmd)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// resolveParams loads the run file and applies every flag the user set on
// top of it.
func resolveParams(cmd *cobra.Command, opts *options) (config.RunParams, error) {
	p, err := config.LoadRunFile(opts.runFile)
	if err != nil {
		return config.RunParams{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("features") {
		p.Features = opts.features
	}
	if flags.Changed("train-fraction") {
		p.TrainFraction = opts.trainFraction
	}
	if flags.Changed("lookback") {
		p.Lookback = opts.lookback
	}
	if flags.Changed("lstm-units") {
		p.LSTMUnits = opts.lstmUnits
	}
	if flags.Changed("learning-rate") {
		p.LearningRate = opts.learningRate
	}
	if flags.Changed("epochs") {
		p.Epochs = opts.epochs
	}
	if flags.Changed("batch-size") {
		p.BatchSize = opts.batchSize
	}
	if flags.Changed("patience") {
		p.Patience = opts.patience
	}
	if flags.Changed("seed") {
		p.Seed = opts.seed
	}
	return p, nil
}

func newRunner(opts *options) (*pipeline.Runner, error) {
	order, err := ingestion.ParseOrder(opts.order)
	if err != nil {
		return nil, err
	}
	store, err := storage.NewArtifactStore(opts.interimDir, opts.artifactDir)
	if err != nil {
		return nil, err
	}
	ing := ingestion.NewIngestor(ingestion.Options{Marker: opts.marker, Order: order})
	return pipeline.NewRunner(ing, store, storage.NewFileRegistry(store)), nil
}

func runIngest(cmd *cobra.Command, opts *options) error {
	runner, err := newRunner(opts)
	if err != nil {
		return err
	}
	res, err := runner.Ingest(cmd.Context(), opts.rawDir)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"files":   res.Files,
		"columns": res.Columns(),
		"rows":    res.Table.Len(),
	})
}

func runSplit(cmd *cobra.Command, opts *options) error {
	p, err := resolveParams(cmd, opts)
	if err != nil {
		return err
	}
	runner, err := newRunner(opts)
	if err != nil {
		return err
	}
	train, test, err := runner.Split(p.TrainFraction)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"train_rows": train.Len(),
		"test_rows":  test.Len(),
	})
}

func runTrain(cmd *cobra.Command, opts *options) error {
	p, err := resolveParams(cmd, opts)
	if err != nil {
		return err
	}
	if err := pipeline.Validate(p); err != nil {
		return err
	}
	runner, err := newRunner(opts)
	if err != nil {
		return err
	}
	reports, err := runner.Train(cmd.Context(), runID(opts), p)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), featureSummaries(reports))
}

func runPipeline(cmd *cobra.Command, opts *options) error {
	p, err := resolveParams(cmd, opts)
	if err != nil {
		return err
	}
	runner, err := newRunner(opts)
	if err != nil {
		return err
	}
	report, err := runner.Run(cmd.Context(), pipeline.Request{RunID: runID(opts), RawDir: opts.rawDir, Params: p})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"run_id":     report.RunID,
		"files":      len(report.Files),
		"rows":       report.Rows,
		"train_rows": report.TrainRows,
		"test_rows":  report.TestRows,
		"features":   featureSummaries(report.Features),
	})
}

func runPredict(cmd *cobra.Command, opts *options, args []string) error {
	recent := make([]float64, 0, len(args))
	for _, arg := range args {
		v, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return fmt.Errorf("invalid observation %q: %w", arg, err)
		}
		recent = append(recent, v)
	}
	store, err := storage.NewArtifactStore(opts.interimDir, opts.artifactDir)
	if err != nil {
		return err
	}
	fc, err := predictor.NewPredictor(nil, store).Forecast(cmd.Context(), opts.feature, recent, opts.horizon)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]interface{}{
		"feature": fc.Feature,
		"values":  fc.Values,
		"run_id":  fc.Set.RunID,
		"model":   fc.Set.ModelPath,
	})
}

// runSubmit sends only the flags the user set; the service fills in the rest
// from its own defaults.
func runSubmit(cmd *cobra.Command, opts *options) error {
	req := models.RunRequest{Trigger: "cli"}
	if cmd.Flags().Changed("raw-dir") {
		req.RawDir = opts.rawDir
	}
	if cmd.Flags().Changed("features") {
		req.Features = opts.features
	}
	setFloat(cmd, "train-fraction", opts.trainFraction, &req.TrainFraction)
	setInt(cmd, "lookback", opts.lookback, &req.Lookback)
	setInt(cmd, "lstm-units", opts.lstmUnits, &req.LSTMUnits)
	setFloat(cmd, "learning-rate", opts.learningRate, &req.LearningRate)
	setInt(cmd, "epochs", opts.epochs, &req.Epochs)
	setInt(cmd, "batch-size", opts.batchSize, &req.BatchSize)
	setInt(cmd, "patience", opts.patience, &req.Patience)
	if cmd.Flags().Changed("seed") {
		seed := opts.seed
		req.Seed = &seed
	}

	client := runs.NewClient(opts.server, 30*time.Second)
	run, err := client.Submit(cmd.Context(), req)
	if err != nil {
		return err
	}
	if opts.wait {
		run, err = client.Wait(cmd.Context(), run.ID, 2*time.Second)
		if err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), run)
}

func setInt(cmd *cobra.Command, name string, v int, dst **int) {
	if cmd.Flags().Changed(name) {
		*dst = &v
	}
}

func setFloat(cmd *cobra.Command, name string, v float64, dst **float64) {
	if cmd.Flags().Changed(name) {
		*dst = &v
	}
}

func featureSummaries(reports []pipeline.FeatureReport) map[string]interface{} {
	out := make(map[string]interface{}, len(reports))
	for _, fr := range reports {
		summary := fr.History.Summary(fr.BestEpoch)
		summary["stopped_early"] = fr.Stopped
		summary["model"] = fr.Artifacts.ModelPath
		out[fr.Feature] = summary
	}
	return out
}

func runID(opts *options) string {
	if opts.runID != "" {
		return opts.runID
	}
	return uuid.New().String()
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
