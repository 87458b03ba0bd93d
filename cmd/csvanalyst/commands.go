package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"csvanalyst/pkg/agent"
	"csvanalyst/pkg/agent/middleware/metrics"
	"csvanalyst/pkg/charts"
	"csvanalyst/pkg/config"
	"csvanalyst/pkg/eventlog"
	"csvanalyst/pkg/persistence"
	"csvanalyst/pkg/pipeline"
	"csvanalyst/pkg/stats"
)

// buildWorkspace maps the config onto the pipeline's run inputs.
func buildWorkspace(cfg *config.Config) pipeline.Workspace {
	statsOpts := stats.DefaultOptions()
	statsOpts.CategoricalMaxUnique = cfg.Stats.CategoricalMaxUnique
	statsOpts.OutlierIQRFactor = cfg.Stats.OutlierIQRFactor

	return pipeline.Workspace{
		CSVPath:    cfg.Input.CSVPath,
		Delimiter:  cfg.Delimiter(),
		MaxRows:    cfg.Input.MaxRows,
		SampleRows: cfg.Context.SampleRows,
		ReportPath: cfg.Output.ReportPath,
		Charts: charts.Options{
			Dir:             cfg.Output.GraphsDir,
			Format:          cfg.Output.ImageFormat,
			MaxCategories:   cfg.Charts.MaxCategories,
			MaxScatterPairs: cfg.Charts.MaxScatterPairs,
			HistogramBins:   cfg.Charts.HistogramBins,
			WidthInches:     cfg.Charts.WidthInches,
			HeightInches:    cfg.Charts.HeightInches,
		},
		Stats: statsOpts,
	}
}

// analyse runs the default pipeline. A nil client is created from the config; a given
// client is wrapped with the same middleware chain. A non-nil echo receives each stage's
// answer while it streams.
func analyse(ctx context.Context, cfg *config.Config, client agent.LLMClient, stdout, echo io.Writer) error {
	internal := metrics.NewInternalRecorder()
	var (
		recorder metrics.Recorder = internal
		prom     *metrics.PrometheusRecorder
	)
	if cfg.Metrics.Enabled {
		prom = metrics.NewPrometheusRecorder()
		recorder = metrics.Tee(internal, prom)
	}

	factory := agent.NewLLMClientFactory(cfg.LLM, recorder)
	if client == nil {
		var err error
		if client, err = factory.CreateClient(); err != nil {
			return fmt.Errorf("failed to create LLM client: %w", err)
		}
	} else {
		client = factory.Wrap(client)
	}

	executor, err := pipeline.NewExecutor(client, pipeline.ExecutorOptions{
		MaxToolTokens: cfg.Context.MaxDatasetTokens,
		MaxTokens:     cfg.LLM.MaxTokens,
		Temperature:   cfg.LLM.Temperature,
		Echo:          echo,
	})
	if err != nil {
		return err
	}

	driverOpts := []pipeline.Option{pipeline.WithProvider(cfg.LLM.Provider)}
	if cfg.History.Enabled {
		history, err := persistence.Open(cfg.History.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = history.Close() }()
		driverOpts = append(driverOpts, pipeline.WithHistory(history))
	}
	if cfg.Logs.EventLog {
		events, err := eventlog.NewWriter(cfg.Logs.Dir)
		if err != nil {
			return err
		}
		defer func() { _ = events.Close() }()
		driverOpts = append(driverOpts, pipeline.WithEventLog(events))
	}

	driver, err := pipeline.NewDriver(pipeline.DefaultStages(), executor, driverOpts...)
	if err != nil {
		return err
	}

	result, runErr := driver.Run(ctx, buildWorkspace(cfg))

	if prom != nil && cfg.Metrics.Textfile != "" {
		if err := prom.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			config.LogInfo("⚠️  %v", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	printSummary(stdout, result, internal)
	return nil
}

// initConfig writes cfg to path. An existing file is left alone.
func initConfig(cfg *config.Config, path string, w io.Writer) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check %s: %w", path, err)
	}
	if err := config.Save(cfg, path); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s\n", path)
	return nil
}

func printSummary(w io.Writer, result *pipeline.RunResult, recorder *metrics.InternalRecorder) {
	images := 0
	for _, a := range result.Artifacts {
		if a.Kind == pipeline.ArtifactImage {
			images++
		}
	}

	fmt.Fprintf(w, "Run %s completed in %s\n", result.RunID, result.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Report: %s (%d charts)\n", result.ReportPath, images)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STAGE\tREQUESTS\tPROMPT\tCOMPLETION\tDURATION")
	for _, s := range recorder.Stages() {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", s.Stage, s.RequestCount, s.PromptTokens, s.CompletionTokens, s.Duration.Round(time.Millisecond))
	}
	total := recorder.Totals()
	fmt.Fprintf(tw, "total\t%d\t%d\t%d\t%s\n", total.RequestCount, total.PromptTokens, total.CompletionTokens, total.Duration.Round(time.Millisecond))
	_ = tw.Flush()
}

func openHistory(cfg *config.Config) (*persistence.DatabaseOperations, error) {
	if !cfg.History.Enabled {
		return nil, errors.New("run history is disabled (history.enabled: false)")
	}
	return persistence.Open(cfg.History.DBPath)
}

// historyLimit bounds the runs listed by the history command.
const historyLimit = 20

func listHistory(cfg *config.Config, w io.Writer) error {
	ops, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = ops.Close() }()

	runs, err := ops.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tSTATUS\tMODEL\tCSV\tDURATION")
	for i := range runs {
		r := &runs[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			shortID(r.ID), r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Status, r.Model, r.CSVPath,
			r.Duration().Round(time.Millisecond))
	}
	return tw.Flush()
}

func showRun(cfg *config.Config, id string, w io.Writer) error {
	ops, err := openHistory(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = ops.Close() }()

	details, err := ops.GetRun(id)
	if err != nil {
		return err
	}

	r := &details.Run
	fmt.Fprintf(w, "Run:     %s\n", r.ID)
	fmt.Fprintf(w, "CSV:     %s\n", r.CSVPath)
	fmt.Fprintf(w, "Model:   %s (%s)\n", r.Model, r.Provider)
	fmt.Fprintf(w, "Started: %s\n", r.StartedAt.Local().Format(time.RFC1123))
	fmt.Fprintf(w, "Status:  %s\n", r.Status)
	if r.Error != "" {
		fmt.Fprintf(w, "Error:   %s\n", r.Error)
	}
	if r.ReportPath != "" {
		fmt.Fprintf(w, "Report:  %s\n", r.ReportPath)
	}

	for i := range details.Stages {
		s := &details.Stages[i]
		fmt.Fprintf(w, "\n== %d. %s (%s) ==\n\n", s.Position+1, s.StageID, s.Duration.Round(time.Millisecond))
		fmt.Fprintln(w, strings.TrimSpace(s.Content))
	}

	if len(details.Artifacts) > 0 {
		fmt.Fprintln(w, "\nArtifacts:")
		for _, a := range details.Artifacts {
			fmt.Fprintf(w, "  %-6s %s\n", a.Kind, a.Path)
		}
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
