// Command csvanalyst turns a CSV file into a markdown analysis report with charts.
//
// Usage:
//
//	csvanalyst [flags] [run]        analyse the configured CSV file
//	csvanalyst [flags] history      list recent runs
//	csvanalyst [flags] show <id>    print the stage results of a run
//	csvanalyst [flags] init         write the effective config to -config
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"csvanalyst/pkg/config"
	"csvanalyst/pkg/logx"
	"csvanalyst/pkg/version"
)

// cliOptions holds the parsed command line.
type cliOptions struct {
	configPath  string
	csvPath     string
	reportPath  string
	graphsDir   string
	model       string
	command     string
	args        []string
	tee         bool
	stream      bool
	showVersion bool
}

var errUsage = errors.New("usage error")

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	if opts.showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx, opts, os.Stdout)
	stop()

	if closeErr := logx.CloseLogFile(); closeErr != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", closeErr)
	}
	os.Exit(exitCode)
}

func parseArgs(args []string, output io.Writer) (cliOptions, error) {
	var opts cliOptions

	fs := flag.NewFlagSet("csvanalyst", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.configPath, "config", config.DefaultConfigFile, "Path to the YAML config file")
	fs.StringVar(&opts.csvPath, "csv", "", "CSV file to analyse (overrides input.csv_path)")
	fs.StringVar(&opts.reportPath, "out", "", "Report path (overrides output.report_path)")
	fs.StringVar(&opts.graphsDir, "graphs", "", "Chart directory (overrides output.graphs_dir)")
	fs.StringVar(&opts.model, "model", "", "Model name (overrides llm.model)")
	fs.BoolVar(&opts.tee, "tee", false, "Output logs to both console and file when logs.file is set")
	fs.BoolVar(&opts.stream, "stream", false, "Print each stage's answer as it is generated")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	fs.Usage = func() {
		fmt.Fprintf(output, "Usage: csvanalyst [flags] [run | history | show <run-id> | init]\n\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	rest := fs.Args()
	opts.command = "run"
	if len(rest) > 0 {
		opts.command, opts.args = rest[0], rest[1:]
	}

	switch opts.command {
	case "run", "history", "init":
		if len(opts.args) > 0 {
			return opts, fmt.Errorf("%w: %s takes no arguments", errUsage, opts.command)
		}
	case "show":
		if len(opts.args) != 1 {
			return opts, fmt.Errorf("%w: show needs exactly one run ID", errUsage)
		}
	default:
		return opts, fmt.Errorf("%w: unknown command %q", errUsage, opts.command)
	}
	return opts, nil
}

// loadConfig reads the config file and merges the command line overrides.
func loadConfig(opts cliOptions) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.csvPath != "" {
		cfg.Input.CSVPath = opts.csvPath
	}
	if opts.reportPath != "" {
		cfg.Output.ReportPath = opts.reportPath
	}
	if opts.graphsDir != "" {
		cfg.Output.GraphsDir = opts.graphsDir
	}
	if opts.model != "" {
		if err := cfg.SetModel(opts.model); err != nil {
			return config.Config{}, fmt.Errorf("invalid -model: %w", err)
		}
	}
	return cfg, nil
}

// run contains the main application logic and returns an exit code.
// This allows defers to execute before os.Exit is called.
func run(ctx context.Context, opts cliOptions, stdout io.Writer) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	if cfg.Logs.File {
		if err := logx.InitializeLogFile(cfg.Logs.Dir, opts.tee); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize log file: %v\n", err)
			return 1
		}
	}

	switch opts.command {
	case "history":
		err = listHistory(&cfg, stdout)
	case "show":
		err = showRun(&cfg, opts.args[0], stdout)
	case "init":
		err = initConfig(&cfg, opts.configPath, stdout)
	default:
		var echo io.Writer
		if opts.stream {
			echo = stdout
		}
		if err = handleSecretsDecryption("."); err == nil {
			err = analyse(ctx, &cfg, nil, stdout, echo)
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "csvanalyst failed: %v\n", err)
		return 1
	}
	return 0
}
