package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jalad-shrimali/ffiec-income/config"
	"github.com/jalad-shrimali/ffiec-income/output"
	"github.com/jalad-shrimali/ffiec-income/pipeline"
)

type cliOptions struct {
	configPath  string
	outDir      string
	sqlitePath  string
	summaryPath string
	pushgateway string
	debug       bool
}

func newRootCmd() *cobra.Command {
	var opts cliOptions

	cmd := &cobra.Command{
		Use:   "ffiec-income [dev|prod]",
		Short: "Build the FFIEC tract income NDJSON file",
		Long: "Downloads the FFIEC census flat file and its data dictionary, derives\n" +
			"census_tract_geoid and low_income_community per tract and writes\n" +
			"ffiec_income_data.ndjson.gz (ma_ffiec_income_data.ndjson.gz in dev mode).",
		Args:          cobra.MaximumNArgs(1),
		ValidArgs:     []string{string(output.Dev), string(output.Prod)},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := output.Prod
			if len(args) == 1 {
				m, err := output.ParseMode(args[0])
				if err != nil {
					return err
				}
				mode = m
			}
			return runIncome(cmd.Context(), mode, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "YAML config file (defaults to the FFIEC 2022 release)")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", "", "Directory for the NDJSON output (overrides output.dir)")
	cmd.Flags().StringVar(&opts.sqlitePath, "sqlite", "", "Also write tracts to this SQLite database")
	cmd.Flags().StringVar(&opts.summaryPath, "summary", "", "Also write an xlsx run summary to this path")
	cmd.Flags().StringVar(&opts.pushgateway, "pushgateway", "", "Push run metrics to this Prometheus Pushgateway URL")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Human-readable debug logging")
	return cmd
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func runIncome(ctx context.Context, mode output.Mode, opts cliOptions) error {
	logger, err := newLogger(opts.debug)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.outDir != "" {
		cfg.Output.Dir = opts.outDir
	}

	_, err = pipeline.Run(ctx, cfg, pipeline.Options{
		Mode:        mode,
		SQLitePath:  opts.sqlitePath,
		SummaryPath: opts.summaryPath,
		Pushgateway: opts.pushgateway,
	}, logger)
	return err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ffiec-income:", err)
		stop()
		os.Exit(1)
	}
}
