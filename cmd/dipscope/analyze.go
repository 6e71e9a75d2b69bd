package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tunogya/dipscope/pkg/data"
	"github.com/tunogya/dipscope/pkg/pipeline"
	"github.com/tunogya/dipscope/pkg/report"
	"github.com/tunogya/dipscope/pkg/store/duckdb"
)

func analyzeCmd(a *app) *cobra.Command {
	var (
		horizon   int
		threshold float64
		dataDir   string
		source    string
		outDir    string
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Derive features, select dips and fit the dip regression",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("horizon") {
				a.cfg.Analysis.Horizon = horizon
			}
			if flags.Changed("dip-threshold") {
				a.cfg.Analysis.DipThreshold = threshold
			}
			if flags.Changed("data-dir") {
				a.cfg.Data.Dir = dataDir
			}
			if flags.Changed("source") {
				a.cfg.Data.Source = source
			}
			if flags.Changed("out") {
				a.cfg.Report.OutDir = outDir
			}
			if err := a.cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			ctx := cmd.Context()
			var provider data.BarProvider
			switch a.cfg.Data.Source {
			case "duckdb":
				client, err := a.openStore(ctx)
				if err != nil {
					return err
				}
				defer client.Close()
				provider = duckdb.NewBarRepo(client)
			default:
				dir := a.dirProvider()
				defer func() {
					a.logger.Info().Int("files", dir.Files()).Int("skipped_rows", dir.Skipped()).Msg("csv directory loaded")
				}()
				provider = dir
			}

			runner := pipeline.NewRunner(provider, a.cfg.Data.Source, a.logger, nil)
			start := time.Now()
			bars, err := runner.Load(ctx, a.cfg.Data.Symbol, a.cfg.Data.Timeframe)
			if err != nil {
				return err
			}
			result, err := runner.Analyze(bars, a.cfg.Params(), start)
			if err != nil {
				return err
			}

			report.WriteSummary(os.Stdout, result, a.cfg.Analysis.FeeRate)

			files, err := report.Render(result, report.Config{
				OutDir:         a.cfg.Report.OutDir,
				HistogramRange: a.cfg.Report.HistogramRange,
				HistogramBins:  a.cfg.Report.HistogramBins,
				WidthInches:    a.cfg.Report.WidthInches,
				HeightInches:   a.cfg.Report.HeightInches,
				FeeRate:        a.cfg.Analysis.FeeRate,
			})
			if err != nil {
				return err
			}
			a.logger.Info().Str("histogram", files.Histogram).Str("scatter", files.Scatter).Msg("report written")
			return nil
		},
	}

	cmd.Flags().IntVar(&horizon, "horizon", 1, "forward horizon in bars")
	cmd.Flags().Float64Var(&threshold, "dip-threshold", -0.01, "volatility below which a bar is a dip")
	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory of bar files")
	cmd.Flags().StringVar(&source, "source", "csv", "bar source: csv or duckdb")
	cmd.Flags().StringVar(&outDir, "out", "out", "directory for report images")
	return cmd
}
