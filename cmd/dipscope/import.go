package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tunogya/dipscope/pkg/queue/nats"
	"github.com/tunogya/dipscope/pkg/store/duckdb"
)

func importCmd(a *app) *cobra.Command {
	var (
		dataDir string
		publish bool
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load the bar directory into DuckDB, directly or through NATS",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("data-dir") {
				a.cfg.Data.Dir = dataDir
			}

			ctx := cmd.Context()
			dir := a.dirProvider()
			sources, err := dir.Sources(ctx)
			if err != nil {
				return err
			}
			bars := 0
			for _, src := range sources {
				bars += len(src.Bars)
			}
			logger := a.logger.With().Int("bars", bars).Int("files", len(sources)).Logger()
			if dir.Skipped() > 0 {
				logger.Warn().Int("skipped_rows", dir.Skipped()).Msg("malformed rows skipped")
			}

			if publish {
				client, err := a.natsClient()
				if err != nil {
					return err
				}
				defer client.Close()

				if err := client.EnsureStream(ctx); err != nil {
					return err
				}
				var batches []nats.BarBatchMsg
				for _, src := range sources {
					batches = append(batches, nats.SplitBatches(src.Name, src.Bars, a.cfg.NATS.BatchSize)...)
				}
				if err := client.PublishBarBatches(ctx, batches); err != nil {
					return err
				}
				logger.Info().Int("batches", len(batches)).Str("subject", nats.SubjectBarWrite).Msg("bars published")
				return nil
			}

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			repo := duckdb.NewBarRepo(store)
			for _, src := range sources {
				rows := duckdb.SourceRows{Source: src.Name, Total: len(src.Bars), Bars: src.Bars}
				if err := repo.InsertBatch(ctx, rows); err != nil {
					return fmt.Errorf("failed to import %s: %w", src.Name, err)
				}
			}
			total, err := repo.Count(ctx, a.cfg.Data.Symbol, a.cfg.Data.Timeframe)
			if err != nil {
				return err
			}
			logger.Info().Int64("stored", total).Msg("bars imported")
			return nil
		},
	}

	cmd.Flags().StringVar(&dataDir, "data-dir", "data", "directory of bar files")
	cmd.Flags().BoolVar(&publish, "publish", false, "publish bar batches to NATS instead of writing DuckDB")
	return cmd
}
