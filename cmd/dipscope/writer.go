package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tunogya/dipscope/pkg/metrics"
	"github.com/tunogya/dipscope/pkg/queue/nats"
	"github.com/tunogya/dipscope/pkg/server"
	"github.com/tunogya/dipscope/pkg/store/duckdb"
)

const writerConsumer = "bar-writer"

func writerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "writer",
		Short: "Consume bar batches from NATS and upsert them into DuckDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := a.logger.With().Str("component", "writer").Logger()
			logger.Info().Str("nats", a.cfg.NATS.URL).Str("duckdb", a.cfg.DuckDB.Path).Msg("starting writer")

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			repo := duckdb.NewBarRepo(store)

			client, err := a.natsClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.EnsureStream(ctx); err != nil {
				return err
			}

			recorder := metrics.New(prometheus.DefaultRegisterer)
			onTerm := func(err error) {
				recorder.RecordBatchError()
				logger.Error().Err(err).Msg("dropping bar batch")
			}
			consumer, err := client.ConsumeBarBatches(ctx, writerConsumer, func(ctx context.Context, batch *nats.BarBatchMsg) error {
				rows := duckdb.SourceRows{
					Source: batch.Source,
					Offset: batch.Offset,
					Total:  batch.Total,
					Bars:   batch.Bars,
				}
				if err := repo.InsertBatch(ctx, rows); err != nil {
					recorder.RecordBatchError()
					logger.Error().Err(err).Str("source", batch.Source).Int("offset", batch.Offset).Msg("failed to insert bars")
					return err
				}
				recorder.RecordBarsWritten(len(batch.Bars))
				logger.Debug().Str("source", batch.Source).Int("offset", batch.Offset).Int("bars", len(batch.Bars)).Msg("inserted bar batch")
				return nil
			}, onTerm)
			if err != nil {
				return fmt.Errorf("failed to subscribe to bar writes: %w", err)
			}
			defer consumer.Stop()

			logger.Info().Msg("writer started, waiting for messages")
			srv := server.New(repo, a.serverOptions(), a.logger, recorder, prometheus.DefaultGatherer)
			err = srv.Start(ctx, a.cfg.Server.Addr)
			logger.Info().Msg("shutting down writer")
			return err
		},
	}
}
