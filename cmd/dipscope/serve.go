package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/tunogya/dipscope/pkg/metrics"
	"github.com/tunogya/dipscope/pkg/server"
	"github.com/tunogya/dipscope/pkg/store/duckdb"
)

func serveCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve dip checks and analysis over the DuckDB store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Server.Addr = addr
			}

			ctx := cmd.Context()
			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			recorder := metrics.New(prometheus.DefaultRegisterer)
			srv := server.New(duckdb.NewBarRepo(store), a.serverOptions(), a.logger, recorder, prometheus.DefaultGatherer)
			return srv.Start(ctx, a.cfg.Server.Addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func (a *app) serverOptions() server.Options {
	return server.Options{
		Source:    "duckdb",
		Symbol:    a.cfg.Data.Symbol,
		Timeframe: a.cfg.Data.Timeframe,
		Params:    a.cfg.Params(),
		TargetN:   a.cfg.Detector.TargetN,
	}
}
