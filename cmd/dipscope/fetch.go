package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tunogya/dipscope/pkg/data"
)

func fetchCmd(a *app) *cobra.Command {
	var (
		interval string
		limit    int
		output   string
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download recent klines from Binance into the data directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol := a.cfg.Data.Symbol
			if output == "" {
				output = filepath.Join(a.cfg.Data.Dir, fmt.Sprintf("%s-%s.csv.gz", symbol, interval))
			}

			bars, err := data.NewKlineFetcher().Fetch(cmd.Context(), symbol, interval, limit)
			if err != nil {
				return err
			}
			if err := data.WriteBarFile(output, bars); err != nil {
				return err
			}
			a.logger.Info().Str("symbol", symbol).Str("interval", interval).Int("bars", len(bars)).Str("path", output).Msg("klines saved")
			return nil
		},
	}
	cmd.Flags().StringVar(&interval, "interval", "1m", "kline interval (1m, 5m, 1h, 1d, ...)")
	cmd.Flags().IntVar(&limit, "limit", 1000, "number of klines to fetch, paged 1000 at a time")
	cmd.Flags().StringVar(&output, "output", "", "output file (defaults to <data.dir>/<symbol>-<interval>.csv.gz)")
	return cmd
}
