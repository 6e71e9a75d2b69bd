package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tunogya/dipscope/pkg/config"
	"github.com/tunogya/dipscope/pkg/data"
	"github.com/tunogya/dipscope/pkg/logger"
	"github.com/tunogya/dipscope/pkg/queue/nats"
	"github.com/tunogya/dipscope/pkg/store/duckdb"
)

// app carries state shared by every subcommand
type app struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
	closer io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, &app{}, os.Args[1:]); err != nil {
		stop()
		os.Exit(1)
	}
}

// execute runs the command line and releases the log file whether or not
// the command succeeded. A failure is logged before the file is closed.
func execute(ctx context.Context, a *app, args []string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err != nil {
		log.Error().Err(err).Msg("dipscope failed")
	}
	if cerr := a.close(); cerr != nil {
		fmt.Fprintf(os.Stderr, "failed to close log output: %v\n", cerr)
		if err == nil {
			err = cerr
		}
	}
	return err
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "dipscope",
		Short:         "Study price behaviour after sharp dips",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to YAML config file")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override log level")

	root.AddCommand(
		analyzeCmd(a),
		importCmd(a),
		writerCmd(a),
		serveCmd(a),
		fetchCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	l, closer, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	a.cfg, a.logger, a.closer = cfg, l, closer
	return nil
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}

func (a *app) dirProvider() *data.DirProvider {
	return data.NewDirProvider(data.DirConfig{
		Dir:         a.cfg.Data.Dir,
		Pattern:     a.cfg.Data.Pattern,
		Symbol:      a.cfg.Data.Symbol,
		Timeframe:   a.cfg.Data.Timeframe,
		Concurrency: a.cfg.Data.Concurrency,
	}, a.logger)
}

// openStore opens the DuckDB file and makes sure the schema exists
func (a *app) openStore(ctx context.Context) (*duckdb.Client, error) {
	client, err := duckdb.NewClient(ctx, a.cfg.DuckDB.Path)
	if err != nil {
		return nil, err
	}
	if err := duckdb.InitializeSchema(ctx, client); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	a.logger.Debug().Str("path", client.Path()).Msg("duckdb ready")
	return client, nil
}

func (a *app) natsClient() (*nats.Client, error) {
	return nats.NewClient(nats.Config{
		URL:           a.cfg.NATS.URL,
		StreamName:    a.cfg.NATS.Stream,
		RetryAttempts: a.cfg.NATS.RetryAttempts,
		RetryDelay:    a.cfg.NATS.RetryDelay,
		NakDelay:      a.cfg.NATS.NakDelay,
	}, a.logger)
}
