// Command simple-accountant records a few usages and shuts down, delivering
// them to the configured sink.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/chrisconley/accountant/accountant"
	"github.com/chrisconley/accountant/config"
	"github.com/chrisconley/accountant/internal/logging"
	"github.com/chrisconley/accountant/sink"
	"github.com/chrisconley/accountant/specs"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile         string
		bootstrapServer string
		topic           string
		sinkKind        string
		postgresDSN     string
	)

	cmd := &cobra.Command{
		Use:   "simple-accountant",
		Short: "Record sample usage and flush it on shutdown",
		Long: `simple-accountant records four usages of "my_resource" by three
features and shuts down, which delivers the open bucket.

Examples:
  simple-accountant --bootstrap-server localhost:9092
  simple-accountant --sink log
  simple-accountant --sink postgres --postgres-dsn postgres://localhost/usage?sslmode=disable`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("bootstrap-server") {
				cfg.Kafka.Brokers = []string{bootstrapServer}
			}
			if cmd.Flags().Changed("topic") {
				cfg.Kafka.Topic = topic
			}
			if cmd.Flags().Changed("sink") {
				cfg.Sink = sinkKind
			}
			if cmd.Flags().Changed("postgres-dsn") {
				cfg.Postgres.DSN = postgresDSN
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flags: %w", err)
			}

			logger, err := logging.New(cfg.Log)
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			return run(cmd.Context(), cfg, logger)
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is ./accountant.yaml)")
	cmd.Flags().StringVarP(&bootstrapServer, "bootstrap-server", "b", "", "Kafka broker server in the host:port form")
	cmd.Flags().StringVarP(&topic, "topic", "t", specs.DefaultTopic, "Kafka topic to produce onto")
	cmd.Flags().StringVar(&sinkKind, "sink", config.SinkKafka, "sink to deliver to: kafka, postgres or log")
	cmd.Flags().StringVar(&postgresDSN, "postgres-dsn", "", "Postgres connection string for the postgres sink")
	return cmd
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	opts := []accountant.Option{
		accountant.WithLogger(logger),
		accountant.WithErrorHandler(func(err error) {
			logger.Warn("usage accounting error", zap.Error(err))
		}),
	}

	var (
		a   *accountant.Accountant
		err error
	)
	switch cfg.Sink {
	case config.SinkKafka:
		a, err = accountant.NewWithKafka(cfg.Accountant, cfg.Kafka, opts...)
	case config.SinkPostgres:
		var pg *sink.Postgres
		pg, err = sink.OpenPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		if err = pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return err
		}
		a, err = accountant.New(pg, cfg.Accountant, opts...)
	case config.SinkLog:
		a, err = accountant.New(sink.NewLog(logger), cfg.Accountant, opts...)
	default:
		err = fmt.Errorf("unknown sink %q", cfg.Sink)
	}
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}

	for _, feature := range []string{"my_feature", "my_feature", "another_feature", "yet_another_feature"} {
		if err := a.Record("my_resource", feature, specs.UnitBytes, 100); err != nil {
			return err
		}
	}

	logger.Info("recorded sample usage", zap.Int("live_slots", a.Stats().LiveSlots))
	return a.Shutdown(cfg.Accountant.ShutdownTimeout)
}
