// Command simple-produce formats one usage message and produces it straight
// through the Kafka sink, bypassing aggregation.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chrisconley/accountant/internal"
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
		bootstrapServer string
		topic           string
		timeout         time.Duration
	)

	cmd := &cobra.Command{
		Use:          "simple-produce",
		Short:        "Produce a single usage message to Kafka",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New(logging.DefaultConfig())
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			k, err := sink.NewKafka(specs.KafkaSinkConfigSpec{
				Brokers: []string{bootstrapServer},
				Topic:   topic,
			}, sink.WithKafkaLogger(logger))
			if err != nil {
				return err
			}

			payload, err := internal.FormatSpec(specs.UsageRecordSpec{
				Resource:    "foo",
				Feature:     "bar",
				Unit:        specs.UnitBytes,
				BucketStart: time.Unix(120, 0).UTC(),
				BucketEnd:   time.Unix(180, 0).UTC(),
				Quantity:    42,
			})
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := k.Submit(ctx, payload); err != nil {
				return fmt.Errorf("failed to produce message: %w", err)
			}
			if err := k.Flush(ctx); err != nil {
				return fmt.Errorf("failed to produce message: %w", err)
			}
			logger.Info("produced usage message", zap.String("topic", topic), zap.ByteString("payload", payload))
			return k.Close()
		},
	}

	cmd.Flags().StringVarP(&bootstrapServer, "bootstrap-server", "b", "", "Kafka broker server in the host:port form")
	cmd.Flags().StringVarP(&topic, "topic", "t", "", "Kafka topic to produce onto")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for delivery")
	_ = cmd.MarkFlagRequired("bootstrap-server")
	_ = cmd.MarkFlagRequired("topic")
	return cmd
}
