// Package config loads accountant settings from a config file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chrisconley/accountant/internal"
	"github.com/chrisconley/accountant/internal/logging"
	"github.com/chrisconley/accountant/sink"
	"github.com/chrisconley/accountant/specs"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ACCOUNTANT_KAFKA_TOPIC.
const EnvPrefix = "ACCOUNTANT"

// Sink kinds.
const (
	SinkKafka    = "kafka"
	SinkPostgres = "postgres"
	SinkLog      = "log"
)

type Config struct {
	Sink       string                     `mapstructure:"sink"`
	Accountant specs.AccountantConfigSpec `mapstructure:"accountant"`
	Kafka      specs.KafkaSinkConfigSpec  `mapstructure:"kafka"`
	Postgres   PostgresConfig             `mapstructure:"postgres"`
	Log        logging.Config             `mapstructure:"log"`
}

type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// Load reads configuration. Priority, highest first:
//  1. environment variables with the ACCOUNTANT_ prefix
//  2. the file at path, or accountant.{yaml,toml,json} in the working
//     directory when path is empty
//  3. built-in defaults
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("accountant")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Sink: v.GetString("sink"),
		Accountant: specs.AccountantConfigSpec{
			Granularity:         v.GetDuration("accountant.granularity"),
			FlushInterval:       v.GetDuration("accountant.flush_interval"),
			FlushTimeout:        v.GetDuration("accountant.flush_timeout"),
			ShutdownTimeout:     v.GetDuration("accountant.shutdown_timeout"),
			InvalidInputPolicy:  v.GetString("accountant.invalid_input_policy"),
			MaxIdentifierLength: v.GetInt("accountant.max_identifier_length"),
		},
		Kafka: specs.KafkaSinkConfigSpec{
			Brokers:      splitList(v.GetStringSlice("kafka.brokers")),
			Topic:        v.GetString("kafka.topic"),
			BatchSize:    v.GetInt("kafka.batch_size"),
			BatchTimeout: v.GetDuration("kafka.batch_timeout"),
			RequiredAcks: v.GetString("kafka.required_acks"),
			QueueSize:    v.GetInt("kafka.queue_size"),
			WriteTimeout: v.GetDuration("kafka.write_timeout"),
		},
		Postgres: PostgresConfig{
			DSN: v.GetString("postgres.dsn"),
		},
		Log: logging.Config{
			Level:       v.GetString("log.level"),
			Format:      v.GetString("log.format"),
			Output:      v.GetString("log.output"),
			Development: v.GetBool("log.development"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// splitList accepts both list values and a comma separated string, which is
// how lists arrive from the environment.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}

func applyDefaults(cfg *Config) {
	if cfg.Sink == "" {
		cfg.Sink = SinkKafka
	}
	if cfg.Accountant.Granularity == 0 {
		cfg.Accountant.Granularity = internal.DefaultGranularity
	}
	if cfg.Accountant.FlushInterval == 0 {
		cfg.Accountant.FlushInterval = cfg.Accountant.Granularity
	}
	if cfg.Accountant.FlushTimeout == 0 {
		cfg.Accountant.FlushTimeout = internal.DefaultFlushTimeout
	}
	if cfg.Accountant.ShutdownTimeout == 0 {
		cfg.Accountant.ShutdownTimeout = internal.DefaultShutdownTimeout
	}
	if cfg.Accountant.InvalidInputPolicy == "" {
		cfg.Accountant.InvalidInputPolicy = specs.InvalidInputReject
	}
	if cfg.Accountant.MaxIdentifierLength == 0 {
		cfg.Accountant.MaxIdentifierLength = internal.DefaultMaxIdentifierLength
	}

	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{"localhost:9092"}
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = specs.DefaultTopic
	}
	if cfg.Kafka.BatchSize == 0 {
		cfg.Kafka.BatchSize = sink.DefaultBatchSize
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = sink.DefaultBatchTimeout
	}
	if cfg.Kafka.RequiredAcks == "" {
		cfg.Kafka.RequiredAcks = "all"
	}
	if cfg.Kafka.QueueSize == 0 {
		cfg.Kafka.QueueSize = sink.DefaultQueueSize
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = sink.DefaultWriteTimeout
	}

	defaults := logging.DefaultConfig()
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Level
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaults.Format
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = defaults.Output
	}
}

// Validate checks the settings. Load calls it; callers that change a loaded
// Config call it again.
func (c *Config) Validate() error {
	if _, err := internal.NewAccountantConfig(c.Accountant); err != nil {
		return fmt.Errorf("accountant: %w", err)
	}

	switch c.Sink {
	case SinkKafka:
		if c.Kafka.BatchSize < 0 || c.Kafka.QueueSize < 0 {
			return fmt.Errorf("kafka.batch_size and kafka.queue_size cannot be negative")
		}
		switch strings.ToLower(c.Kafka.RequiredAcks) {
		case "none", "one", "all":
		default:
			return fmt.Errorf("kafka.required_acks must be one of none, one, all; got %q", c.Kafka.RequiredAcks)
		}
	case SinkPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when sink is %q", SinkPostgres)
		}
	case SinkLog:
	default:
		return fmt.Errorf("unknown sink %q", c.Sink)
	}
	return nil
}

