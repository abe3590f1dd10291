package internal

import (
	"fmt"
	"time"

	"github.com/chrisconley/accountant/specs"
)

const (
	DefaultFlushTimeout    = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
)

type AccountantConfig struct {
	granularity         time.Duration
	flushInterval       time.Duration
	flushTimeout        time.Duration
	shutdownTimeout     time.Duration
	invalidInputPolicy  InvalidInputPolicy
	maxIdentifierLength int
}

func NewAccountantConfig(spec specs.AccountantConfigSpec) (AccountantConfig, error) {
	granularity, err := positiveOrDefault("granularity", spec.Granularity, DefaultGranularity)
	if err != nil {
		return AccountantConfig{}, err
	}

	flushInterval, err := positiveOrDefault("flush interval", spec.FlushInterval, granularity)
	if err != nil {
		return AccountantConfig{}, err
	}
	if flushInterval > granularity {
		return AccountantConfig{}, fmt.Errorf("flush interval (%s) cannot exceed granularity (%s)", flushInterval, granularity)
	}

	flushTimeout, err := positiveOrDefault("flush timeout", spec.FlushTimeout, DefaultFlushTimeout)
	if err != nil {
		return AccountantConfig{}, err
	}

	shutdownTimeout, err := positiveOrDefault("shutdown timeout", spec.ShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return AccountantConfig{}, err
	}

	policy, err := NewInvalidInputPolicy(spec.InvalidInputPolicy)
	if err != nil {
		return AccountantConfig{}, fmt.Errorf("invalid input policy: %w", err)
	}

	maxLength := spec.MaxIdentifierLength
	if maxLength < 0 {
		return AccountantConfig{}, fmt.Errorf("max identifier length cannot be negative")
	}
	if maxLength == 0 {
		maxLength = DefaultMaxIdentifierLength
	}

	return AccountantConfig{
		granularity:         granularity,
		flushInterval:       flushInterval,
		flushTimeout:        flushTimeout,
		shutdownTimeout:     shutdownTimeout,
		invalidInputPolicy:  policy,
		maxIdentifierLength: maxLength,
	}, nil
}

func positiveOrDefault(name string, value, fallback time.Duration) (time.Duration, error) {
	if value < 0 {
		return 0, fmt.Errorf("%s cannot be negative", name)
	}
	if value == 0 {
		return fallback, nil
	}
	return value, nil
}

func (c AccountantConfig) Granularity() time.Duration {
	return c.granularity
}

func (c AccountantConfig) FlushInterval() time.Duration {
	return c.flushInterval
}

func (c AccountantConfig) FlushTimeout() time.Duration {
	return c.flushTimeout
}

func (c AccountantConfig) ShutdownTimeout() time.Duration {
	return c.shutdownTimeout
}

func (c AccountantConfig) InvalidInputPolicy() InvalidInputPolicy {
	return c.invalidInputPolicy
}

func (c AccountantConfig) MaxIdentifierLength() int {
	return c.maxIdentifierLength
}

type InvalidInputPolicy struct {
	value string
}

func NewInvalidInputPolicy(value string) (InvalidInputPolicy, error) {
	switch value {
	case "":
		return InvalidInputPolicy{value: specs.InvalidInputReject}, nil
	case specs.InvalidInputReject, specs.InvalidInputDrop:
		return InvalidInputPolicy{value: value}, nil
	default:
		return InvalidInputPolicy{}, fmt.Errorf("unknown policy %q", value)
	}
}

func (p InvalidInputPolicy) ToString() string {
	return p.value
}

func (p InvalidInputPolicy) IsDrop() bool {
	return p.value == specs.InvalidInputDrop
}
