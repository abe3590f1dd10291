package specs

import "time"

// DefaultTopic is the topic usage messages are produced to when none is set.
const DefaultTopic = "shared-resources-usage"

// KafkaSinkConfigSpec configures the Kafka sink.
type KafkaSinkConfigSpec struct {
	// Bootstrap brokers in host:port form. At least one is required.
	Brokers []string `json:"brokers" mapstructure:"brokers"`

	// Destination topic. Default DefaultTopic.
	Topic string `json:"topic" mapstructure:"topic"`

	// Maximum number of messages written per produce request. Default 100.
	BatchSize int `json:"batchSize" mapstructure:"batch_size"`

	// Maximum time the writer waits to fill a batch. Default 10ms.
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batch_timeout"`

	// Acknowledgement level: "none", "one" or "all". Default "all".
	RequiredAcks string `json:"requiredAcks" mapstructure:"required_acks"`

	// Capacity of the submission queue in messages. Default 10000.
	QueueSize int `json:"queueSize" mapstructure:"queue_size"`

	// Timeout for a single produce request. Default 10s.
	WriteTimeout time.Duration `json:"writeTimeout" mapstructure:"write_timeout"`
}
