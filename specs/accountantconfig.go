package specs

import "time"

// Invalid input policies accepted by AccountantConfigSpec.InvalidInputPolicy.
const (
	InvalidInputReject = "reject"
	InvalidInputDrop   = "drop"
)

// AccountantConfigSpec configures the aggregation and flush engine.
//
// Zero values select defaults, so an empty value is a valid configuration.
type AccountantConfigSpec struct {
	// Width of a time bucket. Timestamps are truncated down to a multiple of it.
	//
	// Default 60s. Rarely changed: downstream consumers assume a stable
	// granularity per resource.
	Granularity time.Duration `json:"granularity" mapstructure:"granularity"`

	// How often closed buckets are drained and submitted. Default: Granularity.
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flush_interval"`

	// Upper bound for one periodic flush cycle, including sink submission.
	// Default 10s.
	FlushTimeout time.Duration `json:"flushTimeout" mapstructure:"flush_timeout"`

	// Upper bound for the final flush performed by Shutdown. Default 5s.
	ShutdownTimeout time.Duration `json:"shutdownTimeout" mapstructure:"shutdown_timeout"`

	// What Record does with invalid input: "reject" returns an error to the
	// caller, "drop" logs and discards it. Default "reject".
	InvalidInputPolicy string `json:"invalidInputPolicy" mapstructure:"invalid_input_policy"`

	// Maximum length in bytes of resource, feature and unit identifiers.
	// Default 256.
	MaxIdentifierLength int `json:"maxIdentifierLength" mapstructure:"max_identifier_length"`
}
