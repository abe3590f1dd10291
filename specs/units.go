package specs

// Units of measure known to downstream consumers.
//
// The set is open: the accountant carries any valid unit string through
// unchanged. These constants only exist so application code does not repeat
// string literals.
const (
	UnitMilliseconds = "milliseconds"
	UnitBytes        = "bytes"
	UnitBytesSec     = "bytes_sec"
	UnitCount        = "count"
)
