package internal

import "math"

// MaxQuantity is the largest representable accumulated amount.
const MaxQuantity = math.MaxInt64

// Quantity is a non-negative amount of usage.
type Quantity struct {
	value int64
}

func NewQuantity(value int64) (Quantity, error) {
	if value < 0 {
		return Quantity{}, &InvalidInputError{Field: "amount", Reason: "cannot be negative"}
	}
	return Quantity{value: value}, nil
}

func (q Quantity) ToInt64() int64 {
	return q.value
}

// Add returns q+other saturated at MaxQuantity. clamped reports whether the
// true sum did not fit; excess is the part that was discarded.
func (q Quantity) Add(other Quantity) (sum Quantity, clamped bool, excess int64) {
	s, clamped, excess := saturatingAdd(q.value, other.value)
	return Quantity{value: s}, clamped, excess
}

// saturatingAdd adds two non-negative int64 values.
func saturatingAdd(a, b int64) (sum int64, clamped bool, excess int64) {
	if a > MaxQuantity-b {
		return MaxQuantity, true, b - (MaxQuantity - a)
	}
	return a + b, false, 0
}
