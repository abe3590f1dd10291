package internal

import "github.com/cockroachdb/apd/v3"

// Decimal is an arbitrary precision integer total.
type Decimal struct {
	value apd.Decimal
}

func NewDecimalFromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

func (d Decimal) String() string {
	return d.value.String()
}

// Add returns the sum of d and other.
//
// Totals only ever hold integers, so the 34 digit context never rounds before
// the sum passes 10^34.
func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	ctx := apd.BaseContext.WithPrecision(34)
	ctx.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}
