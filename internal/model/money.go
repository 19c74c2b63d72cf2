package model

import "fmt"

// Money is a signed amount in cents. All arithmetic is integer-only; no floats
// ever touch a balance.
type Money int64

// Cents returns the raw cent amount.
func (m Money) Cents() int64 { return int64(m) }

// MulDays scales a daily amount to a number of days.
func (m Money) MulDays(days int) Money { return m * Money(days) }

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m < 0 {
		return -m
	}
	return m
}

func (m Money) IsZero() bool     { return m == 0 }
func (m Money) IsNegative() bool { return m < 0 }

// String formats as dollars for logs and API responses, e.g. "-$12.34".
func (m Money) String() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s$%d.%02d", sign, v/100, v%100)
}
