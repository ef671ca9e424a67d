// Package indicator computes trailing-window technical indicators
// incrementally, one candle at a time, with no access to future data.
//
// Every indicator output is a Value that is explicitly undefined until
// the indicator's warm-up period has been satisfied. Callers must check
// definedness instead of reading a zero: a zero-valued EMA during
// warm-up produces spurious crossovers.
package indicator

import "fmt"

// Value is an indicator output that may not be defined yet.
type Value struct {
	v  float64
	ok bool
}

// Defined wraps a concrete indicator value.
func Defined(v float64) Value { return Value{v: v, ok: true} }

// Undefined is the warm-up sentinel.
func Undefined() Value { return Value{} }

// Float returns the value and whether it is defined.
func (v Value) Float() (float64, bool) { return v.v, v.ok }

// IsDefined reports whether the indicator has finished warming up.
func (v Value) IsDefined() bool { return v.ok }

// MustFloat returns the value, panicking if undefined. Test helper.
func (v Value) MustFloat() float64 {
	if !v.ok {
		panic("indicator: value undefined")
	}
	return v.v
}

func (v Value) String() string {
	if !v.ok {
		return "undefined"
	}
	return fmt.Sprintf("%.8f", v.v)
}

// GreaterThan reports v > other under strict inequality. False when
// either side is undefined.
func (v Value) GreaterThan(other Value) bool {
	return v.ok && other.ok && v.v > other.v
}

// LessThan reports v < other under strict inequality. False when either
// side is undefined.
func (v Value) LessThan(other Value) bool {
	return v.ok && other.ok && v.v < other.v
}
