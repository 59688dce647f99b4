package traits

import (
	"strconv"
	"time"
)

// Kind identifies what a Value holds.
type Kind uint8

const (
	KindNumber Kind = iota
	KindColor
)

// Value is a trait value: either a number or a color.
type Value struct {
	Kind   Kind
	Number float64
	Color  Color
}

// Number wraps a numeric trait value.
func Number(v float64) Value {
	return Value{Kind: KindNumber, Number: v}
}

// ColorValue wraps a color trait value.
func ColorValue(c Color) Value {
	return Value{Kind: KindColor, Color: c}
}

// String formats the value for logs and CSV output.
func (v Value) String() string {
	if v.Kind == KindColor {
		return v.Color.Hex()
	}
	return strconv.FormatFloat(v.Number, 'g', 8, 64)
}

// MutationRecord is one immutable entry in an organism's mutation history.
type MutationRecord struct {
	Timestamp   time.Time
	BlockNumber int64
	Category    string
	TraitName   string
	Previous    Value
	Next        Value
	Strength    float64 // Intensity the mutation was applied with
}
