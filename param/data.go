package param

import (
	"fmt"
	"math"
)

// Kind identifies the type of value carried by Data.
type Kind uint8

// Kinds of Data.
const (
	KindNone Kind = iota
	KindFloat32
	KindFloat64
	KindInt
	KindBool
	KindAny
)

func (k Kind) String() string {
	switch k {
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindAny:
		return "any"
	}
	return "none"
}

// Data is the value carried by a patch. Numeric values are stored
// inline, so they never box. Other values are stored as any; values that
// need heap storage should be collector.ArcGc handles, so that moving
// them into a mirror is a pointer copy.
type Data struct {
	kind Kind
	bits uint64
	ref  any
}

// Releaser is implemented by values that hold shared references, such as
// collector.ArcGc and Option of a handle.
type Releaser interface {
	Release()
}

// Float32 returns data carrying a float32.
func Float32(v float32) Data {
	return Data{kind: KindFloat32, bits: uint64(math.Float32bits(v))}
}

// Float64 returns data carrying a float64.
func Float64(v float64) Data {
	return Data{kind: KindFloat64, bits: math.Float64bits(v)}
}

// Int returns data carrying an int64.
func Int(v int64) Data {
	return Data{kind: KindInt, bits: uint64(v)}
}

// Bool returns data carrying a bool.
func Bool(v bool) Data {
	d := Data{kind: KindBool}
	if v {
		d.bits = 1
	}
	return d
}

// Any returns data carrying an arbitrary value. Ownership of shared
// references inside v moves into the data.
func Any(v any) Data {
	return Data{kind: KindAny, ref: v}
}

// Kind returns the kind of the carried value.
func (d Data) Kind() Kind {
	return d.kind
}

// Float32 returns the carried float32.
func (d Data) Float32() (float32, bool) {
	if d.kind != KindFloat32 {
		return 0, false
	}
	return math.Float32frombits(uint32(d.bits)), true
}

// Float64 returns the carried float64.
func (d Data) Float64() (float64, bool) {
	if d.kind != KindFloat64 {
		return 0, false
	}
	return math.Float64frombits(d.bits), true
}

// Int returns the carried int64.
func (d Data) Int() (int64, bool) {
	if d.kind != KindInt {
		return 0, false
	}
	return int64(d.bits), true
}

// Bool returns the carried bool.
func (d Data) Bool() (bool, bool) {
	if d.kind != KindBool {
		return false, false
	}
	return d.bits == 1, true
}

// Any returns the carried arbitrary value.
func (d Data) Any() (any, bool) {
	if d.kind != KindAny {
		return nil, false
	}
	return d.ref, true
}

// Release drops shared references held by the data. It is used when a
// patch is discarded instead of applied.
func (d Data) Release() {
	if r, ok := d.ref.(Releaser); ok {
		r.Release()
	}
}

// String implements fmt.Stringer.
func (d Data) String() string {
	switch d.kind {
	case KindFloat32:
		v, _ := d.Float32()
		return fmt.Sprintf("float32(%v)", v)
	case KindFloat64:
		v, _ := d.Float64()
		return fmt.Sprintf("float64(%v)", v)
	case KindInt:
		return fmt.Sprintf("int(%d)", int64(d.bits))
	case KindBool:
		return fmt.Sprintf("bool(%v)", d.bits == 1)
	case KindAny:
		return fmt.Sprintf("any(%v)", d.ref)
	}
	return "none"
}
