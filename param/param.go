/*
Package param describes node parameters as addressable values that can be
diffed on the control side and patched on the realtime side.

A parameter type implements Differ to compute patches against a baseline
and Patcher (on its pointer) to apply a patch to a mirror:

	type Osc struct {
		Freq float32
		Gain float32
	}

	func (o Osc) Diff(baseline Osc, path param.Path, emit param.Emitter) {
		param.DiffFloat32(baseline.Freq, o.Freq, path.With(0), emit)
		param.DiffFloat32(baseline.Gain, o.Gain, path.With(1), emit)
	}

	func (o *Osc) Patch(p param.Patch) (err error) {
		switch i, _ := p.Path.Head(); i {
		case 0:
			o.Freq, err = param.Float32Of(p.Data)
		case 1:
			o.Gain, err = param.Float32Of(p.Data)
		default:
			err = param.ErrInvalidPath
		}
		return err
	}

Diff runs on the control goroutine and may allocate. Patch runs on the
audio callback and must not allocate. A patch that does not match the
mirror's shape is a programming error: processors use MustApply, which
panics.
*/
package param

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidPath is returned if a patch addresses a field that does
	// not exist in the target.
	ErrInvalidPath = errors.New("invalid param path")
	// ErrInvalidData is returned if a patch carries a value of the wrong
	// type for the addressed field.
	ErrInvalidData = errors.New("invalid param data")
)

type (
	// Patch is a targeted update of a single field.
	Patch struct {
		Path Path
		Data Data
	}

	// Emitter receives patches produced by Diff.
	Emitter func(Patch)

	// Differ is implemented by parameter values. Diff must emit exactly
	// one patch for every field that differs from the baseline, in a
	// deterministic order, and nothing for unchanged fields.
	Differ[T any] interface {
		Diff(baseline T, path Path, emit Emitter)
	}

	// Patcher is implemented by pointers to parameter values.
	Patcher interface {
		Patch(p Patch) error
	}
)

// Tail returns the patch addressed to the nested field.
func (p Patch) Tail() Patch {
	return Patch{Path: p.Path.Tail(), Data: p.Data}
}

// String implements fmt.Stringer.
func (p Patch) String() string {
	return fmt.Sprintf("%v=%v", p.Path, p.Data)
}

// Diff returns the patches that turn a mirror of old into new.
func Diff[T Differ[T]](old, new T) []Patch {
	var patches []Patch
	new.Diff(old, Path{}, func(p Patch) {
		patches = append(patches, p)
	})
	return patches
}

// Apply applies patches to the target in order. It stops at the first
// error.
func Apply(target Patcher, patches ...Patch) error {
	for i := range patches {
		if err := target.Patch(patches[i]); err != nil {
			return err
		}
	}
	return nil
}

// MustApply applies the patch and panics if it doesn't fit the target.
func MustApply(target Patcher, p Patch) {
	if err := target.Patch(p); err != nil {
		panic(fmt.Sprintf("param: apply %v: %v", p, err))
	}
}

// DiffFloat32 emits a patch if the value changed.
func DiffFloat32(old, new float32, path Path, emit Emitter) {
	if old != new {
		emit(Patch{Path: path, Data: Float32(new)})
	}
}

// DiffFloat64 emits a patch if the value changed.
func DiffFloat64(old, new float64, path Path, emit Emitter) {
	if old != new {
		emit(Patch{Path: path, Data: Float64(new)})
	}
}

// DiffInt emits a patch if the value changed.
func DiffInt(old, new int64, path Path, emit Emitter) {
	if old != new {
		emit(Patch{Path: path, Data: Int(new)})
	}
}

// DiffBool emits a patch if the value changed.
func DiffBool(old, new bool, path Path, emit Emitter) {
	if old != new {
		emit(Patch{Path: path, Data: Bool(new)})
	}
}

// cloner is implemented by values holding shared references.
type cloner[T any] interface {
	Clone() T
}

// DiffAny emits a patch carrying the whole value if it changed. Values
// holding shared references are cloned, so the patch owns its own
// reference.
func DiffAny[T comparable](old, new T, path Path, emit Emitter) {
	if old == new {
		return
	}
	v := new
	if c, ok := any(new).(cloner[T]); ok {
		v = c.Clone()
	}
	emit(Patch{Path: path, Data: Any(v)})
}

// Float32Of extracts a float32 from patch data.
func Float32Of(d Data) (float32, error) {
	v, ok := d.Float32()
	if !ok {
		return 0, ErrInvalidData
	}
	return v, nil
}

// Float64Of extracts a float64 from patch data.
func Float64Of(d Data) (float64, error) {
	v, ok := d.Float64()
	if !ok {
		return 0, ErrInvalidData
	}
	return v, nil
}

// IntOf extracts an int64 from patch data.
func IntOf(d Data) (int64, error) {
	v, ok := d.Int()
	if !ok {
		return 0, ErrInvalidData
	}
	return v, nil
}

// BoolOf extracts a bool from patch data.
func BoolOf(d Data) (bool, error) {
	v, ok := d.Bool()
	if !ok {
		return false, ErrInvalidData
	}
	return v, nil
}

// AnyOf extracts a value of type T from patch data.
func AnyOf[T any](d Data) (T, error) {
	v, ok := d.ref.(T)
	if d.kind != KindAny || !ok {
		var zero T
		return zero, ErrInvalidData
	}
	return v, nil
}
