package param

import "fmt"

// Option is an optional parameter field. Presence is part of the value,
// so switching between None and Some is diffable like any other change.
// Option is comparable when T is.
type Option[T any] struct {
	value T
	valid bool
}

// Some returns a present option.
func Some[T any](v T) Option[T] {
	return Option[T]{value: v, valid: true}
}

// None returns an absent option.
func None[T any]() Option[T] {
	return Option[T]{}
}

// Get returns the value and true if the option is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.valid
}

// IsSome returns true if the option is present.
func (o Option[T]) IsSome() bool {
	return o.valid
}

// Clone returns a copy of the option that owns its own reference if the
// value is a shared handle.
func (o Option[T]) Clone() Option[T] {
	if !o.valid {
		return o
	}
	if c, ok := any(o.value).(cloner[T]); ok {
		o.value = c.Clone()
	}
	return o
}

// Release drops the shared reference held by a present option.
func (o Option[T]) Release() {
	if !o.valid {
		return
	}
	if r, ok := any(o.value).(Releaser); ok {
		r.Release()
	}
}

// Replace stores v and releases the previous value.
func (o *Option[T]) Replace(v Option[T]) {
	old := *o
	*o = v
	old.Release()
}

// String implements fmt.Stringer.
func (o Option[T]) String() string {
	if !o.valid {
		return "None"
	}
	return fmt.Sprintf("Some(%v)", o.value)
}

// OptionOf extracts an Option[T] from patch data.
func OptionOf[T any](d Data) (Option[T], error) {
	return AnyOf[Option[T]](d)
}

// Replace stores v into dst and releases the previous value. It is used
// to swap shared handles in a mirror.
func Replace[T Releaser](dst *T, v T) {
	old := *dst
	*dst = v
	old.Release()
}
