package param

import (
	"strconv"
	"strings"
)

// MaxDepth is the maximum nesting of a parameter path.
const MaxDepth = 8

// Path addresses a field inside a parameter value. It is a value type of
// fixed size, so building and comparing paths never allocates. The zero
// Path addresses the root value.
type Path struct {
	n   uint8
	idx [MaxDepth]uint32
}

// Single returns a path with a single index.
func Single(i uint32) Path {
	return Path{}.With(i)
}

// PathOf returns a path with provided indices.
func PathOf(indices ...uint32) Path {
	var p Path
	for _, i := range indices {
		p = p.With(i)
	}
	return p
}

// With returns a copy of the path extended with index i. It panics if
// the path is already MaxDepth long.
func (p Path) With(i uint32) Path {
	if int(p.n) == MaxDepth {
		panic("param: path exceeds max depth")
	}
	p.idx[p.n] = i
	p.n++
	return p
}

// Len returns the number of indices in the path.
func (p Path) Len() int {
	return int(p.n)
}

// At returns the i-th index of the path.
func (p Path) At(i int) uint32 {
	if i >= int(p.n) {
		panic("param: path index out of range")
	}
	return p.idx[i]
}

// Head returns the first index of the path. False is returned for the
// root path.
func (p Path) Head() (uint32, bool) {
	if p.n == 0 {
		return 0, false
	}
	return p.idx[0], true
}

// Tail returns the path without its first index.
func (p Path) Tail() Path {
	if p.n == 0 {
		return p
	}
	var t Path
	copy(t.idx[:], p.idx[1:p.n])
	t.n = p.n - 1
	return t
}

// String formats the path as dot separated indices.
func (p Path) String() string {
	if p.n == 0 {
		return "."
	}
	s := make([]string, p.n)
	for i := range s {
		s[i] = strconv.FormatUint(uint64(p.idx[i]), 10)
	}
	return strings.Join(s, ".")
}
