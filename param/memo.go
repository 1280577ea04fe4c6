package param

import (
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"
)

// Memo keeps the last value sent to the realtime side, so that only the
// changes made since then are transmitted. Memo is used on the control
// side only.
type Memo[T Differ[T]] struct {
	// Value is the live control-side value. It is authoritative: the
	// realtime mirror is never read back.
	Value    T
	baseline T
}

// NewMemo returns a memo whose baseline and value are v. The baseline
// must match the value the processor mirror was constructed with.
func NewMemo[T Differ[T]](v T) *Memo[T] {
	return &Memo[T]{Value: v, baseline: v}
}

// Baseline returns the value last sent to the realtime side.
func (m *Memo[T]) Baseline() T {
	return m.baseline
}

// Update emits patches for all changes since the last update and makes
// the current value the new baseline.
func (m *Memo[T]) Update(emit Emitter) {
	m.Value.Diff(m.baseline, Path{}, emit)
	m.baseline = m.Value
}

// Patches returns the pending patches and advances the baseline.
func (m *Memo[T]) Patches() []Patch {
	patches := m.Pending()
	m.Commit()
	return patches
}

// Pending returns the patches for all changes since the last commit. The
// baseline is not changed, so the same changes are returned until Commit
// is called.
func (m *Memo[T]) Pending() []Patch {
	return Diff(m.baseline, m.Value)
}

// Commit makes the current value the new baseline. It's called once all
// pending patches were delivered.
func (m *Memo[T]) Commit() {
	m.baseline = m.Value
}

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Describe returns a unified diff of two values for debug logging. An
// empty string is returned if the dumps are identical.
func Describe(old, new any) string {
	a := dumper.Sdump(old)
	b := dumper.Sdump(new)
	if a == b {
		return ""
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "baseline",
		ToFile:   "value",
		Context:  1,
	})
	if err != nil {
		return err.Error()
	}
	return strings.TrimSpace(diff)
}
