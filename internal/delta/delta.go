// Package delta defines the structural diff/patch contract used by every
// replicated type in the engine.
//
// A diffable type T declares a companion delta type D. Diffing two values
// yields a D holding one option per observable field: nil means unchanged,
// non-nil carries the next value. Applying a D mutates a value in place.
// The zero value of T is its identity: a brand-new remote object travels as
// the diff from identity to the full value, so one apply path both creates
// and updates objects.
//
// Two laws bind every implementation and are exercised by the test suites
// of the packages that implement the contract:
//
//	apply(clone(a), diff(a, b)) == b   (round trip)
//	diff(a, a).Empty() == true         (empty diff)
package delta

// Delta is implemented by every delta type. Empty reports whether applying
// the delta would change nothing; empty deltas are never sent.
type Delta interface {
	Empty() bool
}

// Diffable is the capability contract of the replication protocol,
// expressed as a pointer constraint so container types can be generic over
// any element implementing it.
type Diffable[T, D any] interface {
	*T

	// Diff compares the receiver (previous snapshot) against next and
	// returns the delta that transforms the receiver into next.
	Diff(next *T) D

	// Apply mutates the receiver in place according to d.
	Apply(d *D)

	// Clone returns a deep copy of the receiver's value.
	Clone() T
}

// Changed returns the per-field option for a scalar leaf: nil when the
// values compare equal, otherwise a pointer to the next value. Floats use
// exact inequality; there is no epsilon tolerance.
func Changed[V comparable](prev, next V) *V {
	if prev == next {
		return nil
	}
	v := next
	return &v
}

// Assign overwrites dst when the option carries a value and leaves it
// untouched otherwise.
func Assign[V any](dst *V, opt *V) {
	if opt != nil {
		*dst = *opt
	}
}
