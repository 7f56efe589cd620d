package delta

import "github.com/fxamacker/cbor/v2"

// MapDelta carries the changes between two snapshots of a Map. Altered
// holds nested deltas for keys whose values changed plus identity diffs for
// keys that are new; Removed lists keys absent from the next snapshot.
type MapDelta[K comparable, D Delta] struct {
	Altered map[K]D `cbor:"altered,omitempty"`
	Removed []K     `cbor:"removed,omitempty"`
}

// Empty reports whether applying the delta would change nothing.
func (d MapDelta[K, D]) Empty() bool {
	return len(d.Altered) == 0 && len(d.Removed) == 0
}

// Map is a diffable keyed container for replicated scalar state. It is the
// generic container implementation of the protocol for plain keys; the
// arena package provides the equivalent over recyclable slots. The zero
// value is an empty, usable map.
type Map[K comparable, V any, D Delta, P Diffable[V, D]] struct {
	items map[K]V
}

// Len returns the number of entries.
func (m *Map[K, V, D, P]) Len() int {
	return len(m.items)
}

// Get returns the value stored under k.
func (m *Map[K, V, D, P]) Get(k K) (V, bool) {
	v, ok := m.items[k]
	return v, ok
}

// Set stores v under k, replacing any previous value.
func (m *Map[K, V, D, P]) Set(k K, v V) {
	if m.items == nil {
		m.items = make(map[K]V)
	}
	m.items[k] = v
}

// Delete removes the entry under k if present.
func (m *Map[K, V, D, P]) Delete(k K) {
	delete(m.items, k)
}

// All calls fn for every entry until fn returns false. Iteration order is
// undefined.
func (m *Map[K, V, D, P]) All(fn func(K, V) bool) {
	for k, v := range m.items {
		if !fn(k, v) {
			return
		}
	}
}

// Diff reconciles the receiver (previous snapshot) against next by key:
// differing values become altered entries, keys missing from next become
// removed entries, and keys new in next become identity diffs.
func (m *Map[K, V, D, P]) Diff(next *Map[K, V, D, P]) MapDelta[K, D] {
	var d MapDelta[K, D]
	for k, v := range m.items {
		nv, ok := next.items[k]
		if !ok {
			d.Removed = append(d.Removed, k)
			continue
		}
		dd := P(&v).Diff(&nv)
		if dd.Empty() {
			continue
		}
		if d.Altered == nil {
			d.Altered = make(map[K]D)
		}
		d.Altered[k] = dd
	}
	for k, nv := range next.items {
		if _, ok := m.items[k]; ok {
			continue
		}
		var identity V
		if d.Altered == nil {
			d.Altered = make(map[K]D)
		}
		d.Altered[k] = P(&identity).Diff(&nv)
	}
	return d
}

// Apply replays d onto the receiver: removals first, then altered entries.
// Altered keys not present locally are constructed from the identity value.
// Removed keys not present locally are a no-op.
func (m *Map[K, V, D, P]) Apply(d *MapDelta[K, D]) {
	for _, k := range d.Removed {
		delete(m.items, k)
	}
	if len(d.Altered) > 0 && m.items == nil {
		m.items = make(map[K]V, len(d.Altered))
	}
	for k, dd := range d.Altered {
		if v, ok := m.items[k]; ok {
			P(&v).Apply(&dd)
			m.items[k] = v
			continue
		}
		var v V
		P(&v).Apply(&dd)
		m.items[k] = v
	}
}

// Clone returns a deep copy of the map.
func (m *Map[K, V, D, P]) Clone() Map[K, V, D, P] {
	if m.items == nil {
		return Map[K, V, D, P]{}
	}
	items := make(map[K]V, len(m.items))
	for k, v := range m.items {
		items[k] = P(&v).Clone()
	}
	return Map[K, V, D, P]{items: items}
}

// MarshalCBOR encodes the map as its plain key/value mapping.
func (m *Map[K, V, D, P]) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(m.items)
}

// UnmarshalCBOR decodes a plain key/value mapping.
func (m *Map[K, V, D, P]) UnmarshalCBOR(data []byte) error {
	m.items = nil
	return cbor.Unmarshal(data, &m.items)
}
