package world

import "tumble/engine/internal/delta"

// ForceField is keyed global state: a circular region applying a constant
// acceleration to dynamic bodies inside it. Fields live in a diffable map
// under names chosen by the relay ("updraft", "vortex", ...).
type ForceField struct {
	Position Vec2    `cbor:"pos"`
	Radius   float64 `cbor:"radius"`
	Accel    Vec2    `cbor:"accel"`
	Enabled  bool    `cbor:"enabled"`
}

// ForceFieldDelta holds one option per ForceField field.
type ForceFieldDelta struct {
	Position *Vec2    `cbor:"pos,omitempty"`
	Radius   *float64 `cbor:"radius,omitempty"`
	Accel    *Vec2    `cbor:"accel,omitempty"`
	Enabled  *bool    `cbor:"enabled,omitempty"`
}

func (d ForceFieldDelta) Empty() bool {
	return d.Position == nil && d.Radius == nil && d.Accel == nil && d.Enabled == nil
}

func (f *ForceField) Diff(next *ForceField) ForceFieldDelta {
	return ForceFieldDelta{
		Position: delta.Changed(f.Position, next.Position),
		Radius:   delta.Changed(f.Radius, next.Radius),
		Accel:    delta.Changed(f.Accel, next.Accel),
		Enabled:  delta.Changed(f.Enabled, next.Enabled),
	}
}

func (f *ForceField) Apply(d *ForceFieldDelta) {
	delta.Assign(&f.Position, d.Position)
	delta.Assign(&f.Radius, d.Radius)
	delta.Assign(&f.Accel, d.Accel)
	delta.Assign(&f.Enabled, d.Enabled)
}

func (f *ForceField) Clone() ForceField { return *f }

// Covers reports whether p lies inside the field's radius.
func (f *ForceField) Covers(p Vec2) bool {
	return p.Sub(f.Position).LengthSq() <= f.Radius*f.Radius
}

// FieldMap stores the named force fields of one world.
type FieldMap = delta.Map[string, ForceField, ForceFieldDelta, *ForceField]
