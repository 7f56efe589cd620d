package world

// Vec2 is a replicated two-component vector. Diffing compares exactly;
// there is no epsilon, so a field travels iff a peer actually wrote a
// different bit pattern.
type Vec2 struct {
	X float64 `cbor:"x"`
	Y float64 `cbor:"y"`
}

func (v Vec2) Add(o Vec2) Vec2 {
	return Vec2{X: v.X + o.X, Y: v.Y + o.Y}
}

func (v Vec2) Sub(o Vec2) Vec2 {
	return Vec2{X: v.X - o.X, Y: v.Y - o.Y}
}

func (v Vec2) Scale(s float64) Vec2 {
	return Vec2{X: v.X * s, Y: v.Y * s}
}

func (v Vec2) LengthSq() float64 {
	return v.X*v.X + v.Y*v.Y
}
