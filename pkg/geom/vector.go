// Package geom holds the transform primitives entities replicate.
package geom

import (
	"fmt"
	"math"
)

type Vec3 struct {
	X float32
	Y float32
	Z float32
}

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) String() string {
	return fmt.Sprintf("{%.2f, %.2f, %.2f}", v.X, v.Y, v.Z)
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) LengthSquared() float32 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.LengthSquared())))
}

// DistanceSquared avoids the square root for radius comparisons.
func (v Vec3) DistanceSquared(o Vec3) float32 {
	return v.Sub(o).LengthSquared()
}

func (v Vec3) Distance(o Vec3) float32 {
	return v.Sub(o).Length()
}

// Lerp moves from v towards o by t, with t clamped to [0, 1].
func (v Vec3) Lerp(o Vec3, t float32) Vec3 {
	t = Clamp(t, 0, 1)
	return v.Add(o.Sub(v).Scale(t))
}

// Clamp limits every component to [min, max].
func (v Vec3) Clamp(min, max float32) Vec3 {
	return Vec3{Clamp(v.X, min, max), Clamp(v.Y, min, max), Clamp(v.Z, min, max)}
}

func Clamp(f, min, max float32) float32 {
	if f < min {
		return min
	}
	if f > max {
		return max
	}
	return f
}

// NormalizeHeading wraps degrees into [0, 360).
func NormalizeHeading(deg float32) float32 {
	d := float32(math.Mod(float64(deg), 360))
	if d < 0 {
		d += 360
	}
	return d
}

// HeadingOf returns the heading in degrees of the horizontal direction dir.
// Zero faces +Z and 90 faces +X.
func HeadingOf(dir Vec3) float32 {
	return NormalizeHeading(float32(math.Atan2(float64(dir.X), float64(dir.Z)) * 180 / math.Pi))
}

// LerpHeading interpolates along the shorter arc.
func LerpHeading(from, to, t float32) float32 {
	t = Clamp(t, 0, 1)
	delta := NormalizeHeading(to - from)
	if delta > 180 {
		delta -= 360
	}
	return NormalizeHeading(from + delta*t)
}
