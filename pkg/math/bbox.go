package math

import "math"

// BBox is an axis-aligned bounding box. A freshly constructed empty box has
// Min > Max on every axis so that the first ExtendPoint sets both corners.
// A zero-size box (Min == Max) is valid and describes flat or point geometry.
type BBox struct {
	Min, Max Vec3
}

// EmptyBBox returns a box that contains nothing.
func EmptyBBox() BBox {
	return BBox{
		Min: Vec3{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64},
		Max: Vec3{-math.MaxFloat64, -math.MaxFloat64, -math.MaxFloat64},
	}
}

// IsEmpty reports whether the box contains no points.
func (b BBox) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Center returns the midpoint of the box.
func (b BBox) Center() Vec3 {
	return Vec3{
		(b.Min.X + b.Max.X) / 2,
		(b.Min.Y + b.Max.Y) / 2,
		(b.Min.Z + b.Max.Z) / 2,
	}
}

// Size returns the box dimensions per axis.
func (b BBox) Size() Vec3 {
	return b.Max.Sub(b.Min)
}

// ExtendPoint grows the box to include the point.
func (b BBox) ExtendPoint(p Vec3) BBox {
	return BBox{Min: b.Min.Min(p), Max: b.Max.Max(p)}
}

// Union returns the smallest box containing both boxes.
func (b BBox) Union(other BBox) BBox {
	if b.IsEmpty() {
		return other
	}
	if other.IsEmpty() {
		return b
	}
	return BBox{Min: b.Min.Min(other.Min), Max: b.Max.Max(other.Max)}
}

// Translate returns the box shifted by offset.
func (b BBox) Translate(offset Vec3) BBox {
	if b.IsEmpty() {
		return b
	}
	return BBox{Min: b.Min.Add(offset), Max: b.Max.Add(offset)}
}

// Corners returns the eight corner points of the box.
func (b BBox) Corners() [8]Vec3 {
	return [8]Vec3{
		{b.Min.X, b.Min.Y, b.Min.Z},
		{b.Max.X, b.Min.Y, b.Min.Z},
		{b.Min.X, b.Max.Y, b.Min.Z},
		{b.Max.X, b.Max.Y, b.Min.Z},
		{b.Min.X, b.Min.Y, b.Max.Z},
		{b.Max.X, b.Min.Y, b.Max.Z},
		{b.Min.X, b.Max.Y, b.Max.Z},
		{b.Max.X, b.Max.Y, b.Max.Z},
	}
}

// RotateX rotates the box by degrees about the X axis and returns the
// axis-aligned box of the rotated corners.
func (b BBox) RotateX(degrees float64) BBox {
	if b.IsEmpty() {
		return b
	}
	rad := degrees * math.Pi / 180
	sin, cos := math.Sin(rad), math.Cos(rad)
	out := EmptyBBox()
	for _, c := range b.Corners() {
		out = out.ExtendPoint(Vec3{
			X: c.X,
			Y: c.Y*cos - c.Z*sin,
			Z: c.Y*sin + c.Z*cos,
		})
	}
	return out
}
