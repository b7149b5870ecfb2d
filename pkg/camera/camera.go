// Package camera computes an automatic framing for a subject bounding box:
// given lens parameters and the subject extent, it derives the camera
// translation and clipping range that keep the whole subject in view.
package camera

import (
	"errors"
	stdmath "math"

	"github.com/assetpipe/usdthumb/pkg/math"
)

// ErrInvalidOptics is returned when focal length or an aperture is not a
// positive finite value.
var ErrInvalidOptics = errors.New("invalid camera optics")

// minNearClip is the lower bound for the near clipping plane. A zero or
// negative near clip is invalid for the render pipeline.
const minNearClip = 0.0000001

// Optics holds the lens parameters of a physical camera, all in millimeters.
type Optics struct {
	FocalLength        float64
	HorizontalAperture float64
	VerticalAperture   float64
}

// DefaultOptics returns a 50mm lens on a 24mm square sensor.
func DefaultOptics() Optics {
	return Optics{
		FocalLength:        50,
		HorizontalAperture: 24,
		VerticalAperture:   24,
	}
}

// WithAspect returns a copy of o whose horizontal aperture is scaled to match
// the requested output aspect ratio. Height <= 0 means square output and
// leaves the apertures untouched.
func (o Optics) WithAspect(width, height int) Optics {
	if height > 0 && width > 0 {
		o.HorizontalAperture = o.VerticalAperture * float64(width) / float64(height)
	}
	return o
}

func (o Optics) valid() bool {
	ok := func(v float64) bool {
		return v > 0 && !stdmath.IsInf(v, 0) && !stdmath.IsNaN(v)
	}
	return ok(o.FocalLength) && ok(o.HorizontalAperture) && ok(o.VerticalAperture)
}

// Placement is the computed camera pose. It is written once to the camera
// prim and never mutated afterwards.
type Placement struct {
	Translation math.Vec3
	NearClip    float64
	FarClip     float64
}

// RequiredDistance returns how far a camera with the given sensor size and
// focal length must stand back so that an object of the given size fills the
// field of view. All arguments are in millimeters, and so is the result.
// A zero object size returns zero.
func RequiredDistance(sensorMm, objectMm, focalMm float64) float64 {
	if objectMm == 0 {
		return 0
	}
	fov := 2 * stdmath.Atan(sensorMm/(2*focalMm))
	return (objectMm / 2) / stdmath.Tan(fov/2)
}

// ComputePlacement frames box with the given optics. unitsToMm converts scene
// length units to millimeters (10 for the common centimeter-unit scenes).
//
// The camera looks down -Z from a point in front of the box. Clip planes are
// measured from the center of the front face rather than the box center,
// which keeps the near clip tight against the visible geometry. The 0.5/2.0
// margins on the clip planes absorb field-of-view variation across the frame.
func ComputePlacement(box math.BBox, o Optics, unitsToMm float64) (Placement, error) {
	if !o.valid() {
		return Placement{}, ErrInvalidOptics
	}
	if unitsToMm <= 0 {
		return Placement{}, errors.New("unit conversion factor must be positive")
	}

	center := box.Center()
	size := box.Size()

	distH := RequiredDistance(o.HorizontalAperture, size.X*unitsToMm, o.FocalLength)
	distV := RequiredDistance(o.VerticalAperture, size.Y*unitsToMm, o.FocalLength)
	distance := stdmath.Max(distH, distV) / unitsToMm

	nearClip := stdmath.Max(minNearClip, (distance+box.Min.Z)*0.5)
	farClip := (distance + box.Max.Z) * 2
	if farClip <= nearClip {
		// A degenerate subject at the origin yields a zero far clip; keep
		// the clipping range ordered.
		farClip = nearClip * 2
	}

	return Placement{
		Translation: math.Vec3{
			X: center.X,
			Y: center.Y,
			Z: box.Max.Z + distance,
		},
		NearClip: nearClip,
		FarClip:  farClip,
	}, nil
}
