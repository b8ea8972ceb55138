package mesh

import (
	"math"

	"github.com/golang/geo/r3"
)

// Transform is an affine map: p' = origin + basis[0]*p.X + basis[1]*p.Y + basis[2]*p.Z.
// The zero value is not the identity; use Identity.
type Transform struct {
	basis  [3]r3.Vector
	origin r3.Vector
}

func Identity() Transform {
	return Transform{basis: [3]r3.Vector{{X: 1}, {Y: 1}, {Z: 1}}}
}

func Translation(v r3.Vector) Transform {
	t := Identity()
	t.origin = v
	return t
}

// Scaling scales each axis independently.
func Scaling(s r3.Vector) Transform {
	return Transform{basis: [3]r3.Vector{{X: s.X}, {Y: s.Y}, {Z: s.Z}}}
}

// Rotation rotates by angle radians about axis (right hand rule).
func Rotation(axis r3.Vector, angle float64) Transform {
	k := axis.Normalize()
	if k.Norm2() == 0 {
		return Identity()
	}
	sin, cos := math.Sincos(angle)
	rot := func(v r3.Vector) r3.Vector {
		// Rodrigues
		return v.Mul(cos).Add(k.Cross(v).Mul(sin)).Add(k.Mul(k.Dot(v) * (1 - cos)))
	}
	return Transform{basis: [3]r3.Vector{rot(r3.Vector{X: 1}), rot(r3.Vector{Y: 1}), rot(r3.Vector{Z: 1})}}
}

// Apply maps a point.
func (t Transform) Apply(p r3.Vector) r3.Vector {
	return t.origin.Add(t.ApplyVector(p))
}

// ApplyVector maps a direction, ignoring translation.
func (t Transform) ApplyVector(v r3.Vector) r3.Vector {
	return t.basis[0].Mul(v.X).Add(t.basis[1].Mul(v.Y)).Add(t.basis[2].Mul(v.Z))
}

// Then returns the transform applying t first and next second.
func (t Transform) Then(next Transform) Transform {
	return Transform{
		basis: [3]r3.Vector{
			next.ApplyVector(t.basis[0]),
			next.ApplyVector(t.basis[1]),
			next.ApplyVector(t.basis[2]),
		},
		origin: next.Apply(t.origin),
	}
}

// Determinant is negative for mirroring transforms, which flip triangle winding.
func (t Transform) Determinant() float64 {
	return t.basis[0].Dot(t.basis[1].Cross(t.basis[2]))
}
