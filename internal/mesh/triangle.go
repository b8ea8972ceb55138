// Package mesh holds triangulated surfaces, the scene graph they come in and
// the ray casting used to sample them.
package mesh

import (
	"math"

	"github.com/golang/geo/r3"
)

// Triangle is one face with its counter-clockwise unit normal.
type Triangle struct {
	p0 r3.Vector
	p1 r3.Vector
	p2 r3.Vector

	normal r3.Vector
}

// NewTriangle returns the triangle p0, p1, p2.
func NewTriangle(p0, p1, p2 r3.Vector) *Triangle {
	return &Triangle{
		p0:     p0,
		p1:     p1,
		p2:     p2,
		normal: PlaneNormal(p0, p1, p2),
	}
}

// PlaneNormal returns the unit normal of the plane through three points, or
// the zero vector for a degenerate triangle.
func PlaneNormal(p0, p1, p2 r3.Vector) r3.Vector {
	return p1.Sub(p0).Cross(p2.Sub(p0)).Normalize()
}

func (t *Triangle) Points() []r3.Vector {
	return []r3.Vector{t.p0, t.p1, t.p2}
}

func (t *Triangle) Normal() r3.Vector {
	return t.normal
}

func (t *Triangle) Centroid() r3.Vector {
	return t.p0.Add(t.p1).Add(t.p2).Mul(1.0 / 3.0)
}

// Area is half the magnitude of the edge cross product.
func (t *Triangle) Area() float64 {
	return t.p1.Sub(t.p0).Cross(t.p2.Sub(t.p0)).Norm() / 2
}

// Transform returns the triangle with every vertex moved by tf.
func (t *Triangle) Transform(tf Transform) *Triangle {
	return NewTriangle(tf.Apply(t.p0), tf.Apply(t.p1), tf.Apply(t.p2))
}

const rayEpsilon = 1e-12

// IntersectRay returns the distance along r to the triangle, hitting either
// side. Misses, parallel rays and hits at or behind the origin report false.
func (t *Triangle) IntersectRay(r Ray) (float64, bool) {
	e1 := t.p1.Sub(t.p0)
	e2 := t.p2.Sub(t.p0)
	p := r.Direction.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < rayEpsilon {
		return 0, false
	}
	inv := 1 / det
	s := r.Origin.Sub(t.p0)
	u := s.Dot(p) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(e1)
	v := r.Direction.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	dist := e2.Dot(q) * inv
	if dist <= rayEpsilon {
		return 0, false
	}
	return dist, true
}

// Ray is a half line. Direction need not be unit length; distances along it
// are in multiples of Direction.
type Ray struct {
	Origin    r3.Vector
	Direction r3.Vector
}

// At returns the point at distance d along the ray.
func (r Ray) At(d float64) r3.Vector {
	return r.Origin.Add(r.Direction.Mul(d))
}
