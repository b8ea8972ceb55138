package mesh

import (
	"math"

	"github.com/golang/geo/r3"
)

// Mesh is a triangle soup.
type Mesh struct {
	triangles []*Triangle
}

func NewMesh(triangles []*Triangle) *Mesh {
	return &Mesh{triangles: triangles}
}

func (m *Mesh) Triangles() []*Triangle {
	if m == nil {
		return nil
	}
	return m.triangles
}

// Empty is true for a nil mesh or one without triangles.
func (m *Mesh) Empty() bool {
	return m == nil || len(m.triangles) == 0
}

// Transform returns a copy of the mesh with every triangle moved by tf.
// Winding is reversed under mirroring transforms so normals keep their side.
func (m *Mesh) Transform(tf Transform) *Mesh {
	if m.Empty() {
		return &Mesh{}
	}
	mirrored := tf.Determinant() < 0
	out := make([]*Triangle, 0, len(m.triangles))
	for _, t := range m.triangles {
		p0, p1, p2 := tf.Apply(t.p0), tf.Apply(t.p1), tf.Apply(t.p2)
		if mirrored {
			p1, p2 = p2, p1
		}
		out = append(out, NewTriangle(p0, p1, p2))
	}
	return &Mesh{triangles: out}
}

// Vertices returns the corner points of every triangle in order, three per
// triangle, shared corners repeated.
func (m *Mesh) Vertices() []r3.Vector {
	out := make([]r3.Vector, 0, 3*len(m.Triangles()))
	for _, t := range m.Triangles() {
		out = append(out, t.p0, t.p1, t.p2)
	}
	return out
}

// Bounds returns the axis aligned box around all triangles.
func (m *Mesh) Bounds() AABB {
	min, max := computeTrianglesAABB(m.Triangles())
	return AABB{Min: min, Max: max}
}

// AABB is an axis aligned bounding box.
type AABB struct {
	Min r3.Vector
	Max r3.Vector
}

// BoundsOf returns the box around points. An empty input gives the zero box.
func BoundsOf(points []r3.Vector) AABB {
	if len(points) == 0 {
		return AABB{}
	}
	b := AABB{Min: points[0], Max: points[0]}
	for _, p := range points[1:] {
		b = b.Extend(p)
	}
	return b
}

// Extend grows the box to contain p.
func (b AABB) Extend(p r3.Vector) AABB {
	return AABB{
		Min: r3.Vector{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)},
		Max: r3.Vector{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)},
	}
}

func (b AABB) Size() r3.Vector {
	return b.Max.Sub(b.Min)
}

func (b AABB) Center() r3.Vector {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Diagonal is the length of the box diagonal.
func (b AABB) Diagonal() float64 {
	return b.Size().Norm()
}

func computeTrianglesAABB(triangles []*Triangle) (r3.Vector, r3.Vector) {
	if len(triangles) == 0 {
		return r3.Vector{}, r3.Vector{}
	}
	min := r3.Vector{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	max := r3.Vector{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, t := range triangles {
		for _, p := range [3]r3.Vector{t.p0, t.p1, t.p2} {
			min.X = math.Min(min.X, p.X)
			min.Y = math.Min(min.Y, p.Y)
			min.Z = math.Min(min.Z, p.Z)
			max.X = math.Max(max.X, p.X)
			max.Y = math.Max(max.Y, p.Y)
			max.Z = math.Max(max.Z, p.Z)
		}
	}
	return min, max
}
