package mesh

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

const bvhLeafSize = 4

type bvhNode struct {
	min, max    r3.Vector
	triangles   []*Triangle // set on leaves only
	left, right *bvhNode
}

// BVH is a bounding volume hierarchy over a mesh for nearest-hit ray queries.
type BVH struct {
	root  *bvhNode
	count int
}

// Hit is the nearest intersection of a ray with a mesh.
type Hit struct {
	Point    r3.Vector
	Normal   r3.Vector // faces the ray origin
	Distance float64
	Triangle *Triangle
}

// NewBVH indexes the triangles of m. The mesh must not change afterwards.
func NewBVH(m *Mesh) *BVH {
	tris := append([]*Triangle(nil), m.Triangles()...)
	return &BVH{root: buildBVH(tris), count: len(tris)}
}

// Len returns the number of indexed triangles.
func (b *BVH) Len() int {
	return b.count
}

// buildBVH splits at the median centroid along the longest axis until
// leaves hold at most bvhLeafSize triangles. It reorders triangles in place.
func buildBVH(triangles []*Triangle) *bvhNode {
	if len(triangles) == 0 {
		return nil
	}
	min, max := computeTrianglesAABB(triangles)
	node := &bvhNode{min: min, max: max}
	if len(triangles) <= bvhLeafSize {
		node.triangles = triangles
		return node
	}

	size := max.Sub(min)
	axis := 0
	if size.Y > size.X && size.Y >= size.Z {
		axis = 1
	} else if size.Z > size.X && size.Z > size.Y {
		axis = 2
	}
	sort.Slice(triangles, func(i, j int) bool {
		return component(triangles[i].Centroid(), axis) < component(triangles[j].Centroid(), axis)
	})
	mid := len(triangles) / 2
	node.left = buildBVH(triangles[:mid])
	node.right = buildBVH(triangles[mid:])
	return node
}

func component(v r3.Vector, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

// Intersect returns the nearest hit along r, if any.
func (b *BVH) Intersect(r Ray) (Hit, bool) {
	if b == nil || b.root == nil {
		return Hit{}, false
	}
	inv := r3.Vector{X: 1 / r.Direction.X, Y: 1 / r.Direction.Y, Z: 1 / r.Direction.Z}
	best := Hit{Distance: math.Inf(1)}
	b.root.intersect(r, inv, &best)
	if best.Triangle == nil {
		return Hit{}, false
	}
	best.Point = r.At(best.Distance)
	best.Normal = best.Triangle.Normal()
	if best.Normal.Dot(r.Direction) > 0 {
		best.Normal = best.Normal.Mul(-1)
	}
	return best, true
}

func (n *bvhNode) intersect(r Ray, inv r3.Vector, best *Hit) {
	near, ok := rayAABB(r.Origin, inv, n.min, n.max)
	if !ok || near > best.Distance {
		return
	}
	if n.triangles != nil {
		for _, t := range n.triangles {
			if d, hit := t.IntersectRay(r); hit && d < best.Distance {
				best.Distance = d
				best.Triangle = t
			}
		}
		return
	}
	first, second := n.left, n.right
	if first != nil && second != nil {
		dl, _ := rayAABB(r.Origin, inv, first.min, first.max)
		dr, _ := rayAABB(r.Origin, inv, second.min, second.max)
		if dr < dl {
			first, second = second, first
		}
	}
	if first != nil {
		first.intersect(r, inv, best)
	}
	if second != nil {
		second.intersect(r, inv, best)
	}
}

// rayAABB is the slab test. It returns the entry distance (clamped at 0)
// and whether the ray touches the box at all.
func rayAABB(origin, inv, min, max r3.Vector) (float64, bool) {
	tmin, tmax := 0.0, math.Inf(1)
	for axis := 0; axis < 3; axis++ {
		o := component(origin, axis)
		lo, hi := component(min, axis), component(max, axis)
		iv := component(inv, axis)
		if math.IsInf(iv, 0) {
			if o < lo || o > hi {
				return 0, false
			}
			continue
		}
		t1, t2 := (lo-o)*iv, (hi-o)*iv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}
