package mesh

import (
	"math"

	"github.com/golang/geo/r3"
)

// NewUVSphere returns a sphere centered on the origin with outward normals.
// widthSegments and heightSegments are clamped to at least 3 and 2.
func NewUVSphere(radius float64, widthSegments, heightSegments int) *Mesh {
	widthSegments = max(widthSegments, 3)
	heightSegments = max(heightSegments, 2)

	point := func(ix, iy int) r3.Vector {
		phi := 2 * math.Pi * float64(ix) / float64(widthSegments)
		theta := math.Pi * float64(iy) / float64(heightSegments)
		sinT, cosT := math.Sincos(theta)
		sinP, cosP := math.Sincos(phi)
		return r3.Vector{X: radius * sinT * cosP, Y: radius * sinT * sinP, Z: radius * cosT}
	}

	var tris []*Triangle
	for iy := 0; iy < heightSegments; iy++ {
		for ix := 0; ix < widthSegments; ix++ {
			a := point(ix, iy)
			b := point(ix+1, iy)
			c := point(ix, iy+1)
			d := point(ix+1, iy+1)
			if iy != 0 {
				tris = append(tris, NewTriangle(a, c, b))
			}
			if iy != heightSegments-1 {
				tris = append(tris, NewTriangle(b, c, d))
			}
		}
	}
	return NewMesh(tris)
}

// NewPlane returns a width x height rectangle in the XY plane facing +Z,
// centered on the origin.
func NewPlane(width, height float64, segX, segY int) *Mesh {
	segX = max(segX, 1)
	segY = max(segY, 1)
	point := func(ix, iy int) r3.Vector {
		return r3.Vector{
			X: width * (float64(ix)/float64(segX) - 0.5),
			Y: height * (float64(iy)/float64(segY) - 0.5),
		}
	}
	tris := make([]*Triangle, 0, 2*segX*segY)
	for iy := 0; iy < segY; iy++ {
		for ix := 0; ix < segX; ix++ {
			a, b := point(ix, iy), point(ix+1, iy)
			c, d := point(ix, iy+1), point(ix+1, iy+1)
			tris = append(tris, NewTriangle(a, b, d), NewTriangle(a, d, c))
		}
	}
	return NewMesh(tris)
}

// NewBox returns an axis aligned box of the given edge lengths centered on
// the origin with outward normals.
func NewBox(size r3.Vector) *Mesh {
	h := size.Mul(0.5)
	v := func(sx, sy, sz float64) r3.Vector {
		return r3.Vector{X: sx * h.X, Y: sy * h.Y, Z: sz * h.Z}
	}
	quad := func(a, b, c, d r3.Vector) []*Triangle {
		return []*Triangle{NewTriangle(a, b, c), NewTriangle(a, c, d)}
	}
	var tris []*Triangle
	tris = append(tris, quad(v(1, -1, -1), v(1, 1, -1), v(1, 1, 1), v(1, -1, 1))...)     // +X
	tris = append(tris, quad(v(-1, -1, -1), v(-1, -1, 1), v(-1, 1, 1), v(-1, 1, -1))...) // -X
	tris = append(tris, quad(v(-1, 1, -1), v(-1, 1, 1), v(1, 1, 1), v(1, 1, -1))...)     // +Y
	tris = append(tris, quad(v(-1, -1, -1), v(1, -1, -1), v(1, -1, 1), v(-1, -1, 1))...) // -Y
	tris = append(tris, quad(v(-1, -1, 1), v(1, -1, 1), v(1, 1, 1), v(-1, 1, 1))...)     // +Z
	tris = append(tris, quad(v(-1, -1, -1), v(-1, 1, -1), v(1, 1, -1), v(1, -1, -1))...) // -Z
	return NewMesh(tris)
}
