// Package surface places a hexagonal lattice of points directly on a
// triangulated surface by ray casting.
package surface

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r3"
	"go.uber.org/zap"

	"github.com/relabs-tech/tactile_viewer/internal/mesh"
)

// Params configures a sampler.
type Params struct {
	// Spacing is the lattice pitch in model units; 0 picks Diagonal/AutoSpacingDivisor
	// of the whole model.
	Spacing            float64
	AutoSpacingDivisor float64
	MaxPoints          int
	VertexSampleTarget int
	// PushOutFraction of the surface diagonal is added above the surface
	// before rays are cast back down.
	PushOutFraction float64
}

func DefaultParams() Params {
	return Params{
		AutoSpacingDivisor: 100,
		MaxPoints:          8000,
		VertexSampleTarget: 3000,
		PushOutFraction:    0.1,
	}
}

// SamplePoint is one lattice point on the surface. U and V are normalized
// to [0,1] over the padded lattice box. U is the position along the axis
// rows advance on and V the position within a row.
type SamplePoint struct {
	Position r3.Vector `json:"position"`
	Normal   r3.Vector `json:"normal"`
	U        float64   `json:"u"`
	V        float64   `json:"v"`
}

// Result is the outcome of one generation.
type Result struct {
	Points  []SamplePoint
	Spacing float64
	// Normal is the dominant surface normal the lattice was laid out against.
	Normal r3.Vector
	Center r3.Vector
	// NormalFallback is set when the representative ray missed.
	NormalFallback bool
	Triangles      int
	Rays           int
	Elapsed        time.Duration
}

// Message is a one line human readable status.
func (r Result) Message() string {
	switch {
	case r.Triangles == 0:
		return "no mesh to sample"
	case len(r.Points) == 0:
		return fmt.Sprintf("no surface hits from %d rays", r.Rays)
	default:
		return fmt.Sprintf("hex grid: spacing=%.4f points=%d (%v)", r.Spacing, len(r.Points), r.Elapsed.Round(time.Millisecond))
	}
}

// Sampler generates SamplePoints. It holds no state between calls.
type Sampler struct {
	params Params
	logger *zap.SugaredLogger
}

func NewSampler(params Params, logger *zap.SugaredLogger) *Sampler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Sampler{params: params, logger: logger}
}

// GenerateScene samples the scene's touch area, or the whole model without
// one, as seen from viewpoint. Auto spacing is derived from the whole model.
func (s *Sampler) GenerateScene(ctx context.Context, root *mesh.Node, viewpoint r3.Vector) (Result, error) {
	spacing := s.params.Spacing
	if spacing <= 0 {
		spacing = AutoSpacing(root.Flatten().Bounds(), s.params.AutoSpacingDivisor)
	}
	return s.generate(ctx, root.SamplingSurface(), viewpoint, spacing)
}

// Generate samples surface as seen from viewpoint.
func (s *Sampler) Generate(ctx context.Context, surface *mesh.Mesh, viewpoint r3.Vector) (Result, error) {
	spacing := s.params.Spacing
	if spacing <= 0 {
		spacing = AutoSpacing(surface.Bounds(), s.params.AutoSpacingDivisor)
	}
	return s.generate(ctx, surface, viewpoint, spacing)
}

// AutoSpacing is the bounding diagonal divided by divisor.
func AutoSpacing(b mesh.AABB, divisor float64) float64 {
	if divisor <= 0 {
		divisor = 100
	}
	return b.Diagonal() / divisor
}

// DefaultViewpoint looks at the bounds from along dir, two diagonals away.
func DefaultViewpoint(b mesh.AABB, dir r3.Vector) r3.Vector {
	dir = dir.Normalize()
	if dir.Norm2() == 0 {
		dir = r3.Vector{Z: 1}
	}
	diag := b.Diagonal()
	if diag == 0 {
		diag = 1
	}
	return b.Center().Add(dir.Mul(2 * diag))
}

func (s *Sampler) generate(ctx context.Context, surface *mesh.Mesh, viewpoint r3.Vector, spacing float64) (Result, error) {
	start := time.Now()
	res := Result{Spacing: spacing, Triangles: len(surface.Triangles())}
	if surface.Empty() || spacing <= 0 || math.IsNaN(spacing) {
		s.logger.Warnw("sampler: nothing to sample", "triangles", res.Triangles, "spacing", spacing)
		return res, nil
	}

	bvh := mesh.NewBVH(surface)

	verts := sparseVertices(surface.Vertices(), s.params.VertexSampleTarget)
	var center r3.Vector
	for _, v := range verts {
		center = center.Add(v)
	}
	center = center.Mul(1 / float64(len(verts)))
	res.Center = center

	normal := r3.Vector{Z: 1}
	if toCenter := center.Sub(viewpoint); toCenter.Norm2() > 0 {
		if hit, ok := bvh.Intersect(mesh.Ray{Origin: viewpoint, Direction: toCenter.Normalize()}); ok {
			normal = hit.Normal
		} else {
			res.NormalFallback = true
		}
	} else {
		res.NormalFallback = true
	}
	res.Normal = normal

	u, v := tangentBasis(normal)

	umin, umax := math.Inf(1), math.Inf(-1)
	vmin, vmax := math.Inf(1), math.Inf(-1)
	for _, p := range verts {
		d := p.Sub(center)
		pu, pv := d.Dot(u), d.Dot(v)
		umin, umax = math.Min(umin, pu), math.Max(umax, pu)
		vmin, vmax = math.Min(vmin, pv), math.Max(vmax, pv)
	}
	pad := 1.5 * spacing
	umin, umax = umin-pad, umax+pad
	vmin, vmax = vmin-pad, vmax+pad

	bounds := surface.Bounds()
	diag := bounds.Diagonal()
	if diag == 0 {
		diag = 1
	}
	pushOut := math.Max(1e-4, diag*s.params.PushOutFraction)
	// start above the highest corner of the bounds along the normal
	height := pushOut + maxProjection(bounds, center, normal)
	down := normal.Mul(-1)

	du := spacing
	dv := spacing * math.Sqrt(3) / 2
	maxPoints := s.params.MaxPoints
	points := make([]SamplePoint, 0, min(maxPoints, 1024))

rows:
	for row, vc := 0, vmin; vc <= vmax; row, vc = row+1, vc+dv {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		offset := 0.0
		if row%2 == 1 {
			offset = du / 2
		}
		for uc := umin + offset; uc <= umax; uc += du {
			origin := center.Add(u.Mul(uc)).Add(v.Mul(vc)).Add(normal.Mul(height))
			res.Rays++
			hit, ok := bvh.Intersect(mesh.Ray{Origin: origin, Direction: down})
			if !ok {
				continue
			}
			points = append(points, SamplePoint{
				Position: hit.Point,
				Normal:   hit.Normal,
				U:        (vc - vmin) / (vmax - vmin),
				V:        (uc - umin) / (umax - umin),
			})
			if maxPoints > 0 && len(points) >= maxPoints {
				break rows
			}
		}
	}

	res.Points = points
	res.Elapsed = time.Since(start)
	s.logger.Infow("sampler: "+res.Message(), "rays", res.Rays, "triangles", res.Triangles, "fallback_normal", res.NormalFallback)
	return res, nil
}

// sparseVertices keeps every ceil(n/target)-th vertex.
func sparseVertices(all []r3.Vector, target int) []r3.Vector {
	if target <= 0 {
		target = 3000
	}
	step := max(1, (len(all)+target-1)/target)
	out := make([]r3.Vector, 0, len(all)/step+1)
	for i := 0; i < len(all); i += step {
		out = append(out, all[i])
	}
	return out
}

// tangentBasis returns unit U, V spanning the plane orthogonal to n, with
// U seeded from X (or Y when n is close to X) by Gram-Schmidt.
func tangentBasis(n r3.Vector) (r3.Vector, r3.Vector) {
	seed := r3.Vector{X: 1}
	if math.Abs(n.X) > 0.9 {
		seed = r3.Vector{Y: 1}
	}
	u := seed.Sub(n.Mul(seed.Dot(n))).Normalize()
	v := n.Cross(u).Normalize()
	return u, v
}

func maxProjection(b mesh.AABB, origin, dir r3.Vector) float64 {
	best := math.Inf(-1)
	for i := 0; i < 8; i++ {
		corner := b.Min
		if i&1 != 0 {
			corner.X = b.Max.X
		}
		if i&2 != 0 {
			corner.Y = b.Max.Y
		}
		if i&4 != 0 {
			corner.Z = b.Max.Z
		}
		best = math.Max(best, corner.Sub(origin).Dot(dir))
	}
	return best
}
