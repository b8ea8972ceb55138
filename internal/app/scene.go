package app

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/relabs-tech/tactile_viewer/internal/config"
	"github.com/relabs-tech/tactile_viewer/internal/mesh"
)

// BuildScene returns one of the built-in models. The box carries a
// touch_area part on its top face, so only that face is sampled.
func BuildScene(shape string) (*mesh.Node, error) {
	switch shape {
	case config.ShapeSphere:
		return mesh.NewNode("sphere", mesh.NewUVSphere(1, 48, 24)), nil
	case config.ShapePlane:
		return mesh.NewNode("plane", mesh.NewPlane(2, 2, 8, 8)), nil
	case config.ShapeBox:
		size := r3.Vector{X: 2, Y: 1.4, Z: 0.5}
		pad := mesh.NewNode(mesh.TouchAreaName, mesh.NewPlane(1.6, 1.0, 8, 8))
		pad.Local = mesh.Translation(r3.Vector{Z: size.Z/2 + 0.01})
		return mesh.NewNode("pad", nil,
			mesh.NewNode("body", mesh.NewBox(size)),
			pad,
		), nil
	default:
		return nil, errors.Errorf("unknown scene shape %q", shape)
	}
}
