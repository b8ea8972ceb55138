package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/tactile_viewer/internal/config"
	"github.com/relabs-tech/tactile_viewer/internal/surface"
)

// RunSampler samples the configured scene once and writes a report, or the
// PointSet as JSON when asJSON is set.
func RunSampler(ctx context.Context, cfg *config.Config, out io.Writer, asJSON bool, logger *zap.SugaredLogger) error {
	scene, err := BuildScene(cfg.SceneShape)
	if err != nil {
		return err
	}
	sampler := surface.NewSampler(cfg.Sampler(), logger)
	viewpoint := surface.DefaultViewpoint(scene.Flatten().Bounds(), cfg.ViewDirection)

	res, err := sampler.GenerateScene(ctx, scene, viewpoint)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(newPointSet(uuid.New(), res))
	}

	fmt.Fprintf(out, "scene:      %s (%d triangles)\n", cfg.SceneShape, res.Triangles)
	fmt.Fprintf(out, "viewpoint:  %.3f %.3f %.3f\n", viewpoint.X, viewpoint.Y, viewpoint.Z)
	fmt.Fprintf(out, "normal:     %.3f %.3f %.3f (fallback=%v)\n", res.Normal.X, res.Normal.Y, res.Normal.Z, res.NormalFallback)
	fmt.Fprintf(out, "result:     %s\n", res.Message())
	fmt.Fprintf(out, "rays:       %d\n", res.Rays)
	if len(res.Points) > 1 {
		st := surface.NeighborSpacing(res.Points)
		fmt.Fprintf(out, "neighbors:  mean=%.4f median=%.4f stddev=%.4f min=%.4f max=%.4f\n",
			st.Mean, st.Median, st.StdDev, st.Min, st.Max)
	}
	return nil
}
