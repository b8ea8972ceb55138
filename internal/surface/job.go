package surface

import (
	"context"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/relabs-tech/tactile_viewer/internal/mesh"
)

// Job is one background generation.
type Job struct {
	ID uuid.UUID

	cancel context.CancelFunc
	done   chan struct{}
	result Result
	err    error
}

// Start runs GenerateScene in its own goroutine.
func Start(ctx context.Context, s *Sampler, root *mesh.Node, viewpoint r3.Vector) *Job {
	ctx, cancel := context.WithCancel(ctx)
	j := &Job{ID: uuid.New(), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(j.done)
		defer cancel()
		j.result, j.err = s.GenerateScene(ctx, root, viewpoint)
	}()
	return j
}

// Cancel stops the job; Done still closes afterwards.
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed when the job has finished or been cancelled.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result blocks until the job is done.
func (j *Job) Result() (Result, error) {
	<-j.done
	return j.result, j.err
}
