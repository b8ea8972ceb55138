// Package transport delivers raw frames from a pad, a recording or a
// synthetic generator to a Handler.
package transport

import (
	"bufio"
	"context"
	"io"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/relabs-tech/tactile_viewer/internal/frame"
)

// Handler receives the lifecycle of one source run. All calls come from the
// goroutine executing Run.
type Handler interface {
	OnConnect()
	OnFrame(f frame.RawFrame)
	// OnDisconnect is called once when Run ends; err is nil on a requested stop.
	OnDisconnect(err error)
}

// Source produces frames until ctx is done or the stream fails.
type Source interface {
	Name() string
	Run(ctx context.Context, h Handler) error
}

// Stats counts lines seen by a line-based source.
type Stats struct {
	lines   atomic.Uint64
	frames  atomic.Uint64
	dropped atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Lines   uint64 `json:"lines"`
	Frames  uint64 `json:"frames"`
	Dropped uint64 `json:"dropped"`
}

func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Lines:   s.lines.Load(),
		Frames:  s.frames.Load(),
		Dropped: s.dropped.Load(),
	}
}

// lineFilter parses lines into frames and counts the ones it rejects.
type lineFilter struct {
	stats  *Stats
	logger *zap.SugaredLogger
}

// accept returns the frame for line, or false when the line is empty or malformed.
func (lf lineFilter) accept(line string) (frame.RawFrame, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return frame.RawFrame{}, false
	}
	lf.stats.lines.Add(1)
	f, err := frame.ParseLine(line)
	if err != nil {
		n := lf.stats.dropped.Add(1)
		// malformed lines are routine on a freshly opened port; keep it quiet
		if n <= 3 || n%1000 == 0 {
			lf.logger.Debugw("dropping line", "line", line, "error", err, "dropped", n)
		}
		return frame.RawFrame{}, false
	}
	lf.stats.frames.Add(1)
	return f, true
}

// readFrames reads newline-terminated lines from r until it fails. A trailing
// partial line is kept by the reader until its newline arrives.
func readFrames(r io.Reader, lf lineFilter, h Handler) error {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				if f, ok := lf.accept(line); ok {
					h.OnFrame(f)
				}
				return io.EOF
			}
			return err
		}
		if f, ok := lf.accept(line); ok {
			h.OnFrame(f)
		}
	}
}
