package transport

import (
	"bufio"
	"context"
	"os"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ReplaySource plays a recorded file of frame lines at a fixed rate.
type ReplaySource struct {
	path   string
	period time.Duration
	loop   bool
	clock  clock.Clock
	stats  Stats
	logger *zap.SugaredLogger
}

// NewReplaySource returns a source emitting one line of path every 1/rateHz.
// With loop set it starts over at the end of the file.
func NewReplaySource(path string, rateHz float64, loop bool, clk clock.Clock, logger *zap.SugaredLogger) *ReplaySource {
	return &ReplaySource{
		path:   path,
		period: time.Duration(float64(time.Second) / rateHz),
		loop:   loop,
		clock:  clk,
		logger: logger,
	}
}

func (r *ReplaySource) Name() string { return "replay:" + r.path }

func (r *ReplaySource) Stats() *Stats { return &r.stats }

// Run returns nil when ctx is done or a non-looping file is exhausted.
func (r *ReplaySource) Run(ctx context.Context, h Handler) error {
	lines, err := readLines(r.path)
	if err != nil {
		h.OnDisconnect(err)
		return err
	}
	lf := lineFilter{stats: &r.stats, logger: r.logger}
	r.logger.Infow("replaying", "file", r.path, "lines", len(lines), "period", r.period)
	ticker := r.clock.Ticker(r.period)
	defer ticker.Stop()
	h.OnConnect()

	next := 0
	for {
		select {
		case <-ctx.Done():
			h.OnDisconnect(nil)
			return nil
		case <-ticker.C:
		}
		// skip lines that do not parse without spending a tick on them
		for next < len(lines) {
			f, ok := lf.accept(lines[next])
			next++
			if ok {
				h.OnFrame(f)
				break
			}
		}
		if next >= len(lines) {
			if !r.loop {
				h.OnDisconnect(nil)
				return nil
			}
			next = 0
		}
	}
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open replay file")
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read replay file")
	}
	return lines, nil
}
