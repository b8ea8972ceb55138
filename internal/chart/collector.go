// Package chart keeps rolling windows of fusion samples and renders them.
package chart

import (
	"sync"

	"github.com/relabs-tech/tactile_viewer/internal/fusion"
)

// Drainer is the pull-and-clear source of samples.
type Drainer interface {
	Drain(dst []fusion.Sample) []fusion.Sample
}

// Collector moves samples from a Drainer into a fixed size window. Pull is
// called by one goroutine; Snapshot may be called from any.
type Collector struct {
	src    Drainer
	window int

	mu      sync.RWMutex
	samples []fusion.Sample
	total   int

	scratch []fusion.Sample
}

// NewCollector returns a collector whose window starts filled with zeros.
func NewCollector(src Drainer, window int) *Collector {
	window = max(window, 2)
	return &Collector{
		src:     src,
		window:  window,
		samples: make([]fusion.Sample, window),
		scratch: make([]fusion.Sample, 0, window),
	}
}

// Pull drains the source into the window and returns how many samples arrived.
func (c *Collector) Pull() int {
	c.scratch = c.src.Drain(c.scratch)
	n := len(c.scratch)
	if n == 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += n
	if n >= c.window {
		copy(c.samples, c.scratch[n-c.window:])
		return n
	}
	copy(c.samples, c.samples[n:])
	copy(c.samples[c.window-n:], c.scratch)
	return n
}

// Snapshot returns a copy of the window, oldest first.
func (c *Collector) Snapshot() []fusion.Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]fusion.Sample(nil), c.samples...)
}

// Latest returns the newest sample, or false before anything arrived.
func (c *Collector) Latest() (fusion.Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.samples[c.window-1], c.total > 0
}

// Total is the number of samples pulled so far.
func (c *Collector) Total() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.total
}
