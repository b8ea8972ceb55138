package fusion

import "sync"

// Sample is one chart entry recorded per processed frame.
type Sample struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Force float64 `json:"force"`
}

// ChartSink receives one sample per processed frame.
type ChartSink interface {
	Record(s Sample)
}

// ChartBuffer collects samples between pull-and-clear drains. Record is
// called from the frame loop and Drain from the chart consumer.
type ChartBuffer struct {
	mu      sync.Mutex
	samples []Sample
	limit   int
	dropped int
}

// NewChartBuffer returns a buffer holding at most limit undrained samples;
// older samples are discarded first when a consumer falls behind.
func NewChartBuffer(limit int) *ChartBuffer {
	if limit < 1 {
		limit = 1
	}
	return &ChartBuffer{samples: make([]Sample, 0, limit), limit: limit}
}

func (b *ChartBuffer) Record(s Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.samples) == b.limit {
		copy(b.samples, b.samples[1:])
		b.samples = b.samples[:len(b.samples)-1]
		b.dropped++
	}
	b.samples = append(b.samples, s)
}

// Drain appends every pending sample to dst[:0], clears the buffer and
// returns the result.
func (b *ChartBuffer) Drain(dst []Sample) []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	dst = append(dst[:0], b.samples...)
	b.samples = b.samples[:0]
	return dst
}

// Dropped returns how many samples were discarded because nobody drained them.
func (b *ChartBuffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
