package control

import (
	"sync"
	"time"

	"github.com/montanaflynn/stats"
)

// DefaultStatsWindow is how many recent handler durations Stats summarizes.
const DefaultStatsWindow = 1000

// Stats summarizes a loop's recent behavior.
type Stats struct {
	Ticks         uint64
	MissedWakeups uint64
	// Handler duration over the last DefaultStatsWindow invocations.
	Mean time.Duration
	P99  time.Duration
	Max  time.Duration
}

// latencyWindow is a fixed-size ring of handler durations in milliseconds.
type latencyWindow struct {
	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
}

func newLatencyWindow(size int) *latencyWindow {
	return &latencyWindow{samples: make([]float64, size)}
}

func (w *latencyWindow) add(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = float64(d) / float64(time.Millisecond)
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

func (w *latencyWindow) snapshot() stats.Float64Data {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	return append(stats.Float64Data(nil), w.samples[:n]...)
}

// summarize fills the duration fields of s. An empty window leaves them zero.
func (w *latencyWindow) summarize(s *Stats) {
	data := w.snapshot()
	if data.Len() == 0 {
		return
	}
	toDuration := func(ms float64, err error) time.Duration {
		if err != nil {
			return 0
		}
		return time.Duration(ms * float64(time.Millisecond))
	}
	s.Mean = toDuration(stats.Mean(data))
	s.P99 = toDuration(stats.Percentile(data, 99))
	s.Max = toDuration(stats.Max(data))
}
