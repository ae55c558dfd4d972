package game

import (
	"slices"
	"sync"
	"time"
)

const maxLatencySamples = 4096

// LatencySampler collects processing delays between controller evaluations.
// Once full it keeps the most recent samples.
type LatencySampler struct {
	mu      sync.Mutex
	samples []time.Duration
	next    int
}

func NewLatencySampler() *LatencySampler {
	return &LatencySampler{samples: make([]time.Duration, 0, 256)}
}

func (s *LatencySampler) Record(d time.Duration) {
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) < maxLatencySamples {
		s.samples = append(s.samples, d)
		return
	}
	s.samples[s.next] = d
	s.next = (s.next + 1) % maxLatencySamples
}

// P95AndReset returns the 95th percentile of the window and starts a new one.
// An empty window reports zero.
func (s *LatencySampler) P95AndReset() time.Duration {
	s.mu.Lock()
	window := s.samples
	s.samples = make([]time.Duration, 0, cap(window))
	s.next = 0
	s.mu.Unlock()

	if len(window) == 0 {
		return 0
	}
	slices.Sort(window)
	idx := (len(window)*95+99)/100 - 1
	return window[idx]
}
