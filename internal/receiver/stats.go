// ABOUTME: Receiver-side reception counters
// ABOUTME: Mutex-guarded totals with derived bitrate and packet rate
package receiver

import (
	"sync"
	"time"
)

// stats tracks raw reception totals. The jitter buffer owns the
// sequence-level counters; this layer counts what arrived on the socket.
type stats struct {
	mu        sync.Mutex
	start     time.Time
	packets   uint64
	bytes     uint64
	malformed uint64
}

func newStats() *stats {
	return &stats{start: time.Now()}
}

func (s *stats) packet(payloadBytes int) {
	s.mu.Lock()
	s.packets++
	s.bytes += uint64(payloadBytes)
	s.mu.Unlock()
}

func (s *stats) bad() {
	s.mu.Lock()
	s.malformed++
	s.mu.Unlock()
}

func (s *stats) snapshot() (packets, bytes, malformed uint64, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets, s.bytes, s.malformed, time.Since(s.start)
}
