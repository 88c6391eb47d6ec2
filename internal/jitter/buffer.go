// ABOUTME: Receiver-side jitter buffer
// ABOUTME: Absorbs network jitter, loss, and reordering into a steady sample stream
package jitter

import (
	"log"
	"sync"
)

// State is the playout state machine position.
type State int

const (
	StateEmpty State = iota
	StateFilling
	StatePlaying
	StateUnderrun
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateFilling:
		return "filling"
	case StatePlaying:
		return "playing"
	case StateUnderrun:
		return "underrun"
	default:
		return "unknown"
	}
}

// Config tunes a Buffer.
type Config struct {
	// TargetDepth is the buffered sample count required before playout
	// starts and the depth the drift correction steers toward.
	TargetDepth int

	// SamplesPerPacket seeds the gap-fill size until the first packet
	// reveals the sender's real payload size.
	SamplesPerPacket int

	// TrimHoldTicks is how many consecutive over-depth playout reads are
	// required before a drift trim. Zero selects the default.
	TrimHoldTicks int
}

const (
	defaultTargetDepth      = 2646 // 60 ms at 44100 Hz mono
	defaultSamplesPerPacket = 441
	defaultTrimHoldTicks    = 50

	// maxGapFillTargets bounds the silence inserted for one sequence gap,
	// in multiples of the target depth. A jump that would need more than
	// this is a desync (foreign sender, corrupted header, long outage)
	// and resynchronizes instead of materializing the silence.
	maxGapFillTargets = 8
)

// Stats is a consistent snapshot of the buffer counters.
type Stats struct {
	State     State
	Depth     int
	Received  uint64
	Lost      uint64
	Stale     uint64
	Underruns uint64
	Trimmed   uint64
	Resets    uint64
	Desyncs   uint64
}

// Buffer ingests decoded packets on the network side and hands a
// continuous sample stream to the playout side. Admission and draining
// share one short-lived lock; the playout path never blocks on network I/O.
//
// Drift policy: when the smoothed depth stays above target plus half a
// packet for TrimHoldTicks consecutive reads, at most one packet's worth
// of buffered samples is dropped, then the observation window restarts.
// A persistently low depth is left alone - playout holds its rate and
// the Underrun path (silence plus refill) handles the shortfall rather
// than fabricating samples.
type Buffer struct {
	mu               sync.Mutex
	target           int
	tolerance        int
	trimHold         int
	state            State
	expected         uint32
	synced           bool
	samplesPerPacket int
	samples          []int16

	avgDepth  float64
	overTicks int

	received  uint64
	lost      uint64
	stale     uint64
	underruns uint64
	trimmed   uint64
	resets    uint64
	desyncs   uint64
}

// New creates an empty buffer.
func New(cfg Config) *Buffer {
	if cfg.TargetDepth <= 0 {
		cfg.TargetDepth = defaultTargetDepth
	}
	if cfg.SamplesPerPacket <= 0 {
		cfg.SamplesPerPacket = defaultSamplesPerPacket
	}
	if cfg.TrimHoldTicks <= 0 {
		cfg.TrimHoldTicks = defaultTrimHoldTicks
	}
	tolerance := cfg.SamplesPerPacket / 2
	if tolerance < 1 {
		tolerance = 1
	}

	return &Buffer{
		target:           cfg.TargetDepth,
		tolerance:        tolerance,
		trimHold:         cfg.TrimHoldTicks,
		state:            StateEmpty,
		samplesPerPacket: cfg.SamplesPerPacket,
	}
}

// Put admits one decoded packet.
//
// In-order packets append. A sequence jump counts the gap as whole lost
// packets and inserts that many packets of silence so the timeline stays
// aligned; a jump too large to be plausible loss is treated as a desync
// and resynchronizes without inserting silence, so a stray datagram with
// an arbitrary sequence number can never force a huge allocation.
// Late or duplicate packets are dropped without touching the
// buffered samples. A sender restart (sequence back at 0 after running
// higher) resets the whole session.
func (b *Buffer) Put(seq uint32, pcm []int16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.synced && seq == 0 && b.expected > 1 {
		log.Printf("jitter: sender session restart detected (expected %d)", b.expected)
		b.resetLocked()
	}

	if !b.synced {
		b.expected = seq + 1
		b.synced = true
		b.admit(pcm)
		return
	}

	switch {
	case seq == b.expected:
		b.expected++
		b.admit(pcm)

	case seq > b.expected:
		gap := seq - b.expected
		fill := uint64(gap) * uint64(b.samplesPerPacket)
		if fill > uint64(maxGapFillTargets*b.target) {
			// Too large to be in-stream loss. Do not materialize the
			// silence; drop buffered audio and lock onto the new position.
			log.Printf("jitter: sequence desync, expected %d got %d, resyncing", b.expected, seq)
			b.samples = b.samples[:0]
			b.state = StateFilling
			b.desyncs++
			b.expected = seq + 1
			b.admit(pcm)
			return
		}
		log.Printf("jitter: sequence gap, expected %d got %d (lost %d)", b.expected, seq, gap)
		b.samples = append(b.samples, make([]int16, fill)...)
		b.lost += uint64(gap)
		b.expected = seq + 1
		b.admit(pcm)

	default: // seq < expected
		b.stale++
	}
}

// admit appends payload samples and advances the state machine.
func (b *Buffer) admit(pcm []int16) {
	if len(pcm) > 0 {
		b.samplesPerPacket = len(pcm)
		b.samples = append(b.samples, pcm...)
	}
	b.received++

	switch b.state {
	case StateEmpty:
		b.state = StateFilling
		fallthrough
	case StateFilling, StateUnderrun:
		if len(b.samples) >= b.target {
			b.state = StatePlaying
			b.avgDepth = float64(len(b.samples))
		}
	}
}

// Read drains exactly len(out) samples into out at the playout cadence.
// While filling it emits silence. In the playing state a shortfall is
// padded with silence, counted as one underrun event, and the buffer goes
// back to filling until it recovers to target depth. The return value is
// true when real buffered audio was emitted.
func (b *Buffer) Read(out []int16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateEmpty, StateFilling:
		zero(out)
		return false

	case StateUnderrun:
		zero(out)
		b.state = StateFilling
		return false
	}

	if len(b.samples) < len(out) {
		n := copy(out, b.samples)
		zero(out[n:])
		b.samples = b.samples[:0]
		b.underruns++
		b.state = StateUnderrun
		log.Printf("jitter: underrun, short %d samples", len(out)-n)
		return n > 0
	}

	copy(out, b.samples)
	b.drop(len(out))
	b.driftCheck()
	return true
}

// driftCheck trims bounded latency when the smoothed depth runs high.
func (b *Buffer) driftCheck() {
	depth := len(b.samples)
	b.avgDepth = 0.9*b.avgDepth + 0.1*float64(depth)

	if b.avgDepth > float64(b.target+b.tolerance) {
		b.overTicks++
	} else {
		b.overTicks = 0
		return
	}

	if b.overTicks < b.trimHold {
		return
	}

	trim := depth - b.target
	if trim > b.samplesPerPacket {
		trim = b.samplesPerPacket
	}
	if trim > 0 {
		b.drop(trim)
		b.trimmed += uint64(trim)
		log.Printf("jitter: trimmed %d samples to reduce latency (depth %d)", trim, depth)
	}
	b.overTicks = 0
	b.avgDepth = float64(len(b.samples))
}

// drop removes n samples from the head, compacting in place.
func (b *Buffer) drop(n int) {
	b.samples = append(b.samples[:0], b.samples[n:]...)
}

// resetLocked clears buffered audio and counters for a new sender session.
func (b *Buffer) resetLocked() {
	b.samples = b.samples[:0]
	b.expected = 0
	b.synced = false
	b.state = StateEmpty
	b.avgDepth = 0
	b.overTicks = 0
	b.received = 0
	b.lost = 0
	b.stale = 0
	b.underruns = 0
	b.trimmed = 0
	b.desyncs = 0
	b.resets++
}

// Reset clears the buffer, counters, and sequence tracking.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// Snapshot returns a consistent view of the counters.
func (b *Buffer) Snapshot() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		State:     b.state,
		Depth:     len(b.samples),
		Received:  b.received,
		Lost:      b.lost,
		Stale:     b.stale,
		Underruns: b.underruns,
		Trimmed:   b.trimmed,
		Resets:    b.resets,
		Desyncs:   b.desyncs,
	}
}

func zero(s []int16) {
	for i := range s {
		s[i] = 0
	}
}
