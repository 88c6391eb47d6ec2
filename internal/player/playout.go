// ABOUTME: Playout clock draining the jitter buffer at the sink's cadence
// ABOUTME: Emits fixed-size blocks on a drift-free deadline schedule
package player

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/ToneWire/tonewire-go/internal/jitter"
)

// Playout drains the jitter buffer at the real playback cadence. It only
// touches the buffer under its lightweight lock and never performs
// network I/O, so a stalled socket cannot stall audio.
//
// With a device sink the blocking Write paces the loop at the hardware's
// own clock; the deadline schedule below is the fallback cadence for
// non-blocking sinks (no-audio mode) and keeps the drain rate drift-free
// the same way the transmit pacer does.
type Playout struct {
	buf      *jitter.Buffer
	sink     Sink
	block    []int16
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	ticks    atomic.Uint64
}

// NewPlayout creates a playout clock emitting blockMs of audio per tick.
func NewPlayout(buf *jitter.Buffer, sink Sink, sampleRateHz, channels, blockMs int) *Playout {
	ctx, cancel := context.WithCancel(context.Background())

	blockSamples := sampleRateHz * blockMs / 1000 * channels
	if blockSamples < 1 {
		blockSamples = 1
	}

	return &Playout{
		buf:      buf,
		sink:     sink,
		block:    make([]int16, blockSamples),
		interval: time.Duration(blockMs) * time.Millisecond,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Run drains until Stop. It finishes the block in flight before exiting;
// no tick is cancelled mid-block.
func (p *Playout) Run() {
	defer close(p.done)

	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	deadline := time.Now()

	for {
		wait := time.Until(deadline)
		if wait < time.Microsecond {
			wait = time.Microsecond
		}
		timer.Reset(wait)

		select {
		case <-p.ctx.Done():
			return
		case <-timer.C:
		}

		p.buf.Read(p.block)
		if err := p.sink.Write(p.block); err != nil {
			log.Printf("playout: sink write failed: %v", err)
		}
		p.ticks.Add(1)

		deadline = deadline.Add(p.interval)
	}
}

// Stop signals the loop and waits for the current block to finish.
func (p *Playout) Stop() {
	p.cancel()
	<-p.done
}

// Ticks reports how many blocks have been emitted.
func (p *Playout) Ticks() uint64 {
	return p.ticks.Load()
}

// BlockSamples returns the per-tick drain size in samples.
func (p *Playout) BlockSamples() int {
	return len(p.block)
}
