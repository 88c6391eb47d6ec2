// ABOUTME: Deadline-paced packet transmit loop
// ABOUTME: Accumulates absolute deadlines so per-tick overhead never drifts the rate
package stream

import (
	"context"
	"log"
	"time"

	"github.com/ToneWire/tonewire-go/internal/protocol"
)

// runPacer transmits one packet per interval until cancelled. The schedule
// is deadline-accumulating: each deadline is the previous deadline plus
// the interval, never re-derived from the current time. A tick that fires
// late shortens the next wait instead of pushing every later packet back,
// so the average rate converges to the configured rate.
func (c *Controller) runPacer(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	// First packet goes out immediately; start() already armed the state.
	deadline := time.Now()

	for {
		wait := time.Until(deadline)
		if wait < time.Microsecond {
			wait = time.Microsecond
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		interval := c.sendTick()
		if interval <= 0 {
			return
		}
		deadline = deadline.Add(interval)
	}
}

// sendTick synthesizes, encodes, and transmits one packet under the
// controller lock. It returns the pacing interval for the next deadline,
// or 0 when streaming has stopped.
func (c *Controller) sendTick() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.streaming || c.conn == nil {
		return 0
	}

	n := c.samplesPerPacket
	if cap(c.pcm) < n {
		c.pcm = make([]int16, n)
	}
	pcm := c.pcm[:n]
	c.osc.Read(pcm)

	h := protocol.Header{
		Sequence:      c.seq,
		SampleCounter: c.sampleCounter,
		TimestampUS:   c.monotonicMicros(),
	}
	c.seq++
	c.sampleCounter += uint32(n)

	c.wire = protocol.Marshal(c.wire[:0], h, pcm)
	if _, err := c.conn.Write(c.wire); err != nil {
		// Best-effort delivery: log and let the next deadline fire.
		log.Printf("tone send failed: %v", err)
	}

	return time.Duration(uint64(n)*1_000_000/uint64(c.settings.SampleRateHz)) * time.Microsecond
}

// monotonicMicros is the wire timestamp clock: microseconds since the
// controller was created, wrapping modulo 2^32.
func (c *Controller) monotonicMicros() uint32 {
	return uint32(time.Since(c.epoch).Microseconds())
}
