// ABOUTME: Tests for the receiver orchestration
// ABOUTME: Streams crafted datagrams over loopback and checks the counters
package receiver

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ToneWire/tonewire-go/internal/jitter"
	"github.com/ToneWire/tonewire-go/internal/protocol"
)

func newTestReceiver(t *testing.T, opts Options) *Receiver {
	t.Helper()
	if opts.SampleRateHz == 0 {
		opts.SampleRateHz = 8000
	}
	if opts.Channels == 0 {
		opts.Channels = 1
	}
	if opts.JitterMs == 0 {
		opts.JitterMs = 20
	}
	opts.NoAudio = true // tests never touch a real audio device

	r, err := New(opts)
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Fatalf("start receiver: %v", err)
	}
	t.Cleanup(r.Stop)
	return r
}

func dialReceiver(t *testing.T, r *Receiver) *net.UDPConn {
	t.Helper()
	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{
		IP: net.IPv4(127, 0, 0, 1), Port: r.LocalPort(),
	})
	if err != nil {
		t.Fatalf("dial receiver: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendPacket(t *testing.T, conn *net.UDPConn, seq uint32, samples []int16) {
	t.Helper()
	wire := protocol.Marshal(nil, protocol.Header{Sequence: seq}, samples)
	if _, err := conn.Write(wire); err != nil {
		t.Fatalf("send packet %d: %v", seq, err)
	}
}

// waitFor polls until cond passes or the deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func TestOptionValidation(t *testing.T) {
	if _, err := New(Options{ListenPort: -1, SampleRateHz: 8000, Channels: 1, JitterMs: 20}); err == nil {
		t.Error("expected bad port to be rejected")
	}
	if _, err := New(Options{SampleRateHz: 0, Channels: 1, JitterMs: 20}); err == nil {
		t.Error("expected zero sample rate to be rejected")
	}
	if _, err := New(Options{SampleRateHz: 8000, Channels: 1, JitterMs: 0}); err == nil {
		t.Error("expected empty jitter buffer to be rejected")
	}
}

func TestAdmitsStreamAndCountsLoss(t *testing.T) {
	r := newTestReceiver(t, Options{})
	conn := dialReceiver(t, r)

	pcm := make([]int16, 80)
	sendPacket(t, conn, 0, pcm)
	sendPacket(t, conn, 1, pcm)
	sendPacket(t, conn, 3, pcm) // drops 2
	sendPacket(t, conn, 1, pcm) // late

	waitFor(t, func() bool { return r.Snapshot().Packets == 4 })

	s := r.Snapshot()
	if s.Buffer.Lost != 1 {
		t.Errorf("expected loss 1, got %d", s.Buffer.Lost)
	}
	if s.Buffer.Stale != 1 {
		t.Errorf("expected stale 1, got %d", s.Buffer.Stale)
	}
	if s.Malformed != 0 {
		t.Errorf("expected no malformed packets, got %d", s.Malformed)
	}
}

func TestMalformedDatagramCountedAndDropped(t *testing.T) {
	r := newTestReceiver(t, Options{})
	conn := dialReceiver(t, r)

	if _, err := conn.Write([]byte{1, 2, 3}); err != nil {
		t.Fatalf("send runt: %v", err)
	}
	// A bare header with no samples is equally useless to playout.
	if _, err := conn.Write(make([]byte, 12)); err != nil {
		t.Fatalf("send header-only datagram: %v", err)
	}

	waitFor(t, func() bool { return r.Snapshot().Malformed == 2 })

	s := r.Snapshot()
	if s.Packets != 0 {
		t.Errorf("expected runt excluded from packet count, got %d", s.Packets)
	}
	if s.Buffer.Received != 0 {
		t.Errorf("expected nothing admitted, got %d", s.Buffer.Received)
	}
}

func TestWavCapture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rx.wav")
	r := newTestReceiver(t, Options{WavPath: path})
	conn := dialReceiver(t, r)

	pcm := make([]int16, 80)
	for i := range pcm {
		pcm[i] = 11
	}
	sendPacket(t, conn, 0, pcm)
	waitFor(t, func() bool { return r.Snapshot().Packets == 1 })

	r.Stop()

	// Header (44 bytes) plus one 80-sample packet.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat capture: %v", err)
	}
	if info.Size() != 44+160 {
		t.Errorf("expected 204-byte capture, got %d", info.Size())
	}
}

func TestBufferDepthReflectsJitterTarget(t *testing.T) {
	// 60 ms at 44100 Hz: the buffer must hold Filling until 2646 samples.
	r, err := New(Options{SampleRateHz: 44100, Channels: 1, JitterMs: 60, NoAudio: true})
	if err != nil {
		t.Fatalf("new receiver: %v", err)
	}

	pcm := make([]int16, 441)
	for seq := uint32(0); seq < 5; seq++ {
		r.buf.Put(seq, pcm)
	}
	if got := r.buf.Snapshot().State; got == jitter.StatePlaying {
		t.Fatal("playing before 2646 samples buffered")
	}
	r.buf.Put(5, pcm)
	if got := r.buf.Snapshot().State; got != jitter.StatePlaying {
		t.Errorf("expected playing at 2646 samples, got %v", got)
	}
}

func TestStopIsClean(t *testing.T) {
	r := newTestReceiver(t, Options{})
	conn := dialReceiver(t, r)
	sendPacket(t, conn, 0, make([]int16, 80))

	r.Stop()
	r.Stop() // second stop is harmless
}
