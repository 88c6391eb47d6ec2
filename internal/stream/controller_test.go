// ABOUTME: Tests for the stream controller operation surface
// ABOUTME: Covers validation, state transitions, and live packet properties
package stream

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ToneWire/tonewire-go/internal/protocol"
)

// newTestController bypasses the physical link check so tests can stream
// over loopback.
func newTestController() *Controller {
	c := NewController()
	c.linkCheck = func() error { return nil }
	return c
}

// newListener binds a loopback UDP socket for capturing transmitted packets.
func newListener(t *testing.T) (*net.UDPConn, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, conn.LocalAddr().(*net.UDPAddr).Port
}

// collectPackets reads n decoded packets or fails on timeout.
func collectPackets(t *testing.T, conn *net.UDPConn, n int, timeout time.Duration) []protocol.Packet {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(timeout))

	var pkts []protocol.Packet
	buf := make([]byte, protocol.MaxPacketBytes)
	for len(pkts) < n {
		length, err := conn.Read(buf)
		if err != nil {
			t.Fatalf("read after %d packets: %v", len(pkts), err)
		}
		pkt, ok := protocol.Unmarshal(buf[:length])
		if !ok {
			t.Fatal("transmitted packet failed to decode")
		}
		pkts = append(pkts, pkt)
	}
	return pkts
}

func TestSamplesPerPacketRounding(t *testing.T) {
	cases := []struct {
		rate, ms, want int
	}{
		{44100, 10, 441},
		{44100, 20, 882},
		{48000, 10, 480},
		{8000, 1, 8},
		{44100, 1, 44}, // 44.1 rounds down
		{1500, 1, 2},   // 1.5 rounds up
	}
	for _, tc := range cases {
		if got := samplesPerPacket(tc.rate, tc.ms); got != tc.want {
			t.Errorf("samplesPerPacket(%d, %d) = %d, expected %d", tc.rate, tc.ms, got, tc.want)
		}
	}
}

func TestConfigureValidation(t *testing.T) {
	cases := []struct {
		name                 string
		freq, amp, rate, pms int
	}{
		{"frequency low", 0, 50, 44100, 10},
		{"frequency high", 20001, 50, 44100, 10},
		{"amplitude negative", 1000, -1, 44100, 10},
		{"amplitude high", 1000, 101, 44100, 10},
		{"rate low", 1000, 50, 0, 10},
		{"rate high", 1000, 50, 192001, 10},
		{"packet low", 1000, 50, 44100, 0},
		{"packet high", 1000, 50, 44100, 1001},
		{"payload overflow", 1000, 50, 192000, 1000},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestController()
			before := c.Status()

			err := c.Configure(tc.freq, tc.amp, tc.rate, tc.pms)
			if !errors.Is(err, ErrOutOfRange) {
				t.Fatalf("expected ErrOutOfRange, got %v", err)
			}

			// Rejection must leave settings untouched.
			after := c.Status()
			if after.Settings != before.Settings || after.SamplesPerPacket != before.SamplesPerPacket {
				t.Error("expected no state change on rejected configuration")
			}
		})
	}
}

func TestConfigureAccepted(t *testing.T) {
	c := newTestController()

	if err := c.Configure(1000, 80, 44100, 10); err != nil {
		t.Fatalf("configure: %v", err)
	}

	s := c.Status()
	if s.SamplesPerPacket != 441 {
		t.Errorf("expected 441 samples per packet, got %d", s.SamplesPerPacket)
	}
	if s.Settings.FrequencyHz != 1000 || s.Settings.AmplitudePct != 80 {
		t.Errorf("unexpected settings: %+v", s.Settings)
	}
	if s.Running {
		t.Error("configure must not change stream state")
	}
}

func TestSetDestinationValidation(t *testing.T) {
	c := newTestController()

	if err := c.SetDestination("not-an-ip", 5000); !errors.Is(err, ErrBadAddress) {
		t.Errorf("expected ErrBadAddress for malformed IP, got %v", err)
	}
	if err := c.SetDestination("192.0.2.1", 0); !errors.Is(err, ErrBadAddress) {
		t.Errorf("expected ErrBadAddress for zero port, got %v", err)
	}
	if err := c.SetDestination("192.0.2.1", 5000); err != nil {
		t.Errorf("expected valid destination to be accepted, got %v", err)
	}
	if c.Status().Running {
		t.Error("set destination must not start streaming")
	}
}

func TestStartWithoutDestination(t *testing.T) {
	c := newTestController()

	if err := c.Start(); !errors.Is(err, ErrNoDestination) {
		t.Errorf("expected ErrNoDestination, got %v", err)
	}
	if c.Status().Running {
		t.Error("failed start must not leave the stream running")
	}
}

func TestStartWithLinkDown(t *testing.T) {
	c := NewController()
	c.linkCheck = func() error { return ErrLinkDown }
	if err := c.SetDestination("127.0.0.1", 9); err != nil {
		t.Fatalf("set destination: %v", err)
	}

	if err := c.Start(); !errors.Is(err, ErrLinkDown) {
		t.Errorf("expected ErrLinkDown, got %v", err)
	}
}

func TestDoubleStart(t *testing.T) {
	c := newTestController()
	_, port := newListener(t)
	if err := c.SetDestination("127.0.0.1", port); err != nil {
		t.Fatalf("set destination: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	if err := c.Start(); !errors.Is(err, ErrAlreadyActive) {
		t.Errorf("expected ErrAlreadyActive, got %v", err)
	}
}

func TestStopWhileIdleIsNoOp(t *testing.T) {
	c := newTestController()
	c.Stop()
	c.Stop()

	if c.Status().Running {
		t.Error("expected stream to stay idle")
	}
}

func TestSequenceAndSampleCounter(t *testing.T) {
	c := newTestController()
	listener, port := newListener(t)

	if err := c.Configure(1000, 50, 8000, 1); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := c.SetDestination("127.0.0.1", port); err != nil {
		t.Fatalf("set destination: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	pkts := collectPackets(t, listener, 20, 2*time.Second)

	for i, pkt := range pkts {
		if pkt.Sequence != uint32(i) {
			t.Fatalf("packet %d: expected sequence %d, got %d", i, i, pkt.Sequence)
		}
		if pkt.SampleCounter != uint32(i*8) {
			t.Fatalf("packet %d: expected sample counter %d, got %d", i, i*8, pkt.SampleCounter)
		}
		if len(pkt.Samples) != 8 {
			t.Fatalf("packet %d: expected 8 samples, got %d", i, len(pkt.Samples))
		}
	}
}

func TestSequenceRestartsOnStart(t *testing.T) {
	c := newTestController()
	listener, port := newListener(t)

	if err := c.Configure(1000, 50, 8000, 1); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := c.SetDestination("127.0.0.1", port); err != nil {
		t.Fatalf("set destination: %v", err)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	collectPackets(t, listener, 5, 2*time.Second)
	c.Stop()

	// Drain anything in flight from the first session.
	drain := make([]byte, protocol.MaxPacketBytes)
	listener.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
	for {
		if _, err := listener.Read(drain); err != nil {
			break
		}
	}

	if err := c.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	defer c.Stop()

	pkts := collectPackets(t, listener, 1, 2*time.Second)
	if pkts[0].Sequence != 0 {
		t.Errorf("expected sequence restart at 0, got %d", pkts[0].Sequence)
	}
	if pkts[0].SampleCounter != 0 {
		t.Errorf("expected sample counter restart at 0, got %d", pkts[0].SampleCounter)
	}
}

func TestConfigureWhileStreaming(t *testing.T) {
	c := newTestController()
	listener, port := newListener(t)

	if err := c.Configure(1000, 50, 8000, 1); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if err := c.SetDestination("127.0.0.1", port); err != nil {
		t.Fatalf("set destination: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	collectPackets(t, listener, 3, 2*time.Second)

	// Reconfigure live: transmission continues with the new packet size.
	if err := c.Configure(2000, 50, 16000, 1); err != nil {
		t.Fatalf("reconfigure: %v", err)
	}
	if !c.Status().Running {
		t.Fatal("expected stream to keep running across reconfiguration")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("never saw a packet with the new size")
		}
		pkts := collectPackets(t, listener, 1, 2*time.Second)
		if len(pkts[0].Samples) == 16 {
			break
		}
	}
}

func TestAdjustAmplitudeClamps(t *testing.T) {
	c := newTestController()

	if got := c.AdjustAmplitude(200); got != 100 {
		t.Errorf("expected clamp to 100, got %d", got)
	}
	if got := c.AdjustAmplitude(-500); got != 0 {
		t.Errorf("expected clamp to 0, got %d", got)
	}
	if got := c.AdjustAmplitude(25); got != 25 {
		t.Errorf("expected 25, got %d", got)
	}
	if c.Amplitude() != 25 {
		t.Errorf("expected amplitude 25, got %d", c.Amplitude())
	}
}
