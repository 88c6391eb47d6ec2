// ABOUTME: Transmit-side stream controller
// ABOUTME: Owns settings, oscillator, socket, and pacer lifecycle under one lock
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/ToneWire/tonewire-go/internal/protocol"
	"github.com/ToneWire/tonewire-go/internal/tone"
	"github.com/google/uuid"
)

// Accepted parameter ranges.
const (
	MinFrequencyHz  = 1
	MaxFrequencyHz  = 20000
	MaxAmplitudePct = 100
	MinSampleRateHz = 1
	MaxSampleRateHz = 192000
	MinPacketMs     = 1
	MaxPacketMs     = 1000
)

// Power-on defaults.
const (
	DefaultFrequencyHz  = 1000
	DefaultAmplitudePct = 50
	DefaultSampleRateHz = 44100
	DefaultPacketMs     = 10
)

var (
	// ErrAlreadyActive means start was called on a running stream. The
	// stream keeps running; nothing needs recovery.
	ErrAlreadyActive = errors.New("stream already active")
	ErrNoDestination = errors.New("destination not set")
	ErrLinkDown      = errors.New("network link down")
	ErrOutOfRange    = errors.New("parameter out of range")
	ErrBadAddress    = errors.New("bad destination address")
)

// Settings is the full transmit configuration.
type Settings struct {
	FrequencyHz      int
	AmplitudePct     int
	SampleRateHz     int
	PacketDurationMs int
	Destination      *net.UDPAddr
}

// Snapshot is a consistent view of the controller state.
type Snapshot struct {
	Running          bool
	Settings         Settings
	SamplesPerPacket int
	PacketsSent      uint32
	SessionID        string
}

// Controller drives the transmit half of the pipeline. All public
// operations share one mutex with the per-tick send path; only Start and
// Stop do bounded socket work while holding it.
type Controller struct {
	mu               sync.Mutex
	settings         Settings
	samplesPerPacket int
	osc              *tone.Oscillator
	conn             *net.UDPConn
	streaming        bool
	seq              uint32
	sampleCounter    uint32
	sessionID        string
	cancel           context.CancelFunc
	epoch            time.Time
	linkCheck        func() error

	// per-tick scratch, reused to keep the send path allocation-free
	pcm  []int16
	wire []byte
}

// NewController creates an idle controller with the power-on defaults.
func NewController() *Controller {
	c := &Controller{
		settings: Settings{
			FrequencyHz:      DefaultFrequencyHz,
			AmplitudePct:     DefaultAmplitudePct,
			SampleRateHz:     DefaultSampleRateHz,
			PacketDurationMs: DefaultPacketMs,
		},
		epoch:     time.Now(),
		linkCheck: defaultLinkCheck,
	}
	c.samplesPerPacket = samplesPerPacket(DefaultSampleRateHz, DefaultPacketMs)
	c.osc = tone.NewOscillator(DefaultFrequencyHz, DefaultSampleRateHz, DefaultAmplitudePct)
	return c
}

// samplesPerPacket rounds rate * ms / 1000 to the nearest integer.
func samplesPerPacket(sampleRateHz, packetMs int) int {
	return (sampleRateHz*packetMs + 500) / 1000
}

// Configure validates and applies tone parameters. Each range is checked
// independently and a violation leaves every field untouched. Applying a
// configuration while streaming takes effect on the next packet with an
// audible phase reset.
func (c *Controller) Configure(frequencyHz, amplitudePct, sampleRateHz, packetMs int) error {
	if frequencyHz < MinFrequencyHz || frequencyHz > MaxFrequencyHz {
		return fmt.Errorf("%w: frequency %d Hz", ErrOutOfRange, frequencyHz)
	}
	if amplitudePct < 0 || amplitudePct > MaxAmplitudePct {
		return fmt.Errorf("%w: amplitude %d%%", ErrOutOfRange, amplitudePct)
	}
	if sampleRateHz < MinSampleRateHz || sampleRateHz > MaxSampleRateHz {
		return fmt.Errorf("%w: sample rate %d Hz", ErrOutOfRange, sampleRateHz)
	}
	if packetMs < MinPacketMs || packetMs > MaxPacketMs {
		return fmt.Errorf("%w: packet duration %d ms", ErrOutOfRange, packetMs)
	}
	samples := samplesPerPacket(sampleRateHz, packetMs)
	if samples < 1 || samples > protocol.MaxSamplesPerPacket {
		return fmt.Errorf("%w: %d samples per packet", ErrOutOfRange, samples)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.settings.FrequencyHz = frequencyHz
	c.settings.AmplitudePct = amplitudePct
	c.settings.SampleRateHz = sampleRateHz
	c.settings.PacketDurationMs = packetMs
	c.samplesPerPacket = samples
	c.osc.Reconfigure(frequencyHz, sampleRateHz, amplitudePct)
	return nil
}

// SetDestination stores the transmit target. It does not start streaming.
func (c *Controller) SetDestination(ip string, port int) error {
	addr := net.ParseIP(ip)
	if addr == nil {
		return fmt.Errorf("%w: %q", ErrBadAddress, ip)
	}
	if port <= 0 || port > 65535 {
		return fmt.Errorf("%w: port %d", ErrBadAddress, port)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings.Destination = &net.UDPAddr{IP: addr, Port: port}
	return nil
}

// Start opens the transmit socket and schedules the first packet
// immediately. Sequence, sample counter, and oscillator phase restart
// from zero on every start.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streaming {
		return ErrAlreadyActive
	}
	if c.settings.Destination == nil {
		return ErrNoDestination
	}
	if err := c.linkCheck(); err != nil {
		return err
	}

	conn, err := net.DialUDP("udp", nil, c.settings.Destination)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.settings.Destination, err)
	}
	if err := conn.SetWriteBuffer(64 * 1024); err != nil {
		log.Printf("set send buffer: %v", err)
	}

	c.conn = conn
	c.seq = 0
	c.sampleCounter = 0
	c.osc.Reset()
	c.sessionID = uuid.NewString()
	c.streaming = true

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.runPacer(ctx)

	log.Printf("tone stream started: session=%s dest=%s %d Hz @ %d%%, %d ms packets",
		c.sessionID, c.settings.Destination, c.settings.FrequencyHz,
		c.settings.AmplitudePct, c.settings.PacketDurationMs)
	return nil
}

// Stop cancels the pacer and closes the socket. Calling it while already
// idle is a no-op.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.streaming {
		c.streaming = false
		c.cancel()
		log.Printf("tone stream stopped: session=%s packets=%d", c.sessionID, c.seq)
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Status returns a consistent snapshot without waiting on pacer activity
// beyond the shared lock.
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		Running:          c.streaming,
		Settings:         c.settings,
		SamplesPerPacket: c.samplesPerPacket,
		PacketsSent:      c.seq,
		SessionID:        c.sessionID,
	}
}

// Amplitude returns the current amplitude percentage.
func (c *Controller) Amplitude() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.AmplitudePct
}

// AdjustAmplitude nudges the amplitude by delta percent, clamped to
// 0-100, without resetting the oscillator phase. Persisting the value
// across restarts is the configuration layer's concern.
func (c *Controller) AdjustAmplitude(delta int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	amp := c.settings.AmplitudePct + delta
	if amp < 0 {
		amp = 0
	}
	if amp > MaxAmplitudePct {
		amp = MaxAmplitudePct
	}
	c.settings.AmplitudePct = amp
	c.osc.SetAmplitude(amp)
	return amp
}

// defaultLinkCheck requires at least one non-loopback interface to be up.
func defaultLinkCheck() error {
	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLinkDown, err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagLoopback == 0 {
			return nil
		}
	}
	return ErrLinkDown
}
