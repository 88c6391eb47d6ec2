// ABOUTME: Host-side receiver orchestration
// ABOUTME: Binds the UDP socket and wires codec, jitter buffer, playout, and stats
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/ToneWire/tonewire-go/internal/jitter"
	"github.com/ToneWire/tonewire-go/internal/player"
	"github.com/ToneWire/tonewire-go/internal/protocol"
	"github.com/ToneWire/tonewire-go/internal/wav"
	"github.com/google/uuid"
)

// Options configures a Receiver.
type Options struct {
	ListenPort    int // 0 picks an ephemeral port
	SampleRateHz  int
	Channels      int
	JitterMs      int
	BlockMs       int // playout tick duration, default 10 ms
	StatsInterval time.Duration
	NoAudio       bool // reception and statistics only, drain to discard
	WavPath       string
}

// Status is a consistent external view for reporting and the TUI.
type Status struct {
	SessionID   string
	ListenPort  int
	Uptime      time.Duration
	Packets     uint64
	Malformed   uint64
	BitrateKbps float64
	PacketRate  float64
	BufferMs    float64
	Buffer      jitter.Stats
}

// Receiver runs the receive half of the pipeline: one goroutine reads the
// socket and admits packets, one drains playout, one reports statistics.
// None of them mutates another's state outside the jitter buffer's lock.
type Receiver struct {
	opts      Options
	sessionID string
	conn      *net.UDPConn
	buf       *jitter.Buffer
	sink      player.Sink
	playout   *player.Playout
	wav       *wav.Writer
	stats     *stats
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	started   bool
}

// New validates options and prepares an idle receiver.
func New(opts Options) (*Receiver, error) {
	if opts.ListenPort < 0 || opts.ListenPort > 65535 {
		return nil, fmt.Errorf("invalid listen port %d", opts.ListenPort)
	}
	if opts.SampleRateHz <= 0 || opts.Channels <= 0 {
		return nil, fmt.Errorf("sample rate and channels must be positive")
	}
	if opts.BlockMs <= 0 {
		opts.BlockMs = 10
	}
	if opts.StatsInterval <= 0 {
		opts.StatsInterval = 5 * time.Second
	}

	targetDepth := opts.SampleRateHz * opts.JitterMs / 1000 * opts.Channels
	if targetDepth < 1 {
		return nil, fmt.Errorf("jitter buffer of %d ms holds no samples at %d Hz",
			opts.JitterMs, opts.SampleRateHz)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Receiver{
		opts:      opts,
		sessionID: uuid.NewString(),
		buf:       jitter.New(jitter.Config{TargetDepth: targetDepth}),
		stats:     newStats(),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start binds the socket, opens the sink, and launches the three
// goroutines. Partial failures release what was acquired.
func (r *Receiver) Start() error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: r.opts.ListenPort})
	if err != nil {
		return fmt.Errorf("bind udp port %d: %w", r.opts.ListenPort, err)
	}
	r.conn = conn

	if r.opts.WavPath != "" {
		w, err := wav.NewWriter(r.opts.WavPath, r.opts.SampleRateHz, r.opts.Channels)
		if err != nil {
			conn.Close()
			return err
		}
		r.wav = w
	}

	if r.opts.NoAudio {
		r.sink = player.Discard{}
		log.Printf("audio playback disabled, statistics only")
	} else {
		out := player.NewOutput()
		if err := out.Open(r.opts.SampleRateHz, r.opts.Channels); err != nil {
			conn.Close()
			if r.wav != nil {
				r.wav.Close()
			}
			return err
		}
		r.sink = out
	}

	r.playout = player.NewPlayout(r.buf, r.sink, r.opts.SampleRateHz, r.opts.Channels, r.opts.BlockMs)
	r.stats = newStats()
	r.started = true

	r.wg.Add(2)
	go r.readLoop()
	go r.reportLoop()
	go r.playout.Run()

	log.Printf("receiver listening: session=%s port=%d rate=%d ch=%d jitter=%dms",
		r.sessionID, r.LocalPort(), r.opts.SampleRateHz, r.opts.Channels, r.opts.JitterMs)
	return nil
}

// LocalPort reports the bound UDP port.
func (r *Receiver) LocalPort() int {
	if r.conn == nil {
		return 0
	}
	return r.conn.LocalAddr().(*net.UDPAddr).Port
}

// readLoop receives datagrams and admits them into the jitter buffer.
// Malformed datagrams are dropped and counted at this boundary; they
// never reach the playout path.
func (r *Receiver) readLoop() {
	defer r.wg.Done()

	buf := make([]byte, protocol.MaxPacketBytes)
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		r.conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			log.Printf("receiver: read error: %v", err)
			continue
		}

		pkt, ok := protocol.Unmarshal(buf[:n])
		if !ok {
			log.Printf("receiver: dropped malformed %d-byte datagram from %s", n, addr)
			r.stats.bad()
			continue
		}

		r.stats.packet(n - protocol.HeaderSize)
		if r.wav != nil {
			if err := r.wav.WriteSamples(pkt.Samples); err != nil {
				log.Printf("receiver: wav capture failed: %v", err)
				r.wav.Close()
				r.wav = nil
			}
		}
		r.buf.Put(pkt.Sequence, pkt.Samples)
	}
}

// reportLoop periodically logs a consistent statistics snapshot. It only
// reads; it never mutates pipeline state.
func (r *Receiver) reportLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.opts.StatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			s := r.Snapshot()
			log.Printf("stats: received=%d lost=%d stale=%d underruns=%d bitrate=%.1f kbps rate=%.1f/s buffer=%.1f ms state=%s",
				s.Packets, s.Buffer.Lost, s.Buffer.Stale, s.Buffer.Underruns,
				s.BitrateKbps, s.PacketRate, s.BufferMs, s.Buffer.State)
		}
	}
}

// Snapshot assembles the current Status.
func (r *Receiver) Snapshot() Status {
	packets, bytes, malformed, elapsed := r.stats.snapshot()
	bs := r.buf.Snapshot()

	status := Status{
		SessionID:  r.sessionID,
		ListenPort: r.LocalPort(),
		Uptime:     elapsed,
		Packets:    packets,
		Malformed:  malformed,
		Buffer:     bs,
		BufferMs:   float64(bs.Depth) / float64(r.opts.SampleRateHz*r.opts.Channels) * 1000,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		status.BitrateKbps = float64(bytes) * 8 / secs / 1000
		status.PacketRate = float64(packets) / secs
	}
	return status
}

// Stop signals every goroutine, waits for them to finish their current
// unit of work, and releases the socket, sink, and capture file.
func (r *Receiver) Stop() {
	if !r.started {
		return
	}
	r.started = false

	r.cancel()
	r.conn.Close()
	r.wg.Wait()
	r.playout.Stop()

	if r.wav != nil {
		if err := r.wav.Close(); err != nil {
			log.Printf("receiver: closing wav capture: %v", err)
		}
		r.wav = nil
	}
	if err := r.sink.Close(); err != nil {
		log.Printf("receiver: closing sink: %v", err)
	}
	log.Printf("receiver stopped: session=%s", r.sessionID)
}
