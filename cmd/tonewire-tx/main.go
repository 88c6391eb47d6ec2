// ABOUTME: Entry point for the ToneWire transmitter
// ABOUTME: Configures the stream controller and paces a tone at a destination
package main

import (
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ToneWire/tonewire-go/internal/config"
	"github.com/ToneWire/tonewire-go/internal/discovery"
	"github.com/ToneWire/tonewire-go/internal/stream"
	"github.com/ToneWire/tonewire-go/internal/version"
)

var (
	configPath = flag.String("config", "", "Optional YAML config file")
	destIP     = flag.String("ip", "", "Destination IPv4 address")
	destPort   = flag.Int("port", 5000, "Destination UDP port")
	discover   = flag.Bool("discover", false, "Find the receiver via mDNS instead of -ip")
	freq       = flag.Int("freq", stream.DefaultFrequencyHz, "Tone frequency in Hz")
	amp        = flag.Int("amp", stream.DefaultAmplitudePct, "Amplitude in percent of full scale")
	rate       = flag.Int("rate", stream.DefaultSampleRateHz, "PCM sample rate in Hz")
	packetMs   = flag.Int("packet-ms", stream.DefaultPacketMs, "Packet duration in milliseconds")
	duration   = flag.Duration("duration", 0, "How long to stream (0 = until interrupted)")
	logFile    = flag.String("log-file", "", "Optional log file path")
)

func main() {
	flag.Parse()

	if err := applyConfigFile(); err != nil {
		log.Fatalf("config: %v", err)
	}

	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer func() { _ = f.Close() }()
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s transmitter %s", version.Product, version.Version)

	ctrl := stream.NewController()
	if err := ctrl.Configure(*freq, *amp, *rate, *packetMs); err != nil {
		log.Fatalf("configure: %v", err)
	}

	ip, port := *destIP, *destPort
	if *discover {
		var err error
		ip, port, err = discoverReceiver()
		if err != nil {
			log.Fatalf("discover: %v", err)
		}
	}
	if ip == "" {
		log.Fatal("no destination: pass -ip or -discover")
	}

	if err := ctrl.SetDestination(ip, port); err != nil {
		log.Fatalf("set destination: %v", err)
	}
	if err := ctrl.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	if *duration > 0 {
		select {
		case <-sig:
		case <-time.After(*duration):
		}
	} else {
		<-sig
	}

	ctrl.Stop()

	s := ctrl.Status()
	log.Printf("Done: %d packets sent to %s (%d Hz @ %d%%, %d ms packets)",
		s.PacketsSent, s.Settings.Destination, s.Settings.FrequencyHz,
		s.Settings.AmplitudePct, s.Settings.PacketDurationMs)
}

// discoverReceiver blocks until an mDNS-advertised receiver shows up.
func discoverReceiver() (string, int, error) {
	mgr := discovery.NewManager(discovery.Config{})
	defer mgr.Stop()

	if err := mgr.Browse(); err != nil {
		return "", 0, err
	}

	log.Printf("Browsing for receivers...")
	select {
	case info := <-mgr.Receivers():
		return info.Host, info.Port, nil
	case <-time.After(15 * time.Second):
		return "", 0, os.ErrDeadlineExceeded
	}
}

// applyConfigFile fills in file values for flags the user did not set.
func applyConfigFile() error {
	if *configPath == "" {
		return nil
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	tc := cfg.Transmit
	if !set["ip"] && tc.DestinationIP != "" {
		*destIP = tc.DestinationIP
	}
	if !set["port"] && tc.DestinationPort != 0 {
		*destPort = tc.DestinationPort
	}
	if !set["freq"] {
		*freq = tc.FrequencyHz
	}
	if !set["amp"] {
		*amp = tc.AmplitudePct
	}
	if !set["rate"] {
		*rate = tc.SampleRateHz
	}
	if !set["packet-ms"] {
		*packetMs = tc.PacketMs
	}
	return nil
}
