// ABOUTME: Entry point for the ToneWire receiver
// ABOUTME: Parses CLI flags, wires the receiver, and runs the TUI or log stream
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/ToneWire/tonewire-go/internal/config"
	"github.com/ToneWire/tonewire-go/internal/discovery"
	"github.com/ToneWire/tonewire-go/internal/receiver"
	"github.com/ToneWire/tonewire-go/internal/ui"
	"github.com/ToneWire/tonewire-go/internal/version"
)

var (
	configPath    = flag.String("config", "", "Optional YAML config file")
	listenPort    = flag.Int("listen-port", 5000, "UDP port to bind")
	sampleRate    = flag.Int("sample-rate", 44100, "Expected sample rate in Hz")
	channels      = flag.Int("channels", 1, "Channel count (mono=1)")
	jitterMs      = flag.Int("jitter-ms", 60, "Jitter buffer depth in milliseconds")
	saveWav       = flag.String("save-wav", "", "Optional WAV capture path")
	statsInterval = flag.Int("stats-interval", 5, "Statistics log interval in seconds")
	noAudio       = flag.Bool("no-audio", false, "Disable audio playback (stats only)")
	name          = flag.String("name", "", "Receiver name for mDNS (default: hostname-tonewire)")
	noMDNS        = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	logFile       = flag.String("log-file", "tonewire-rx.log", "Log file path")
	noTUI         = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	if err := applyConfigFile(); err != nil {
		log.Fatalf("config: %v", err)
	}

	useTUI := !*noTUI

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if useTUI {
		// TUI mode: log only to file so the display stays clean.
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}

	log.Printf("Starting %s receiver %s", version.Product, version.Version)

	rx, err := receiver.New(receiver.Options{
		ListenPort:    *listenPort,
		SampleRateHz:  *sampleRate,
		Channels:      *channels,
		JitterMs:      *jitterMs,
		StatsInterval: time.Duration(*statsInterval) * time.Second,
		NoAudio:       *noAudio,
		WavPath:       *saveWav,
	})
	if err != nil {
		log.Fatalf("receiver: %v", err)
	}
	if err := rx.Start(); err != nil {
		log.Fatalf("receiver start: %v", err)
	}
	defer rx.Stop()

	if !*noMDNS {
		mgr := discovery.NewManager(discovery.Config{
			InstanceName: receiverName(),
			Port:         rx.LocalPort(),
		})
		if err := mgr.Advertise(); err != nil {
			log.Printf("mDNS advertisement failed: %v", err)
		} else {
			defer mgr.Stop()
		}
	}

	if useTUI {
		runTUI(rx)
		return
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Printf("Stopping receiver")
}

// runTUI drives the status display until the user quits. The update
// goroutine is joined before Stop so no update races the teardown.
func runTUI(rx *receiver.Receiver) {
	tui := ui.New()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				tui.Update(toUIStatus(rx.Snapshot()))
			}
		}
	}()

	if err := tui.Start(toUIStatus(rx.Snapshot())); err != nil {
		log.Printf("TUI failed: %v", err)
	}
	close(done)
	wg.Wait()
	tui.Stop()
}

func toUIStatus(s receiver.Status) ui.Status {
	return ui.Status{
		SessionID:   s.SessionID,
		ListenPort:  s.ListenPort,
		Packets:     s.Packets,
		Lost:        s.Buffer.Lost,
		Stale:       s.Buffer.Stale,
		Underruns:   s.Buffer.Underruns,
		Malformed:   s.Malformed,
		BitrateKbps: s.BitrateKbps,
		PacketRate:  s.PacketRate,
		BufferMs:    s.BufferMs,
		BufferState: s.Buffer.State.String(),
	}
}

// receiverName picks the mDNS instance name.
func receiverName() string {
	if *name != "" {
		return *name
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-tonewire", hostname)
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

	rc := cfg.Receive
	if !set["listen-port"] {
		*listenPort = rc.ListenPort
	}
	if !set["sample-rate"] {
		*sampleRate = rc.SampleRateHz
	}
	if !set["channels"] {
		*channels = rc.Channels
	}
	if !set["jitter-ms"] {
		*jitterMs = rc.JitterMs
	}
	if !set["save-wav"] {
		*saveWav = rc.SaveWav
	}
	if !set["stats-interval"] {
		*statsInterval = rc.StatsInterval
	}
	if !set["no-audio"] {
		*noAudio = rc.NoAudio
	}
	return nil
}
