// ABOUTME: Optional YAML configuration for both binaries
// ABOUTME: File values seed the flag defaults; flags always win
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Transmit holds transmitter defaults.
type Transmit struct {
	DestinationIP   string `yaml:"destination_ip"`
	DestinationPort int    `yaml:"destination_port"`
	FrequencyHz     int    `yaml:"frequency_hz"`
	AmplitudePct    int    `yaml:"amplitude_pct"`
	SampleRateHz    int    `yaml:"sample_rate_hz"`
	PacketMs        int    `yaml:"packet_ms"`
}

// Receive holds receiver defaults.
type Receive struct {
	ListenPort    int    `yaml:"listen_port"`
	JitterMs      int    `yaml:"jitter_ms"`
	SampleRateHz  int    `yaml:"sample_rate_hz"`
	Channels      int    `yaml:"channels"`
	StatsInterval int    `yaml:"stats_interval_s"`
	SaveWav       string `yaml:"save_wav"`
	NoAudio       bool   `yaml:"no_audio"`
}

// File is the on-disk configuration document.
type File struct {
	Transmit Transmit `yaml:"transmit"`
	Receive  Receive  `yaml:"receive"`
}

// Default returns the firmware power-on configuration.
func Default() File {
	return File{
		Transmit: Transmit{
			FrequencyHz:  1000,
			AmplitudePct: 50,
			SampleRateHz: 44100,
			PacketMs:     10,
		},
		Receive: Receive{
			ListenPort:    5000,
			JitterMs:      60,
			SampleRateHz:  44100,
			Channels:      1,
			StatsInterval: 5,
		},
	}
}

// Load reads path over the defaults. An empty path returns the defaults;
// a missing or unparsable file is an error so a typo'd path never
// silently streams with the wrong parameters.
func Load(path string) (File, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
