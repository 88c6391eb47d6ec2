// ABOUTME: Audio output using the oto library
// ABOUTME: Feeds PCM through a pipe into a persistent player with software volume
package player

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log"

	"github.com/ebitengine/oto/v3"
)

// Sink receives drained playout samples.
type Sink interface {
	Write(samples []int16) error
	Close() error
}

// Output plays PCM through the default audio device via oto.
type Output struct {
	ctx        context.Context
	cancel     context.CancelFunc
	otoCtx     *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	sampleRate int
	channels   int
	volume     int
	muted      bool
	ready      bool
}

// NewOutput creates an uninitialized output.
func NewOutput() *Output {
	ctx, cancel := context.WithCancel(context.Background())

	return &Output{
		ctx:    ctx,
		cancel: cancel,
		volume: 100,
	}
}

// Open initializes the output device. oto allows one context per process;
// a format change after the first Open keeps the existing context.
func (o *Output) Open(sampleRate, channels int) error {
	if o.otoCtx != nil && o.sampleRate == sampleRate && o.channels == channels {
		return nil
	}
	if o.otoCtx != nil {
		log.Printf("audio output: format change %dHz %dch -> %dHz %dch ignored, oto context is fixed",
			o.sampleRate, o.channels, sampleRate, channels)
		return nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	o.otoCtx = ctx
	o.sampleRate = sampleRate
	o.channels = channels

	// Pipe into a persistent player so playback is continuous; Write
	// blocks at the device's own pace, which sets the playout cadence.
	o.pipeReader, o.pipeWriter = io.Pipe()
	o.player = o.otoCtx.NewPlayer(o.pipeReader)
	o.player.Play()
	o.ready = true

	log.Printf("audio output initialized: %dHz, %d channels", sampleRate, channels)
	return nil
}

// Write outputs one block of samples, blocking at the device's pace.
func (o *Output) Write(samples []int16) error {
	if !o.ready {
		return fmt.Errorf("output not initialized")
	}

	multiplier := volumeMultiplier(o.volume, o.muted)

	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		scaled := int16(float64(s) * multiplier)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(scaled))
	}

	if _, err := o.pipeWriter.Write(out); err != nil {
		return fmt.Errorf("pipe write failed: %w", err)
	}
	return nil
}

// SetVolume sets playback volume (0-100).
func (o *Output) SetVolume(volume int) {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	o.volume = volume
}

// SetMuted sets the mute state.
func (o *Output) SetMuted(muted bool) {
	o.muted = muted
}

// Close tears down the pipe and suspends the device.
func (o *Output) Close() error {
	if o.pipeWriter != nil {
		o.pipeWriter.Close()
	}
	if o.otoCtx != nil {
		o.otoCtx.Suspend()
		o.ready = false
	}
	o.cancel()
	return nil
}

// volumeMultiplier converts volume and mute into a linear gain.
func volumeMultiplier(volume int, muted bool) float64 {
	if muted {
		return 0.0
	}
	return float64(volume) / 100.0
}

// Discard is a Sink for no-audio mode: reception and statistics only.
type Discard struct{}

func (Discard) Write([]int16) error { return nil }
func (Discard) Close() error        { return nil }
