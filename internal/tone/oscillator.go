// ABOUTME: DDS sine tone synthesizer
// ABOUTME: Fixed-point phase accumulator over a 1024-point lookup table
package tone

import "math"

const (
	// LUTPoints is the sine table resolution.
	LUTPoints = 1024
	lutBits   = 10
	fracBits  = 22
)

// Oscillator produces a phase-continuous signed 16-bit sine stream.
//
// The phase accumulator is a plain uint32: the top 10 bits index the
// lookup table, the low 22 bits are fractional, and wraparound at 2^32
// is exactly one waveform cycle. Successive Read calls continue the
// same infinite oscillation regardless of buffer boundaries.
type Oscillator struct {
	lut       [LUTPoints]int16
	phase     uint32
	step      uint32
	frequency int
	rate      int
	amplitude int
}

// NewOscillator creates an oscillator for the given tone parameters.
func NewOscillator(frequencyHz, sampleRateHz, amplitudePct int) *Oscillator {
	o := &Oscillator{}
	o.Reconfigure(frequencyHz, sampleRateHz, amplitudePct)
	return o
}

// Reconfigure regenerates the lookup table and phase step and resets the
// phase to zero. Calling this on a live stream produces an audible phase
// reset; that is accepted behavior for live reconfiguration.
func (o *Oscillator) Reconfigure(frequencyHz, sampleRateHz, amplitudePct int) {
	o.frequency = frequencyHz
	o.rate = sampleRateHz
	o.amplitude = amplitudePct
	o.phase = 0
	// step = round(freq * 2^(lutBits+fracBits) / rate), with lutBits+fracBits = 32
	o.step = uint32(((uint64(frequencyHz) << (lutBits + fracBits)) + uint64(sampleRateHz)/2) / uint64(sampleRateHz))
	o.SetAmplitude(amplitudePct)
}

// SetAmplitude regenerates the lookup table at a new amplitude without
// disturbing the running phase, so live volume nudges do not click.
func (o *Oscillator) SetAmplitude(amplitudePct int) {
	o.amplitude = amplitudePct
	amplitude := float64(amplitudePct) / 100.0 * math.MaxInt16
	for i := range o.lut {
		angle := 2 * math.Pi * float64(i) / LUTPoints
		o.lut[i] = int16(math.Round(amplitude * math.Sin(angle)))
	}
}

// Reset returns the oscillator to zero phase without touching the table.
func (o *Oscillator) Reset() {
	o.phase = 0
}

// Read fills samples with the next run of the tone and advances the phase.
func (o *Oscillator) Read(samples []int16) int {
	phase, step := o.phase, o.step
	for i := range samples {
		samples[i] = o.lut[phase>>fracBits]
		phase += step
	}
	o.phase = phase
	return len(samples)
}

// Frequency returns the configured tone frequency in Hz.
func (o *Oscillator) Frequency() int { return o.frequency }

// SampleRate returns the configured sample rate in Hz.
func (o *Oscillator) SampleRate() int { return o.rate }

// Amplitude returns the configured amplitude in percent of full scale.
func (o *Oscillator) Amplitude() int { return o.amplitude }
