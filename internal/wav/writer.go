// ABOUTME: WAV capture writer for received PCM
// ABOUTME: Streams 16-bit samples to a RIFF/WAVE file, fixing up sizes on close
package wav

import (
	"encoding/binary"
	"fmt"
	"os"
)

const headerSize = 44

// Writer appends 16-bit PCM to a WAV file. The RIFF and data chunk sizes
// are written as placeholders and patched when the file is closed.
type Writer struct {
	f          *os.File
	sampleRate int
	channels   int
	dataBytes  uint32
}

// NewWriter creates the file and writes the WAV header.
func NewWriter(path string, sampleRate, channels int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	w := &Writer{f: f, sampleRate: sampleRate, channels: channels}
	if err := w.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	// WriteAt leaves the append offset at zero; park it after the header.
	if _, err := f.Seek(headerSize, 0); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	var hdr [headerSize]byte

	byteRate := uint32(w.sampleRate * w.channels * 2)
	blockAlign := uint16(w.channels * 2)

	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 36+w.dataBytes)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], byteRate)
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], 16) // bits per sample
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], w.dataBytes)

	_, err := w.f.WriteAt(hdr[:], 0)
	return err
}

// WriteSamples appends PCM samples to the data chunk.
func (w *Writer) WriteSamples(samples []int16) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}

	if _, err := w.f.Write(buf); err != nil {
		return fmt.Errorf("wav write: %w", err)
	}
	w.dataBytes += uint32(len(buf))
	return nil
}

// Close patches the chunk sizes and closes the file.
func (w *Writer) Close() error {
	if err := w.writeHeader(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
