// ABOUTME: Tests for the wire packet codec
// ABOUTME: Covers header layout, payload sizing, and malformed datagrams
package protocol

import (
	"encoding/binary"
	"testing"
)

func TestHeaderLayout(t *testing.T) {
	h := Header{
		Sequence:      0x01020304,
		SampleCounter: 0x0A0B0C0D,
		TimestampUS:   0xDEADBEEF,
	}

	buf := Marshal(nil, h, nil)

	if len(buf) != HeaderSize {
		t.Fatalf("expected %d header bytes, got %d", HeaderSize, len(buf))
	}

	want := []byte{
		0x01, 0x02, 0x03, 0x04,
		0x0A, 0x0B, 0x0C, 0x0D,
		0xDE, 0xAD, 0xBE, 0xEF,
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Errorf("byte %d: expected %#02x, got %#02x", i, want[i], buf[i])
		}
	}
}

func TestRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 441}
	h := Header{Sequence: 7, SampleCounter: 3087, TimestampUS: 70000}

	buf := Marshal(nil, h, samples)

	if len(buf) != HeaderSize+len(samples)*2 {
		t.Fatalf("expected %d bytes, got %d", HeaderSize+len(samples)*2, len(buf))
	}

	pkt, ok := Unmarshal(buf)
	if !ok {
		t.Fatal("expected decode to succeed")
	}
	if pkt.Header != h {
		t.Errorf("header mismatch: %+v != %+v", pkt.Header, h)
	}
	for i, s := range samples {
		if pkt.Samples[i] != s {
			t.Errorf("sample %d: expected %d, got %d", i, s, pkt.Samples[i])
		}
	}
}

func TestPayloadSize441Samples(t *testing.T) {
	// 44100 Hz * 10 ms => 441 samples, 882 payload bytes
	samples := make([]int16, 441)
	buf := Marshal(nil, Header{}, samples)

	if got := len(buf) - HeaderSize; got != 882 {
		t.Errorf("expected 882 payload bytes, got %d", got)
	}
}

func TestShortDatagramDropped(t *testing.T) {
	if _, ok := Unmarshal(make([]byte, HeaderSize-1)); ok {
		t.Error("expected short datagram to be dropped")
	}
	if _, ok := Unmarshal(nil); ok {
		t.Error("expected empty datagram to be dropped")
	}
}

func TestOddPayloadDropped(t *testing.T) {
	buf := make([]byte, HeaderSize+3)
	if _, ok := Unmarshal(buf); ok {
		t.Error("expected odd-length payload to be dropped")
	}
}

func TestHeaderOnlyDropped(t *testing.T) {
	if _, ok := Unmarshal(make([]byte, HeaderSize)); ok {
		t.Error("expected payload-less datagram to be dropped")
	}
}

func TestPayloadNativeOrder(t *testing.T) {
	buf := Marshal(nil, Header{}, []int16{0x0102})

	if got := binary.NativeEndian.Uint16(buf[HeaderSize:]); got != 0x0102 {
		t.Errorf("expected native-order payload, got %#04x", got)
	}
}
