// ABOUTME: Wire codec for tone stream packets
// ABOUTME: 12-byte big-endian header followed by native-order int16 PCM
package protocol

import "encoding/binary"

const (
	// HeaderSize is the fixed packet header length in bytes.
	HeaderSize = 12

	// MaxSamplesPerPacket caps the payload size a single packet may carry.
	MaxSamplesPerPacket = 2048

	// MaxPayloadBytes is the largest PCM payload in bytes.
	MaxPayloadBytes = MaxSamplesPerPacket * 2

	// MaxPacketBytes sizes receive buffers for the largest legal datagram.
	MaxPacketBytes = HeaderSize + MaxPayloadBytes
)

// Header is the fixed per-packet header. All fields travel big-endian.
type Header struct {
	Sequence      uint32 // restarts at 0 on every stream start
	SampleCounter uint32 // cumulative samples sent strictly before this packet
	TimestampUS   uint32 // monotonic microseconds at send time, wraps at 2^32
}

// Packet is a decoded datagram.
type Packet struct {
	Header
	Samples []int16
}

// Marshal appends the encoded packet to buf and returns the extended slice.
//
// PCM samples are written in the sender's native byte order. The header is
// big-endian but the payload is not, matching the firmware wire format; a
// big-endian sender and little-endian receiver would need a swap the
// protocol does not negotiate.
func Marshal(buf []byte, h Header, samples []int16) []byte {
	buf = binary.BigEndian.AppendUint32(buf, h.Sequence)
	buf = binary.BigEndian.AppendUint32(buf, h.SampleCounter)
	buf = binary.BigEndian.AppendUint32(buf, h.TimestampUS)
	for _, s := range samples {
		buf = binary.NativeEndian.AppendUint16(buf, uint16(s))
	}
	return buf
}

// Unmarshal parses a received datagram. ok is false when the datagram
// carries no payload beyond the header or the payload is not a whole
// number of 16-bit samples; such packets are dropped at this boundary,
// never surfaced as errors to the playout path.
func Unmarshal(data []byte) (pkt Packet, ok bool) {
	if len(data) <= HeaderSize {
		return Packet{}, false
	}
	payload := data[HeaderSize:]
	if len(payload)%2 != 0 {
		return Packet{}, false
	}

	pkt.Sequence = binary.BigEndian.Uint32(data[0:4])
	pkt.SampleCounter = binary.BigEndian.Uint32(data[4:8])
	pkt.TimestampUS = binary.BigEndian.Uint32(data[8:12])

	pkt.Samples = make([]int16, len(payload)/2)
	for i := range pkt.Samples {
		pkt.Samples[i] = int16(binary.NativeEndian.Uint16(payload[i*2:]))
	}
	return pkt, true
}
