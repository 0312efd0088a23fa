package wire

import (
	"encoding/binary"
)

// Assembler reassembles logical frames from physical packets.
//
// The channel transport may split one logical frame across several
// binary messages or concatenate several frames into one. Feed yields
// every frame payload that becomes complete, in arrival order, and
// buffers the remainder. One Assembler per sender.
type Assembler struct {
	buf []byte
}

// NewAssembler creates an empty assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Feed appends a physical packet and returns all complete frame
// payloads (without length prefix). Returns a stream-fatal FrameError
// if the declared payload size exceeds MaxPayloadSize; the assembler
// must be Reset before further use after such an error.
func (a *Assembler) Feed(packet []byte) ([][]byte, error) {
	a.buf = append(a.buf, packet...)

	var frames [][]byte
	for {
		if len(a.buf) < LengthPrefixSize {
			return frames, nil
		}

		payloadSize := binary.BigEndian.Uint32(a.buf[:LengthPrefixSize])
		if payloadSize > MaxPayloadSize {
			return frames, &FrameError{
				Kind: FrameErrorTooLarge,
				Msg:  "declared payload size exceeds maximum",
			}
		}

		total := LengthPrefixSize + int(payloadSize)
		if len(a.buf) < total {
			return frames, nil
		}

		payload := make([]byte, payloadSize)
		copy(payload, a.buf[LengthPrefixSize:total])
		frames = append(frames, payload)
		a.buf = a.buf[total:]
	}
}

// Pending returns the number of buffered bytes awaiting frame completion.
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// Reset discards any buffered partial frame.
func (a *Assembler) Reset() {
	a.buf = nil
}
