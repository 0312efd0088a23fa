// Package wire implements the fragment framing used on the channel's
// data stream.
//
// A frame is a 4-byte big-endian length prefix followed by a msgpack
// payload. Payloads are discriminated by their type field: fragment_text,
// fragment_words, or interrupt.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/parleyhq/parley/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (1 MiB), including length prefix.
	MaxFrameSize = 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FrameErrorKind classifies frame decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
	// FrameErrorVersion indicates a protocol version mismatch.
	FrameErrorVersion
)

// FrameError represents a frame decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsStreamFatal returns true if this error indicates a corrupted stream.
// Partial and oversized frames mean framing is lost; decode and version
// errors affect only the single frame, which is dropped.
func (e *FrameError) IsStreamFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsStreamFatalError returns true if the error is a stream-fatal frame error.
func IsStreamFatalError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsStreamFatal()
	}
	return false
}

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	ProtocolVersion string          `msgpack:"protocol_version"`
	Type            types.FrameType `msgpack:"type"`
}

// DecodeFrame decodes a payload and returns either a *types.FragmentFrame
// or a *types.InterruptFrame, discriminated by the type field.
func DecodeFrame(payload []byte) (any, error) {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode frame type",
			Err:  err,
		}
	}

	if probe.ProtocolVersion != types.ProtocolVersion {
		return nil, &FrameError{
			Kind: FrameErrorVersion,
			Msg: fmt.Sprintf("protocol version mismatch: expected %s, got %q",
				types.ProtocolVersion, probe.ProtocolVersion),
		}
	}

	switch probe.Type {
	case types.FrameTypeText, types.FrameTypeWords:
		return decodeFragment(payload)
	case types.FrameTypeInterrupt:
		return decodeInterrupt(payload)
	default:
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  fmt.Sprintf("unknown frame type %q", probe.Type),
		}
	}
}

func decodeFragment(payload []byte) (*types.FragmentFrame, error) {
	var frame types.FragmentFrame
	if err := msgpack.Unmarshal(payload, &frame); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode fragment frame",
			Err:  err,
		}
	}
	frame.UID = types.CanonicalUID(frame.UID)
	return &frame, nil
}

func decodeInterrupt(payload []byte) (*types.InterruptFrame, error) {
	var frame types.InterruptFrame
	if err := msgpack.Unmarshal(payload, &frame); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode interrupt frame",
			Err:  err,
		}
	}
	return &frame, nil
}

// EncodeFragment encodes a fragment frame with length prefix.
// Used by tests and by tooling that replays transcripts.
func EncodeFragment(frame *types.FragmentFrame) ([]byte, error) {
	payload, err := msgpack.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode fragment frame: %w", err)
	}
	return prependLength(payload)
}

// EncodeInterrupt encodes an interrupt frame with length prefix.
func EncodeInterrupt(frame *types.InterruptFrame) ([]byte, error) {
	payload, err := msgpack.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode interrupt frame: %w", err)
	}
	return prependLength(payload)
}

func prependLength(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf, nil
}
