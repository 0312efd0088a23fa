package wire

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/parleyhq/parley/types"
)

func TestAssembler_SingleFrame(t *testing.T) {
	frame, err := EncodeFragment(textFrame(1, 0, "Hello", true))
	if err != nil {
		t.Fatalf("EncodeFragment failed: %v", err)
	}

	asm := NewAssembler()
	payloads, err := asm.Feed(frame)
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}
	if asm.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", asm.Pending())
	}
}

func TestAssembler_SplitAcrossPackets(t *testing.T) {
	frame, err := EncodeFragment(textFrame(1, 0, "split across packets", false))
	if err != nil {
		t.Fatalf("EncodeFragment failed: %v", err)
	}

	asm := NewAssembler()

	// Feed one byte at a time; only the last byte completes the frame.
	for i := 0; i < len(frame)-1; i++ {
		payloads, err := asm.Feed(frame[i : i+1])
		if err != nil {
			t.Fatalf("Feed byte %d failed: %v", i, err)
		}
		if len(payloads) != 0 {
			t.Fatalf("byte %d yielded %d payloads, want 0", i, len(payloads))
		}
	}

	payloads, err := asm.Feed(frame[len(frame)-1:])
	if err != nil {
		t.Fatalf("final Feed failed: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("got %d payloads, want 1", len(payloads))
	}

	decoded, err := DecodeFrame(payloads[0])
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if decoded.(*types.FragmentFrame).Text != "split across packets" {
		t.Errorf("Text = %q", decoded.(*types.FragmentFrame).Text)
	}
}

func TestAssembler_MultipleFramesInOnePacket(t *testing.T) {
	var packet bytes.Buffer
	texts := []string{"one", "two", "three"}
	for i, text := range texts {
		frame, err := EncodeFragment(textFrame(1, int64(i), text, false))
		if err != nil {
			t.Fatalf("EncodeFragment failed: %v", err)
		}
		packet.Write(frame)
	}

	asm := NewAssembler()
	payloads, err := asm.Feed(packet.Bytes())
	if err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if len(payloads) != len(texts) {
		t.Fatalf("got %d payloads, want %d", len(payloads), len(texts))
	}

	for i, payload := range payloads {
		decoded, err := DecodeFrame(payload)
		if err != nil {
			t.Fatalf("DecodeFrame %d failed: %v", i, err)
		}
		if got := decoded.(*types.FragmentFrame).Text; got != texts[i] {
			t.Errorf("payload %d Text = %q, want %q", i, got, texts[i])
		}
	}
}

func TestAssembler_OversizedDeclaration(t *testing.T) {
	var packet [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(packet[:], MaxPayloadSize+1)

	asm := NewAssembler()
	_, err := asm.Feed(packet[:])
	if err == nil {
		t.Fatal("expected error for oversized declared payload")
	}
	if !IsStreamFatalError(err) {
		t.Errorf("oversized declaration should be stream-fatal, got: %v", err)
	}
}

func TestAssembler_Reset(t *testing.T) {
	asm := NewAssembler()
	if _, err := asm.Feed([]byte{0x00, 0x00}); err != nil {
		t.Fatalf("Feed failed: %v", err)
	}
	if asm.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", asm.Pending())
	}

	asm.Reset()
	if asm.Pending() != 0 {
		t.Errorf("Pending() after Reset = %d, want 0", asm.Pending())
	}
}
