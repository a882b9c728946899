package energy

import (
	"encoding/binary"
	"testing"
)

func pcmFrame(amplitude int16, samples int) []byte {
	frame := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(frame[i*2:], uint16(amplitude))
	}
	return frame
}

func TestClassifierSilence(t *testing.T) {
	t.Parallel()

	c := New(0.02)
	got, err := c.IsSpeech(pcmFrame(0, 480))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Fatal("silent frame classified as speech")
	}
}

func TestClassifierLoudFrame(t *testing.T) {
	t.Parallel()

	c := New(0.02)
	// Constant amplitude of half full-scale: normalized energy 0.25.
	got, err := c.IsSpeech(pcmFrame(16384, 480))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Fatal("loud frame classified as silence")
	}
}

func TestClassifierEmptyFrame(t *testing.T) {
	t.Parallel()

	c := New(0.02)
	got, err := c.IsSpeech(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got {
		t.Fatal("empty frame classified as speech")
	}
}

func TestNewDefaultThreshold(t *testing.T) {
	t.Parallel()

	c := New(0)
	if c.threshold != DefaultThreshold {
		t.Fatalf("want default threshold %v, got %v", DefaultThreshold, c.threshold)
	}
}
