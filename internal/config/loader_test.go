package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/formvoice/formvoice/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "formvoice.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "open") {
		t.Errorf("error should mention open, got: %v", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected error for invalid yaml, got nil")
	}
}

func TestValidate_SileroWithModelPathIsValid(t *testing.T) {
	t.Parallel()
	yaml := `
vad:
  backend: silero
  model_path: /opt/models/silero_vad.onnx
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.VAD.Backend != config.VADSilero {
		t.Errorf("vad.backend: got %q", cfg.VAD.Backend)
	}
}

func TestValidate_EnergyThresholdRange(t *testing.T) {
	t.Parallel()
	yaml := `
vad:
  backend: energy
  energy_threshold: 1.5
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for out-of-range energy_threshold, got nil")
	}
	if !strings.Contains(err.Error(), "energy_threshold") {
		t.Errorf("error should mention energy_threshold, got: %v", err)
	}
}

func TestValidate_NegativePreSpeechFrames(t *testing.T) {
	t.Parallel()
	yaml := `
vad:
  pre_speech_frames: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative pre_speech_frames, got nil")
	}
}
