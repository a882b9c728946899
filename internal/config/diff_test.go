package config_test

import (
	"slices"
	"testing"

	"github.com/formvoice/formvoice/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()

	d := config.Diff(old, new)
	if d.LogLevelChanged {
		t.Error("log level should not be flagged for identical configs")
	}
	if d.HasSessionChanges() {
		t.Errorf("no session sections should change, got %v", d.SessionSections)
	}
}

func TestDiff_LogLevelChange(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("log level change not detected")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("new log level: got %q, want %q", d.NewLogLevel, config.LogDebug)
	}
	if d.HasSessionChanges() {
		t.Errorf("log level change should not flag session sections, got %v", d.SessionSections)
	}
}

func TestDiff_SessionSections(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.VAD.SpeechEndFrames = 20
	new.Live.Voice = "Charon"

	d := config.Diff(old, new)
	if !d.HasSessionChanges() {
		t.Fatal("session changes not detected")
	}
	if !slices.Contains(d.SessionSections, "vad") {
		t.Errorf("vad section should be flagged, got %v", d.SessionSections)
	}
	if !slices.Contains(d.SessionSections, "live") {
		t.Errorf("live section should be flagged, got %v", d.SessionSections)
	}
	if slices.Contains(d.SessionSections, "audio") {
		t.Errorf("audio section should not be flagged, got %v", d.SessionSections)
	}
}

func TestDiff_AudioAndExport(t *testing.T) {
	t.Parallel()
	old := config.Default()
	new := config.Default()
	new.Audio.FrameSize = 960
	new.Export.OutputDir = "/tmp/out"

	d := config.Diff(old, new)
	want := []string{"audio", "export"}
	if !slices.Equal(d.SessionSections, want) {
		t.Errorf("sections: got %v, want %v", d.SessionSections, want)
	}
}
