package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/formvoice/formvoice/internal/config"
)

// The watcher tests edit a realistic config the way an operator would:
// turning up log verbosity and retuning the VAD between sessions.
const watcherBaseYAML = `
server:
  log_level: info
audio:
  input_sample_rate: 16000
  output_sample_rate: 24000
vad:
  backend: energy
  aggressiveness: 2
live:
  provider: gemini-live
  api_key_env: GEMINI_API_KEY
`

const watcherRetunedYAML = `
server:
  log_level: debug
audio:
  input_sample_rate: 16000
  output_sample_rate: 24000
vad:
  backend: energy
  aggressiveness: 3
live:
  provider: gemini-live
  api_key_env: GEMINI_API_KEY
`

const watcherBrokenYAML = `
server:
  log_level: shouty
vad:
  backend: energy
`

// watchedFile writes the base config and returns its path.
func watchedFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "formvoice.yaml")
	rewriteFile(t, path, watcherBaseYAML)
	return path
}

func rewriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %q: %v", path, err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	t.Parallel()

	w, err := config.NewWatcher(watchedFile(t), nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil after initial load")
	}
	if cfg.VAD.Aggressiveness != 2 {
		t.Errorf("vad.aggressiveness = %d, want 2", cfg.VAD.Aggressiveness)
	}
	if cfg.Audio.OutputSampleRate != 24000 {
		t.Errorf("audio.output_sample_rate = %d, want 24000", cfg.Audio.OutputSampleRate)
	}
}

func TestWatcherReportsRetunedConfig(t *testing.T) {
	t.Parallel()

	path := watchedFile(t)

	var mu sync.Mutex
	var gotDiff config.ConfigDiff
	reloaded := make(chan struct{}, 1)

	w, err := config.NewWatcher(path, func(old, new *config.Config) {
		mu.Lock()
		gotDiff = config.Diff(old, new)
		mu.Unlock()
		select {
		case reloaded <- struct{}{}:
		default:
		}
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	rewriteFile(t, path, watcherRetunedYAML)

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload callback never fired")
	}

	mu.Lock()
	diff := gotDiff
	mu.Unlock()

	// Both edits must surface: log level applies live, the VAD retune on
	// the next session.
	if !diff.LogLevelChanged || diff.NewLogLevel != config.LogDebug {
		t.Errorf("diff log level = %+v, want change to debug", diff)
	}
	if len(diff.SessionSections) != 1 || diff.SessionSections[0] != "vad" {
		t.Errorf("diff session sections = %v, want [vad]", diff.SessionSections)
	}

	if got := w.Current().VAD.Aggressiveness; got != 3 {
		t.Errorf("Current() aggressiveness = %d, want 3", got)
	}
}

func TestWatcherKeepsConfigOnBrokenEdit(t *testing.T) {
	t.Parallel()

	path := watchedFile(t)

	var mu sync.Mutex
	fired := 0

	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		mu.Lock()
		fired++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	time.Sleep(100 * time.Millisecond)
	rewriteFile(t, path, watcherBrokenYAML)
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	calls := fired
	mu.Unlock()
	if calls != 0 {
		t.Errorf("callback fired %d times for a broken edit, want 0", calls)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() log_level = %q, want info kept", got)
	}
}

func TestWatcherIgnoresTouch(t *testing.T) {
	t.Parallel()

	path := watchedFile(t)

	var mu sync.Mutex
	fired := 0

	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		mu.Lock()
		fired++
		mu.Unlock()
	}, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	// Bump the mtime without editing; the content hash must suppress the
	// callback.
	time.Sleep(100 * time.Millisecond)
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	mu.Lock()
	calls := fired
	mu.Unlock()
	if calls != 0 {
		t.Errorf("callback fired %d times for a touch, want 0", calls)
	}
}

func TestWatcherInitialLoadFails(t *testing.T) {
	t.Parallel()

	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("NewWatcher succeeded on a missing file")
	}
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	t.Parallel()

	w, err := config.NewWatcher(watchedFile(t), nil, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}

	w.Stop()
	w.Stop()
	w.Stop()
}
