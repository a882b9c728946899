// Package portaudio implements the audio.Device interface on top of the
// PortAudio bindings, giving the pipeline access to the host's default
// microphone and speaker.
//
// PortAudio must be initialised once per process before streams are opened;
// [New] handles this and [Device.Terminate] releases it.
package portaudio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/formvoice/formvoice/pkg/audio"
)

// Compile-time assertion that Device satisfies audio.Device.
var _ audio.Device = (*Device)(nil)

// Device opens capture and playback streams on the host's default audio
// hardware. Safe for concurrent use.
type Device struct {
	initOnce sync.Once
	initErr  error
}

// New creates a Device. PortAudio itself is initialised lazily on the first
// stream open so that constructing a Device in tests has no side effects.
func New() *Device {
	return &Device{}
}

func (d *Device) ensureInit() error {
	d.initOnce.Do(func() {
		d.initErr = portaudio.Initialize()
	})
	if d.initErr != nil {
		return fmt.Errorf("portaudio: initialize: %w", d.initErr)
	}
	return nil
}

// Terminate releases the PortAudio runtime. Call once at process shutdown,
// after all streams are closed.
func (d *Device) Terminate() error {
	if d.initErr != nil {
		return nil
	}
	return portaudio.Terminate()
}

// OpenInput opens the default microphone with the given format.
func (d *Device) OpenInput(cfg audio.StreamConfig) (audio.InputStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := d.ensureInit(); err != nil {
		return nil, err
	}

	buf := make([]int16, cfg.FrameSize*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FrameSize, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start input stream: %w", err)
	}

	slog.Info("microphone stream opened", "sample_rate", cfg.SampleRate, "frame_size", cfg.FrameSize)
	return &inputStream{stream: stream, buf: buf, cfg: cfg, started: time.Now()}, nil
}

// OpenOutput opens the default speaker with the given format.
func (d *Device) OpenOutput(cfg audio.StreamConfig) (audio.OutputStream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := d.ensureInit(); err != nil {
		return nil, err
	}

	buf := make([]int16, cfg.FrameSize*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), cfg.FrameSize, buf)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("portaudio: start output stream: %w", err)
	}

	slog.Info("speaker stream opened", "sample_rate", cfg.SampleRate, "frame_size", cfg.FrameSize)
	return &outputStream{stream: stream, buf: buf, cfg: cfg}, nil
}

// ── input ──────────────────────────────────────────────────────────────────────

type inputStream struct {
	stream  *portaudio.Stream
	buf     []int16
	cfg     audio.StreamConfig
	started time.Time

	mu     sync.Mutex
	closed bool
}

// ReadFrame blocks until one frame of samples has been captured.
func (s *inputStream) ReadFrame() (audio.Frame, error) {
	if err := s.stream.Read(); err != nil {
		return audio.Frame{}, fmt.Errorf("portaudio: read frame: %w", err)
	}

	data := make([]byte, len(s.buf)*2)
	for i, sample := range s.buf {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(sample))
	}

	return audio.Frame{
		Data:       data,
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Timestamp:  time.Since(s.started),
	}, nil
}

func (s *inputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	return s.stream.Close()
}

// ── output ─────────────────────────────────────────────────────────────────────

type outputStream struct {
	stream *portaudio.Stream
	buf    []int16
	cfg    audio.StreamConfig

	mu     sync.Mutex
	closed bool
}

// Write plays a PCM chunk synchronously, splitting it into device-sized
// buffers. Chunks from the model are not aligned to the device frame size;
// a trailing partial buffer is zero-padded.
func (s *outputStream) Write(data []byte) error {
	frameBytes := s.cfg.FrameBytes()
	for off := 0; off < len(data); off += frameBytes {
		end := off + frameBytes
		if end > len(data) {
			end = len(data)
		}
		chunk := data[off:end]

		for i := range s.buf {
			if i*2+1 < len(chunk) {
				s.buf[i] = int16(binary.LittleEndian.Uint16(chunk[i*2:]))
			} else {
				s.buf[i] = 0
			}
		}
		if err := s.stream.Write(); err != nil {
			return fmt.Errorf("portaudio: write frame: %w", err)
		}
	}
	return nil
}

func (s *outputStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.stream.Stop()
	return s.stream.Close()
}
