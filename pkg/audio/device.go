// Package audio defines the types and interfaces for audio device access and
// frame transport within formvoice.
//
// The two primary abstractions are:
//
//   - [Device] — opens microphone input and speaker output streams.
//   - [FrameQueue] — a bounded, drop-on-overflow queue decoupling the
//     pipeline loops from one another.
//
// Implementations of [Device] are provided by backend-specific subpackages
// (audio/portaudio for real hardware, audio/mock for tests). The interfaces
// are intentionally narrow to keep the pipeline decoupled from device details.
//
// This package lives under pkg/ because external code (alternative device
// backends) is expected to implement [Device].
package audio

// InputStream is an open microphone stream. A stream is owned by a single
// goroutine; implementations are not required to be safe for concurrent use.
type InputStream interface {
	// ReadFrame blocks until one fixed-size frame has been captured and
	// returns it. The frame's format matches the StreamConfig the stream was
	// opened with. Returns an error if the device fails or the stream is
	// closed; a read error is fatal to the stream.
	ReadFrame() (Frame, error)

	// Close releases the underlying device resources. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// OutputStream is an open speaker stream. A stream is owned by a single
// goroutine; implementations are not required to be safe for concurrent use.
type OutputStream interface {
	// Write plays one chunk of PCM synchronously, blocking until the device
	// has consumed the data. The chunk does not need to match the stream's
	// frame size; devices buffer internally.
	Write(data []byte) error

	// Close releases the underlying device resources. Calling Close more
	// than once is safe and returns nil.
	Close() error
}

// Device opens input and output streams on the host's audio hardware.
// Implementations must be safe for concurrent use; the streams they return
// need not be.
type Device interface {
	// OpenInput opens the default capture device with the given format.
	OpenInput(cfg StreamConfig) (InputStream, error)

	// OpenOutput opens the default playback device with the given format.
	OpenOutput(cfg StreamConfig) (OutputStream, error)
}

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when tearing down a pipeline whose
// producer is still flushing (e.g., a live session's message channel).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
