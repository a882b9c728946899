// Package live defines the Provider interface for real-time speech/LLM
// session backends.
//
// A live provider wraps a voice AI service that accepts raw audio input and
// returns synthesised audio, transcripts, and tool-call requests in a single,
// stateful session — no separate STT → LLM → TTS stages. Examples include
// Gemini Live and the OpenAI Realtime API.
//
// The central abstraction is [SessionHandle]: a bidirectional, multiplexed
// channel. Inbound traffic is surfaced as a stream of [ServerMessage] values,
// an explicit variant record consumed by the pipeline's receive loop; the
// session never invokes application callbacks from its internal goroutines.
//
// All implementations must be safe for concurrent use.
package live

import "context"

// ToolDefinition describes one tool offered to the model at session setup.
type ToolDefinition struct {
	// Name is the tool's invocation name.
	Name string

	// Description tells the model when to invoke the tool.
	Description string

	// Parameters is a JSON-Schema object describing the arguments.
	Parameters map[string]any
}

// ToolCall is a single named invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its response.
	ID string

	// Name is the tool name as declared in the session's ToolDefinitions.
	Name string

	// Args holds the decoded invocation arguments.
	Args map[string]any
}

// ToolResponse is the structured answer to one ToolCall.
type ToolResponse struct {
	// ID echoes the originating ToolCall.ID.
	ID string

	// Name echoes the originating ToolCall.Name.
	Name string

	// Response is the structured payload returned to the model.
	Response map[string]any
}

// ServerMessage is one inbound message from the live session. Exactly the
// populated variants are meaningful; a zero ServerMessage carries nothing.
// The receive loop inspects each variant in turn, so a single wire message
// may legally carry several (e.g., audio plus an output transcript).
type ServerMessage struct {
	// Audio is a chunk of synthesised PCM from the model, or nil.
	Audio []byte

	// ToolCalls is a batch of tool invocations requested by the model.
	// Responses must be returned via SendToolResponses in batch order.
	ToolCalls []ToolCall

	// ToolCallCancellation is set when the model withdraws in-flight tool
	// calls (e.g., the user spoke over the triggering turn).
	ToolCallCancellation bool

	// Interrupted is set when the model's current turn was cut off by new
	// user speech; buffered playback is stale and should be discarded.
	Interrupted bool

	// InputTranscript is the recognised text of the user's speech, or "".
	InputTranscript string

	// OutputTranscript is the text form of the model's spoken output, or "".
	OutputTranscript string
}

// SessionConfig is the initial configuration for a new live session.
// It is immutable for the session's lifetime.
type SessionConfig struct {
	// Model selects the backend model. Empty selects the provider default.
	Model string

	// Voice selects the synthesised voice. Empty selects the provider default.
	Voice string

	// Instructions is the system-level prompt steering the conversation.
	Instructions string

	// Tools is the set of tool definitions offered to the model.
	Tools []ToolDefinition
}

// SessionHandle represents an open live session. It is an interface so that
// test code can supply mock implementations without a live connection.
//
// The session is the hot path of the voice pipeline — every method must
// return quickly. Callers must call Close when the session is no longer
// needed.
type SessionHandle interface {
	// SendAudio delivers a raw PCM chunk tagged with its mime type (e.g.
	// "audio/pcm;rate=16000") to the model. Returns an error if the session
	// is closed or the transport fails; transport failures are fatal to the
	// session.
	SendAudio(chunk []byte, mimeType string) error

	// SendToolResponses returns a batch of structured tool responses to the
	// model, in the same order as the corresponding requests.
	SendToolResponses(responses []ToolResponse) error

	// Messages returns the inbound message stream. The channel is closed
	// when the session ends; call [SessionHandle.Err] afterwards to learn
	// whether it ended cleanly. Consumers must drain this channel promptly.
	Messages() <-chan ServerMessage

	// Err returns the error that terminated the session, or nil if it ended
	// cleanly. Only meaningful after the Messages channel has closed.
	Err() error

	// Close terminates the session and closes the Messages channel. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any live session backend.
//
// Implementations must be safe for concurrent use: multiple goroutines may
// call Connect simultaneously to create independent sessions.
type Provider interface {
	// Connect establishes a new session with the given configuration. The
	// supplied ctx governs the connection attempt only; once established,
	// the session lives until Close is called or the transport fails.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}
