package openai_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/formvoice/formvoice/pkg/provider/live"
	"github.com/formvoice/formvoice/pkg/provider/live/openai"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startServer launches a loopback WebSocket server standing in for the
// Realtime endpoint. The handler receives the accepted connection; the
// server is closed when the test finishes.
func startServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readFrame reads one text frame with a deadline. Returns an error instead
// of failing the test so it is safe inside handler goroutines.
func readFrame(conn *websocket.Conn) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	return data, err
}

// writeEvent marshals v and sends it as a text frame.
func writeEvent(conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// connect dials the loopback server with the given session config.
func connect(t *testing.T, srv *httptest.Server, cfg live.SessionConfig) live.SessionHandle {
	t.Helper()
	p := openai.New("test-api-key", openai.WithBaseURL(wsURL(srv)))
	handle, err := p.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { _ = handle.Close() })
	return handle
}

// nextMessage receives one ServerMessage with a deadline.
func nextMessage(t *testing.T, h live.SessionHandle) live.ServerMessage {
	t.Helper()
	select {
	case msg, ok := <-h.Messages():
		if !ok {
			t.Fatal("message channel closed early")
		}
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for server message")
	}
	panic("unreachable")
}

// ── Connect / session.update ──────────────────────────────────────────────────

func TestConnect_SendsSessionUpdate(t *testing.T) {
	t.Parallel()

	type updateEvent struct {
		Type    string `json:"type"`
		Session struct {
			Voice        string `json:"voice"`
			Instructions string `json:"instructions"`
			Tools        []struct {
				Type string `json:"type"`
				Name string `json:"name"`
			} `json:"tools"`
			InputAudioFormat  string `json:"input_audio_format"`
			OutputAudioFormat string `json:"output_audio_format"`
		} `json:"session"`
	}

	received := make(chan updateEvent, 1)
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		data, err := readFrame(conn)
		if err != nil {
			return
		}
		var evt updateEvent
		if json.Unmarshal(data, &evt) == nil {
			received <- evt
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, live.SessionConfig{
		Instructions: "Collect the registration form field by field.",
		Tools: []live.ToolDefinition{
			{Name: "get_next_form_field"},
			{Name: "save_form_field"},
		},
	})

	select {
	case evt := <-received:
		if evt.Type != "session.update" {
			t.Fatalf("first event type = %q, want session.update", evt.Type)
		}
		if evt.Session.Voice != "alloy" {
			t.Errorf("default voice = %q, want alloy", evt.Session.Voice)
		}
		if evt.Session.Instructions != "Collect the registration form field by field." {
			t.Errorf("instructions = %q", evt.Session.Instructions)
		}
		if evt.Session.InputAudioFormat != "pcm16" || evt.Session.OutputAudioFormat != "pcm16" {
			t.Errorf("audio formats = %q/%q, want pcm16",
				evt.Session.InputAudioFormat, evt.Session.OutputAudioFormat)
		}
		if len(evt.Session.Tools) != 2 {
			t.Fatalf("tools = %d, want 2", len(evt.Session.Tools))
		}
		if evt.Session.Tools[0].Type != "function" || evt.Session.Tools[0].Name != "get_next_form_field" {
			t.Errorf("tool 0 = %+v", evt.Session.Tools[0])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for session.update")
	}
}

func TestConnect_SendsAuthHeadersAndModelQuery(t *testing.T) {
	t.Parallel()

	type dialInfo struct {
		auth  string
		beta  string
		query string
	}
	info := make(chan dialInfo, 1)
	srv := startServer(t, func(conn *websocket.Conn, r *http.Request) {
		info <- dialInfo{
			auth:  r.Header.Get("Authorization"),
			beta:  r.Header.Get("OpenAI-Beta"),
			query: r.URL.RawQuery,
		}
		if _, err := readFrame(conn); err != nil {
			return
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, live.SessionConfig{})

	select {
	case d := <-info:
		if d.auth != "Bearer test-api-key" {
			t.Errorf("Authorization = %q", d.auth)
		}
		if d.beta != "realtime=v1" {
			t.Errorf("OpenAI-Beta = %q", d.beta)
		}
		if !strings.Contains(d.query, "model=gpt-4o-realtime-preview") {
			t.Errorf("query = %q, want default model", d.query)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for connection")
	}
}

func TestConnect_CancelledContext(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		<-conn.CloseRead(context.Background()).Done()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := openai.New("key", openai.WithBaseURL(wsURL(srv)))
	if _, err := p.Connect(ctx, live.SessionConfig{}); err == nil {
		t.Fatal("Connect succeeded with a cancelled context")
	}
}

// ── Outbound audio and tool responses ─────────────────────────────────────────

func TestSendAudio_AppendsEncodedChunk(t *testing.T) {
	t.Parallel()

	type appendEvent struct {
		Type  string `json:"type"`
		Audio string `json:"audio"`
	}

	received := make(chan appendEvent, 1)
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readFrame(conn); err != nil { // session.update
			return
		}
		data, err := readFrame(conn)
		if err != nil {
			return
		}
		var evt appendEvent
		if json.Unmarshal(data, &evt) == nil {
			received <- evt
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, live.SessionConfig{})
	pcm := []byte{0x0a, 0x0b, 0x0c, 0x0d}
	if err := handle.SendAudio(pcm, "audio/pcm;rate=16000"); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case evt := <-received:
		if evt.Type != "input_audio_buffer.append" {
			t.Errorf("event type = %q", evt.Type)
		}
		decoded, err := base64.StdEncoding.DecodeString(evt.Audio)
		if err != nil || string(decoded) != string(pcm) {
			t.Errorf("decoded audio = %v (err %v), want %v", decoded, err, pcm)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for audio append")
	}
}

func TestSendToolResponses_ItemsThenResponseCreate(t *testing.T) {
	t.Parallel()

	type rawEvent struct {
		Type string `json:"type"`
		Item struct {
			Type   string `json:"type"`
			CallID string `json:"call_id"`
			Output string `json:"output"`
		} `json:"item"`
	}

	received := make(chan rawEvent, 3)
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readFrame(conn); err != nil {
			return
		}
		for i := 0; i < 3; i++ {
			data, err := readFrame(conn)
			if err != nil {
				return
			}
			var evt rawEvent
			if json.Unmarshal(data, &evt) == nil {
				received <- evt
			}
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, live.SessionConfig{})
	err := handle.SendToolResponses([]live.ToolResponse{
		{ID: "call-1", Name: "get_next_form_field", Response: map[string]any{"field_id": "family_name_p1"}},
		{ID: "call-2", Name: "save_form_field", Response: map[string]any{"ok": true}},
	})
	if err != nil {
		t.Fatalf("SendToolResponses: %v", err)
	}

	wait := func() rawEvent {
		select {
		case evt := <-received:
			return evt
		case <-time.After(3 * time.Second):
			t.Fatal("timeout waiting for tool response events")
		}
		panic("unreachable")
	}

	first := wait()
	if first.Type != "conversation.item.create" || first.Item.CallID != "call-1" {
		t.Fatalf("event 0 = %+v", first)
	}
	if first.Item.Type != "function_call_output" {
		t.Errorf("item type = %q", first.Item.Type)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(first.Item.Output), &payload); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if payload["field_id"] != "family_name_p1" {
		t.Errorf("output payload = %v", payload)
	}

	if second := wait(); second.Type != "conversation.item.create" || second.Item.CallID != "call-2" {
		t.Fatalf("event 1 = %+v", second)
	}
	if third := wait(); third.Type != "response.create" {
		t.Fatalf("event 2 = %+v, want response.create", third)
	}
}

// ── Inbound decode ────────────────────────────────────────────────────────────

func TestReceive_AudioDelta(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x41, 0x42, 0x43}
	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readFrame(conn); err != nil {
			return
		}
		_ = writeEvent(conn, map[string]any{
			"type":  "response.audio.delta",
			"delta": base64.StdEncoding.EncodeToString(pcm),
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, live.SessionConfig{})
	msg := nextMessage(t, handle)
	if string(msg.Audio) != string(pcm) {
		t.Fatalf("audio = %v, want %v", msg.Audio, pcm)
	}
}

func TestReceive_OutputTranscriptAssembledFromDeltas(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readFrame(conn); err != nil {
			return
		}
		_ = writeEvent(conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "Wie lautet "})
		_ = writeEvent(conn, map[string]any{"type": "response.audio_transcript.delta", "delta": "Ihr Nachname?"})
		_ = writeEvent(conn, map[string]any{"type": "response.audio_transcript.done"})
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, live.SessionConfig{})
	msg := nextMessage(t, handle)
	if msg.OutputTranscript != "Wie lautet Ihr Nachname?" {
		t.Fatalf("output transcript = %q", msg.OutputTranscript)
	}
}

func TestReceive_InputTranscriptionCompleted(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readFrame(conn); err != nil {
			return
		}
		_ = writeEvent(conn, map[string]any{
			"type":       "conversation.item.input_audio_transcription.completed",
			"transcript": "Mueller",
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, live.SessionConfig{})
	if msg := nextMessage(t, handle); msg.InputTranscript != "Mueller" {
		t.Fatalf("input transcript = %q", msg.InputTranscript)
	}
}

func TestReceive_FunctionCallDecoded(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readFrame(conn); err != nil {
			return
		}
		_ = writeEvent(conn, map[string]any{
			"type":      "response.function_call_arguments.done",
			"call_id":   "call-7",
			"name":      "save_form_field",
			"arguments": `{"field_id":"birth_date_p1","value":"1990-04-01"}`,
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, live.SessionConfig{})
	msg := nextMessage(t, handle)
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(msg.ToolCalls))
	}
	call := msg.ToolCalls[0]
	if call.ID != "call-7" || call.Name != "save_form_field" {
		t.Errorf("call = %+v", call)
	}
	if call.Args["field_id"] != "birth_date_p1" || call.Args["value"] != "1990-04-01" {
		t.Errorf("args = %v", call.Args)
	}
}

func TestReceive_SpeechStartedInterrupts(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readFrame(conn); err != nil {
			return
		}
		_ = writeEvent(conn, map[string]any{"type": "input_audio_buffer.speech_started"})
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, live.SessionConfig{})
	if msg := nextMessage(t, handle); !msg.Interrupted {
		t.Fatalf("message = %+v, want Interrupted", msg)
	}
}

func TestReceive_ResponseCancelled(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readFrame(conn); err != nil {
			return
		}
		_ = writeEvent(conn, map[string]any{"type": "response.cancelled"})
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, live.SessionConfig{})
	if msg := nextMessage(t, handle); !msg.ToolCallCancellation {
		t.Fatalf("message = %+v, want ToolCallCancellation", msg)
	}
}

// ── Error and close paths ─────────────────────────────────────────────────────

func TestServerError_SurfacesViaErr(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readFrame(conn); err != nil {
			return
		}
		_ = writeEvent(conn, map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "invalid_request_error", "message": "rate limit reached"},
		})
		conn.Close(websocket.StatusInternalError, "error")
	})

	handle := connect(t, srv, live.SessionConfig{})

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-handle.Messages():
			if !ok {
				if err := handle.Err(); err == nil || !strings.Contains(err.Error(), "rate limit reached") {
					t.Fatalf("Err() = %v, want rate limit reached", err)
				}
				return
			}
		case <-deadline:
			t.Fatal("message channel never closed after server error")
		}
	}
}

func TestClose_IdempotentAndClosesChannel(t *testing.T) {
	t.Parallel()

	srv := startServer(t, func(conn *websocket.Conn, _ *http.Request) {
		if _, err := readFrame(conn); err != nil {
			return
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	handle := connect(t, srv, live.SessionConfig{})
	if err := handle.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := handle.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	select {
	case _, ok := <-handle.Messages():
		if ok {
			t.Fatal("unexpected message after Close")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("message channel not closed after Close")
	}

	if err := handle.SendAudio([]byte{1}, ""); err == nil {
		t.Fatal("SendAudio succeeded on a closed session")
	}
}
