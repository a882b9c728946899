package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/formvoice/formvoice/internal/api"
	"github.com/formvoice/formvoice/internal/events"
	"github.com/formvoice/formvoice/internal/form"
	"github.com/formvoice/formvoice/internal/health"
	"github.com/formvoice/formvoice/internal/observe"
)

// stubRunner implements api.SessionRunner and records calls.
type stubRunner struct {
	mu          sync.Mutex
	startErr    error
	stopErr     error
	correctErr  error
	snapErr     error
	startedIDs  []string
	stopCount   int
	runningID   string
	snap        form.Snapshot
	corrections [][2]string
}

func (r *stubRunner) Start(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.startErr != nil {
		return r.startErr
	}
	r.startedIDs = append(r.startedIDs, sessionID)
	r.runningID = sessionID
	return nil
}

func (r *stubRunner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopErr != nil {
		return r.stopErr
	}
	r.stopCount++
	r.runningID = ""
	return nil
}

func (r *stubRunner) Running() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runningID, r.runningID != ""
}

func (r *stubRunner) Snapshot() (form.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snapErr != nil {
		return form.Snapshot{}, r.snapErr
	}
	return r.snap, nil
}

func (r *stubRunner) Correct(fieldID, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.correctErr != nil {
		return r.correctErr
	}
	r.corrections = append(r.corrections, [2]string{fieldID, value})
	return nil
}

func newTestServer(t *testing.T, runner *stubRunner, emitter *events.Emitter) *api.Server {
	t.Helper()
	if emitter == nil {
		emitter = events.New(nil)
		t.Cleanup(emitter.Close)
	}
	return api.New(runner, emitter, health.New(), observe.DefaultMetrics(), nil)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("response is not valid JSON: %v\nbody: %s", err, rec.Body.String())
		}
	}
	return rec, decoded
}

func TestStartSession(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{}
	s := newTestServer(t, runner, nil)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/session/start", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusCreated)
	}
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatal("response should carry a session_id")
	}
	if len(runner.startedIDs) != 1 || runner.startedIDs[0] != id {
		t.Errorf("runner started with %v, want [%s]", runner.startedIDs, id)
	}
}

func TestStartSession_AlreadyActive(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{startErr: api.ErrSessionActive}
	s := newTestServer(t, runner, nil)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/session/start", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusConflict)
	}
	if msg, _ := body["error"].(string); msg == "" {
		t.Error("conflict response should carry an error message")
	}
}

func TestStopSession(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{runningID: "sess-1"}
	s := newTestServer(t, runner, nil)

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/session/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if runner.stopCount != 1 {
		t.Errorf("stop count: got %d, want 1", runner.stopCount)
	}
}

func TestStopSession_NoSession(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{stopErr: api.ErrNoSession}
	s := newTestServer(t, runner, nil)

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/session/stop", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestSessionStatus(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{runningID: "sess-42"}
	s := newTestServer(t, runner, nil)

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/session/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if body["running"] != true {
		t.Errorf("running: got %v, want true", body["running"])
	}
	if body["session_id"] != "sess-42" {
		t.Errorf("session_id: got %v, want sess-42", body["session_id"])
	}

	runner.runningID = ""
	_, body = doJSON(t, s.Handler(), http.MethodGet, "/api/session/status", "")
	if body["running"] != false {
		t.Errorf("running after stop: got %v, want false", body["running"])
	}
	if _, present := body["session_id"]; present {
		t.Error("idle status should not carry a session_id")
	}
}

func TestFormFields(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &stubRunner{}, nil)

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/form/fields", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	fields, ok := body["fields"].([]any)
	if !ok {
		t.Fatalf("fields missing from response: %v", body)
	}
	if len(fields) != len(form.Catalog()) {
		t.Errorf("fields: got %d, want %d", len(fields), len(form.Catalog()))
	}
	first, _ := fields[0].(map[string]any)
	if first["id"] != "family_name_p1" {
		t.Errorf("first field id: got %v, want family_name_p1", first["id"])
	}
}

func TestFormState(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{snap: form.Snapshot{
		CurrentIndex:    2,
		CurrentFieldID:  "birth_date_p1",
		Answers:         map[string]string{"family_name_p1": "Schmidt"},
		Errors:          map[string]string{},
		ProgressPercent: 7.7,
	}}
	s := newTestServer(t, runner, nil)

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/api/form/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if body["current_field_id"] != "birth_date_p1" {
		t.Errorf("current_field_id: got %v", body["current_field_id"])
	}
}

func TestFormState_NoSession(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{snapErr: api.ErrNoSession}
	s := newTestServer(t, runner, nil)

	rec, _ := doJSON(t, s.Handler(), http.MethodGet, "/api/form/state", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestCorrectField(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{runningID: "sess-1"}
	s := newTestServer(t, runner, nil)

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/form/correct",
		`{"field_id":"family_name_p1","value":"Meier"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if len(runner.corrections) != 1 {
		t.Fatalf("corrections: got %d, want 1", len(runner.corrections))
	}
	if got := runner.corrections[0]; got[0] != "family_name_p1" || got[1] != "Meier" {
		t.Errorf("correction: got %v", got)
	}
}

func TestCorrectField_MissingFieldID(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &stubRunner{}, nil)

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/form/correct", `{"value":"Meier"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCorrectField_Rejected(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{correctErr: errors.New("correct family_name_p1: value is required")}
	s := newTestServer(t, runner, nil)

	rec, body := doJSON(t, s.Handler(), http.MethodPost, "/api/form/correct",
		`{"field_id":"family_name_p1","value":""}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusUnprocessableEntity)
	}
	if msg, _ := body["error"].(string); !strings.Contains(msg, "family_name_p1") {
		t.Errorf("error should name the field, got %v", body["error"])
	}
}

func TestCorrectField_NoSession(t *testing.T) {
	t.Parallel()
	runner := &stubRunner{correctErr: api.ErrNoSession}
	s := newTestServer(t, runner, nil)

	rec, _ := doJSON(t, s.Handler(), http.MethodPost, "/api/form/correct",
		`{"field_id":"family_name_p1","value":"Meier"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status: got %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, &stubRunner{}, nil)

	rec, body := doJSON(t, s.Handler(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status: got %d, want %d", rec.Code, http.StatusOK)
	}
	if body["status"] != "ok" {
		t.Errorf("healthz status field: got %v", body["status"])
	}

	rec, _ = doJSON(t, s.Handler(), http.MethodGet, "/readyz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz status: got %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestEventsSocket(t *testing.T) {
	t.Parallel()
	emitter := events.New(nil)
	t.Cleanup(emitter.Close)
	s := newTestServer(t, &stubRunner{}, emitter)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/events"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the handler a moment to register its subscription before emitting.
	time.Sleep(50 * time.Millisecond)
	emitter.Emit(events.Event{
		Type:      events.TypeFieldSaved,
		SessionID: "sess-1",
		Data:      map[string]any{"field_id": "family_name_p1"},
	})

	var got events.Event
	if err := wsjson.Read(ctx, conn, &got); err != nil {
		t.Fatalf("websocket read: %v", err)
	}
	if got.Type != events.TypeFieldSaved {
		t.Errorf("event type: got %q, want %q", got.Type, events.TypeFieldSaved)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("session id: got %q", got.SessionID)
	}
	if got.Data["field_id"] != "family_name_p1" {
		t.Errorf("payload: got %v", got.Data)
	}
}
