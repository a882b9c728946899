// Package api exposes the HTTP control surface of the formvoice server.
//
// The API lets a UI start and stop voice sessions, inspect the form
// catalogue and the current collection state, push manual corrections, and
// stream session events over a WebSocket.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/formvoice/formvoice/internal/events"
	"github.com/formvoice/formvoice/internal/form"
	"github.com/formvoice/formvoice/internal/health"
	"github.com/formvoice/formvoice/internal/observe"
)

// Contract errors for [SessionRunner] implementations. Handlers map both to
// 409 Conflict.
var (
	// ErrSessionActive is returned by Start when a session is already running.
	ErrSessionActive = errors.New("a voice session is already active")

	// ErrNoSession is returned by Stop, Snapshot, and Correct when no
	// session is running.
	ErrNoSession = errors.New("no active voice session")
)

// SessionRunner drives voice sessions on behalf of the API.
type SessionRunner interface {
	// Start launches a voice session under the given ID. Returns
	// [ErrSessionActive] when one is already running.
	Start(ctx context.Context, sessionID string) error

	// Stop terminates the running session and blocks until it has wound
	// down. Returns [ErrNoSession] when none is running.
	Stop() error

	// Running reports whether a session is active, and its ID if so.
	Running() (string, bool)

	// Snapshot returns the form state of the running session. Returns
	// [ErrNoSession] when none is running.
	Snapshot() (form.Snapshot, error)

	// Correct applies a manual correction of an already-collected field.
	// Returns [ErrNoSession] when no session is running, or a descriptive
	// error when the correction is rejected.
	Correct(fieldID, value string) error
}

// Server wires the HTTP routes onto an echo instance.
type Server struct {
	e       *echo.Echo
	runner  SessionRunner
	emitter *events.Emitter
	log     *slog.Logger
}

// New builds the HTTP server. The health handler's probes are mounted at
// /healthz and /readyz, Prometheus metrics at /metrics.
func New(runner SessionRunner, emitter *events.Emitter, h *health.Handler, metrics *observe.Metrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		e:       echo.New(),
		runner:  runner,
		emitter: emitter,
		log:     log,
	}
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.Use(middleware.Recover())
	s.e.Use(echo.WrapMiddleware(observe.Middleware(metrics)))

	s.e.POST("/api/session/start", s.startSession)
	s.e.POST("/api/session/stop", s.stopSession)
	s.e.GET("/api/session/status", s.sessionStatus)
	s.e.GET("/api/form/fields", s.formFields)
	s.e.GET("/api/form/state", s.formState)
	s.e.POST("/api/form/correct", s.correctField)
	s.e.GET("/ws/events", s.eventsSocket)

	s.e.GET("/healthz", echo.WrapHandler(http.HandlerFunc(h.Healthz)))
	s.e.GET("/readyz", echo.WrapHandler(http.HandlerFunc(h.Readyz)))
	s.e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	return s
}

// Handler returns the underlying HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.e }

// Start listens on addr and blocks until the server is shut down.
func (s *Server) Start(addr string) error {
	err := s.e.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) startSession(c echo.Context) error {
	id := uuid.NewString()
	if err := s.runner.Start(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrSessionActive) {
			return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
		}
		s.log.Error("session start failed", "err", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) stopSession(c echo.Context) error {
	if err := s.runner.Stop(); err != nil {
		if errors.Is(err, ErrNoSession) {
			return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
		}
		s.log.Error("session stop failed", "err", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) sessionStatus(c echo.Context) error {
	id, running := s.runner.Running()
	resp := map[string]any{"running": running}
	if running {
		resp["session_id"] = id
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) formFields(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"fields": form.Catalog()})
}

func (s *Server) formState(c echo.Context) error {
	snap, err := s.runner.Snapshot()
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, snap)
}

type correctRequest struct {
	FieldID string `json:"field_id"`
	Value   string `json:"value"`
}

func (s *Server) correctField(c echo.Context) error {
	var req correctRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.FieldID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "field_id is required"})
	}
	if err := s.runner.Correct(req.FieldID, req.Value); err != nil {
		if errors.Is(err, ErrNoSession) {
			return c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
		}
		// Rejected by validation or by the correction window.
		return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "applied"})
}
