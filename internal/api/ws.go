package api

import (
	"context"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/labstack/echo/v4"
)

// writeTimeout bounds a single event write to a slow WebSocket client.
const writeTimeout = 5 * time.Second

// eventsSocket streams session events to a WebSocket client as JSON frames.
// Each connection gets its own subscription; a client too slow to keep up
// loses events rather than stalling the session (the emitter drops on a full
// buffer).
func (s *Server) eventsSocket(c echo.Context) error {
	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusInternalError, "event stream aborted")

	sub := s.emitter.Subscribe(32)
	defer sub.Close()

	// CloseRead answers pings and cancels the context when the client goes
	// away. The stream is write-only from our side.
	ctx := conn.CloseRead(c.Request().Context())

	for {
		select {
		case <-ctx.Done():
			return conn.Close(websocket.StatusNormalClosure, "")
		case ev, ok := <-sub.Events():
			if !ok {
				return conn.Close(websocket.StatusGoingAway, "server shutting down")
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				s.log.Debug("event stream client write failed", "err", err)
				return nil
			}
		}
	}
}
