package daemon

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"dubbing/internal/api"
	"dubbing/internal/logging"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleEventStream upgrades to a websocket and pushes every job event as a
// JSON api.Event. Passing ?since=<seq> replays retained events first.
func (s *apiServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)

	// Subscribe before replaying so nothing published in between is lost.
	bus := s.daemon.manager.Events()
	live, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	s.logger.Debug("event stream client connected", logging.String("remote", r.RemoteAddr))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v any) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v)
	}

	lastSent := since
	if since > 0 {
		for _, evt := range bus.Since(since, maxEventLimit) {
			if err := write(api.FromEvent(evt)); err != nil {
				return
			}
			lastSent = evt.Seq
		}
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "daemon shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case <-closed:
			return
		case evt, ok := <-live:
			if !ok {
				return
			}
			if evt.Seq <= lastSent {
				continue
			}
			if err := write(api.FromEvent(evt)); err != nil {
				return
			}
			lastSent = evt.Seq
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
