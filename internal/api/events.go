// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"sort"
	"time"

	"github.com/ManuGH/myth2dsv/internal/events"
	xglog "github.com/ManuGH/myth2dsv/internal/log"
	"github.com/ManuGH/myth2dsv/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	subscriberBuffer = 64
	writeWait        = 5 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// handleEvents streams bus events as JSON text frames. A new client first
// receives the latest event of every kind, oldest first.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeNotFound(w)
		return
	}
	logger := xglog.WithContext(r.Context(), s.logger)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() { _ = conn.Close() }()

	sub := s.events.Subscribe(subscriberBuffer)
	defer sub.Close()
	metrics.EventSubscribers.Inc()
	defer metrics.EventSubscribers.Dec()

	// The reader only handles control frames and notices the client leaving.
	gone := make(chan struct{})
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, e := range latestOrdered(s.events.LatestAll()) {
		if err := writeEvent(conn, e); err != nil {
			return
		}
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				return
			}
			if err := writeEvent(conn, e); err != nil {
				logger.Debug().Err(err).Msg("event stream write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		case <-s.closing:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, e events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(newEventView(e))
}

func latestOrdered(latest map[events.Kind]events.Event) []events.Event {
	out := make([]events.Event, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}
