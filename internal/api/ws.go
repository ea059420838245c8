// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The daemon serves operator UIs on the local network; origin
	// enforcement belongs to a fronting proxy if one is deployed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams bus events to a websocket client as JSON. The
// subscription uses the bus's drop-oldest policy, so a stalled client
// loses intermediate events but always converges on current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Str("event", "ws.upgrade_failed").Msg("websocket upgrade failed")
		return
	}
	id, events := s.svc.Events().Subscribe(64)
	defer func() {
		s.svc.Events().Unsubscribe(id)
		_ = ws.Close()
	}()
	s.log.Debug().Str("event", "ws.subscribed").Str("subscriber", id).Msg("event stream opened")

	// Read loop exists only to notice the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// Bus closed: daemon shutting down.
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := ws.WriteJSON(ev); err != nil {
				s.log.Debug().Err(err).Str("event", "ws.write_failed").Str("subscriber", id).Msg("dropping event stream client")
				return
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
