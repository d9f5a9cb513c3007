package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"tonygamingtz/pkg/domain"
	"tonygamingtz/pkg/notify"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The portal serves browsers on other origins; bearer auth gates the
	// upgrade instead.
	CheckOrigin: func(*http.Request) bool { return true },
}

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
	wsReadLimit  = 4096
)

// wsEnvelope wraps every server-to-client frame with its stream name.
type wsEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type wsClientFrame struct {
	Type string `json:"type"`
}

// handleWS upgrades to a websocket and streams the viewer's filtered live
// message feed plus in-app notifications. Browsers cannot set headers on
// websocket dials, so a token query parameter is accepted as well.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
		ok = token != ""
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	viewer, found := s.app.IdentityFromToken(r.Context(), token)
	if !found {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "err", err, "identity_id", viewer.ID)
		return
	}

	msgs, cancelMsgs := s.hub.Subscribe(viewer, 32)
	feed, cancelFeed := s.feed.Subscribe(32)
	done := make(chan struct{})

	_ = s.presence.Heartbeat(context.Background(), viewer.ID)

	go s.wsReadLoop(conn, viewer, done)
	s.wsWriteLoop(conn, viewer, msgs, feed, done)

	cancelMsgs()
	cancelFeed()
	_ = s.presence.Offline(context.Background(), viewer.ID)
	_ = conn.Close()
}

// wsReadLoop consumes client frames (typing and heartbeat signals) until
// the peer goes away.
func (s *Server) wsReadLoop(conn *websocket.Conn, viewer domain.Identity, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(wsReadLimit)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame wsClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		switch frame.Type {
		case "typing":
			_ = s.presence.SetTyping(context.Background(), viewer.ID)
		case "heartbeat":
			_ = s.presence.Heartbeat(context.Background(), viewer.ID)
		}
	}
}

// wsWriteLoop forwards hub messages and notification feed events until the
// reader reports the peer gone. Relay messages arrive pre-filtered by the
// hub; feed events are filtered here per recipient.
func (s *Server) wsWriteLoop(conn *websocket.Conn, viewer domain.Identity, msgs <-chan domain.Message, feed <-chan notify.FeedEvent, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case msg, open := <-msgs:
			if !open {
				return
			}
			if !s.writeFrame(conn, wsEnvelope{Type: "message", Data: msg}) {
				return
			}
		case ev, open := <-feed:
			if !open {
				return
			}
			if !feedEventVisible(viewer, ev) {
				continue
			}
			if !s.writeFrame(conn, wsEnvelope{Type: "notification", Data: ev.Notification}) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeFrame(conn *websocket.Conn, env wsEnvelope) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(env); err != nil {
		return false
	}
	return true
}

func feedEventVisible(viewer domain.Identity, ev notify.FeedEvent) bool {
	if viewer.IsAdmin() {
		return true
	}
	return ev.RecipientID == viewer.ID || ev.RecipientID == domain.BroadcastRecipient
}
