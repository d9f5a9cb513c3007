package server

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"

	"tonygamingtz/internal/servicetoken"
	"tonygamingtz/pkg/domain"
)

type notificationRequest struct {
	RecipientID string            `json:"recipientId"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	ImageURL    string            `json:"imageUrl"`
	LaunchURL   string            `json:"launchUrl"`
	Data        map[string]string `json:"data"`
}

// handleNotifications lists the viewer's notifications merged with
// broadcasts, newest first.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit := queryInt(r, "limit", 50)
	own, err := s.store.ListNotifications(r.Context(), viewer.ID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := own
	if viewer.ID != domain.BroadcastRecipient {
		broadcast, err := s.store.ListNotifications(r.Context(), domain.BroadcastRecipient, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		items = append(items, broadcast...)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": items,
		"count": len(items),
	})
}

// handleNotificationByPath serves POST /api/notifications/{id}/read.
func (s *Server) handleNotificationByPath(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/notifications/")
	id, action, ok := strings.Cut(rest, "/")
	if !ok || action != "read" || id == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.store.MarkNotificationRead(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminCreateNotification dispatches an administrator announcement.
// An empty recipient targets every identity via the broadcast marker.
func (s *Server) handleAdminCreateNotification(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req notificationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" && strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "title or body is required")
		return
	}
	recipientID := strings.TrimSpace(req.RecipientID)
	if recipientID == "" {
		recipientID = domain.BroadcastRecipient
	}
	n, err := s.dispatcher.Dispatch(r.Context(), recipientID, domain.Notification{
		Title:     req.Title,
		Body:      req.Body,
		ImageURL:  req.ImageURL,
		LaunchURL: req.LaunchURL,
		Payload:   req.Data,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "notification delivery failed")
		return
	}
	s.audit(r, "portal.notification.create", "success", "identity_id", viewer.ID, "recipient_id", recipientID)
	writeJSON(w, http.StatusCreated, n)
}

// handleIncomingNotification accepts an inbound push event (for example a
// provider webhook) and re-dispatches it through the local channels.
func (s *Server) handleIncomingNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.webhookVerifier != nil {
		token, ok := servicetoken.BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if _, err := s.webhookVerifier.Verify(token); err != nil {
			s.audit(r, "portal.notification.incoming", "fail", "reason", "token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
	}
	var req notificationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	recipientID := strings.TrimSpace(req.RecipientID)
	if recipientID == "" {
		recipientID = domain.BroadcastRecipient
	}
	n, err := s.dispatcher.Dispatch(r.Context(), recipientID, domain.Notification{
		Title:     req.Title,
		Body:      req.Body,
		ImageURL:  req.ImageURL,
		LaunchURL: req.LaunchURL,
		Payload:   req.Data,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "notification delivery failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": n.ID})
}
