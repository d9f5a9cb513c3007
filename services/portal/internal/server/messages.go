package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"tonygamingtz/pkg/domain"
)

const maxAttachmentBytes = 32 << 20

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		limit := queryInt(r, "limit", 100)
		items, err := s.relay.History(r.Context(), viewer, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
			"count": len(items),
		})
	case http.MethodPost:
		var req struct {
			RecipientID   string `json:"recipientId"`
			RecipientName string `json:"recipientName"`
			Text          string `json:"text"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		msg, err := s.relay.Send(r.Context(), viewer, req.RecipientID, req.RecipientName, req.Text)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusCreated, msg)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleMessageFile(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentBytes)
	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	msg, err := s.relay.SendFile(
		r.Context(),
		viewer,
		r.FormValue("recipientId"),
		r.FormValue("recipientName"),
		header.Filename,
		contentType,
		r.FormValue("caption"),
		header.Size,
		file,
	)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// handleMessageByPath serves POST /api/messages/{id}/read, where {id} is
// the conversation counterpart. Non-administrators may only mark the admin
// conversation; the relay enforces the counterpart.
func (s *Server) handleMessageByPath(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/messages/")
	otherID, action, ok := strings.Cut(rest, "/")
	if !ok || action != "read" || otherID == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if err := s.relay.MarkRead(r.Context(), viewer, otherID); err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminConversations(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	convs, err := s.relay.Conversations(r.Context(), viewer)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"items": convs,
		"count": len(convs),
	})
}

// presence

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Online bool `json:"online"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	var err error
	if req.Online {
		err = s.presence.Heartbeat(r.Context(), viewer.ID)
	} else {
		err = s.presence.Offline(r.Context(), viewer.ID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTyping(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Typing bool `json:"typing"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	// A false value just lets the short TTL expire.
	if req.Typing {
		if err := s.presence.SetTyping(r.Context(), viewer.ID); err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAdminPresence(w http.ResponseWriter, r *http.Request, _ domain.Identity) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/admin/presence/")
	if id == "" || strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}
	online, err := s.presence.Online(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	typing, err := s.presence.Typing(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identityId": id,
		"online":     online,
		"typing":     typing,
	})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
