package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"tonygamingtz/pkg/domain"
	"tonygamingtz/services/portal/internal/app"
)

func (s *Server) handleCalls(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	switch r.Method {
	case http.MethodGet:
		limit := queryInt(r, "limit", 50)
		calls, err := s.app.CallHistory(r.Context(), viewer, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": calls,
			"count": len(calls),
		})
	case http.MethodPost:
		var req struct {
			CalleeID string `json:"calleeId"`
			Video    bool   `json:"video"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		call, err := s.app.InitiateCall(r.Context(), viewer, req.CalleeID, req.Video)
		if err != nil {
			writeCallError(w, err)
			return
		}
		s.audit(r, "portal.call.initiate", "success", "call_id", call.ID, "identity_id", viewer.ID)
		writeJSON(w, http.StatusCreated, call)
	default:
		methodNotAllowed(w)
	}
}

// handleCallByPath serves POST /api/calls/{id}/{accept|decline|end|missed}.
func (s *Server) handleCallByPath(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/calls/")
	callID, action, ok := strings.Cut(rest, "/")
	if !ok || callID == "" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var call domain.Call
	var err error
	switch action {
	case "accept":
		call, err = s.app.AcceptCall(r.Context(), viewer, callID)
	case "decline":
		call, err = s.app.DeclineCall(r.Context(), viewer, callID)
	case "end":
		var req struct {
			DurationSeconds int64 `json:"durationSeconds"`
		}
		_ = json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req)
		call, err = s.app.EndCall(r.Context(), viewer, callID, req.DurationSeconds)
	case "missed":
		call, err = s.app.MarkCallMissed(r.Context(), viewer, callID)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeCallError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func writeCallError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrCallNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, app.ErrNotCallParticipant):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, app.ErrCallTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrCalleeRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
