package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"tonygamingtz/pkg/domain"
	"tonygamingtz/pkg/sms"
)

// handleAdminSMS lets the administrator send a free-form SMS through the
// delivery queue and review the outbound log.
func (s *Server) handleAdminSMS(w http.ResponseWriter, r *http.Request, viewer domain.Identity) {
	if s.sms == nil {
		writeError(w, http.StatusServiceUnavailable, "sms delivery not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		limit := queryInt(r, "limit", 50)
		items, err := s.sms.History(r.Context(), viewer.ID, limit)
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
			ToPhone string `json:"toPhone"`
			Body    string `json:"body"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		rec, err := s.sms.Queue(r.Context(), viewer.ID, req.ToPhone, req.Body)
		if err != nil {
			if errors.Is(err, sms.ErrEmptyPhone) || errors.Is(err, sms.ErrEmptyBody) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		s.audit(r, "portal.sms.queue", "success", "sms_id", rec.ID, "identity_id", viewer.ID)
		writeJSON(w, http.StatusAccepted, rec)
	default:
		methodNotAllowed(w)
	}
}
