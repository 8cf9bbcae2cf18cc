package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

type settingsRequest struct {
	GroupName string `json:"groupName"`
	DarkMode  bool   `json:"darkMode"`
	Template  string `json:"template"`
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	switch r.Method {
	case http.MethodGet:
		groupID, _, err := h.gate.RequireGroup(r.Context(), p, models.RoleUser)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		st, err := h.store.Settings(r.Context(), groupID)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	case http.MethodPut:
		groupID, _, err := h.gate.RequireGroup(r.Context(), p, models.RoleAdmin)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		var req settingsRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.GroupName = strings.TrimSpace(req.GroupName)
		if req.GroupName == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "groupName is required")
			return
		}
		if req.Template == "" {
			req.Template = "classic"
		}
		st := models.Settings{GroupID: groupID, GroupName: req.GroupName, DarkMode: req.DarkMode, Template: req.Template}
		if err := h.store.UpdateSettings(r.Context(), groupID, st); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleLogs exposes the installation-wide audit trail. The log spans all
// groups, so it is gated on the global role, not on any membership.
func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := requireGlobalAdmin(p); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
			return
		}
	}
	entries, err := h.store.AuditLog(r.Context(), limit)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
