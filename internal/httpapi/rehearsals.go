package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

type rehearsalRequest struct {
	Title     string  `json:"title"`
	Author    *string `json:"author,omitempty"`
	YouTube   *string `json:"youtube,omitempty"`
	Spotify   *string `json:"spotify,omitempty"`
	VersionOf *string `json:"versionOf,omitempty"`
}

func (h *Handler) handleRehearsals(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	groupID, _, err := h.gate.RequireGroup(r.Context(), p, models.RoleUser)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := h.store.Rehearsals(r.Context(), groupID)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req rehearsalRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
			return
		}
		re, err := h.store.CreateRehearsal(r.Context(), groupID, p.UserID, req.Title, req.Author, req.YouTube, req.Spotify, req.VersionOf)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, re)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type levelRequest struct {
	Level int `json:"level"`
}

type noteRequest struct {
	Note string `json:"note"`
}

type masteredRequest struct {
	Mastered bool `json:"mastered"`
}

func (h *Handler) handleRehearsalByID(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	groupID, _, err := h.gate.RequireGroup(r.Context(), p, models.RoleUser)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/rehearsals/"), "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid rehearsal id")
		return
	}
	if len(parts) > 1 && parts[1] != "" {
		h.handleRehearsalSub(w, r, p, groupID, id, parts[1])
		return
	}

	switch r.Method {
	case http.MethodGet:
		re, err := h.store.RehearsalByID(r.Context(), groupID, id)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, re)
	case http.MethodPut:
		re, err := h.store.RehearsalByID(r.Context(), groupID, id)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.requireEditor(r, p, groupID, re.CreatorID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		var req rehearsalRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
			return
		}
		if err := h.store.UpdateRehearsal(r.Context(), groupID, id, req.Title, req.Author, req.YouTube, req.Spotify, req.VersionOf); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case http.MethodDelete:
		re, err := h.store.RehearsalByID(r.Context(), groupID, id)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.requireEditor(r, p, groupID, re.CreatorID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.store.DeleteRehearsal(r.Context(), groupID, id); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleRehearsalSub serves the per-member level and note updates plus the
// mastered flag. Levels and notes are always the caller's own entry.
func (h *Handler) handleRehearsalSub(w http.ResponseWriter, r *http.Request, p auth.Principal, groupID, id int64, sub string) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch sub {
	case "level":
		var req levelRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if req.Level < 0 || req.Level > 100 {
			writeError(w, http.StatusBadRequest, "invalid_request", "level must be between 0 and 100")
			return
		}
		if err := h.store.SetLevel(r.Context(), groupID, id, p.Username, req.Level); err != nil {
			h.writeFailure(w, r, err)
			return
		}
	case "note":
		var req noteRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if err := h.store.SetNote(r.Context(), groupID, id, p.Username, req.Note); err != nil {
			h.writeFailure(w, r, err)
			return
		}
	case "mastered":
		if _, err := h.gate.RequireRole(r.Context(), p, groupID, models.RoleModerator); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		var req masteredRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if err := h.store.SetMastered(r.Context(), groupID, id, req.Mastered); err != nil {
			h.writeFailure(w, r, err)
			return
		}
	default:
		writeError(w, http.StatusNotFound, "not_found", "no such resource")
		return
	}
	re, err := h.store.RehearsalByID(r.Context(), groupID, id)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, re)
}
