package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

type suggestionRequest struct {
	Title     string  `json:"title"`
	Author    *string `json:"author,omitempty"`
	YouTube   *string `json:"youtube,omitempty"`
	VersionOf *string `json:"versionOf,omitempty"`
}

func (h *Handler) handleSuggestions(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	groupID, _, err := h.gate.RequireGroup(r.Context(), p, models.RoleUser)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := h.store.Suggestions(r.Context(), groupID)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req suggestionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
			return
		}
		sg, err := h.store.CreateSuggestion(r.Context(), groupID, p.UserID, req.Title, req.Author, req.YouTube, req.VersionOf)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, sg)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleSuggestionByID(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	groupID, _, err := h.gate.RequireGroup(r.Context(), p, models.RoleUser)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/suggestions/"), "/")
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid suggestion id")
		return
	}
	if len(parts) > 1 && parts[1] == "vote" {
		h.handleVote(w, r, p, groupID, id)
		return
	}
	if len(parts) > 1 && parts[1] != "" {
		writeError(w, http.StatusNotFound, "not_found", "no such resource")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sg, err := h.store.SuggestionByID(r.Context(), groupID, id)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sg)
	case http.MethodPut:
		sg, err := h.store.SuggestionByID(r.Context(), groupID, id)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.requireEditor(r, p, groupID, sg.CreatorID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		var req suggestionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Title = strings.TrimSpace(req.Title)
		if req.Title == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "title is required")
			return
		}
		if err := h.store.UpdateSuggestion(r.Context(), groupID, id, req.Title, req.Author, req.YouTube, req.VersionOf); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case http.MethodDelete:
		sg, err := h.store.SuggestionByID(r.Context(), groupID, id)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.requireEditor(r, p, groupID, sg.CreatorID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.store.DeleteSuggestion(r.Context(), groupID, id); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request, p auth.Principal, groupID, id int64) {
	switch r.Method {
	case http.MethodPost:
		sg, err := h.store.Vote(r.Context(), groupID, id, p.UserID)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sg)
	case http.MethodDelete:
		sg, err := h.store.Unvote(r.Context(), groupID, id, p.UserID)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sg)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
