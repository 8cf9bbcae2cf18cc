package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

type performanceRequest struct {
	Name     string  `json:"name"`
	Date     string  `json:"date"`
	Location *string `json:"location,omitempty"`
	Songs    []int64 `json:"songs"`
}

func (req *performanceRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return "name is required"
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return "date must be YYYY-MM-DD"
	}
	return ""
}

func (h *Handler) handlePerformances(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	groupID, _, err := h.gate.RequireGroup(r.Context(), p, models.RoleUser)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := h.store.Performances(r.Context(), groupID)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req performanceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if msg := req.validate(); msg != "" {
			writeError(w, http.StatusBadRequest, "invalid_request", msg)
			return
		}
		perf, err := h.store.CreatePerformance(r.Context(), groupID, p.UserID, req.Name, req.Date, req.Location, req.Songs)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, perf)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handlePerformanceByID(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	groupID, _, err := h.gate.RequireGroup(r.Context(), p, models.RoleUser)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/performances/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid performance id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		perf, err := h.store.PerformanceByID(r.Context(), groupID, id)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, perf)
	case http.MethodPut:
		perf, err := h.store.PerformanceByID(r.Context(), groupID, id)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.requireEditor(r, p, groupID, perf.CreatorID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		var req performanceRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if msg := req.validate(); msg != "" {
			writeError(w, http.StatusBadRequest, "invalid_request", msg)
			return
		}
		if err := h.store.UpdatePerformance(r.Context(), groupID, id, req.Name, req.Date, req.Location, req.Songs); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case http.MethodDelete:
		perf, err := h.store.PerformanceByID(r.Context(), groupID, id)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.requireEditor(r, p, groupID, perf.CreatorID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.store.DeletePerformance(r.Context(), groupID, id); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
