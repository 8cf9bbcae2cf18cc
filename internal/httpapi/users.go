package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

func (h *Handler) handleUsers(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := requireGlobalAdmin(p); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	users, err := h.store.Users(r.Context())
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type userRoleRequest struct {
	Role models.Role `json:"role"`
}

// handleUserByID changes an account's global role. Admins cannot change
// their own role, so the installation always keeps the one who is acting.
func (h *Handler) handleUserByID(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := requireGlobalAdmin(p); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/users/"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid user id")
		return
	}
	var req userRoleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if !req.Role.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_request", "role must be user, moderator or admin")
		return
	}
	if id == p.UserID && req.Role != models.RoleAdmin {
		writeError(w, http.StatusBadRequest, "invalid_request", "cannot change your own admin role")
		return
	}
	if err := h.store.UpdateUserRole(r.Context(), id, req.Role); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	role := string(req.Role)
	h.audit(r, &p.UserID, "role changed", &role)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}
