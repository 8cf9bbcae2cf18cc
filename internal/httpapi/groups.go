package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
)

type createGroupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
}

func (h *Handler) handleGroups(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	switch r.Method {
	case http.MethodGet:
		groups, err := h.store.GroupsForUser(r.Context(), p.UserID)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, groups)
	case http.MethodPost:
		var req createGroupRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		group, err := h.store.CreateGroup(r.Context(), p.UserID, req.Name, req.Description)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.sessions.Bind(r.Context(), p.Session.Token, &group.ID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		h.audit(r, &p.UserID, "group created", &group.Name)
		writeJSON(w, http.StatusCreated, group)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type joinGroupRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleJoinGroup(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req joinGroupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Code = strings.ToUpper(strings.TrimSpace(req.Code))
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "code is required")
		return
	}
	group, err := h.store.JoinGroup(r.Context(), p.UserID, req.Code)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	if err := h.sessions.Bind(r.Context(), p.Session.Token, &group.ID); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.audit(r, &p.UserID, "group joined", &group.Name)
	writeJSON(w, http.StatusOK, group)
}

// handleRenewCode rotates the invitation code of the caller's current
// group. Admin only; the old code stops working immediately.
func (h *Handler) handleRenewCode(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	groupID, _, err := h.gate.RequireGroup(r.Context(), p, models.RoleAdmin)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	code, err := h.store.RenewCode(r.Context(), groupID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"invitationCode": code})
}

type updateGroupRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	LogoURL     *string `json:"logoUrl,omitempty"`
}

// handleGroupByID serves /api/groups/{id} and the member subresources
// beneath it.
func (h *Handler) handleGroupByID(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/groups/"), "/")
	groupID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid group id")
		return
	}
	if len(parts) > 1 && parts[1] == "members" {
		h.handleMembers(w, r, p, groupID, parts[2:])
		return
	}
	if len(parts) > 1 && parts[1] != "" {
		writeError(w, http.StatusNotFound, "not_found", "no such resource")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if _, err := h.gate.RequireRole(r.Context(), p, groupID, models.RoleUser); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		group, err := h.store.GroupByID(r.Context(), groupID)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, group)
	case http.MethodPut:
		if _, err := h.gate.RequireRole(r.Context(), p, groupID, models.RoleAdmin); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		var req updateGroupRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "name is required")
			return
		}
		if err := h.store.UpdateGroup(r.Context(), groupID, req.Name, req.Description, req.LogoURL); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case http.MethodDelete:
		if _, err := h.gate.RequireRole(r.Context(), p, groupID, models.RoleAdmin); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		if err := h.store.DeleteGroup(r.Context(), groupID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		h.audit(r, &p.UserID, "group deleted", nil)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type updateMemberRequest struct {
	Role     models.Role `json:"role"`
	Nickname *string     `json:"nickname,omitempty"`
}

type addMemberRequest struct {
	UserID   int64       `json:"userId"`
	Role     models.Role `json:"role"`
	Nickname *string     `json:"nickname,omitempty"`
}

// handleMembers serves the member list, direct enrolment and per-member
// updates. Anyone in the group can read the list; adding, changing or
// removing others takes admin. Members may always remove themselves,
// subject to the last-admin rule.
func (h *Handler) handleMembers(w http.ResponseWriter, r *http.Request, p auth.Principal, groupID int64, rest []string) {
	if len(rest) == 0 || rest[0] == "" {
		switch r.Method {
		case http.MethodGet:
			if _, err := h.gate.RequireRole(r.Context(), p, groupID, models.RoleUser); err != nil {
				h.writeFailure(w, r, err)
				return
			}
			members, err := h.store.Members(r.Context(), groupID)
			if err != nil {
				h.writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, members)
		case http.MethodPost:
			if _, err := h.gate.RequireRole(r.Context(), p, groupID, models.RoleAdmin); err != nil {
				h.writeFailure(w, r, err)
				return
			}
			var req addMemberRequest
			if err := decodeJSON(r, &req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
				return
			}
			if req.Role == "" {
				req.Role = models.RoleUser
			}
			if !req.Role.Valid() {
				writeError(w, http.StatusBadRequest, "invalid_request", "role must be user, moderator or admin")
				return
			}
			member, err := h.store.AddMember(r.Context(), groupID, req.UserID, req.Role, req.Nickname)
			if err != nil {
				h.writeFailure(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, member)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		return
	}

	targetID, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid member id")
		return
	}
	switch r.Method {
	case http.MethodPut:
		if _, err := h.gate.RequireRole(r.Context(), p, groupID, models.RoleAdmin); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		var req updateMemberRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if !req.Role.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_request", "role must be user, moderator or admin")
			return
		}
		if err := h.store.UpdateMembership(r.Context(), groupID, targetID, req.Role, req.Nickname); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	case http.MethodDelete:
		if targetID != p.UserID {
			if _, err := h.gate.RequireRole(r.Context(), p, groupID, models.RoleAdmin); err != nil {
				h.writeFailure(w, r, err)
				return
			}
		} else {
			if _, err := h.gate.RequireRole(r.Context(), p, groupID, models.RoleUser); err != nil {
				h.writeFailure(w, r, err)
				return
			}
		}
		if err := h.store.RemoveMember(r.Context(), groupID, targetID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		h.audit(r, &p.UserID, "member removed", nil)
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
