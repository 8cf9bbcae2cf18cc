package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
	"github.com/ebrangerieau/BandtrackPlus/internal/store"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionUserResponse struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Role     models.Role `json:"role"`
	GroupID  *int64      `json:"groupId"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || len(req.Password) < 4 {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and a password of at least 4 characters are required")
		return
	}

	user, err := h.store.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	session, err := h.sessions.Issue(r.Context(), user.ID, user.LastGroupID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.setSessionCookie(w, r, session.Token)
	h.audit(r, &user.ID, "register", nil)
	writeJSON(w, http.StatusCreated, sessionUserResponse{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.GlobalRole,
		GroupID:  user.LastGroupID,
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "username and password are required")
		return
	}

	user, err := h.store.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	session, err := h.sessions.Issue(r.Context(), user.ID, user.LastGroupID)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.setSessionCookie(w, r, session.Token)
	h.audit(r, &user.ID, "login", nil)
	writeJSON(w, http.StatusOK, sessionUserResponse{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.GlobalRole,
		GroupID:  user.LastGroupID,
	})
}

// handleLogout revokes the presented session if any. Logging out twice, or
// without a session, succeeds the same way.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		if err := h.sessions.Revoke(r.Context(), cookie.Value); err != nil {
			h.writeFailure(w, r, err)
			return
		}
	}
	h.clearSessionCookie(w, r)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	switch r.Method {
	case http.MethodGet:
		resp := sessionUserResponse{
			ID:       p.UserID,
			Username: p.Username,
			Role:     p.GlobalRole,
			GroupID:  p.GroupID,
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodDelete:
		if err := h.store.DeleteAccount(r.Context(), p.UserID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		h.clearSessionCookie(w, r)
		h.audit(r, nil, "account deleted", &p.Username)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) handlePassword(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req passwordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return
	}
	if len(req.NewPassword) < 4 {
		writeError(w, http.StatusBadRequest, "invalid_request", "new password must be at least 4 characters")
		return
	}
	if err := h.store.UpdatePassword(r.Context(), p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.writeFailure(w, r, err)
		return
	}
	h.audit(r, &p.UserID, "password changed", nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type contextRequest struct {
	GroupID int64 `json:"groupId"`
}

// handleContext reads or switches the caller's current group. Switching is
// the one place a session's stored group binding is rewritten.
func (h *Handler) handleContext(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	switch r.Method {
	case http.MethodGet:
		if p.GroupID == nil {
			writeJSON(w, http.StatusOK, map[string]any{"group": nil})
			return
		}
		group, err := h.store.GroupByID(r.Context(), *p.GroupID)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		role, err := h.gate.MembershipRole(r.Context(), p.UserID, group.ID)
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"group": group, "role": role})
	case http.MethodPost, http.MethodPut:
		var req contextRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
			return
		}
		if err := h.store.SwitchContext(r.Context(), p.UserID, req.GroupID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				h.writeFailure(w, r, auth.ErrNoGroup)
				return
			}
			h.writeFailure(w, r, err)
			return
		}
		if err := h.sessions.Bind(r.Context(), p.Session.Token, &req.GroupID); err != nil {
			h.writeFailure(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"groupId": req.GroupID})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
