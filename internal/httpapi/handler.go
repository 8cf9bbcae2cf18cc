// Package httpapi exposes the REST surface. Handlers stay thin: they decode,
// authenticate through the resolver, authorize through the gate, call the
// store and encode. No SQL and no role arithmetic lives here.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ebrangerieau/BandtrackPlus/internal/auth"
	"github.com/ebrangerieau/BandtrackPlus/internal/db"
	"github.com/ebrangerieau/BandtrackPlus/internal/models"
	"github.com/ebrangerieau/BandtrackPlus/internal/store"

	"go.uber.org/zap"
)

type Handler struct {
	store       *store.Store
	sessions    *auth.Sessions
	resolver    *auth.Resolver
	gate        *auth.Gate
	logger      *zap.Logger
	forceSecure bool
}

type errorResponse struct {
	Error responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(st *store.Store, sessions *auth.Sessions, resolver *auth.Resolver, gate *auth.Gate, logger *zap.Logger, forceSecure bool) *Handler {
	return &Handler{
		store:       st,
		sessions:    sessions,
		resolver:    resolver,
		gate:        gate,
		logger:      logger,
		forceSecure: forceSecure,
	}
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", h.handleRegister)
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/logout", h.handleLogout)
	mux.HandleFunc("/api/me", h.withAuth(h.handleMe))
	mux.HandleFunc("/api/password", h.withAuth(h.handlePassword))
	mux.HandleFunc("/api/context", h.withAuth(h.handleContext))
	mux.HandleFunc("/api/groups", h.withAuth(h.handleGroups))
	mux.HandleFunc("/api/groups/join", h.withAuth(h.handleJoinGroup))
	mux.HandleFunc("/api/groups/renew-code", h.withAuth(h.handleRenewCode))
	mux.HandleFunc("/api/groups/", h.withAuth(h.handleGroupByID))
	mux.HandleFunc("/api/suggestions", h.withAuth(h.handleSuggestions))
	mux.HandleFunc("/api/suggestions/", h.withAuth(h.handleSuggestionByID))
	mux.HandleFunc("/api/rehearsals", h.withAuth(h.handleRehearsals))
	mux.HandleFunc("/api/rehearsals/", h.withAuth(h.handleRehearsalByID))
	mux.HandleFunc("/api/performances", h.withAuth(h.handlePerformances))
	mux.HandleFunc("/api/performances/", h.withAuth(h.handlePerformanceByID))
	mux.HandleFunc("/api/users", h.withAuth(h.handleUsers))
	mux.HandleFunc("/api/users/", h.withAuth(h.handleUserByID))
	mux.HandleFunc("/api/settings", h.withAuth(h.handleSettings))
	mux.HandleFunc("/api/logs", h.withAuth(h.handleLogs))
	mux.HandleFunc("/healthz", h.handleHealthz)
	return TenantPathMiddleware(mux)
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withAuth resolves the session cookie into a Principal, refreshes the
// cookie's sliding expiry, and hands the principal to the wrapped handler.
func (h *Handler) withAuth(fn func(http.ResponseWriter, *http.Request, auth.Principal)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		p, err := h.resolver.Resolve(r.Context(), cookie.Value, tenantOverride(r.Context()))
		if errors.Is(err, auth.ErrUnauthenticated) {
			h.clearSessionCookie(w, r)
			writeError(w, http.StatusUnauthorized, "unauthorized", "session expired or invalid")
			return
		}
		if err != nil {
			h.writeFailure(w, r, err)
			return
		}
		h.setSessionCookie(w, r, cookie.Value)
		fn(w, r, p)
	}
}

// requireEditor admits a resource's creator; anyone else needs at least
// moderator in the group.
func (h *Handler) requireEditor(r *http.Request, p auth.Principal, groupID, creatorID int64) error {
	if creatorID == p.UserID {
		return nil
	}
	_, err := h.gate.RequireRole(r.Context(), p, groupID, models.RoleModerator)
	return err
}

// requireGlobalAdmin gates installation-wide surfaces on the account's
// global role rather than any group membership.
func requireGlobalAdmin(p auth.Principal) error {
	if p.GlobalRole != models.RoleAdmin {
		return auth.ErrInsufficientRole
	}
	return nil
}

// writeFailure maps domain errors to the wire contract. Anything it does
// not recognize is an internal error, logged with the request path.
func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, store.ErrInvalidCode):
		writeError(w, http.StatusNotFound, "not_found", "unknown invitation code")
	case errors.Is(err, store.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "conflict", "username already taken")
	case errors.Is(err, store.ErrAlreadyMember):
		writeError(w, http.StatusConflict, "conflict", "already a member of this group")
	case errors.Is(err, store.ErrOwnsGroups):
		writeError(w, http.StatusConflict, "conflict", "account still owns groups")
	case errors.Is(err, store.ErrLastAdmin):
		writeError(w, http.StatusForbidden, "forbidden", "group must keep at least one admin")
	case errors.Is(err, store.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
	case errors.Is(err, auth.ErrNoGroup):
		writeError(w, http.StatusForbidden, "no_group", "no active group membership")
	case errors.Is(err, auth.ErrInsufficientRole):
		writeError(w, http.StatusForbidden, "forbidden", "insufficient role")
	case db.IsUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "storage temporarily unavailable")
	case db.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", "conflicting write")
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

// audit appends to the action log without ever failing the request.
func (h *Handler) audit(r *http.Request, userID *int64, action string, metadata *string) {
	if err := h.store.LogEvent(r.Context(), userID, action, metadata); err != nil {
		h.logger.Warn("audit write failed", zap.String("action", action), zap.Error(err))
	}
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: responseError{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
