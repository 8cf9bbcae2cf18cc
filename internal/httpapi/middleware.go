package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const tenantOverrideKey contextKey = "tenant-override"

// TenantPathMiddleware recognizes /api/{groupID}/... paths, strips the
// group segment and records it as a per-request tenant override. The
// session's stored binding is untouched; the override lives only in the
// request context.
func TenantPathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rest, groupID, ok := splitTenantPath(r.URL.Path)
		if ok {
			r2 := r.Clone(context.WithValue(r.Context(), tenantOverrideKey, groupID))
			r2.URL.Path = rest
			r = r2
		}
		next.ServeHTTP(w, r)
	})
}

func splitTenantPath(path string) (rest string, groupID int64, ok bool) {
	const prefix = "/api/"
	if !strings.HasPrefix(path, prefix) {
		return "", 0, false
	}
	tail := path[len(prefix):]
	slash := strings.IndexByte(tail, '/')
	if slash <= 0 {
		return "", 0, false
	}
	id, err := strconv.ParseInt(tail[:slash], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return prefix + tail[slash+1:], id, true
}

func tenantOverride(ctx context.Context) *int64 {
	if id, ok := ctx.Value(tenantOverrideKey).(int64); ok {
		return &id
	}
	return nil
}

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware assigns every request an id, honoring one supplied
// by the caller, and echoes it in the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			writer := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(writer, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", writer.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", r.Header.Get(requestIDHeader)),
			)
		})
	}
}
