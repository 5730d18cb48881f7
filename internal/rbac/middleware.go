package rbac

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// DefaultCallerHeader carries the authenticated caller id set by the fronting proxy.
const DefaultCallerHeader = "X-Account-Id"

type callerContextKey struct{}

// ContextWithCaller stores the caller identity in context.
func ContextWithCaller(ctx context.Context, caller AccountID) context.Context {
	return context.WithValue(ctx, callerContextKey{}, caller)
}

// CallerFromContext extracts the caller identity from context.
func CallerFromContext(ctx context.Context) (AccountID, bool) {
	caller, ok := ctx.Value(callerContextKey{}).(AccountID)
	return caller, ok && caller != ""
}

// Middleware wires caller identity into HTTP requests.
type Middleware struct {
	Header string
	Logger *slog.Logger
}

// Caller copies the caller header into the request context. Requests without the
// header pass through anonymously; handlers decide whether a caller is required.
func (m Middleware) Caller(next http.Handler) http.Handler {
	header := m.Header
	if header == "" {
		header = DefaultCallerHeader
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get(header))
		if raw == "" {
			next.ServeHTTP(w, r)
			return
		}
		if strings.ContainsAny(raw, " \t,") {
			if m.Logger != nil {
				m.Logger.Warn("rbac reject caller header", slog.String("value", raw))
			}
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), AccountID(raw))))
	})
}
