package server

import (
	"context"
	"net/http"

	"moodfm/config"
	"moodfm/core/auth"
	"moodfm/logger"

	"github.com/gorilla/mux"
)

// RequestContext carries the caller's identity and the configuration to
// handlers for the duration of one request.
type RequestContext struct {
	Session *auth.Session
	Config  *config.Config
}

// Requester is the identity ownership checks use: the logged-in user id, or
// "" for a session-less request.
func (rc *RequestContext) Requester() string {
	if rc.Session.LoggedIn {
		return rc.Session.UserID
	}
	return ""
}

type contextKey string

const requestContextKey contextKey = "requestContext"

// FromContext returns the request context set by the session middleware, or
// an anonymous one.
func FromContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{Session: auth.Anonymous(), Config: &config.Config{}}
}

// SessionMiddleware decodes the session cookie into a RequestContext.
func (h *APIHandler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := h.sessions.Load(r)
		if err != nil {
			logger.Debug("[Session] ignoring invalid session cookie", logger.ErrorField(err))
			h.sessions.Clear(w)
		}
		rc := &RequestContext{Session: session, Config: h.cfg}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestContextKey, rc)))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range, Content-Disposition")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// routeName labels metrics with the route template instead of the raw path.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
