package server

import (
	"net/http"

	"moodfm/core/auth"
	"moodfm/core/backend"
	"moodfm/logger"
	"moodfm/metrics"
	"moodfm/web"
)

// LoginHandler shows the login page (GET) or starts the Google redirect (POST).
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	if rc.Session.LoggedIn {
		http.Redirect(w, r, "/", http.StatusFound)
		return
	}
	if r.Method != http.MethodPost {
		h.render(w, http.StatusOK, web.PageLogin, pageData(rc))
		return
	}

	if !h.cfg.OAuthConfigured() {
		h.loginError(w, rc, http.StatusServiceUnavailable, "Google sign-in is not configured.")
		return
	}
	state, err := auth.GenerateState()
	if err != nil {
		logger.Error("[Auth] failed to generate state", logger.ErrorField(err))
		h.loginError(w, rc, http.StatusInternalServerError, "Google sign-in failed. Please try again.")
		return
	}
	loginURL, ok := h.identity.LoginURL(r.Context(), state)
	if !ok {
		h.loginError(w, rc, http.StatusServiceUnavailable, auth.UserMessage(auth.ErrProviderUnreachable))
		return
	}
	h.sessions.SetStateCookie(w, state)
	http.Redirect(w, r, loginURL, http.StatusFound)
}

// GoogleCallbackHandler finishes the login: code exchange, backend
// federation, session cookie.
func (h *APIHandler) GoogleCallbackHandler(w http.ResponseWriter, r *http.Request) {
	rc := FromContext(r.Context())
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		logger.Warn("[Auth] provider returned an error", logger.String("error", e))
		h.loginError(w, rc, http.StatusOK, "Google sign-in was cancelled or denied.")
		return
	}
	if !h.sessions.CheckState(w, r, q.Get("state")) {
		logger.Warn("[Auth] state mismatch on callback")
		h.loginError(w, rc, http.StatusBadRequest, "The sign-in request expired. Please try again.")
		return
	}

	identity, err := h.identity.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		logger.Warn("[Auth] code exchange failed", logger.ErrorField(err))
		h.loginError(w, rc, http.StatusOK, auth.UserMessage(err))
		return
	}

	log := logger.With(logger.String("user_id", identity.Subject))
	session := &auth.Session{
		LoggedIn:    true,
		UserID:      identity.Subject,
		UserName:    identity.GivenName,
		UserPicture: identity.Picture,
		UserEmail:   identity.Email,
	}
	session.AccessToken = h.federate(r, identity)

	if err := h.sessions.Save(w, session); err != nil {
		log.Error("[Auth] failed to save session", logger.ErrorField(err))
		h.loginError(w, rc, http.StatusInternalServerError, "Google sign-in failed. Please try again.")
		return
	}
	log.Info("[Auth] login succeeded",
		logger.Bool("backend_token", session.AccessToken != "" && !h.sessions.IsPlaceholderToken(session.AccessToken)))
	http.Redirect(w, r, "/", http.StatusFound)
}

// federate exchanges the identity for a backend token. Failure never fails
// the login: the session gets a placeholder token when that is enabled, and
// no token otherwise.
func (h *APIHandler) federate(r *http.Request, identity *auth.Identity) string {
	token, err := h.gateway.Federate(r.Context(), backend.FederationRequest{
		GoogleID: identity.Subject,
		Email:    identity.Email,
		Name:     identity.GivenName,
		Picture:  identity.Picture,
	})
	if err == nil {
		return token
	}
	h.metrics.IncFallback(metrics.OpFederation)
	logger.Warn("[Auth] backend federation failed", logger.String("user_id", identity.Subject), logger.ErrorField(err))

	if !h.cfg.AllowPlaceholderToken {
		return ""
	}
	placeholder, err := h.sessions.SignPlaceholderToken(identity)
	if err != nil {
		logger.Error("[Auth] failed to sign placeholder token", logger.ErrorField(err))
		return ""
	}
	return placeholder
}

// LogoutHandler clears the session.
func (h *APIHandler) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *APIHandler) loginError(w http.ResponseWriter, rc *RequestContext, status int, msg string) {
	data := pageData(rc)
	data.Error = msg
	h.render(w, status, web.PageLogin, data)
}
