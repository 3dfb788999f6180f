package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	StateCookieName = "moodfm_oauth_state"
	stateLifetime   = 10 * time.Minute
)

// GenerateState returns a random OAuth state parameter.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SetStateCookie remembers state until the provider redirects back.
func (m *SessionManager) SetStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateLifetime.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// CheckState compares the callback's state with the cookie and clears it.
func (m *SessionManager) CheckState(w http.ResponseWriter, r *http.Request, state string) bool {
	cookie, err := r.Cookie(StateCookieName)
	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return err == nil && state != "" && cookie.Value == state
}

// PlaceholderClaims mark a token issued locally because the backend could
// not federate the identity. The backend does not accept these tokens.
type PlaceholderClaims struct {
	Email       string `json:"email,omitempty"`
	Placeholder bool   `json:"placeholder"`
	jwt.RegisteredClaims
}

// SignPlaceholderToken issues a placeholder access token for id.
func (m *SessionManager) SignPlaceholderToken(id *Identity) (string, error) {
	now := m.now()
	claims := PlaceholderClaims{
		Email:       id.Email,
		Placeholder: true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionLifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign placeholder token: %w", err)
	}
	return signed, nil
}

// IsPlaceholderToken reports whether token was issued by SignPlaceholderToken.
func (m *SessionManager) IsPlaceholderToken(token string) bool {
	var claims PlaceholderClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	return err == nil && claims.Placeholder
}
