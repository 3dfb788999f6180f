package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	SessionCookieName = "moodfm_session"
	SessionLifetime   = 7 * 24 * time.Hour
)

// Session is the per-browser login state carried in the session cookie.
type Session struct {
	LoggedIn    bool   `json:"logged_in"`
	UserID      string `json:"user_id,omitempty"`
	UserName    string `json:"user_name,omitempty"`
	UserPicture string `json:"user_picture,omitempty"`
	UserEmail   string `json:"user_email,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
}

// Anonymous returns the session of a visitor who is not logged in.
func Anonymous() *Session {
	return &Session{}
}

// Owner is the user id new records are attributed to.
func (s *Session) Owner() string {
	if s == nil || s.UserID == "" {
		return "anonymous"
	}
	return s.UserID
}

// HasToken reports whether backend calls can be authenticated.
func (s *Session) HasToken() bool {
	return s != nil && s.AccessToken != ""
}

type sessionClaims struct {
	Session
	jwt.RegisteredClaims
}

// SessionManager signs sessions into an HS256 JWT cookie.
type SessionManager struct {
	key    []byte
	secure bool
	now    func() time.Time
}

// NewSessionManager creates a manager signing with secret. An empty secret
// gets a random key, so sessions do not survive a restart.
func NewSessionManager(secret string, secure bool) (*SessionManager, error) {
	key := []byte(secret)
	if secret == "" {
		key = make([]byte, 32)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
	}
	return &SessionManager{key: key, secure: secure, now: time.Now}, nil
}

// Encode signs s.
func (m *SessionManager) Encode(s *Session) (string, error) {
	now := m.now()
	claims := sessionClaims{
		Session: *s,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionLifetime)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and expiry of token.
func (m *SessionManager) Decode(token string) (*Session, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return m.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, fmt.Errorf("invalid session: %w", err)
	}
	s := claims.Session
	return &s, nil
}

// Load returns the request's session. A missing, tampered or expired cookie
// yields an anonymous session and a nil error for a missing cookie.
func (m *SessionManager) Load(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return Anonymous(), nil
		}
		return Anonymous(), err
	}
	s, err := m.Decode(cookie.Value)
	if err != nil {
		return Anonymous(), err
	}
	return s, nil
}

// Save writes s as the session cookie.
func (m *SessionManager) Save(w http.ResponseWriter, s *Session) error {
	signed, err := m.Encode(s)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    signed,
		Path:     "/",
		MaxAge:   int(SessionLifetime.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear removes the session cookie (logout).
func (m *SessionManager) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
