// Package session encodes the logged-in user into a signed cookie.
package session

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/inkwell-blog/inkwell/config"
)

const (
	defaultCookieName  = "inkwell_session"
	defaultTTL         = 24 * time.Hour
	defaultRememberTTL = 365 * 24 * time.Hour
)

// ErrNoSession is returned when the request carries no session cookie.
var ErrNoSession = errors.New("no session")

// Manager issues, reads and clears session cookies.
type Manager struct {
	secret      []byte
	cookieName  string
	ttl         time.Duration
	rememberTTL time.Duration
	secure      bool
	now         func() time.Time
}

// NewManager constructs a Manager from config, filling unset durations
// with defaults.
func NewManager(cfg config.SessionConfig) (*Manager, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("session secret is required")
	}
	m := &Manager{
		secret:      []byte(cfg.Secret),
		cookieName:  cfg.CookieName,
		ttl:         cfg.TTL,
		rememberTTL: cfg.RememberTTL,
		secure:      cfg.Secure,
		now:         time.Now,
	}
	if m.cookieName == "" {
		m.cookieName = defaultCookieName
	}
	if m.ttl <= 0 {
		m.ttl = defaultTTL
	}
	if m.rememberTTL <= 0 {
		m.rememberTTL = defaultRememberTTL
	}
	return m, nil
}

// Issue writes a session cookie for userID. Without remember the cookie
// lives until the browser closes and the token expires after the session
// TTL; with remember both last for the remember TTL.
func (m *Manager) Issue(w http.ResponseWriter, userID int, remember bool) error {
	ttl := m.ttl
	if remember {
		ttl = m.rememberTTL
	}

	token, err := m.issueToken(userID, ttl)
	if err != nil {
		return err
	}

	cookie := m.baseCookie()
	cookie.Value = token
	if remember {
		cookie.MaxAge = int(ttl / time.Second)
		cookie.Expires = m.now().Add(ttl)
	}
	http.SetCookie(w, cookie)
	return nil
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter) {
	cookie := m.baseCookie()
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

// UserID returns the user id stored in the request's session cookie.
func (m *Manager) UserID(r *http.Request) (int, error) {
	cookie, err := r.Cookie(m.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return 0, ErrNoSession
	}

	subject, err := m.parseTokenSubject(cookie.Value)
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(subject)
	if err != nil || id < 1 {
		return 0, errors.New("invalid subject")
	}
	return id, nil
}

// CookieName returns the name of the session cookie.
func (m *Manager) CookieName() string {
	return m.cookieName
}

func (m *Manager) baseCookie() *http.Cookie {
	return &http.Cookie{
		Name:     m.cookieName,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (m *Manager) issueToken(userID int, ttl time.Duration) (string, error) {
	now := m.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *Manager) parseTokenSubject(tokenString string) (string, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}
