package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_storefront/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	SessionCookie     = "sf_session"
	defaultSessionTTL = 7 * 24 * time.Hour
)

type sessionKey struct{}

// Claims is the payload of a session token. Guest tokens only carry the
// session id.
type Claims struct {
	SessionID string `json:"sid"`
	UserID    string `json:"uid,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

type SessionOption func(*Sessions)

func WithSessionTTL(d time.Duration) SessionOption {
	return func(s *Sessions) { s.ttl = d }
}

// WithSecureCookie marks the session cookie Secure.
func WithSecureCookie(secure bool) SessionOption {
	return func(s *Sessions) { s.secure = secure }
}

func WithSessionLogger(l *zap.Logger) SessionOption {
	return func(s *Sessions) { s.logger = l }
}

// Sessions signs and verifies HS256 session tokens.
type Sessions struct {
	secret []byte
	ttl    time.Duration
	secure bool
	logger *zap.Logger
	now    func() time.Time
}

func NewSessions(secret string, opts ...SessionOption) *Sessions {
	s := &Sessions{
		secret: []byte(secret),
		ttl:    defaultSessionTTL,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Middleware puts the caller's session in the request context. Requests
// without a valid token get a fresh guest session and a cookie for it.
func (s *Sessions) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := s.fromRequest(r)
		if err != nil {
			session = domain.Session{ID: uuid.NewString()}
			if _, err := s.Issue(w, session); err != nil {
				s.logger.Error("failed to issue guest session", zap.Error(err))
				respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
				return
			}
		}
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), session)))
	})
}

// Issue signs a token for session and sets it as the session cookie.
func (s *Sessions) Issue(w http.ResponseWriter, session domain.Session) (string, error) {
	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		SessionID: session.ID,
		UserID:    session.UserID,
		Name:      session.Name,
		Email:     session.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   session.UserIdentity(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// Parse verifies token and returns the session it carries.
func (s *Sessions) Parse(token string) (domain.Session, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Session{}, err
	}
	if claims.SessionID == "" {
		return domain.Session{}, errors.New("session token without session id")
	}
	return domain.Session{
		ID:     claims.SessionID,
		UserID: claims.UserID,
		Name:   claims.Name,
		Email:  claims.Email,
	}, nil
}

func (s *Sessions) fromRequest(r *http.Request) (domain.Session, error) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return s.Parse(strings.TrimPrefix(auth, "Bearer "))
	}
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return domain.Session{}, err
	}
	return s.Parse(c.Value)
}

func withSession(ctx context.Context, s domain.Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session set by Sessions.Middleware.
func SessionFromContext(ctx context.Context) (domain.Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(domain.Session)
	return s, ok
}
