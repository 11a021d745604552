package homgar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/anicoll/homgar-integration/pkg/hasher"
)

const (
	loginPath = "/auth/basic/app/login"

	// a session closer than this to its expiry is renewed before use.
	renewMargin          = 60 * time.Minute
	defaultTokenLifetime = 24 * time.Hour
)

// SessionState is the persisted form of a session.
type SessionState struct {
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionStore loads and saves session state around the process lifetime.
type SessionStore interface {
	Load() (SessionState, error)
	Save(SessionState) error
}

type sessionManager struct {
	c *client

	mu       sync.Mutex
	username string
	password string
	state    SessionState
}

func newSessionManager(c *client) *sessionManager {
	s := &sessionManager{c: c}
	if c.store == nil {
		return s
	}
	state, err := c.store.Load()
	if err != nil {
		c.logger.Info("could not load session cache, starting fresh", zap.Error(err))
		return s
	}
	s.state = state
	return s
}

// valid reports whether the held session belongs to username and is not close to expiring.
func (s *sessionManager) valid(username string) bool {
	return s.state.Token != "" &&
		s.state.Email == username &&
		s.state.ExpiresAt.Sub(s.c.now()) >= renewMargin
}

// EnsureLoggedIn returns without a network call while the session is valid, otherwise it logs in.
// A rejected login is returned as ErrAuth and not retried.
func (c *client) EnsureLoggedIn(ctx context.Context, username, password string) error {
	s := c.session
	s.mu.Lock()
	defer s.mu.Unlock()

	s.username = username
	s.password = password
	if s.valid(username) {
		return nil
	}
	return s.login(ctx)
}

// ResetSession drops the current session so the next call logs in again.
func (c *client) ResetSession() {
	s := c.session
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = SessionState{}
	s.save()
}

func (s *sessionManager) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.username == "" {
		return "", fmt.Errorf("%w: no credentials, call EnsureLoggedIn first", ErrAuth)
	}
	if !s.valid(s.username) {
		if err := s.login(ctx); err != nil {
			return "", err
		}
	}
	return s.state.Token, nil
}

// relogin replaces the session after the vendor rejected it.
func (s *sessionManager) relogin(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = SessionState{}
	if err := s.login(ctx); err != nil {
		return "", err
	}
	return s.state.Token, nil
}

// login must be called with mu held.
func (s *sessionManager) login(ctx context.Context) error {
	deviceID, err := hasher.GenerateDeviceID()
	if err != nil {
		return err
	}

	s.c.logger.Debug("logging in", zap.String("email", s.username))
	res := loginResponse{}
	err = s.c.do(ctx, request{
		method: http.MethodPost,
		path:   loginPath,
		body: loginRequest{
			AreaCode:     s.c.areaCode,
			PhoneOrEmail: s.username,
			Password:     hasher.PasswordDigest(s.password),
			DeviceID:     deviceID,
		},
	}, "", &res)
	if err != nil {
		if isRejection(err) {
			return fmt.Errorf("%w: %w", ErrAuth, err)
		}
		return err
	}
	if res.Token == "" {
		return fmt.Errorf("%w: login answer carried no token", ErrAuth)
	}

	// replaced wholesale, never patched.
	s.state = SessionState{
		Email:     s.username,
		Token:     res.Token,
		ExpiresAt: s.expiry(res),
	}
	s.c.logger.Info("logged in", zap.String("email", s.username), zap.Time("expires_at", s.state.ExpiresAt))
	s.save()
	return nil
}

// expiry prefers the advertised lifetime, then the token's own exp claim.
func (s *sessionManager) expiry(res loginResponse) time.Time {
	now := s.c.now()
	if res.TokenExpired > 0 {
		return now.Add(time.Duration(res.TokenExpired) * time.Second)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(res.Token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return now.Add(defaultTokenLifetime)
}

func (s *sessionManager) save() {
	if s.c.store == nil {
		return
	}
	if err := s.c.store.Save(s.state); err != nil {
		s.c.logger.Warn("failed to save session cache", zap.Error(err))
	}
}

// isRejection reports whether a login failure came from the vendor refusing
// the credentials rather than from the transport.
func isRejection(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code != codeSuccess || apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}
