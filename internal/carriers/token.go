package carriers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	defaultTokenLifetime = time.Hour
	defaultTokenBuffer   = 300 * time.Second
)

// LoginFunc performs a partner login and returns the bearer token
type LoginFunc func(ctx context.Context) (string, error)

// TokenManager caches one partner bearer token and refreshes it before expiry.
// Concurrent callers that find the token stale share a single login.
type TokenManager struct {
	login    LoginFunc
	lifetime time.Duration
	buffer   time.Duration
	now      func() time.Time
	logger   *logrus.Entry

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
}

// NewTokenManager creates a token manager around a login function
func NewTokenManager(login LoginFunc, lifetime, buffer time.Duration, logger *logrus.Entry) *TokenManager {
	if lifetime <= 0 {
		lifetime = defaultTokenLifetime
	}
	if buffer < 0 {
		buffer = defaultTokenBuffer
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TokenManager{
		login:    login,
		lifetime: lifetime,
		buffer:   buffer,
		now:      time.Now,
		logger:   logger,
	}
}

// Token returns a valid bearer token, logging in when the cached one is
// missing or inside the refresh buffer. Failures clear the cache and wrap ErrNoToken.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	if token, ok := m.cached(); ok {
		return token, nil
	}

	// The login outlives any single caller's cancellation since its result is shared.
	loginCtx := context.WithoutCancel(ctx)
	v, err, shared := m.group.Do("login", func() (interface{}, error) {
		if token, ok := m.cached(); ok {
			return token, nil
		}

		token, err := m.login(loginCtx)
		if err == nil && token == "" {
			err = errors.New("login response carried no token")
		}
		if err != nil {
			m.clear()
			return "", err
		}

		m.mu.Lock()
		m.token = token
		m.expiresAt = m.now().Add(m.lifetime)
		expiresAt := m.expiresAt
		m.mu.Unlock()

		m.logger.WithField("expires_at", expiresAt.Format(time.RFC3339)).Info("Courier token refreshed")
		return token, nil
	})
	if err != nil {
		m.logger.WithError(err).WithField("shared", shared).Warn("Courier login failed")
		return "", fmt.Errorf("%w: %w", ErrNoToken, err)
	}
	return v.(string), nil
}

// Invalidate drops the cached token so the next call logs in again.
// When stale is non-empty the cache is only cleared if it still holds that
// token, so a report about an old token cannot evict a fresh one.
func (m *TokenManager) Invalidate(stale string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if stale != "" && stale != m.token {
		return
	}
	m.token = ""
	m.expiresAt = time.Time{}
	m.logger.Info("Courier token invalidated")
}

// ExpiresAt returns the expiry of the cached token, zero when none is cached
func (m *TokenManager) ExpiresAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiresAt
}

func (m *TokenManager) cached() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == "" {
		return "", false
	}
	if !m.now().Before(m.expiresAt.Add(-m.buffer)) {
		return "", false
	}
	return m.token, true
}

func (m *TokenManager) clear() {
	m.mu.Lock()
	m.token = ""
	m.expiresAt = time.Time{}
	m.mu.Unlock()
}
