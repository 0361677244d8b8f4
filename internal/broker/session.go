package broker

import (
	"context"
	"sync"
	"time"

	"signal-trader/internal/logger"
	"signal-trader/internal/types"
)

type (
	LoginFunc   func(ctx context.Context) (types.Session, error)
	RefreshFunc func(ctx context.Context, current types.Session) (types.Session, error)
)

// SessionKeeper hands out a session that is valid for at least margin,
// refreshing or logging in again when it is not. Concurrent callers share one refresh.
type SessionKeeper struct {
	mu      sync.Mutex
	session types.Session
	login   LoginFunc
	refresh RefreshFunc
	margin  time.Duration
	now     func() time.Time
}

func NewSessionKeeper(login LoginFunc, refresh RefreshFunc, margin time.Duration) *SessionKeeper {
	return &SessionKeeper{login: login, refresh: refresh, margin: margin, now: time.Now}
}

// SetClock overrides time.Now.
func (k *SessionKeeper) SetClock(now func() time.Time) {
	k.mu.Lock()
	k.now = now
	k.mu.Unlock()
}

// Login forces a fresh login.
func (k *SessionKeeper) Login(ctx context.Context) (types.Session, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	s, err := k.login(ctx)
	if err != nil {
		return types.Session{}, err
	}
	k.session = s
	return s, nil
}

// Ensure returns a session usable right now. It must run before every authenticated call.
func (k *SessionKeeper) Ensure(ctx context.Context) (types.Session, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.session.Valid(k.now(), k.margin) {
		return k.session, nil
	}

	if k.refresh != nil && k.session.RefreshToken != "" {
		s, err := k.refresh(ctx, k.session)
		if err == nil {
			logger.Info(ctx, "Broker session refreshed", "expires_at", s.ExpiresAt)
			k.session = s
			return s, nil
		}
		logger.Warn(ctx, "Session refresh failed, logging in again", "error", err)
	}

	s, err := k.login(ctx)
	if err != nil {
		return types.Session{}, err
	}
	logger.Info(ctx, "Broker session established", "expires_at", s.ExpiresAt)
	k.session = s
	return s, nil
}

// Invalidate drops the cached session so the next Ensure logs in again.
func (k *SessionKeeper) Invalidate() {
	k.mu.Lock()
	k.session = types.Session{}
	k.mu.Unlock()
}
