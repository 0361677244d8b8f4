package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/types"
)

type flaky struct{ retry bool }

func (f flaky) Error() string   { return "flaky" }
func (f flaky) Transient() bool { return f.retry }

func TestIsTransient(t *testing.T) {
	cause := errors.New("boom")

	assert.True(t, IsTransient(Transient("place", cause)))
	assert.False(t, IsTransient(Terminal("place", cause)))
	assert.True(t, IsTransient(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.True(t, IsTransient(flaky{retry: true}))
	assert.False(t, IsTransient(flaky{retry: false}))
	assert.False(t, IsTransient(cause))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(context.Canceled))
}

func TestErrorIs(t *testing.T) {
	cause := errors.New("token expired")
	err := fmt.Errorf("login: %w", Terminal("login", cause))

	assert.ErrorIs(t, err, ErrTerminal)
	assert.NotErrorIs(t, err, ErrTransient)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "terminal")
}

func TestSessionKeeperRefreshesBeforeExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	var logins, refreshes int32

	k := NewSessionKeeper(
		func(ctx context.Context) (types.Session, error) {
			atomic.AddInt32(&logins, 1)
			return types.Session{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: now.Add(time.Hour)}, nil
		},
		func(ctx context.Context, cur types.Session) (types.Session, error) {
			atomic.AddInt32(&refreshes, 1)
			assert.Equal(t, "r1", cur.RefreshToken)
			return types.Session{AccessToken: "a2", RefreshToken: "r1", ExpiresAt: now.Add(2 * time.Hour)}, nil
		},
		5*time.Minute,
	)
	k.SetClock(func() time.Time { return now })

	s, err := k.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", s.AccessToken)

	s, err = k.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", s.AccessToken)
	assert.Equal(t, int32(1), logins)

	// inside the refresh margin
	now = now.Add(56 * time.Minute)
	s, err = k.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", s.AccessToken)
	assert.Equal(t, int32(1), refreshes)
}

func TestSessionKeeperFallsBackToLogin(t *testing.T) {
	ctx := context.Background()
	var logins int32
	k := NewSessionKeeper(
		func(ctx context.Context) (types.Session, error) {
			n := atomic.AddInt32(&logins, 1)
			return types.Session{AccessToken: fmt.Sprint("a", n), RefreshToken: "r", ExpiresAt: time.Now().Add(-time.Minute)}, nil
		},
		func(ctx context.Context, cur types.Session) (types.Session, error) {
			return types.Session{}, errors.New("refresh rejected")
		},
		0,
	)

	_, err := k.Ensure(ctx)
	require.NoError(t, err)
	s, err := k.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a2", s.AccessToken)

	k.Invalidate()
	s, err = k.Ensure(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a3", s.AccessToken)
}

func TestSessionKeeperSharesConcurrentLogin(t *testing.T) {
	ctx := context.Background()
	var logins int32
	k := NewSessionKeeper(func(ctx context.Context) (types.Session, error) {
		atomic.AddInt32(&logins, 1)
		time.Sleep(10 * time.Millisecond)
		return types.Session{AccessToken: "a", ExpiresAt: time.Now().Add(time.Hour)}, nil
	}, nil, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := k.Ensure(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), logins)
}

func TestSessionKeeperLoginError(t *testing.T) {
	k := NewSessionKeeper(func(ctx context.Context) (types.Session, error) {
		return types.Session{}, Terminal("login", errors.New("bad totp"))
	}, nil, 0)
	_, err := k.Ensure(context.Background())
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestAwaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	release := make(chan struct{})
	defer close(release)

	_, err := Await(ctx, func() (int, error) {
		<-release
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTransient(err))

	v, err := Await(context.Background(), func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
