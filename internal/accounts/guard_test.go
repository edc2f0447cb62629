package accounts

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifarmer/ifarmer-api/internal/identity"
)

func TestGuardPassesThrough(t *testing.T) {
	reader := Guard(newFakeReader(), GuardOptions{})

	user, err := reader.FindUserByEmail(context.Background(), "admin@ifarmer.local")
	require.NoError(t, err)
	assert.Equal(t, int64(1), user.ID)

	roles, err := reader.UserRoles(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, roles)

	_, err = reader.FindUserByEmail(context.Background(), "ghost@ifarmer.local")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestGuardOpensAfterConsecutiveFailures(t *testing.T) {
	backing := newFakeReader()
	backing.err = errors.New("connection refused")
	reader := Guard(backing, GuardOptions{Failures: 2, Cooldown: time.Hour})

	for range 2 {
		_, err := reader.ListRoles(context.Background())
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrReaderUnavailable)
	}

	backing.err = nil
	_, err := reader.ListRoles(context.Background())
	assert.ErrorIs(t, err, ErrReaderUnavailable)
}

func TestGuardIgnoresNotFound(t *testing.T) {
	reader := Guard(newFakeReader(), GuardOptions{Failures: 1, Cooldown: time.Hour})

	for range 3 {
		_, err := reader.FindUserByEmail(context.Background(), "ghost@ifarmer.local")
		assert.ErrorIs(t, err, identity.ErrNotFound)
	}
	_, err := reader.ListRoles(context.Background())
	assert.NoError(t, err)
}

func TestHandlerOpenCircuitIsUnavailable(t *testing.T) {
	backing := newFakeReader()
	backing.err = errors.New("connection refused")
	reader := Guard(backing, GuardOptions{Failures: 1, Cooldown: time.Hour})
	_, _ = reader.ListRoles(context.Background())

	directory, err := newAccountDirectory(reader)
	require.NoError(t, err)
	_, err = directory.Lookup(context.Background(), "admin@ifarmer.local")
	assert.ErrorIs(t, err, ErrReaderUnavailable)
}

// blockingReader holds ListRoles open until released or its context ends.
type blockingReader struct {
	*fakeReader
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newBlockingReader() *blockingReader {
	return &blockingReader{
		fakeReader: newFakeReader(),
		started:    make(chan struct{}),
		release:    make(chan struct{}),
	}
}

func (b *blockingReader) ListRoles(ctx context.Context) ([]string, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
	}
	select {
	case <-b.release:
		return []string{"admin"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestGuardCanceledCallerDoesNotFailSharedRead(t *testing.T) {
	backing := newBlockingReader()
	reader := Guard(backing, GuardOptions{Failures: 1, Cooldown: time.Hour})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := reader.ListRoles(leaderCtx)
		leaderErr <- err
	}()
	<-backing.started

	type result struct {
		roles []string
		err   error
	}
	follower := make(chan result, 1)
	go func() {
		roles, err := reader.ListRoles(context.Background())
		follower <- result{roles, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	close(backing.release)
	got := <-follower
	require.NoError(t, got.err)
	assert.Equal(t, []string{"admin"}, got.roles)

	roles, err := reader.ListRoles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin"}, roles)
}

func TestGuardIgnoresCanceledReads(t *testing.T) {
	backing := newFakeReader()
	backing.err = context.Canceled
	reader := Guard(backing, GuardOptions{Failures: 1, Cooldown: time.Hour})

	for range 3 {
		_, err := reader.ListRoles(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
	}

	backing.err = nil
	_, err := reader.ListRoles(context.Background())
	assert.NoError(t, err)
}

func TestGuardBoundsSharedRead(t *testing.T) {
	backing := newBlockingReader()
	reader := Guard(backing, GuardOptions{Failures: 5, Timeout: 20 * time.Millisecond})

	_, err := reader.ListRoles(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
