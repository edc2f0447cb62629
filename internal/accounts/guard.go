package accounts

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/ifarmer/ifarmer-api/internal/identity"
)

// ErrReaderUnavailable is returned while the read circuit is open.
var ErrReaderUnavailable = errors.New("accounts: reader unavailable")

// GuardOptions tunes the read circuit breaker.
type GuardOptions struct {
	// Failures is the number of consecutive failures that opens the circuit.
	Failures uint32
	// Cooldown is how long the circuit stays open before probing again.
	Cooldown time.Duration
	// Timeout bounds a shared read. It runs detached from the caller that
	// started it so other waiters are not cut short by that caller leaving.
	Timeout time.Duration
	Logger  *slog.Logger
}

// guardedReader coalesces identical concurrent reads and fails fast while
// the backing store is down. Not-found results do not count as failures.
type guardedReader struct {
	next    Reader
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	timeout time.Duration
}

// Guard wraps reader with request coalescing and a circuit breaker.
func Guard(reader Reader, opts GuardOptions) Reader {
	if opts.Failures == 0 {
		opts.Failures = 5
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	failures := opts.Failures
	return &guardedReader{
		next:    reader,
		timeout: opts.Timeout,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "accounts-reader",
			MaxRequests: 1,
			Timeout:     opts.Cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			},
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, identity.ErrNotFound) ||
					errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("circuit state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

func (g *guardedReader) FindUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	v, err := g.do(ctx, "user:"+email, func(ctx context.Context) (any, error) {
		return g.next.FindUserByEmail(ctx, email)
	})
	if err != nil {
		return nil, err
	}
	return v.(*identity.User), nil
}

func (g *guardedReader) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	v, err := g.do(ctx, "roles:"+strconv.FormatInt(userID, 10), func(ctx context.Context) (any, error) {
		return g.next.UserRoles(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (g *guardedReader) ListRoles(ctx context.Context) ([]string, error) {
	v, err := g.do(ctx, "catalog", func(ctx context.Context) (any, error) {
		return g.next.ListRoles(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// do joins or starts the shared read for key and waits for it or for ctx,
// whichever ends first.
func (g *guardedReader) do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := g.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		return g.breaker.Execute(func() (any, error) {
			return fn(callCtx)
		})
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if errors.Is(res.Err, gobreaker.ErrOpenState) || errors.Is(res.Err, gobreaker.ErrTooManyRequests) {
			return nil, ErrReaderUnavailable
		}
		return res.Val, res.Err
	}
}
