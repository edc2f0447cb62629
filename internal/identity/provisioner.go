package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ifarmer/ifarmer-api/internal/observability"
)

const (
	defaultCallTimeout = 5 * time.Second
	defaultAttempts    = 3
	defaultBackoff     = 100 * time.Millisecond
)

// Locker serialises provisioning across processes.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Options tunes store call behaviour.
type Options struct {
	// CallTimeout bounds every single store call.
	CallTimeout time.Duration
	// Attempts is the number of tries for transient store failures.
	Attempts int
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
	Lock    Locker
	Metrics *observability.Metrics
}

// Provisioner reconciles the desired roles and users against a Store.
// Calls are issued one at a time and the first failure aborts the pass.
type Provisioner struct {
	store    Store
	logger   *slog.Logger
	timeout  time.Duration
	attempts int
	backoff  time.Duration
	lock     Locker
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewProvisioner constructs a Provisioner. Zero options fall back to defaults.
func NewProvisioner(store Store, logger *slog.Logger, opts Options) *Provisioner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Attempts <= 0 {
		opts.Attempts = defaultAttempts
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	return &Provisioner{
		store:    store,
		logger:   logger,
		timeout:  opts.CallTimeout,
		attempts: opts.Attempts,
		backoff:  opts.Backoff,
		lock:     opts.Lock,
		metrics:  opts.Metrics,
		validate: validator.New(),
	}
}

// Provision ensures every desired role exists, then every desired user with
// its role association. Re-running with the same state has no further effect.
func (p *Provisioner) Provision(ctx context.Context, state DesiredState) (Report, error) {
	report := Report{RunID: uuid.NewString()}
	if err := p.validate.Struct(state); err != nil {
		return report, fmt.Errorf("identity: invalid desired state: %w", err)
	}
	logger := p.logger.With(slog.String("run_id", report.RunID))

	if p.lock != nil {
		release, err := p.lock.Acquire(ctx)
		if err != nil {
			return report, fmt.Errorf("identity: acquire provisioning lock: %w", err)
		}
		defer release()
	}

	for _, name := range uniqueRoles(state.Roles) {
		created, err := p.ensureRole(ctx, name)
		if err != nil {
			return report, err
		}
		if created {
			report.RolesCreated++
		}
	}
	for _, seed := range state.Users {
		created, associated, err := p.ensureUserInRole(ctx, seed.Email, seed.Password, seed.Role)
		if err != nil {
			return report, err
		}
		if created {
			report.UsersCreated++
		}
		if associated {
			report.Associations++
		}
	}

	logger.Info("identity provisioned",
		slog.Int("roles", len(state.Roles)),
		slog.Int("users", len(state.Users)),
		slog.Int("roles_created", report.RolesCreated),
		slog.Int("users_created", report.UsersCreated),
		slog.Int("associations", report.Associations))
	return report, nil
}

// EnsureRole creates the role when it does not exist.
func (p *Provisioner) EnsureRole(ctx context.Context, name string) error {
	_, err := p.ensureRole(ctx, name)
	return err
}

// EnsureUserInRole creates the user when missing and associates it with an
// existing role. The role must have been ensured first.
func (p *Provisioner) EnsureUserInRole(ctx context.Context, email, password, roleName string) error {
	_, _, err := p.ensureUserInRole(ctx, email, password, roleName)
	return err
}

func (p *Provisioner) ensureRole(ctx context.Context, name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, p.roleErr(name, "validate", errors.New("role name required"))
	}

	var role *Role
	err := p.call(ctx, "find role", name, func(ctx context.Context) error {
		var err error
		role, err = p.store.FindRoleByName(ctx, name)
		return err
	})
	if err == nil && role != nil {
		p.metrics.ObserveProvisioning("role", "existing")
		return false, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, p.roleErr(name, "find", err)
	}

	err = p.call(ctx, "create role", name, func(ctx context.Context) error {
		_, err := p.store.CreateRole(ctx, name)
		return err
	})
	if errors.Is(err, ErrConflict) {
		p.metrics.ObserveProvisioning("role", "existing")
		return false, nil
	}
	if err != nil {
		return false, p.roleErr(name, "create", err)
	}
	p.metrics.ObserveProvisioning("role", "created")
	p.logger.Info("role created", slog.String("role", name))
	return true, nil
}

func (p *Provisioner) ensureUserInRole(ctx context.Context, email, password, roleName string) (created, associated bool, err error) {
	email = strings.TrimSpace(email)
	roleName = strings.TrimSpace(roleName)
	if email == "" || roleName == "" {
		return false, false, p.userErr(email, roleName, "validate", errors.New("email and role required"))
	}

	var role *Role
	err = p.call(ctx, "find role", roleName, func(ctx context.Context) error {
		var err error
		role, err = p.store.FindRoleByName(ctx, roleName)
		return err
	})
	if errors.Is(err, ErrNotFound) || (err == nil && role == nil) {
		return false, false, p.userErr(email, roleName, "resolve role", ErrRoleNotProvisioned)
	}
	if err != nil {
		return false, false, p.roleErr(roleName, "find", err)
	}

	user, err := p.findUser(ctx, email)
	if errors.Is(err, ErrNotFound) {
		user, err = p.createUser(ctx, email, password, roleName)
		if err != nil {
			return false, false, err
		}
		created = true
	} else if err != nil {
		return false, false, p.userErr(email, roleName, "find", err)
	}

	err = p.call(ctx, "add user to role", email, func(ctx context.Context) error {
		var err error
		associated, err = p.store.AddUserToRole(ctx, user, roleName)
		return err
	})
	if err != nil {
		p.metrics.ObserveProvisioning("association", "failed")
		return created, false, p.userErr(email, roleName, "associate", err)
	}
	if associated {
		p.metrics.ObserveProvisioning("association", "created")
		p.logger.Info("user added to role", slog.String("email", email), slog.String("role", roleName))
	} else {
		p.metrics.ObserveProvisioning("association", "existing")
	}
	return created, associated, nil
}

func (p *Provisioner) findUser(ctx context.Context, email string) (*User, error) {
	var user *User
	err := p.call(ctx, "find user", email, func(ctx context.Context) error {
		var err error
		user, err = p.store.FindUserByEmail(ctx, email)
		return err
	})
	if err == nil && user == nil {
		return nil, ErrNotFound
	}
	return user, err
}

func (p *Provisioner) createUser(ctx context.Context, email, password, roleName string) (*User, error) {
	var user *User
	err := p.call(ctx, "create user", email, func(ctx context.Context) error {
		var err error
		user, err = p.store.CreateUser(ctx, email, password)
		return err
	})
	if errors.Is(err, ErrConflict) {
		// Created concurrently by another process.
		user, err = p.findUser(ctx, email)
		if err != nil {
			return nil, p.userErr(email, roleName, "find", err)
		}
		p.metrics.ObserveProvisioning("user", "existing")
		return user, nil
	}
	if err != nil {
		p.metrics.ObserveProvisioning("user", "failed")
		return nil, p.userErr(email, roleName, "create", err)
	}
	if user == nil {
		p.metrics.ObserveProvisioning("user", "failed")
		return nil, p.userErr(email, roleName, "create", ErrNoUser)
	}
	p.metrics.ObserveProvisioning("user", "created")
	p.logger.Info("user created", slog.String("email", email))
	return user, nil
}

// call runs fn under the per-call timeout, retrying transient failures with
// exponential backoff. A timeout reports the bound actually in force, which
// is shorter than the per-call timeout when ctx expires first.
func (p *Provisioner) call(ctx context.Context, op, subject string, fn func(context.Context) error) error {
	delay := p.backoff
	for attempt := 1; ; attempt++ {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		budget := p.timeout
		if deadline, ok := callCtx.Deadline(); ok {
			budget = min(budget, max(deadline.Sub(start), 0))
		}
		err := fn(callCtx)
		expired := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return fmt.Errorf("identity: %s %q: %w", op, subject, ctx.Err())
		}
		if expired || errors.Is(err, context.DeadlineExceeded) {
			p.metrics.ObserveProvisioning("store", "timeout")
			return &ProvisioningTimeoutError{Op: op, Subject: subject, Timeout: budget}
		}
		if attempt >= p.attempts || !retryable(err) {
			return err
		}
		p.logger.Warn("identity store call failed, retrying",
			slog.String("op", op),
			slog.String("subject", subject),
			slog.Int("attempt", attempt),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return fmt.Errorf("identity: %s %q: %w", op, subject, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func retryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || pgconn.SafeToRetry(err)
}

func (p *Provisioner) roleErr(role, op string, err error) error {
	var timeout *ProvisioningTimeoutError
	if errors.As(err, &timeout) {
		return err
	}
	p.metrics.ObserveProvisioning("role", "failed")
	return &RoleStoreError{Role: role, Op: op, Err: err}
}

func (p *Provisioner) userErr(email, role, op string, err error) error {
	var timeout *ProvisioningTimeoutError
	if errors.As(err, &timeout) {
		return err
	}
	return &UserProvisioningError{Email: email, Role: role, Op: op, Err: err}
}

func uniqueRoles(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
