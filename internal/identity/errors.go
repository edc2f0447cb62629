package identity

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	// ErrNotFound indicates the store has no matching record.
	ErrNotFound = errors.New("identity: not found")
	// ErrConflict indicates a uniqueness violation in the store.
	ErrConflict = errors.New("identity: conflict")
	// ErrUnavailable marks a transient store failure worth retrying.
	ErrUnavailable = errors.New("identity: store unavailable")

	// ErrRoleStore is the sentinel behind RoleStoreError.
	ErrRoleStore = errors.New("identity: role store failure")
	// ErrUserProvisioning is the sentinel behind UserProvisioningError.
	ErrUserProvisioning = errors.New("identity: user provisioning failure")
	// ErrProvisioningTimeout is the sentinel behind ProvisioningTimeoutError.
	ErrProvisioningTimeout = errors.New("identity: provisioning timeout")

	// ErrRoleNotProvisioned indicates a user was requested for a role that does not exist yet.
	ErrRoleNotProvisioned = errors.New("role not provisioned")
	// ErrNoUser indicates the store returned neither a user nor an error.
	ErrNoUser = errors.New("store returned no user")
)

// RoleStoreError reports a failed role lookup or creation.
type RoleStoreError struct {
	Role string
	Op   string
	Err  error
}

func (e *RoleStoreError) Error() string {
	return fmt.Sprintf("identity: %s role %q: %v", e.Op, e.Role, e.Err)
}

func (e *RoleStoreError) Unwrap() []error {
	return []error{ErrRoleStore, e.Err}
}

// UserProvisioningError reports a failed user lookup, creation or role association.
type UserProvisioningError struct {
	Email string
	Role  string
	Op    string
	Err   error
}

func (e *UserProvisioningError) Error() string {
	return fmt.Sprintf("identity: %s user %q in role %q: %v", e.Op, e.Email, e.Role, e.Err)
}

func (e *UserProvisioningError) Unwrap() []error {
	return []error{ErrUserProvisioning, e.Err}
}

// ProvisioningTimeoutError reports a store call that exceeded its deadline.
type ProvisioningTimeoutError struct {
	Op      string
	Subject string
	Timeout time.Duration
}

func (e *ProvisioningTimeoutError) Error() string {
	return fmt.Sprintf("identity: %s %q exceeded %s", e.Op, e.Subject, e.Timeout)
}

func (e *ProvisioningTimeoutError) Unwrap() error {
	return ErrProvisioningTimeout
}

// Diagnostic returns log attributes naming the role, user and operation that
// caused err. Unknown errors yield only the error attribute.
func Diagnostic(err error) []any {
	attrs := []any{slog.Any("error", err)}
	var timeout *ProvisioningTimeoutError
	var roleErr *RoleStoreError
	var userErr *UserProvisioningError
	switch {
	case errors.As(err, &timeout):
		attrs = append(attrs, slog.String("kind", "timeout"), slog.String("op", timeout.Op),
			slog.String("subject", timeout.Subject), slog.Duration("timeout", timeout.Timeout))
	case errors.As(err, &roleErr):
		attrs = append(attrs, slog.String("kind", "role_store"), slog.String("op", roleErr.Op),
			slog.String("role", roleErr.Role))
	case errors.As(err, &userErr):
		attrs = append(attrs, slog.String("kind", "user_provisioning"), slog.String("op", userErr.Op),
			slog.String("email", userErr.Email), slog.String("role", userErr.Role))
	}
	return attrs
}
