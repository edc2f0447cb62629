// Package identity reconciles the desired roles and seed accounts against the
// identity store.
package identity

import (
	"context"
	"time"
)

// Role is a named authorization group.
type Role struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// User is an account managed by the identity store.
type User struct {
	ID        int64
	Email     string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserSeed is one desired (email, password, role) triple.
type UserSeed struct {
	Email    string `yaml:"email" validate:"required,email"`
	Password string `yaml:"password" validate:"required"`
	Role     string `yaml:"role" validate:"required"`
}

// DesiredState is the full set of roles and users provisioning reconciles.
type DesiredState struct {
	Roles []string   `yaml:"roles" validate:"dive,required"`
	Users []UserSeed `yaml:"users" validate:"dive"`
}

// Report summarises the side effects of one provisioning pass.
type Report struct {
	RunID        string
	RolesCreated int
	UsersCreated int
	Associations int
}

// Store is the identity persistence boundary. Lookups return ErrNotFound
// when the record does not exist. CreateUser is responsible for hashing the
// password. AddUserToRole reports whether a new association was written and
// is a no-op when it already exists. Implementations must return once ctx is
// done; the per-call timeout cannot interrupt a store that ignores it.
type Store interface {
	FindRoleByName(ctx context.Context, name string) (*Role, error)
	CreateRole(ctx context.Context, name string) (*Role, error)
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	CreateUser(ctx context.Context, email, password string) (*User, error)
	AddUserToRole(ctx context.Context, user *User, roleName string) (bool, error)
}
