// Package accounts exposes read-only account lookups as registrable
// components. Implementations stay unexported and are reached through the
// registry container.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/ifarmer/ifarmer-api/internal/identity"
	"github.com/ifarmer/ifarmer-api/internal/registry"
)

// ModulePath identifies this package in registry manifests.
const ModulePath = "github.com/ifarmer/ifarmer-api/internal/accounts"

// ErrAccountNotFound is returned when no user matches the email.
var ErrAccountNotFound = errors.New("accounts: account not found")

// Account is a user together with its role names.
type Account struct {
	ID     int64    `json:"id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Active bool     `json:"active"`
	Roles  []string `json:"roles"`
}

// Reader is the query surface the components depend on. identity.PGStore
// satisfies it.
type Reader interface {
	FindUserByEmail(ctx context.Context, email string) (*identity.User, error)
	UserRoles(ctx context.Context, userID int64) ([]string, error)
	ListRoles(ctx context.Context) ([]string, error)
}

// AccountDirectory looks up accounts by email.
type AccountDirectory interface {
	Lookup(ctx context.Context, email string) (Account, error)
}

// RoleCatalog lists the provisioned roles.
type RoleCatalog interface {
	ListRoles(ctx context.Context) ([]string, error)
}

// Components returns the manifest of this package for registry discovery.
func Components(reader Reader) registry.Module {
	return registry.Module{
		Path: ModulePath,
		Contracts: []reflect.Type{
			registry.ContractOf[AccountDirectory](),
			registry.ContractOf[RoleCatalog](),
		},
		Candidates: []registry.Candidate{
			registry.Bind[AccountDirectory](func() (*accountDirectory, error) {
				return newAccountDirectory(reader)
			}),
			registry.Bind[RoleCatalog](func() (*roleCatalog, error) {
				return newRoleCatalog(reader)
			}),
		},
	}
}

type accountDirectory struct {
	reader Reader
}

func newAccountDirectory(reader Reader) (*accountDirectory, error) {
	if reader == nil {
		return nil, errors.New("accounts: nil reader")
	}
	return &accountDirectory{reader: reader}, nil
}

func (d *accountDirectory) Lookup(ctx context.Context, email string) (Account, error) {
	email = strings.TrimSpace(email)
	user, err := d.reader.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, email)
		}
		return Account{}, fmt.Errorf("accounts: find user: %w", err)
	}
	if user == nil {
		return Account{}, fmt.Errorf("accounts: find user %s: %w", email, identity.ErrNoUser)
	}
	roles, err := d.reader.UserRoles(ctx, user.ID)
	if err != nil {
		return Account{}, fmt.Errorf("accounts: user roles: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}
	return Account{
		ID:     user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Active: user.IsActive,
		Roles:  roles,
	}, nil
}

type roleCatalog struct {
	reader Reader
}

func newRoleCatalog(reader Reader) (*roleCatalog, error) {
	if reader == nil {
		return nil, errors.New("accounts: nil reader")
	}
	return &roleCatalog{reader: reader}, nil
}

func (c *roleCatalog) ListRoles(ctx context.Context) ([]string, error) {
	roles, err := c.reader.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounts: list roles: %w", err)
	}
	if roles == nil {
		roles = []string{}
	}
	return roles, nil
}
