package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"

	"github.com/ifarmer/ifarmer-api/internal/platform/db"
)

const uniqueViolation = "23505"

// PGStore implements Store on PostgreSQL.
type PGStore struct {
	pool       *pgxpool.Pool
	bcryptCost int
}

// NewPGStore constructs a PostgreSQL store. A zero cost uses bcrypt.DefaultCost.
func NewPGStore(pool *pgxpool.Pool, bcryptCost int) *PGStore {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &PGStore{pool: pool, bcryptCost: bcryptCost}
}

// FindRoleByName fetches a role by its exact name.
func (s *PGStore) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `SELECT id, name, created_at FROM roles WHERE name = $1`, name).
		Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &role, nil
}

// CreateRole inserts a role. An existing role yields ErrConflict.
func (s *PGStore) CreateRole(ctx context.Context, name string) (*Role, error) {
	var role Role
	err := s.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, created_at, updated_at)
		VALUES ($1, '', NOW(), NOW())
		ON CONFLICT (name) DO NOTHING
		RETURNING id, name, created_at`, name).
		Scan(&role.ID, &role.Name, &role.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &role, nil
}

// FindUserByEmail fetches a user by email.
func (s *PGStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, name, is_active, created_at, updated_at
		FROM users WHERE email = $1`, email).
		Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser hashes password and inserts an active user whose display name is
// the email address.
func (s *PGStore) CreateUser(ctx context.Context, email, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}
	var user User
	err = s.pool.QueryRow(ctx, `
		INSERT INTO users (email, name, password_hash, is_active, created_at, updated_at)
		VALUES ($1, $1, $2, TRUE, NOW(), NOW())
		RETURNING id, email, name, is_active, created_at, updated_at`, email, string(hash)).
		Scan(&user.ID, &user.Email, &user.Name, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, err
	}
	return &user, nil
}

// AddUserToRole links user to the named role. The role must exist.
func (s *PGStore) AddUserToRole(ctx context.Context, user *User, roleName string) (bool, error) {
	if user == nil {
		return false, ErrNoUser
	}
	var added bool
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		var roleID int64
		if err := tx.QueryRow(ctx, `SELECT id FROM roles WHERE name = $1`, roleName).Scan(&roleID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO user_roles (user_id, role_id, created_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (user_id, role_id) DO NOTHING`, user.ID, roleID)
		if err != nil {
			return err
		}
		added = tag.RowsAffected() == 1
		return nil
	})
	return added, err
}

// ListRoles returns all role names ordered by name.
func (s *PGStore) ListRoles(ctx context.Context) ([]string, error) {
	return s.names(ctx, `SELECT name FROM roles ORDER BY name`)
}

// UserRoles returns the role names associated with userID.
func (s *PGStore) UserRoles(ctx context.Context, userID int64) ([]string, error) {
	return s.names(ctx, `
		SELECT r.name FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		WHERE ur.user_id = $1
		ORDER BY r.name`, userID)
}

func (s *PGStore) names(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

var _ Store = (*PGStore)(nil)
