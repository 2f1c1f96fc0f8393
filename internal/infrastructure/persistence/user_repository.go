package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/pkg/errors"
)

// UserRepository resolves back-office users at login. Role grants are
// stored denormalized on the user row; richer identity administration
// lives outside this system.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByEmail returns the session view of an active user plus the stored
// password hash for credential verification
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.UserSession, string, error) {
	query := `
		SELECT id, name, email, password_hash, roles
		FROM wf_user
		WHERE email = ? AND is_active = 1
	`

	var session models.UserSession
	var userEmail, passwordHash string
	var roles []byte

	err := r.db.QueryRowContext(ctx, query, email).Scan(
		&session.ID, &session.Name, &userEmail, &passwordHash, &roles)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, "", errors.NewNotFoundError("user", email)
		}
		return nil, "", err
	}

	session.Email = &userEmail
	if session.Roles, err = unmarshalStringList(roles); err != nil {
		return nil, "", err
	}
	return &session, passwordHash, nil
}

// Insert creates a user row; used by bootstrap seeding
func (r *UserRepository) Insert(ctx context.Context, id, name, email, passwordHash string, roleIDs []string) error {
	roles, err := marshalJSONColumn(roleIDs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO wf_user (id, name, email, password_hash, roles, is_active, created_date)
		VALUES (?, ?, ?, ?, ?, 1, NOW())
	`
	if _, err := r.db.ExecContext(ctx, query, id, name, email, passwordHash, roles); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// ExistsByEmail reports whether a user with the email already exists
func (r *UserRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM wf_user WHERE email = ?)`
	if err := r.db.QueryRowContext(ctx, query, email).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
