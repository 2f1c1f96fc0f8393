package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/internal/domain/ports"
	"github.com/tradedesk/backoffice/pkg/auth"
	"github.com/tradedesk/backoffice/pkg/errors"
)

// AuthService handles authentication and token issuance
type AuthService struct {
	users ports.UserStore
}

// NewAuthService creates a new AuthService
func NewAuthService(users ports.UserStore) *AuthService {
	return &AuthService{users: users}
}

// LoginResult contains the result of a successful login
type LoginResult struct {
	Token     string              `json:"token"`
	User      *models.UserSession `json:"user"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// Login authenticates a user by email and password and issues a JWT
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	session, passwordHash, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			log.Printf("⚠️ Login failed for %s: user not found", email)
			return nil, errors.NewUnauthorizedError("Invalid email or password")
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !auth.VerifyPassword(password, passwordHash) {
		log.Printf("⚠️ Login failed for %s: invalid password", email)
		return nil, errors.NewUnauthorizedError("Invalid email or password")
	}

	tokenSession := auth.UserSession{
		ID:    session.ID,
		Name:  session.Name,
		Roles: session.Roles,
	}
	if session.Email != nil {
		tokenSession.Email = *session.Email
	}

	token, err := auth.GenerateToken(tokenSession)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	log.Printf("✅ User %s logged in", email)
	return &LoginResult{
		Token:     token,
		User:      session,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}
