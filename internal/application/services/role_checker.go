package services

import (
	"context"

	"github.com/tradedesk/backoffice/internal/domain/models"
)

// SessionRoleChecker answers role checks from the role ids granted to the
// session at login. Role storage and assignment are an external system's
// concern; only membership is consumed here.
type SessionRoleChecker struct{}

// NewSessionRoleChecker creates a new SessionRoleChecker
func NewSessionRoleChecker() *SessionRoleChecker {
	return &SessionRoleChecker{}
}

// HasRole reports whether the session carries the role
func (c *SessionRoleChecker) HasRole(_ context.Context, user *models.UserSession, roleID string) bool {
	if user == nil {
		return false
	}
	for _, held := range user.Roles {
		if held == roleID {
			return true
		}
	}
	return false
}
