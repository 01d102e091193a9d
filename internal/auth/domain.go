// Package auth verifies credentials and bearer tokens and attaches the
// authenticated actor to request contexts.
package auth

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-pcm/internal/shared"
)

// User represents an authenticated user account.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         shared.Role
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Token is an issued bearer token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

var (
	// ErrInvalidCredentials hides which half of a login was wrong.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", shared.ErrUnauthorized)
	// ErrInvalidToken covers malformed, expired and badly signed tokens.
	ErrInvalidToken = fmt.Errorf("invalid token: %w", shared.ErrUnauthorized)
)
