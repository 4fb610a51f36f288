package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mzagorsky/auth-service/internal/domain"
)

// UserRepository defines the interface for user persistence operations.
type UserRepository interface {
	// Create inserts a new user into the store.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by their unique identifier.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail retrieves a user by their email address.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// Delete removes a user from the store by their identifier.
	Delete(ctx context.Context, id uuid.UUID) error
}

// RefreshTokenRepository defines the interface for refresh session persistence.
// Refresh tokens are opaque random values; only their SHA-256 hash is stored,
// and consuming a token means deleting its row.
type RefreshTokenRepository interface {
	// Create generates a new opaque token value, persists its hash with the
	// given lifetime, and returns the record with the plaintext value set.
	Create(ctx context.Context, userID uuid.UUID, ttl time.Duration, userAgent string) (*domain.RefreshToken, error)

	// FindByValue looks up a stored session by the plaintext token value.
	FindByValue(ctx context.Context, value string) (*domain.RefreshToken, error)

	// DeleteByValue removes the session for the given plaintext token value.
	// It reports whether a row was actually deleted; under concurrent calls
	// for the same value at most one caller observes true.
	DeleteByValue(ctx context.Context, value string) (bool, error)

	// DeleteByUserID removes every session belonging to the given user.
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}
