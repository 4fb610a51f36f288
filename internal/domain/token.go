package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken is a stored refresh session. Only a SHA-256 hash of the token
// value is persisted; Value carries the plaintext exactly once, on the record
// returned from creation, so it can be handed to the client.
type RefreshToken struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	TokenHash string    `json:"-"`
	Value     string    `json:"-"`
	UserAgent string    `json:"user_agent"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the token's lifetime has passed at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenPair is the result of a successful login or refresh: a short-lived
// access token plus the refresh session that replaces any prior one. The two
// are only ever produced together.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken *RefreshToken `json:"-"`
}
