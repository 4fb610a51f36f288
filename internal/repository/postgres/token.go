package postgres

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mzagorsky/auth-service/internal/domain"
	apperrors "github.com/mzagorsky/auth-service/pkg/errors"
)

const (
	tokenValueBytes = 32

	// Attempts on a token_hash unique violation. A collision on 256 random
	// bits never happens in practice; the retry keeps Create total anyway.
	createAttempts = 3
)

// RefreshTokenRepository implements repository.RefreshTokenRepository using
// PostgreSQL. Token values are opaque random strings; only SHA-256 hashes
// reach the database.
type RefreshTokenRepository struct {
	db DB
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

// hashValue returns the hex-encoded SHA-256 digest of a plaintext token value.
func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// newTokenValue generates an opaque URL-safe token value from 32 random bytes.
func newTokenValue() (string, error) {
	buf := make([]byte, tokenValueBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Create generates a fresh token value, stores its hash and returns the
// record with the plaintext value set. The value itself is never persisted.
func (r *RefreshTokenRepository) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration, userAgent string) (*domain.RefreshToken, error) {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, user_agent, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	var lastErr error
	for attempt := 0; attempt < createAttempts; attempt++ {
		value, err := newTokenValue()
		if err != nil {
			return nil, err
		}

		now := time.Now().UTC()
		rt := &domain.RefreshToken{
			ID:        uuid.New(),
			UserID:    userID,
			TokenHash: hashValue(value),
			Value:     value,
			UserAgent: userAgent,
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}

		_, err = r.db.Exec(ctx, query, rt.ID, rt.UserID, rt.TokenHash, rt.UserAgent, rt.ExpiresAt, rt.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				lastErr = err
				continue
			}
			return nil, fmt.Errorf("insert refresh token: %w", err)
		}

		return rt, nil
	}

	return nil, fmt.Errorf("insert refresh token after %d attempts: %w", createAttempts, lastErr)
}

// FindByValue retrieves a stored session by the plaintext token value.
func (r *RefreshTokenRepository) FindByValue(ctx context.Context, value string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, user_agent, expires_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1`

	var rt domain.RefreshToken
	err := r.db.QueryRow(ctx, query, hashValue(value)).Scan(
		&rt.ID,
		&rt.UserID,
		&rt.TokenHash,
		&rt.UserAgent,
		&rt.ExpiresAt,
		&rt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return &rt, nil
}

// DeleteByValue removes the session for the given plaintext token value and
// reports whether a row was deleted. The single DELETE is the serialization
// point for concurrent refresh attempts with the same token: the database
// lets exactly one of them observe RowsAffected == 1.
func (r *RefreshTokenRepository) DeleteByValue(ctx context.Context, value string) (bool, error) {
	query := `DELETE FROM refresh_tokens WHERE token_hash = $1`

	ct, err := r.db.Exec(ctx, query, hashValue(value))
	if err != nil {
		return false, fmt.Errorf("delete refresh token: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// DeleteByUserID removes every session belonging to the given user.
func (r *RefreshTokenRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	query := `DELETE FROM refresh_tokens WHERE user_id = $1`

	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("delete refresh tokens by user: %w", err)
	}

	return nil
}
