package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mzagorsky/auth-service/internal/domain"
	"github.com/mzagorsky/auth-service/internal/repository"
)

// cachedUser carries every user field through the cache, including the
// password hash that domain.User deliberately keeps out of JSON.
type cachedUser struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Roles        []string  `json:"roles"`
	Provider     string    `json:"provider"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toCached(u *domain.User) *cachedUser {
	return &cachedUser{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Roles:        u.Roles,
		Provider:     u.Provider,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func (c *cachedUser) toDomain() *domain.User {
	return &domain.User{
		ID:           c.ID,
		Email:        c.Email,
		PasswordHash: c.PasswordHash,
		Roles:        c.Roles,
		Provider:     c.Provider,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// UserRepository is a read-through Redis cache in front of another
// repository.UserRepository. Cache failures never fail the request; the
// lookup falls through to the inner repository.
type UserRepository struct {
	inner  repository.UserRepository
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewUserRepository wraps inner with a Redis read-through cache. Entries
// expire after ttl.
func NewUserRepository(inner repository.UserRepository, client *redis.Client, ttl time.Duration, logger *slog.Logger) *UserRepository {
	return &UserRepository{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func idKey(id uuid.UUID) string    { return fmt.Sprintf("user:id:%s", id) }
func emailKey(email string) string { return fmt.Sprintf("user:email:%s", email) }

// Create delegates to the inner repository. Nothing is cached on write; the
// first read populates the cache.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	return r.inner.Create(ctx, user)
}

// GetByID retrieves a user by ID, consulting the cache first.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if u := r.lookup(ctx, idKey(id)); u != nil {
		return u, nil
	}

	u, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.store(ctx, u)
	return u, nil
}

// GetByEmail retrieves a user by email, consulting the cache first.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if u := r.lookup(ctx, emailKey(email)); u != nil {
		return u, nil
	}

	u, err := r.inner.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	r.store(ctx, u)
	return u, nil
}

// Delete removes the user from the inner repository and invalidates both
// cache entries. The inner delete happens first so a cache miss can never
// resurrect a deleted user.
func (r *UserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	u, lookupErr := r.inner.GetByID(ctx, id)

	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}

	keys := []string{idKey(id)}
	if lookupErr == nil {
		keys = append(keys, emailKey(u.Email))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.logger.WarnContext(ctx, "failed to invalidate user cache",
			slog.String("user_id", id.String()),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

func (r *UserRepository) lookup(ctx context.Context, key string) *domain.User {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.WarnContext(ctx, "user cache read failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}

	var cu cachedUser
	if err := json.Unmarshal(data, &cu); err != nil {
		r.logger.WarnContext(ctx, "user cache entry corrupted",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil
	}

	return cu.toDomain()
}

func (r *UserRepository) store(ctx context.Context, u *domain.User) {
	data, err := json.Marshal(toCached(u))
	if err != nil {
		return
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, idKey(u.ID), data, r.ttl)
	pipe.Set(ctx, emailKey(u.Email), data, r.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.WarnContext(ctx, "user cache write failed",
			slog.String("user_id", u.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
