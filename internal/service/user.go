package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mzagorsky/auth-service/internal/domain"
	"github.com/mzagorsky/auth-service/internal/event"
	"github.com/mzagorsky/auth-service/internal/repository"
	apperrors "github.com/mzagorsky/auth-service/pkg/errors"
)

// Requester identifies the authenticated caller of a user operation.
type Requester struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the requester carries the given role.
func (r Requester) HasRole(role string) bool {
	for _, have := range r.Roles {
		if have == role {
			return true
		}
	}
	return false
}

// UserService implements user lookup and account removal.
type UserService struct {
	userRepo  repository.UserRepository
	tokenRepo repository.RefreshTokenRepository
	producer  *event.Producer
	logger    *slog.Logger
}

// NewUserService creates a new user service.
func NewUserService(
	userRepo repository.UserRepository,
	tokenRepo repository.RefreshTokenRepository,
	producer *event.Producer,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		producer:  producer,
		logger:    logger,
	}
}

// Find retrieves a user by id or email. A value that parses as a UUID is
// treated as an id, anything else as an email address.
func (s *UserService) Find(ctx context.Context, idOrEmail string) (*domain.User, error) {
	if idOrEmail == "" {
		return nil, apperrors.InvalidInput("id or email is required")
	}

	if id, err := uuid.Parse(idOrEmail); err == nil {
		user, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get user by id: %w", err)
		}
		return user, nil
	}

	user, err := s.userRepo.GetByEmail(ctx, idOrEmail)
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

// Delete removes an account. A user may delete themselves; deleting anyone
// else requires the admin role. All refresh sessions of the account are
// revoked with it.
func (s *UserService) Delete(ctx context.Context, targetID uuid.UUID, requester Requester) error {
	if requester.UserID != targetID.String() && !requester.HasRole(domain.RoleAdmin) {
		return apperrors.Forbidden("cannot delete another user's account")
	}

	user, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return fmt.Errorf("get user for deletion: %w", err)
	}

	// Revoke sessions first so no refresh can race the account removal.
	if err := s.tokenRepo.DeleteByUserID(ctx, targetID); err != nil {
		return fmt.Errorf("revoke sessions for deletion: %w", err)
	}

	if err := s.userRepo.Delete(ctx, targetID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	if err := s.producer.PublishUserDeleted(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish auth.user.deleted event",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user deleted",
		slog.String("user_id", user.ID.String()),
		slog.String("requested_by", requester.UserID),
	)

	return nil
}
