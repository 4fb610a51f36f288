package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mzagorsky/auth-service/internal/auth"
	"github.com/mzagorsky/auth-service/internal/domain"
	"github.com/mzagorsky/auth-service/internal/event"
	"github.com/mzagorsky/auth-service/internal/provider"
	"github.com/mzagorsky/auth-service/internal/repository"
	apperrors "github.com/mzagorsky/auth-service/pkg/errors"
)

// bcryptCost is the cost factor for bcrypt password hashing.
const bcryptCost = 12

// invalidCredentialsMsg is returned for both unknown emails and wrong
// passwords so the response never reveals whether an account exists.
const invalidCredentialsMsg = "invalid email or password"

// AuthService implements registration, login and refresh session rotation.
type AuthService struct {
	userRepo   repository.UserRepository
	tokenRepo  repository.RefreshTokenRepository
	jwtManager *auth.JWTManager
	producer   *event.Producer
	refreshTTL time.Duration
	logger     *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(
	userRepo repository.UserRepository,
	tokenRepo repository.RefreshTokenRepository,
	jwtManager *auth.JWTManager,
	producer *event.Producer,
	refreshTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		userRepo:   userRepo,
		tokenRepo:  tokenRepo,
		jwtManager: jwtManager,
		producer:   producer,
		refreshTTL: refreshTTL,
		logger:     logger,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Email    string
	Password string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Email     string
	Password  string
	UserAgent string
}

// Register creates a new local account. Tokens are not issued here; the
// client logs in afterwards.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, apperrors.InvalidInput("password is required")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        input.Email,
		PasswordHash: string(hashedPassword),
		Roles:        []string{domain.RoleUser},
		Provider:     domain.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish auth.user.registered event",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID.String()),
		slog.String("email", user.Email),
	)

	return user, nil
}

// Login authenticates a user with email and password and opens a new
// refresh session. Existing sessions on other devices stay valid.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, *domain.TokenPair, error) {
	if input.Email == "" {
		return nil, nil, apperrors.InvalidInput("email is required")
	}
	if input.Password == "" {
		return nil, nil, apperrors.InvalidInput("password is required")
	}

	user, err := s.userRepo.GetByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.AuthenticationFailed(invalidCredentialsMsg)
		}
		return nil, nil, apperrors.Internal(fmt.Errorf("lookup user: %w", err))
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		return nil, nil, apperrors.AuthenticationFailed(invalidCredentialsMsg)
	}

	tokens, err := s.issueTokenPair(ctx, user, input.UserAgent)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID.String()),
		slog.String("email", user.Email),
	)

	return user, tokens, nil
}

// ProviderLogin signs a user in with an identity verified by an external
// provider, creating the account on first login.
func (s *AuthService) ProviderLogin(ctx context.Context, identity *provider.Identity, userAgent string) (*domain.User, *domain.TokenPair, error) {
	user, err := s.userRepo.GetByEmail(ctx, identity.Email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, apperrors.Internal(fmt.Errorf("lookup user: %w", err))
		}
		user, err = s.registerProviderUser(ctx, identity)
		if err != nil {
			return nil, nil, err
		}
	}

	tokens, err := s.issueTokenPair(ctx, user, userAgent)
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "user logged in via provider",
		slog.String("user_id", user.ID.String()),
		slog.String("provider", identity.Provider),
	)

	return user, tokens, nil
}

// Refresh rotates a refresh session: the presented token is consumed by
// deleting its row, and only the caller whose delete removed the row gets
// a new pair. A replayed, expired or forged token yields Unauthorized;
// storage failures surface as distinct internal errors.
func (s *AuthService) Refresh(ctx context.Context, refreshValue, userAgent string) (*domain.TokenPair, error) {
	if refreshValue == "" {
		return nil, apperrors.Unauthorized("refresh token is required")
	}

	stored, err := s.tokenRepo.FindByValue(ctx, refreshValue)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid refresh token")
		}
		return nil, apperrors.Internal(err)
	}

	// Delete before any further checks. The row removal is the single
	// serialization point: under concurrent refreshes with the same token
	// exactly one caller observes deleted == true.
	deleted, err := s.tokenRepo.DeleteByValue(ctx, refreshValue)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	if !deleted {
		// Someone else consumed it between the lookup and the delete.
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	if stored.Expired(time.Now().UTC()) {
		// Already deleted above, so an expired token can never be replayed.
		return nil, apperrors.Unauthorized("refresh token has expired")
	}

	user, err := s.userRepo.GetByID(ctx, stored.UserID)
	if err != nil {
		// Fail closed: a missing or unreadable account never gets new tokens.
		s.logger.ErrorContext(ctx, "user lookup failed during refresh",
			slog.String("user_id", stored.UserID.String()),
			slog.String("error", err.Error()),
		)
		return nil, apperrors.Unauthorized("invalid refresh token")
	}

	tokens, err := s.issueTokenPair(ctx, user, userAgent)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "refresh session rotated",
		slog.String("user_id", user.ID.String()),
	)

	return tokens, nil
}

// Logout ends the session for the given refresh token. Logging out an
// already-consumed or unknown token succeeds; the end state is the same.
func (s *AuthService) Logout(ctx context.Context, refreshValue string) error {
	if refreshValue == "" {
		return nil
	}

	if _, err := s.tokenRepo.DeleteByValue(ctx, refreshValue); err != nil {
		return apperrors.Internal(err)
	}

	return nil
}

// ValidateAccessToken verifies an access token and returns its claims.
func (s *AuthService) ValidateAccessToken(tokenString string) (*auth.Claims, error) {
	return s.jwtManager.ValidateAccessToken(tokenString)
}

// issueTokenPair opens a new refresh session and signs a matching access
// token. The pair is all-or-nothing: if the session cannot be stored, no
// access token is handed out either.
func (s *AuthService) issueTokenPair(ctx context.Context, user *domain.User, userAgent string) (*domain.TokenPair, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID.String(), user.Email, user.Roles)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}

	refreshToken, err := s.tokenRepo.Create(ctx, user.ID, s.refreshTTL, userAgent)
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("store refresh token: %w", err))
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// registerProviderUser creates an account for a first provider login. The
// password hash is a random placeholder, so the account cannot be entered
// with a password until one is explicitly set.
func (s *AuthService) registerProviderUser(ctx context.Context, identity *provider.Identity) (*domain.User, error) {
	placeholder := make([]byte, 32)
	if _, err := rand.Read(placeholder); err != nil {
		return nil, fmt.Errorf("generate placeholder password: %w", err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(base64.RawStdEncoding.EncodeToString(placeholder)), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash placeholder password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        identity.Email,
		PasswordHash: string(hashedPassword),
		Roles:        []string{domain.RoleUser},
		Provider:     identity.Provider,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		// Lost a creation race with a concurrent first login; the winner's
		// row is the account.
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return s.userRepo.GetByEmail(ctx, identity.Email)
		}
		return nil, fmt.Errorf("create provider user: %w", err)
	}

	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish auth.user.registered event",
			slog.String("user_id", user.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	return user, nil
}
