package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mzagorsky/auth-service/internal/auth"
	"github.com/mzagorsky/auth-service/internal/domain"
	"github.com/mzagorsky/auth-service/internal/event"
	"github.com/mzagorsky/auth-service/internal/provider"
	apperrors "github.com/mzagorsky/auth-service/pkg/errors"
	pkgkafka "github.com/mzagorsky/auth-service/pkg/kafka"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, userID uuid.UUID, ttl time.Duration, userAgent string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, userID, ttl, userAgent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) FindByValue(ctx context.Context, value string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, value)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) DeleteByValue(ctx context.Context, value string) (bool, error) {
	args := m.Called(ctx, value)
	return args.Bool(0), args.Error(1)
}

func (m *mockRefreshTokenRepository) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// --- Fixtures ---

func newTestEventProducer() *event.Producer {
	logger := slog.New(slog.DiscardHandler)
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

func newAuthFixture(t *testing.T) (*AuthService, *mockUserRepository, *mockRefreshTokenRepository) {
	t.Helper()
	userRepo := new(mockUserRepository)
	tokenRepo := new(mockRefreshTokenRepository)
	jwtManager := auth.NewJWTManager("test-secret-at-least-32-bytes-long!!", "auth-service", 15*time.Minute)
	logger := slog.New(slog.DiscardHandler)
	svc := NewAuthService(userRepo, tokenRepo, jwtManager, newTestEventProducer(), 30*24*time.Hour, logger)
	return svc, userRepo, tokenRepo
}

func testUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	now := time.Now().UTC()
	return &domain.User{
		ID:           uuid.New(),
		Email:        "alice@example.com",
		PasswordHash: string(hash),
		Roles:        []string{domain.RoleUser},
		Provider:     domain.ProviderLocal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func storedToken(userID uuid.UUID, expiresAt time.Time) *domain.RefreshToken {
	return &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: "stored-hash",
		UserAgent: "curl/8.0",
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
}

// --- Register ---

func TestAuthService_Register_Success(t *testing.T) {
	svc, userRepo, _ := newAuthFixture(t)
	ctx := context.Background()

	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil).Once()

	user, err := svc.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Sup3rSecret"})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, []string{domain.RoleUser}, user.Roles)
	assert.Equal(t, domain.ProviderLocal, user.Provider)
	assert.NotEqual(t, "Sup3rSecret", user.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Sup3rSecret")))

	userRepo.AssertExpectations(t)
}

func TestAuthService_Register_ShortPasswordAccepted(t *testing.T) {
	svc, userRepo, _ := newAuthFixture(t)
	ctx := context.Background()

	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).Return(nil).Once()

	// No complexity policy: any non-empty password registers.
	user, err := svc.Register(ctx, RegisterInput{Email: "a@b.com", Password: "pw123"})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("pw123")))

	userRepo.AssertExpectations(t)
}

func TestAuthService_Register_EmptyPassword(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	_, err := svc.Register(context.Background(), RegisterInput{Email: "alice@example.com", Password: ""})
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestAuthService_Register_DuplicateEmail(t *testing.T) {
	svc, userRepo, _ := newAuthFixture(t)
	ctx := context.Background()

	userRepo.On("Create", ctx, mock.AnythingOfType("*domain.User")).
		Return(apperrors.AlreadyExists("user", "email", "alice@example.com")).Once()

	_, err := svc.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "Sup3rSecret"})
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))

	userRepo.AssertExpectations(t)
}

// --- Login ---

func TestAuthService_Login_Success(t *testing.T) {
	svc, userRepo, tokenRepo := newAuthFixture(t)
	ctx := context.Background()
	user := testUser(t, "Sup3rSecret")

	userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil).Once()
	tokenRepo.On("Create", ctx, user.ID, 30*24*time.Hour, "curl/8.0").
		Return(storedToken(user.ID, time.Now().UTC().Add(30*24*time.Hour)), nil).Once()

	got, tokens, err := svc.Login(ctx, LoginInput{Email: user.Email, Password: "Sup3rSecret", UserAgent: "curl/8.0"})
	require.NoError(t, err)

	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, tokens.AccessToken)
	require.NotNil(t, tokens.RefreshToken)
	assert.Equal(t, user.ID, tokens.RefreshToken.UserID)

	claims, err := svc.ValidateAccessToken(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.UserID)

	userRepo.AssertExpectations(t)
	tokenRepo.AssertExpectations(t)
}

func TestAuthService_Login_UnknownEmailAndWrongPasswordLookAlike(t *testing.T) {
	svc, userRepo, _ := newAuthFixture(t)
	ctx := context.Background()
	user := testUser(t, "Sup3rSecret")

	userRepo.On("GetByEmail", ctx, "nobody@example.com").Return(nil, apperrors.ErrNotFound).Once()
	userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil).Once()

	_, _, errUnknown := svc.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "Sup3rSecret"})
	_, _, errWrongPass := svc.Login(ctx, LoginInput{Email: user.Email, Password: "WrongPassw0rd"})

	// Same error either way: responses must not reveal whether the account exists.
	require.Error(t, errUnknown)
	require.Error(t, errWrongPass)
	assert.Equal(t, errUnknown.Error(), errWrongPass.Error())
	assert.True(t, errors.Is(errUnknown, apperrors.ErrAuthenticationFailed))
	assert.True(t, errors.Is(errWrongPass, apperrors.ErrAuthenticationFailed))

	userRepo.AssertExpectations(t)
}

func TestAuthService_Login_NoPairWhenSessionStoreFails(t *testing.T) {
	svc, userRepo, tokenRepo := newAuthFixture(t)
	ctx := context.Background()
	user := testUser(t, "Sup3rSecret")

	userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil).Once()
	tokenRepo.On("Create", ctx, user.ID, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused")).Once()

	_, tokens, err := svc.Login(ctx, LoginInput{Email: user.Email, Password: "Sup3rSecret"})
	require.Error(t, err)
	assert.Nil(t, tokens)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))

	tokenRepo.AssertExpectations(t)
}

func TestAuthService_Login_UserStoreOutageIsInternal(t *testing.T) {
	svc, userRepo, _ := newAuthFixture(t)
	ctx := context.Background()

	userRepo.On("GetByEmail", ctx, "alice@example.com").
		Return(nil, errors.New("connection refused")).Once()

	// An unreachable store is not a credential failure.
	_, _, err := svc.Login(ctx, LoginInput{Email: "alice@example.com", Password: "Sup3rSecret"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrAuthenticationFailed))
	assert.True(t, errors.Is(err, apperrors.ErrInternal))
	assert.Equal(t, 500, apperrors.HTTPStatus(err))

	userRepo.AssertExpectations(t)
}

// --- Provider login ---

func TestAuthService_ProviderLogin_ExistingUser(t *testing.T) {
	svc, userRepo, tokenRepo := newAuthFixture(t)
	ctx := context.Background()
	user := testUser(t, "irrelevant")

	userRepo.On("GetByEmail", ctx, user.Email).Return(user, nil).Once()
	tokenRepo.On("Create", ctx, user.ID, mock.Anything, "Mozilla/5.0").
		Return(storedToken(user.ID, time.Now().UTC().Add(time.Hour)), nil).Once()

	identity := &provider.Identity{Provider: domain.ProviderGoogle, Subject: "g-123", Email: user.Email}

	got, tokens, err := svc.ProviderLogin(ctx, identity, "Mozilla/5.0")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, tokens.AccessToken)

	userRepo.AssertExpectations(t)
	tokenRepo.AssertExpectations(t)
}

func TestAuthService_ProviderLogin_FirstLoginCreatesAccount(t *testing.T) {
	svc, userRepo, tokenRepo := newAuthFixture(t)
	ctx := context.Background()

	userRepo.On("GetByEmail", ctx, "new@example.com").Return(nil, apperrors.ErrNotFound).Once()
	userRepo.On("Create", ctx, mock.MatchedBy(func(u *domain.User) bool {
		return u.Email == "new@example.com" && u.Provider == domain.ProviderYandex
	})).Return(nil).Once()
	tokenRepo.On("Create", ctx, mock.Anything, mock.Anything, mock.Anything).
		Return(storedToken(uuid.New(), time.Now().UTC().Add(time.Hour)), nil).Once()

	identity := &provider.Identity{Provider: domain.ProviderYandex, Subject: "y-987", Email: "new@example.com"}

	got, tokens, err := svc.ProviderLogin(ctx, identity, "")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", got.Email)
	assert.NotEmpty(t, got.PasswordHash)
	assert.NotEmpty(t, tokens.AccessToken)

	userRepo.AssertExpectations(t)
	tokenRepo.AssertExpectations(t)
}

func TestAuthService_ProviderLogin_CreationRaceFallsBackToWinner(t *testing.T) {
	svc, userRepo, tokenRepo := newAuthFixture(t)
	ctx := context.Background()
	winner := testUser(t, "irrelevant")

	userRepo.On("GetByEmail", ctx, winner.Email).Return(nil, apperrors.ErrNotFound).Once()
	userRepo.On("Create", ctx, mock.Anything).
		Return(apperrors.AlreadyExists("user", "email", winner.Email)).Once()
	userRepo.On("GetByEmail", ctx, winner.Email).Return(winner, nil).Once()
	tokenRepo.On("Create", ctx, winner.ID, mock.Anything, mock.Anything).
		Return(storedToken(winner.ID, time.Now().UTC().Add(time.Hour)), nil).Once()

	identity := &provider.Identity{Provider: domain.ProviderGoogle, Subject: "g-123", Email: winner.Email}

	got, _, err := svc.ProviderLogin(ctx, identity, "")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)

	userRepo.AssertExpectations(t)
}

func TestAuthService_ProviderLogin_UserStoreOutageIsInternal(t *testing.T) {
	svc, userRepo, _ := newAuthFixture(t)
	ctx := context.Background()

	userRepo.On("GetByEmail", ctx, "alice@example.com").
		Return(nil, errors.New("connection refused")).Once()

	identity := &provider.Identity{Provider: domain.ProviderGoogle, Subject: "g-123", Email: "alice@example.com"}

	// An unreadable store must not be mistaken for a first login.
	_, _, err := svc.ProviderLogin(ctx, identity, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrInternal))
	assert.Equal(t, 500, apperrors.HTTPStatus(err))
	userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)

	userRepo.AssertExpectations(t)
}

// --- Refresh ---

func TestAuthService_Refresh_Success(t *testing.T) {
	svc, userRepo, tokenRepo := newAuthFixture(t)
	ctx := context.Background()
	user := testUser(t, "irrelevant")
	stored := storedToken(user.ID, time.Now().UTC().Add(time.Hour))

	tokenRepo.On("FindByValue", ctx, "old-value").Return(stored, nil).Once()
	tokenRepo.On("DeleteByValue", ctx, "old-value").Return(true, nil).Once()
	userRepo.On("GetByID", ctx, user.ID).Return(user, nil).Once()
	tokenRepo.On("Create", ctx, user.ID, mock.Anything, "curl/8.0").
		Return(storedToken(user.ID, time.Now().UTC().Add(time.Hour)), nil).Once()

	tokens, err := svc.Refresh(ctx, "old-value", "curl/8.0")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	require.NotNil(t, tokens.RefreshToken)

	tokenRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestAuthService_Refresh_UnknownToken(t *testing.T) {
	svc, _, tokenRepo := newAuthFixture(t)
	ctx := context.Background()

	tokenRepo.On("FindByValue", ctx, "forged").Return(nil, apperrors.ErrNotFound).Once()

	_, err := svc.Refresh(ctx, "forged", "")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	tokenRepo.AssertExpectations(t)
}

func TestAuthService_Refresh_ExpiredTokenIsConsumed(t *testing.T) {
	svc, _, tokenRepo := newAuthFixture(t)
	ctx := context.Background()
	stored := storedToken(uuid.New(), time.Now().UTC().Add(-time.Minute))

	tokenRepo.On("FindByValue", ctx, "expired").Return(stored, nil).Once()
	// The delete happens even though the token is expired: an expired token
	// never survives a refresh attempt.
	tokenRepo.On("DeleteByValue", ctx, "expired").Return(true, nil).Once()

	_, err := svc.Refresh(ctx, "expired", "")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	tokenRepo.AssertExpectations(t)
}

func TestAuthService_Refresh_LostRaceYieldsUnauthorized(t *testing.T) {
	svc, _, tokenRepo := newAuthFixture(t)
	ctx := context.Background()
	stored := storedToken(uuid.New(), time.Now().UTC().Add(time.Hour))

	tokenRepo.On("FindByValue", ctx, "contested").Return(stored, nil).Once()
	tokenRepo.On("DeleteByValue", ctx, "contested").Return(false, nil).Once()

	_, err := svc.Refresh(ctx, "contested", "")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	tokenRepo.AssertExpectations(t)
}

func TestAuthService_Refresh_StoreErrorIsNotUnauthorized(t *testing.T) {
	svc, _, tokenRepo := newAuthFixture(t)
	ctx := context.Background()

	tokenRepo.On("FindByValue", ctx, "any").Return(nil, errors.New("connection refused")).Once()

	_, err := svc.Refresh(ctx, "any", "")
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrUnauthorized))
	assert.Equal(t, 500, apperrors.HTTPStatus(err))

	tokenRepo.AssertExpectations(t)
}

func TestAuthService_Refresh_MissingUserFailsClosed(t *testing.T) {
	svc, userRepo, tokenRepo := newAuthFixture(t)
	ctx := context.Background()
	stored := storedToken(uuid.New(), time.Now().UTC().Add(time.Hour))

	tokenRepo.On("FindByValue", ctx, "orphaned").Return(stored, nil).Once()
	tokenRepo.On("DeleteByValue", ctx, "orphaned").Return(true, nil).Once()
	userRepo.On("GetByID", ctx, stored.UserID).Return(nil, apperrors.ErrNotFound).Once()

	_, err := svc.Refresh(ctx, "orphaned", "")
	assert.True(t, errors.Is(err, apperrors.ErrUnauthorized))

	tokenRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

// --- Logout ---

func TestAuthService_Logout_Idempotent(t *testing.T) {
	svc, _, tokenRepo := newAuthFixture(t)
	ctx := context.Background()

	tokenRepo.On("DeleteByValue", ctx, "session-value").Return(true, nil).Once()
	tokenRepo.On("DeleteByValue", ctx, "session-value").Return(false, nil).Once()

	assert.NoError(t, svc.Logout(ctx, "session-value"))
	assert.NoError(t, svc.Logout(ctx, "session-value"))
	assert.NoError(t, svc.Logout(ctx, ""))

	tokenRepo.AssertExpectations(t)
}

func TestAuthService_Logout_StoreError(t *testing.T) {
	svc, _, tokenRepo := newAuthFixture(t)
	ctx := context.Background()

	tokenRepo.On("DeleteByValue", ctx, "session-value").Return(false, errors.New("connection refused")).Once()

	err := svc.Logout(ctx, "session-value")
	require.Error(t, err)
	assert.Equal(t, 500, apperrors.HTTPStatus(err))

	tokenRepo.AssertExpectations(t)
}

// --- Concurrency ---

// memoryTokenStore is a thread-safe in-memory RefreshTokenRepository used to
// exercise concurrent refresh attempts against a real serialization point.
type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*domain.RefreshToken
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{tokens: make(map[string]*domain.RefreshToken)}
}

func (s *memoryTokenStore) Create(_ context.Context, userID uuid.UUID, ttl time.Duration, userAgent string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rt := &domain.RefreshToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: uuid.NewString(),
		Value:     uuid.NewString(),
		UserAgent: userAgent,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	s.tokens[rt.Value] = rt
	return rt, nil
}

func (s *memoryTokenStore) FindByValue(_ context.Context, value string) (*domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rt, ok := s.tokens[value]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *rt
	return &cp, nil
}

func (s *memoryTokenStore) DeleteByValue(_ context.Context, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[value]; !ok {
		return false, nil
	}
	delete(s.tokens, value)
	return true, nil
}

func (s *memoryTokenStore) DeleteByUserID(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for value, rt := range s.tokens {
		if rt.UserID == userID {
			delete(s.tokens, value)
		}
	}
	return nil
}

func TestAuthService_Refresh_ConcurrentAttemptsConsumeOnce(t *testing.T) {
	const attempts = 16

	store := newMemoryTokenStore()
	userRepo := new(mockUserRepository)
	jwtManager := auth.NewJWTManager("test-secret-at-least-32-bytes-long!!", "auth-service", 15*time.Minute)
	logger := slog.New(slog.DiscardHandler)
	svc := NewAuthService(userRepo, store, jwtManager, newTestEventProducer(), time.Hour, logger)

	ctx := context.Background()
	user := testUser(t, "irrelevant")
	userRepo.On("GetByID", mock.Anything, user.ID).Return(user, nil)

	seed, err := store.Create(ctx, user.ID, time.Hour, "race-test")
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejected  int
	)

	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := svc.Refresh(ctx, seed.Value, "race-test")

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperrors.ErrUnauthorized):
				rejected++
			default:
				t.Errorf("unexpected refresh error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes, "exactly one concurrent refresh may succeed")
	assert.Equal(t, attempts-1, rejected)

	// The consumed token is gone and the single winner stored one replacement.
	store.mu.Lock()
	defer store.mu.Unlock()
	assert.Len(t, store.tokens, 1)
	assert.NotContains(t, store.tokens, seed.Value)
}
