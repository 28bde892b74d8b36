package services

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "catalog-service/common/errors"
	"catalog-service/models"
	"catalog-service/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- Mocks for Dependencies ---

type MockUserRepository struct{ mock.Mock }

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}
func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type MockTokenService struct{ mock.Mock }

func (m *MockTokenService) Generate(user *models.User) (string, *Claims, error) {
	args := m.Called(user)
	if args.Get(1) == nil {
		return "", nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*Claims), args.Error(2)
}
func (m *MockTokenService) Validate(tokenStr string) (*Claims, error) {
	args := m.Called(tokenStr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Claims), args.Error(1)
}

// --- Tests ---

func TestLogin(t *testing.T) {
	mockRepo := new(MockUserRepository)
	mockTokens := new(MockTokenService)
	authService := NewAuthService(mockRepo, mockTokens, NewMemoryRevocationList())
	ctx := context.Background()

	hashed, err := bcrypt.GenerateFromPassword([]byte("admin"), bcrypt.MinCost)
	require.NoError(t, err)
	admin := &models.User{
		ID:       uuid.New(),
		Name:     "Ihsan",
		Email:    "ihsan@gmail.com",
		Password: string(hashed),
		Role:     models.RoleAdmin,
	}

	t.Run("Success", func(t *testing.T) {
		// Arrange
		claims := &Claims{UserID: admin.ID, Role: admin.Role, TokenID: "jti-1", ExpiresAt: time.Now().Add(time.Hour)}
		mockRepo.On("FindByEmail", ctx, admin.Email).Return(admin, nil).Once()
		mockTokens.On("Generate", admin).Return("signed-token", claims, nil).Once()

		// Act
		res, err := authService.Login(ctx, admin.Email, "admin")

		// Assert
		require.NoError(t, err)
		assert.Equal(t, "signed-token", res.Token)
		assert.Equal(t, admin, res.User)
		assert.Equal(t, claims.ExpiresAt, res.ExpiresAt)
		mockRepo.AssertExpectations(t)
		mockTokens.AssertExpectations(t)
	})

	t.Run("Unknown Email", func(t *testing.T) {
		mockRepo.On("FindByEmail", ctx, "nobody@example.com").Return(nil, repository.ErrNotFound).Once()

		_, err := authService.Login(ctx, "nobody@example.com", "admin")

		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Wrong Password", func(t *testing.T) {
		mockRepo.On("FindByEmail", ctx, admin.Email).Return(admin, nil).Once()

		_, err := authService.Login(ctx, admin.Email, "not-admin")

		assert.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
		mockRepo.AssertExpectations(t)
	})

	t.Run("Repository Error", func(t *testing.T) {
		mockRepo.On("FindByEmail", ctx, "broken@example.com").Return(nil, errors.New("connection reset")).Once()

		_, err := authService.Login(ctx, "broken@example.com", "admin")

		assert.ErrorIs(t, err, apperrors.ErrInternalServer)
	})
}

func TestAuthenticateAndLogout(t *testing.T) {
	mockTokens := new(MockTokenService)
	authService := NewAuthService(new(MockUserRepository), mockTokens, NewMemoryRevocationList())
	ctx := context.Background()

	claims := &Claims{UserID: uuid.New(), Role: models.RoleUser, TokenID: "jti-2", ExpiresAt: time.Now().Add(time.Hour)}
	mockTokens.On("Validate", "good").Return(claims, nil)
	mockTokens.On("Validate", "bad").Return(nil, errors.New("signature is invalid"))

	got, err := authService.Authenticate(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, claims.UserID, got.UserID)

	_, err = authService.Authenticate(ctx, "bad")
	assert.ErrorIs(t, err, apperrors.ErrInvalidToken)

	require.NoError(t, authService.Logout(ctx, claims))
	_, err = authService.Authenticate(ctx, "good")
	assert.ErrorIs(t, err, apperrors.ErrTokenRevoked)
}

func TestCurrentUser(t *testing.T) {
	mockRepo := new(MockUserRepository)
	authService := NewAuthService(mockRepo, new(MockTokenService), NewMemoryRevocationList())
	ctx := context.Background()
	user := &models.User{ID: uuid.New(), Email: "lukman@gmail.com", Role: models.RoleUser}
	missing := uuid.New()

	mockRepo.On("FindByID", ctx, user.ID).Return(user, nil).Once()
	mockRepo.On("FindByID", ctx, missing).Return(nil, repository.ErrNotFound).Once()

	got, err := authService.CurrentUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "lukman@gmail.com", got.Email)

	_, err = authService.CurrentUser(ctx, missing)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	mockRepo.AssertExpectations(t)
}
