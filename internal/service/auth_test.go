package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/BuzzLyutic/tasknest-api/internal/auth"
	"github.com/BuzzLyutic/tasknest-api/internal/model"
	"github.com/BuzzLyutic/tasknest-api/internal/repo"
	"github.com/BuzzLyutic/tasknest-api/internal/repo/repomock"
)

func newAuthService(users repo.UserRepository) (*AuthService, *auth.TokenManager) {
	tokens := auth.NewTokenManager("test-secret", time.Hour, "tasknest")
	return NewAuthService(users, auth.NewPasswordHasher(4), tokens), tokens
}

func echoUser(_ context.Context, u model.User) model.User { return u }

func TestAuthService_Register(t *testing.T) {
	tests := []struct {
		name      string
		input     RegisterInput
		setupMock func(*repomock.UserRepository)
		wantErr   error
	}{
		{
			name:  "success normalizes email",
			input: RegisterInput{Name: " Alice ", Email: " Alice@Example.com ", Password: "pw123"},
			setupMock: func(m *repomock.UserRepository) {
				m.On("Create", mock.Anything, mock.MatchedBy(func(u model.User) bool {
					return u.Name == "Alice" && u.Email == "alice@example.com" &&
						u.PasswordHash != "" && u.PasswordHash != "pw123" && u.ID != ""
				})).Return(echoUser, nil)
			},
		},
		{name: "missing name", input: RegisterInput{Email: "a@example.com", Password: "pw"}, wantErr: ErrValidation},
		{name: "missing email", input: RegisterInput{Name: "A", Password: "pw"}, wantErr: ErrValidation},
		{name: "missing password", input: RegisterInput{Name: "A", Email: "a@example.com"}, wantErr: ErrValidation},
		{name: "invalid email", input: RegisterInput{Name: "A", Email: "nope", Password: "pw"}, wantErr: ErrValidation},
		{
			name:    "password too long",
			input:   RegisterInput{Name: "A", Email: "a@example.com", Password: strings.Repeat("x", 73)},
			wantErr: ErrValidation,
		},
		{
			name:  "duplicate email",
			input: RegisterInput{Name: "A", Email: "a@example.com", Password: "other"},
			setupMock: func(m *repomock.UserRepository) {
				m.On("Create", mock.Anything, mock.Anything).Return(model.User{}, repo.ErrorConflict)
			},
			wantErr: ErrEmailTaken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(repomock.UserRepository)
			if tt.setupMock != nil {
				tt.setupMock(users)
			}
			svc, tokens := newAuthService(users)

			user, token, err := svc.Register(context.Background(), tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
				users.AssertExpectations(t)
				return
			}
			require.NoError(t, err)

			userID, err := tokens.Verify(token)
			require.NoError(t, err)
			assert.Equal(t, user.ID, userID)
			users.AssertExpectations(t)
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	hash, err := auth.NewPasswordHasher(4).Hash("pw123")
	require.NoError(t, err)
	alice := model.User{ID: "user-1", Name: "Alice", Email: "alice@example.com", PasswordHash: hash}

	tests := []struct {
		name      string
		email     string
		password  string
		setupMock func(*repomock.UserRepository)
		wantErr   error
	}{
		{
			name:     "success",
			email:    "ALICE@example.com",
			password: "pw123",
			setupMock: func(m *repomock.UserRepository) {
				m.On("GetByEmail", mock.Anything, "alice@example.com").Return(alice, nil)
			},
		},
		{
			name:     "wrong password",
			email:    "alice@example.com",
			password: "pw124",
			setupMock: func(m *repomock.UserRepository) {
				m.On("GetByEmail", mock.Anything, "alice@example.com").Return(alice, nil)
			},
			wantErr: ErrUnauthorized,
		},
		{
			name:     "unknown email",
			email:    "bob@example.com",
			password: "pw123",
			setupMock: func(m *repomock.UserRepository) {
				m.On("GetByEmail", mock.Anything, "bob@example.com").Return(model.User{}, repo.ErrorNotFound)
			},
			wantErr: ErrUnauthorized,
		},
		{
			name:     "store failure is not an auth error",
			email:    "alice@example.com",
			password: "pw123",
			setupMock: func(m *repomock.UserRepository) {
				m.On("GetByEmail", mock.Anything, "alice@example.com").Return(model.User{}, errors.New("db down"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := new(repomock.UserRepository)
			tt.setupMock(users)
			svc, _ := newAuthService(users)

			user, token, err := svc.Login(context.Background(), tt.email, tt.password)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
			case tt.name == "store failure is not an auth error":
				require.Error(t, err)
				assert.NotErrorIs(t, err, ErrUnauthorized)
			default:
				require.NoError(t, err)
				assert.Equal(t, alice.ID, user.ID)
				assert.NotEmpty(t, token)
			}
			users.AssertExpectations(t)
		})
	}
}

func TestAuthService_VerifyToken(t *testing.T) {
	svc, tokens := newAuthService(new(repomock.UserRepository))

	token, err := tokens.Issue("user-1")
	require.NoError(t, err)

	userID, err := svc.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	_, err = svc.VerifyToken(context.Background(), token+"x")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestAuthService_CurrentUser(t *testing.T) {
	users := new(repomock.UserRepository)
	users.On("GetByID", mock.Anything, "user-1").Return(model.User{ID: "user-1"}, nil)
	users.On("GetByID", mock.Anything, "ghost").Return(model.User{}, repo.ErrorNotFound)
	svc, _ := newAuthService(users)

	u, err := svc.CurrentUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)

	_, err = svc.CurrentUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUnauthorized)
}
