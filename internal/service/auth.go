package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/BuzzLyutic/tasknest-api/internal/auth"
	"github.com/BuzzLyutic/tasknest-api/internal/model"
	"github.com/BuzzLyutic/tasknest-api/internal/repo"
)

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

type AuthService struct {
	users  repo.UserRepository
	hasher *auth.PasswordHasher
	tokens *auth.TokenManager
}

func NewAuthService(users repo.UserRepository, hasher *auth.PasswordHasher, tokens *auth.TokenManager) *AuthService {
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
	}
}

// Register stores a new user and returns it with a fresh token.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.User, string, error) {
	name := strings.TrimSpace(in.Name)
	email := model.NormalizeEmail(in.Email)

	switch {
	case name == "":
		return model.User{}, "", validationf("name is required")
	case email == "":
		return model.User{}, "", validationf("email is required")
	case in.Password == "":
		return model.User{}, "", validationf("password is required")
	case len(in.Password) > auth.MaxPasswordBytes:
		return model.User{}, "", validationf("password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return model.User{}, "", validationf("email is invalid")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, "", fmt.Errorf("hash password: %w", err)
	}

	user, err := s.users.Create(ctx, model.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, repo.ErrorConflict) {
			return model.User{}, "", ErrEmailTaken
		}
		return model.User{}, "", fmt.Errorf("create user: %w", err)
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return model.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login checks credentials and returns the user with a fresh token.
func (s *AuthService) Login(ctx context.Context, email, password string) (model.User, string, error) {
	user, err := s.users.GetByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, repo.ErrorNotFound) {
			s.hasher.Waste(password)
			return model.User{}, "", ErrUnauthorized
		}
		return model.User{}, "", fmt.Errorf("find user: %w", err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return model.User{}, "", ErrUnauthorized
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return model.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// VerifyToken resolves a bearer token to its user id without touching the store.
func (s *AuthService) VerifyToken(_ context.Context, token string) (string, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return userID, nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID string) (model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrorNotFound) {
			return model.User{}, ErrUnauthorized
		}
		return model.User{}, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}
