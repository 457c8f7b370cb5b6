package service

import (
	"context"
	"strings"

	"parkhere/internal/apperrors"
	"parkhere/internal/auth"
	"parkhere/internal/db"

	"golang.org/x/crypto/bcrypt"
)

// UserCreator extends UserStore with registration.
type UserCreator interface {
	UserStore
	CreateUser(ctx context.Context, u *db.User) error
}

type AuthService struct {
	users  UserCreator
	tokens *auth.Service
}

func NewAuthService(users UserCreator, tokens *auth.Service) *AuthService {
	return &AuthService{users: users, tokens: tokens}
}

func (s *AuthService) Register(ctx context.Context, email, name, phone, password string) (*db.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, apperrors.InvalidArgument("email and password are required")
	}
	if len(password) < 8 {
		return nil, apperrors.InvalidArgument("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &db.User{
		Email:        email,
		Name:         name,
		Phone:        phone,
		PasswordHash: string(hash),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (string, *db.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	user, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindNotFound) {
			return "", nil, apperrors.Unauthorized("invalid credentials")
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, apperrors.Unauthorized("invalid credentials")
	}
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
