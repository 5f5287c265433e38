package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/smm-panel/internal/model"
)

// RegisterInput содержит данные регистрации.
type RegisterInput struct {
	Login      string
	Password   string
	ReferrerID *uuid.UUID
}

// RegisterUser регистрирует нового пользователя с нулевым балансом.
func (s *Service) RegisterUser(ctx context.Context, in RegisterInput) (*model.User, error) {
	login := strings.ToLower(strings.TrimSpace(in.Login))
	if login == "" {
		return nil, model.NewValidationError("login", "login is required")
	}
	if len(in.Password) < 6 {
		return nil, model.NewValidationError("password", "password must be at least 6 characters")
	}

	if in.ReferrerID != nil {
		if _, err := s.repo.GetUser(ctx, *in.ReferrerID); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, model.NewValidationError("referrer_id", "referrer does not exist")
			}
			return nil, err
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := model.User{
		ID:           uuid.New(),
		Login:        login,
		PasswordHash: hashed,
		Role:         model.RoleUser,
		ReferredBy:   in.ReferrerID,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return &u, nil
}

// AuthenticateUser проверяет логин и пароль пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.repo.GetUserByLogin(ctx, strings.ToLower(strings.TrimSpace(login)))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}
	return u, nil
}

// Login аутентифицирует пользователя. Если у пользователя включена 2FA, отправляет код входа
// и возвращает model.ErrTwoFactorRequired вместе с пользователем.
func (s *Service) Login(ctx context.Context, login, password string) (*model.User, error) {
	u, err := s.AuthenticateUser(ctx, login, password)
	if err != nil {
		return nil, err
	}
	if !u.TwoFactorEnabled {
		return u, nil
	}

	if err := s.SendCode(ctx, u.ID, model.TwoFactorLogin); err != nil {
		return nil, err
	}
	return u, model.ErrTwoFactorRequired
}

// VerifyLogin завершает вход пользователя с включённой 2FA.
func (s *Service) VerifyLogin(ctx context.Context, login, password, code string) (*model.User, error) {
	u, err := s.AuthenticateUser(ctx, login, password)
	if err != nil {
		return nil, err
	}
	if err := s.VerifyCode(ctx, u.ID, model.TwoFactorLogin, code); err != nil {
		return nil, err
	}
	return u, nil
}

// GetUser возвращает пользователя.
func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return s.repo.GetUser(ctx, id)
}
