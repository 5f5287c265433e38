package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/smm-panel/internal/model"
)

const (
	codeTTL         = 10 * time.Minute
	codeMaxAttempts = 5
	codeDigits      = 6
	sendCodeFunc    = "send-2fa-code"
)

var codeSpace = big.NewInt(1_000_000)

// SendCode создаёт новый код для purpose, заменяя предыдущий, и отправляет его пользователю.
func (s *Service) SendCode(ctx context.Context, userID uuid.UUID, purpose model.TwoFactorPurpose) error {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	switch purpose {
	case model.TwoFactorEnable:
		if u.TwoFactorEnabled {
			return fmt.Errorf("%w: two-factor authentication already enabled", model.ErrConflict)
		}
	case model.TwoFactorDisable:
		if !u.TwoFactorEnabled {
			return fmt.Errorf("%w: two-factor authentication not enabled", model.ErrConflict)
		}
	case model.TwoFactorLogin:
	default:
		return model.NewValidationError("purpose", "unknown purpose %q", purpose)
	}

	if s.limiter != nil {
		d, err := s.limiter.Allow(ctx, "2fa", u.ID.String())
		if err != nil {
			s.logger.Warn("two-factor rate limiter unavailable", zap.Error(err))
		} else if !d.Allowed {
			return fmt.Errorf("%w: retry after %s", model.ErrRateLimited, d.RetryAfter)
		}
	}

	code, err := generateCode()
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	err = s.repo.UpsertTwoFactorCode(ctx, model.TwoFactorCode{
		UserID:    u.ID,
		CodeHash:  hash,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(codeTTL),
	})
	if err != nil {
		return err
	}

	if s.functions == nil {
		return &model.ExternalServiceError{Service: sendCodeFunc, Err: errors.New("functions not configured")}
	}
	payload := map[string]string{
		"email":   u.Login,
		"code":    code,
		"purpose": string(purpose),
	}
	if err := s.functions.Invoke(ctx, sendCodeFunc, payload, nil); err != nil {
		return err
	}

	s.logger.Info("two-factor code sent", zap.String("userID", u.ID.String()), zap.String("purpose", string(purpose)))
	return nil
}

// VerifyCode проверяет код и при успехе применяет связанное с ним действие.
// Код одноразовый, действует 10 минут, допускает не больше 5 неверных попыток.
func (s *Service) VerifyCode(ctx context.Context, userID uuid.UUID, purpose model.TwoFactorPurpose, code string) error {
	now := s.now()
	_, err := s.repo.ConsumeTwoFactorCode(ctx, userID, func(c model.TwoFactorCode) error {
		switch {
		case c.UsedAt != nil:
			return fmt.Errorf("%w: code already used", model.ErrInvalidCode)
		case c.Purpose != purpose:
			return fmt.Errorf("%w: code issued for another action", model.ErrInvalidCode)
		case c.Attempts >= codeMaxAttempts:
			return fmt.Errorf("%w: too many attempts", model.ErrInvalidCode)
		case !now.Before(c.ExpiresAt):
			return fmt.Errorf("%w: code expired", model.ErrInvalidCode)
		}
		if bcrypt.CompareHashAndPassword(c.CodeHash, []byte(code)) != nil {
			return model.ErrInvalidCode
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("two-factor code verified", zap.String("userID", userID.String()), zap.String("purpose", string(purpose)))
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
