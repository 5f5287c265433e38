package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrUserExists возвращается при попытке создать пользователя с уже существующим логином.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidCredentials возвращается при неверном логине или пароле.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInsufficientBalance возвращается, если покупка уводит баланс в минус.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrConflict возвращается, когда операция проиграла гонку или запрещена текущим состоянием.
	// Повтор безопасен.
	ErrConflict = errors.New("conflict")
	// ErrInvalidCode возвращается при неверном, просроченном или использованном коде.
	ErrInvalidCode = errors.New("invalid or expired code")
	// ErrRateLimited возвращается при слишком частой отправке кодов.
	ErrRateLimited = errors.New("rate limited")
	// ErrTwoFactorRequired возвращается при входе пользователя с включённой 2FA.
	ErrTwoFactorRequired = errors.New("two-factor code required")
)

// ValidationError описывает ошибку входных данных для конкретного поля.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// NewValidationError создаёт ошибку валидации поля.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ExternalServiceError оборачивает сбой поставщика, платёжного шлюза или функции.
type ExternalServiceError struct {
	Service   string
	Retryable bool
	Err       error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// DriftError сообщает о расхождении сохранённого баланса и суммы журнала.
// Пока расхождение не устранено, автоматические списания и зачисления пользователя заблокированы.
type DriftError struct {
	UserID   uuid.UUID
	Stored   decimal.Decimal
	Computed decimal.Decimal
	Detail   string
}

func (e *DriftError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("ledger drift for user %s: %s", e.UserID, e.Detail)
	}
	return fmt.Sprintf("ledger drift for user %s: stored %s, computed %s",
		e.UserID, e.Stored.StringFixed(2), e.Computed.StringFixed(2))
}

// CouponReason описывает причину отказа в применении купона.
type CouponReason string

const (
	CouponNotFound       CouponReason = "not_found"
	CouponInactive       CouponReason = "inactive"
	CouponNotStarted     CouponReason = "not_started"
	CouponExpired        CouponReason = "expired"
	CouponMaxUsesReached CouponReason = "max_uses_reached"
	CouponAlreadyUsed    CouponReason = "already_used"
	CouponWrongType      CouponReason = "wrong_type"
)

// CouponRejectedError возвращается, если купон нельзя применить.
type CouponRejectedError struct {
	Code   string
	Reason CouponReason
}

func (e *CouponRejectedError) Error() string {
	return fmt.Sprintf("coupon %q rejected: %s", e.Code, e.Reason)
}
