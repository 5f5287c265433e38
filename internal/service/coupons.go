package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/smm-panel/internal/metrics"
	"github.com/mmeshcher/smm-panel/internal/model"
)

// RedeemResult описывает итог применения купона.
type RedeemResult struct {
	Applied     bool
	Reason      model.CouponReason
	Coupon      *model.Coupon
	Transaction *model.Transaction
}

// RedeemCoupon применяет купон на пополнение баланса.
// Отказ по правилам купона возвращается в Reason без ошибки.
func (s *Service) RedeemCoupon(ctx context.Context, userID uuid.UUID, code string) (*RedeemResult, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewValidationError("code", "coupon code is required")
	}

	c, t, err := s.repo.RedeemBalanceCoupon(ctx, code, userID)
	if err != nil {
		var rejected *model.CouponRejectedError
		if errors.As(err, &rejected) {
			metrics.IncCoupon(string(rejected.Reason))
			return &RedeemResult{Reason: rejected.Reason}, nil
		}
		return nil, err
	}

	metrics.IncCoupon("applied")
	metrics.IncTransaction(string(t.Type))
	return &RedeemResult{Applied: true, Coupon: c, Transaction: t}, nil
}
