package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-panel/internal/gateway"
	"github.com/mmeshcher/smm-panel/internal/metrics"
	"github.com/mmeshcher/smm-panel/internal/model"
	"github.com/mmeshcher/smm-panel/internal/pricing"
)

// QuoteTopUp рассчитывает комиссию, бонус и итог пополнения без создания платежа.
func (s *Service) QuoteTopUp(ctx context.Context, gatewayID uuid.UUID, amount decimal.Decimal) (*model.PaymentGateway, pricing.TopUpQuote, error) {
	gw, err := s.repo.GetGateway(ctx, gatewayID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, pricing.TopUpQuote{}, model.NewValidationError("gateway_id", "payment method not found")
		}
		return nil, pricing.TopUpQuote{}, err
	}
	if !gw.Active {
		return nil, pricing.TopUpQuote{}, model.NewValidationError("gateway_id", "payment method is not available")
	}

	tiers, err := s.repo.ListBonusTiers(ctx)
	if err != nil {
		return nil, pricing.TopUpQuote{}, err
	}
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, pricing.TopUpQuote{}, err
	}

	q, err := pricing.ComputeTopUp(amount, *gw, tiers, settings.BonusEnabled)
	if err != nil {
		return nil, pricing.TopUpQuote{}, err
	}
	return gw, q, nil
}

// CreateTopUp создаёт заявку на пополнение и платёж во внешнем шлюзе.
// Баланс не меняется до подтверждения платежа.
func (s *Service) CreateTopUp(ctx context.Context, userID, gatewayID uuid.UUID, amount decimal.Decimal) (*model.Payment, error) {
	gw, q, err := s.QuoteTopUp(ctx, gatewayID, amount)
	if err != nil {
		return nil, err
	}

	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	g, err := gateway.New(*gw, s.functions)
	if err != nil {
		return nil, &model.ExternalServiceError{Service: gw.Slug, Err: err}
	}

	p, err := s.repo.CreatePayment(ctx, model.Payment{
		ID:        uuid.New(),
		UserID:    userID,
		GatewayID: gw.ID,
		Amount:    q.Amount,
		Fee:       q.Fee,
		Bonus:     q.Bonus,
		Total:     q.Total,
	})
	if err != nil {
		return nil, err
	}
	metrics.IncTopUp("initiated")

	co, err := g.Checkout(ctx, gateway.Request{
		PaymentID: p.ID,
		UserID:    userID,
		Email:     u.Login,
		Amount:    q.Amount,
		Total:     q.Total,
	})
	if err != nil {
		if _, failErr := s.repo.FailPayment(ctx, p.ID, err.Error()); failErr != nil {
			s.logger.Warn("mark payment failed", zap.String("paymentID", p.ID.String()), zap.Error(failErr))
		}
		metrics.IncTopUp("failed")
		return nil, err
	}

	if err := s.repo.SetPaymentCheckout(ctx, p.ID, co.Reference, co.URL); err != nil {
		return nil, err
	}
	p.Reference = co.Reference
	p.CheckoutURL = co.URL
	return p, nil
}

// ConfirmPayment подтверждает пополнение и зачисляет депозит, бонус и реферальное вознаграждение.
// Повторное подтверждение возвращает платёж без новых операций.
func (s *Service) ConfirmPayment(ctx context.Context, paymentID uuid.UUID, reference string) (*model.Payment, []model.Transaction, error) {
	settings, err := s.repo.GetSettings(ctx)
	if err != nil {
		return nil, nil, err
	}

	p, txs, err := s.repo.CompletePayment(ctx, paymentID, reference, settings.ReferralPercentage)
	if err != nil {
		var drift *model.DriftError
		if errors.As(err, &drift) {
			s.logger.Error("payment blocked by frozen ledger",
				zap.String("paymentID", paymentID.String()),
				zap.String("userID", drift.UserID.String()),
			)
		}
		return nil, nil, err
	}

	if len(txs) == 0 {
		return p, nil, nil
	}

	metrics.IncTopUp("completed")
	for _, t := range txs {
		metrics.IncTransaction(string(t.Type))
	}
	s.logger.Info("payment completed",
		zap.String("paymentID", p.ID.String()),
		zap.String("userID", p.UserID.String()),
		zap.String("amount", p.Amount.String()),
		zap.String("bonus", p.Bonus.String()),
	)
	return p, txs, nil
}

// ConfirmPaymentByReference подтверждает пополнение по идентификатору платежа в шлюзе.
func (s *Service) ConfirmPaymentByReference(ctx context.Context, reference string) (*model.Payment, []model.Transaction, error) {
	p, err := s.repo.GetPaymentByReference(ctx, reference)
	if err != nil {
		return nil, nil, err
	}
	return s.ConfirmPayment(ctx, p.ID, reference)
}

// FailPayment отмечает ожидающее пополнение как неуспешное.
func (s *Service) FailPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*model.Payment, error) {
	p, err := s.repo.FailPayment(ctx, paymentID, reason)
	if err != nil {
		return nil, err
	}
	metrics.IncTopUp("failed")
	return p, nil
}

// ListTopUps возвращает пополнения пользователя.
func (s *Service) ListTopUps(ctx context.Context, userID uuid.UUID) ([]model.Payment, error) {
	return s.repo.ListPaymentsByUser(ctx, userID)
}
