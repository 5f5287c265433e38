package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-panel/internal/lifecycle"
	"github.com/mmeshcher/smm-panel/internal/metrics"
	"github.com/mmeshcher/smm-panel/internal/model"
	"github.com/mmeshcher/smm-panel/internal/pricing"
	"github.com/mmeshcher/smm-panel/internal/validation"
)

// PlaceOrderInput содержит данные нового заказа.
type PlaceOrderInput struct {
	ServiceID  uuid.UUID
	Link       string
	Quantity   int64
	Comments   []string
	CouponCode string
}

// PlaceOrderResult описывает результат размещения заказа.
// SubmitErr заполнен, если заказ оплачен, но поставщик его пока не принял.
type PlaceOrderResult struct {
	Order       *model.Order
	Transaction *model.Transaction
	SubmitErr   error
}

// PlaceOrder проверяет заказ, списывает его цену и передаёт заказ поставщику.
// Списание и создание заказа выполняются атомарно; сбой поставщика оставляет заказ в статусе pending.
func (s *Service) PlaceOrder(ctx context.Context, userID uuid.UUID, in PlaceOrderInput) (*PlaceOrderResult, error) {
	svc, err := s.repo.GetService(ctx, in.ServiceID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.NewValidationError("service_id", "service not found")
		}
		return nil, err
	}
	if !svc.Active {
		return nil, model.NewValidationError("service_id", "service is not available")
	}

	link := strings.TrimSpace(in.Link)
	if !validation.IsValidLink(link) {
		return nil, model.NewValidationError("link", "invalid link")
	}

	price, err := pricing.ComputeOrderPrice(*svc, in.Quantity, in.Comments)
	if err != nil {
		return nil, err
	}

	o := model.Order{
		ID:        uuid.New(),
		UserID:    userID,
		ServiceID: svc.ID,
		Link:      link,
		Quantity:  in.Quantity,
		Comments:  in.Comments,
	}

	if code := strings.TrimSpace(in.CouponCode); code != "" {
		c, err := s.repo.GetCouponByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		if c.Type != model.CouponDiscount {
			return nil, &model.CouponRejectedError{Code: c.Code, Reason: model.CouponWrongType}
		}
		if reason, rejected := c.Rejection(s.now()); rejected {
			return nil, &model.CouponRejectedError{Code: c.Code, Reason: reason}
		}
		price = pricing.ApplyDiscount(price, c.Value)
		o.CouponID = &c.ID
	}
	o.Price = price

	created, purchase, err := s.repo.CreateOrder(ctx, o)
	if err != nil {
		var rejected *model.CouponRejectedError
		if errors.As(err, &rejected) {
			metrics.IncCoupon(string(rejected.Reason))
		}
		return nil, err
	}
	metrics.IncTransaction(string(model.TransactionPurchase))
	if created.CouponID != nil {
		metrics.IncCoupon("applied")
	}

	res := &PlaceOrderResult{Order: created, Transaction: purchase}

	submitted, err := s.SubmitOrder(ctx, created.ID)
	if err != nil {
		s.logger.Warn("order submission failed, left pending",
			zap.String("orderID", created.ID.String()),
			zap.Int64("number", created.Number),
			zap.Error(err),
		)
		res.SubmitErr = err
		if current, getErr := s.repo.GetOrder(ctx, created.ID); getErr == nil {
			res.Order = current
		}
		return res, nil
	}

	res.Order = submitted
	return res, nil
}

// SubmitOrder передаёт ожидающий заказ поставщику. Повторный вызов для уже принятого заказа
// возвращает заказ без повторной отправки.
func (s *Service) SubmitOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.ExternalOrderID != nil {
		return o, nil
	}
	if o.Status != model.OrderPending {
		return nil, fmt.Errorf("%w: order %s is %s", model.ErrConflict, o.ID, o.Status)
	}

	if s.provider == nil {
		return nil, &model.ExternalServiceError{Service: "provider", Err: errors.New("provider client not configured")}
	}

	svc, err := s.repo.GetService(ctx, o.ServiceID)
	if err != nil {
		return nil, err
	}
	p, err := s.repo.GetProvider(ctx, svc.ProviderID)
	if err != nil {
		return nil, err
	}

	externalID, err := s.provider.AddOrder(ctx, *p, *svc, *o)
	if err != nil {
		var ext *model.ExternalServiceError
		if !errors.As(err, &ext) {
			err = &model.ExternalServiceError{Service: p.Name, Retryable: true, Err: err}
		}
		if setErr := s.repo.SetOrderError(ctx, o.ID, err.Error()); setErr != nil {
			s.logger.Warn("save provider error", zap.String("orderID", o.ID.String()), zap.Error(setErr))
		}
		return nil, err
	}

	pending := model.OrderPending
	cleared := ""
	updated, err := s.repo.UpdateOrderStatus(ctx, o.ID, &pending, model.OrderProcessing, model.OrderUpdate{
		ExternalOrderID: &externalID,
		ErrorMessage:    &cleared,
	})
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			s.logger.Warn("order changed during submission",
				zap.String("orderID", o.ID.String()),
				zap.String("externalID", externalID),
			)
		}
		return nil, err
	}

	metrics.IncTransition(string(model.OrderPending), string(model.OrderProcessing))
	s.logger.Info("order submitted",
		zap.String("orderID", o.ID.String()),
		zap.String("externalID", externalID),
	)
	return updated, nil
}

// Источники событий статуса заказа.
const (
	SourceAdmin   = "admin"
	SourceWebhook = "webhook"
	SourcePoller  = "poller"
)

// StatusEvent сообщает об изменении состояния заказа от поставщика или администратора.
type StatusEvent struct {
	OrderID    uuid.UUID
	Status     model.OrderStatus
	StartCount *int64
	Remains    *int64
	Source     string
}

// ApplyStatusEvent применяет изменение статуса заказа. Опрос поставщика, вебхук и администратор идут только через неё.
// Повторное событие с тем же статусом не меняет статус; при гонке заказ перечитывается и переход проверяется заново один раз.
// Возврат средств доступен только администратору. Если поставщик сообщает более ранний активный статус,
// статус заказа сохраняется, а счётчики применяются.
func (s *Service) ApplyStatusEvent(ctx context.Context, ev StatusEvent) (*model.Order, error) {
	if ev.Status == model.OrderRefunded {
		if ev.Source != SourceAdmin {
			return nil, model.NewValidationError("status", "refunds are issued by an administrator only")
		}
		o, _, err := s.RefundOrder(ctx, ev.OrderID, "")
		return o, err
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		o, err := s.repo.GetOrder(ctx, ev.OrderID)
		if err != nil {
			return nil, err
		}

		target := ev.Status
		if ev.Source != SourceAdmin && lifecycle.Behind(target, o.Status) {
			target = o.Status
		}

		decision, err := lifecycle.Check(o.Status, target)
		if err != nil {
			return nil, err
		}

		upd := model.OrderUpdate{StartCount: ev.StartCount, Remains: ev.Remains}
		if decision == lifecycle.Noop && (lifecycle.IsTerminal(o.Status) || (upd.StartCount == nil && upd.Remains == nil)) {
			return o, nil
		}

		if target == model.OrderCompleted {
			now := s.now()
			zero := int64(0)
			upd.CompletedAt = &now
			upd.Remains = &zero
		}

		expected := o.Status
		updated, err := s.repo.UpdateOrderStatus(ctx, o.ID, &expected, target, upd)
		if err == nil {
			if decision == lifecycle.Apply {
				metrics.IncTransition(string(o.Status), string(target))
				s.logger.Info("order status changed",
					zap.String("orderID", o.ID.String()),
					zap.String("from", string(o.Status)),
					zap.String("to", string(target)),
					zap.String("source", ev.Source),
				)
			}
			return updated, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// RefundOrder переводит заказ в статус refunded и возвращает пользователю полную цену заказа.
func (s *Service) RefundOrder(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, *model.Transaction, error) {
	o, t, err := s.repo.RefundOrder(ctx, orderID, reason)
	if err != nil {
		return nil, nil, err
	}
	metrics.IncTransaction(string(model.TransactionRefund))
	metrics.IncTransition("any", string(model.OrderRefunded))
	s.logger.Info("order refunded",
		zap.String("orderID", o.ID.String()),
		zap.String("amount", t.Amount.String()),
	)
	return o, t, nil
}

// CancelOrder отменяет активный заказ без возврата средств.
func (s *Service) CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	decision, err := lifecycle.Check(o.Status, model.OrderCancelled)
	if err != nil {
		return nil, err
	}
	if decision == lifecycle.Noop {
		return o, nil
	}

	upd := model.OrderUpdate{}
	if reason != "" {
		upd.ErrorMessage = &reason
	}
	expected := o.Status
	updated, err := s.repo.UpdateOrderStatus(ctx, o.ID, &expected, model.OrderCancelled, upd)
	if err != nil {
		return nil, err
	}
	metrics.IncTransition(string(expected), string(model.OrderCancelled))
	return updated, nil
}

// CorrectionInput содержит ручную правку счётчиков заказа.
type CorrectionInput struct {
	StartCount *int64
	Remains    *int64
}

// CorrectOrder исправляет start_count и remains заказа. Только здесь остаток может вырасти.
func (s *Service) CorrectOrder(ctx context.Context, orderID uuid.UUID, in CorrectionInput) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if in.StartCount == nil && in.Remains == nil {
		return o, nil
	}
	if in.StartCount != nil && *in.StartCount < 0 {
		return nil, model.NewValidationError("start_count", "must not be negative")
	}
	if in.Remains != nil && (*in.Remains < 0 || *in.Remains > o.Quantity) {
		return nil, model.NewValidationError("remains", "must be between 0 and %d", o.Quantity)
	}

	expected := o.Status
	return s.repo.UpdateOrderStatus(ctx, o.ID, &expected, o.Status, model.OrderUpdate{
		StartCount:     in.StartCount,
		Remains:        in.Remains,
		CorrectRemains: true,
	})
}

// GetOrder возвращает заказ пользователя. Чужой заказ считается ненайденным.
func (s *Service) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*model.Order, error) {
	o, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, fmt.Errorf("order: %w", model.ErrNotFound)
	}
	return o, nil
}

// ListOrders возвращает заказы пользователя.
func (s *Service) ListOrders(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return s.repo.ListOrdersByUser(ctx, userID)
}
