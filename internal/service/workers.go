package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-panel/internal/model"
	"github.com/mmeshcher/smm-panel/internal/provider"
)

const (
	pollBatchSize     = 100
	resubmitBatchSize = 50
	resubmitAfter     = 2 * time.Minute
)

// StartStatusUpdates запускает фоновый опрос поставщиков о статусах переданных заказов.
func (s *Service) StartStatusUpdates(ctx context.Context, interval time.Duration) {
	if s.provider == nil {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processStatusBatch(ctx)
			}
		}
	}()
}

func (s *Service) processStatusBatch(ctx context.Context) {
	orders, err := s.repo.ListOrdersForPolling(ctx, pollBatchSize)
	if err != nil {
		s.logger.Warn("list orders for polling", zap.Error(err))
		return
	}

	services := make(map[uuid.UUID]*model.Service)
	providers := make(map[uuid.UUID]*model.Provider)

	for _, o := range orders {
		if o.ExternalOrderID == nil {
			continue
		}

		svc, ok := services[o.ServiceID]
		if !ok {
			svc, err = s.repo.GetService(ctx, o.ServiceID)
			if err != nil {
				s.logger.Warn("get service for polling", zap.String("orderID", o.ID.String()), zap.Error(err))
				continue
			}
			services[o.ServiceID] = svc
		}

		p, ok := providers[svc.ProviderID]
		if !ok {
			p, err = s.repo.GetProvider(ctx, svc.ProviderID)
			if err != nil {
				s.logger.Warn("get provider for polling", zap.String("orderID", o.ID.String()), zap.Error(err))
				continue
			}
			providers[svc.ProviderID] = p
		}

		st, err := s.provider.GetStatus(ctx, *p, *o.ExternalOrderID)
		if err != nil {
			var retry *provider.RetryAfterError
			if errors.As(err, &retry) {
				if retry.Delay > 0 {
					timer := time.NewTimer(retry.Delay)
					select {
					case <-ctx.Done():
						timer.Stop()
						return
					case <-timer.C:
					}
				}
				continue
			}
			s.logger.Warn("poll provider status", zap.String("orderID", o.ID.String()), zap.Error(err))
			continue
		}

		status, ok := provider.MapStatus(st.Status)
		if !ok {
			s.logger.Warn("unknown provider status",
				zap.String("orderID", o.ID.String()),
				zap.String("status", st.Status),
			)
			continue
		}

		_, err = s.ApplyStatusEvent(ctx, StatusEvent{
			OrderID:    o.ID,
			Status:     status,
			StartCount: st.StartCount,
			Remains:    st.Remains,
			Source:     SourcePoller,
		})
		if err != nil {
			if errors.Is(err, model.ErrConflict) {
				s.logger.Debug("status event rejected", zap.String("orderID", o.ID.String()), zap.Error(err))
				continue
			}
			s.logger.Warn("apply polled status", zap.String("orderID", o.ID.String()), zap.Error(err))
		}
	}
}

// ResubmitPendingOrders повторно передаёт поставщику оплаченные заказы, которые он не принял.
// Возвращает число принятых заказов.
func (s *Service) ResubmitPendingOrders(ctx context.Context) (int, error) {
	orders, err := s.repo.ListUnsubmittedOrders(ctx, s.now().Add(-resubmitAfter), resubmitBatchSize)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, o := range orders {
		if ctx.Err() != nil {
			return submitted, ctx.Err()
		}
		if _, err := s.SubmitOrder(ctx, o.ID); err != nil {
			s.logger.Warn("resubmit order", zap.String("orderID", o.ID.String()), zap.Error(err))
			continue
		}
		submitted++
	}

	if len(orders) > 0 {
		s.logger.Info("pending orders resubmitted", zap.Int("candidates", len(orders)), zap.Int("submitted", submitted))
	}
	return submitted, nil
}
