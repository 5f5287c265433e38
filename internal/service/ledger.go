package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-panel/internal/metrics"
	"github.com/mmeshcher/smm-panel/internal/model"
)

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	return s.repo.ReadBalance(ctx, userID)
}

// ListTransactions возвращает журнал операций пользователя в порядке записи.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID) ([]model.Transaction, error) {
	return s.repo.ListTransactions(ctx, userID)
}

// ApplyTransaction проверяет знак суммы для типа операции и записывает операцию вместе с новым балансом.
func (s *Service) ApplyTransaction(ctx context.Context, draft model.TransactionDraft) (*model.Transaction, error) {
	draft.Amount = model.RoundMoney(draft.Amount)
	if err := validateDraft(draft); err != nil {
		return nil, err
	}

	t, err := s.repo.ApplyTransaction(ctx, draft)
	if err != nil {
		return nil, err
	}
	metrics.IncTransaction(string(t.Type))
	return t, nil
}

func validateDraft(d model.TransactionDraft) error {
	if !d.Type.Valid() {
		return model.NewValidationError("type", "unknown transaction type %q", d.Type)
	}
	if d.Amount.IsZero() {
		return model.NewValidationError("amount", "amount must not be zero")
	}

	switch d.Type {
	case model.TransactionPurchase:
		if d.Amount.IsPositive() {
			return model.NewValidationError("amount", "purchase amount must be negative")
		}
	case model.TransactionManual:
	default:
		if d.Amount.IsNegative() {
			return model.NewValidationError("amount", "%s amount must be positive", d.Type)
		}
	}
	return nil
}

// AdjustBalance изменяет баланс пользователя на delta ручной операцией администратора.
func (s *Service) AdjustBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, description string) (*model.Transaction, error) {
	if description == "" {
		description = "Manual balance adjustment"
	}
	return s.ApplyTransaction(ctx, model.TransactionDraft{
		UserID:      userID,
		Type:        model.TransactionManual,
		Amount:      delta,
		Description: description,
	})
}

// SetBalance устанавливает баланс пользователя ручной операцией на разницу с текущим значением.
// Возвращает nil, если баланс уже равен value.
func (s *Service) SetBalance(ctx context.Context, userID uuid.UUID, value decimal.Decimal, description string) (*model.Transaction, error) {
	value = model.RoundMoney(value)
	if value.IsNegative() {
		return nil, model.NewValidationError("balance", "balance cannot be negative")
	}
	if description == "" {
		description = "Balance set by administrator"
	}

	t, err := s.repo.SetBalance(ctx, userID, value, description)
	if err != nil {
		return nil, err
	}
	if t != nil {
		metrics.IncTransaction(string(t.Type))
	}
	return t, nil
}

// ReconcileReport описывает результат сверки журнала пользователя.
type ReconcileReport struct {
	UserID       uuid.UUID
	Stored       decimal.Decimal
	Computed     decimal.Decimal
	Transactions int
	Consistent   bool
}

// Reconcile сверяет сохранённый баланс с суммой журнала.
// При расхождении журнал пользователя замораживается и возвращается *model.DriftError.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (*ReconcileReport, error) {
	u, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, userID)
	if err != nil {
		return nil, err
	}

	computed, driftErr := checkLedger(u.ID, u.Balance, txs)
	report := &ReconcileReport{
		UserID:       u.ID,
		Stored:       u.Balance,
		Computed:     computed,
		Transactions: len(txs),
		Consistent:   driftErr == nil,
	}
	if driftErr == nil {
		return report, nil
	}

	metrics.IncDrift()
	s.logger.Error("ledger drift detected",
		zap.String("userID", u.ID.String()),
		zap.String("stored", u.Balance.String()),
		zap.String("computed", computed.String()),
		zap.Error(driftErr),
	)

	if !u.LedgerFrozen {
		if err := s.repo.FreezeLedger(ctx, u.ID, driftErr.Error()); err != nil {
			return report, errors.Join(driftErr, err)
		}
	}
	return report, driftErr
}

// checkLedger проверяет каждую запись и непрерывность цепочки остатков
// и сравнивает сохранённый баланс с первым остатком плюс суммой всех операций.
func checkLedger(userID uuid.UUID, stored decimal.Decimal, txs []model.Transaction) (decimal.Decimal, *model.DriftError) {
	if len(txs) == 0 {
		if !stored.IsZero() {
			return decimal.Zero, &model.DriftError{UserID: userID, Stored: stored, Computed: decimal.Zero}
		}
		return decimal.Zero, nil
	}

	computed := txs[0].BalanceBefore
	for i, t := range txs {
		if !t.BalanceBefore.Add(t.Amount).Equal(t.BalanceAfter) {
			return computed, &model.DriftError{
				UserID: userID, Stored: stored, Computed: computed,
				Detail: fmt.Sprintf("transaction %s: %s + %s != %s", t.ID, t.BalanceBefore, t.Amount, t.BalanceAfter),
			}
		}
		if i > 0 && !txs[i-1].BalanceAfter.Equal(t.BalanceBefore) {
			return computed, &model.DriftError{
				UserID: userID, Stored: stored, Computed: computed,
				Detail: fmt.Sprintf("transaction %s: chain broken, previous after %s, before %s",
					t.ID, txs[i-1].BalanceAfter, t.BalanceBefore),
			}
		}
		computed = computed.Add(t.Amount)
	}

	if !computed.Equal(stored) {
		return computed, &model.DriftError{UserID: userID, Stored: stored, Computed: computed}
	}
	return computed, nil
}

// ReconcileAll сверяет журналы всех пользователей и возвращает число найденных расхождений.
func (s *Service) ReconcileAll(ctx context.Context) (int, error) {
	ids, err := s.repo.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}

	drifts := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return drifts, ctx.Err()
		}
		if _, err := s.Reconcile(ctx, id); err != nil {
			var drift *model.DriftError
			if errors.As(err, &drift) {
				drifts++
				continue
			}
			s.logger.Warn("reconcile user error", zap.String("userID", id.String()), zap.Error(err))
		}
	}

	s.logger.Info("ledger reconciliation finished", zap.Int("users", len(ids)), zap.Int("drifts", drifts))
	return drifts, nil
}

// ResolveDrift пересчитывает баланс пользователя по журналу и снимает заморозку.
func (s *Service) ResolveDrift(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	balance, err := s.repo.ResolveDrift(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	s.logger.Info("ledger drift resolved", zap.String("userID", userID.String()), zap.String("balance", balance.String()))
	return balance, nil
}
