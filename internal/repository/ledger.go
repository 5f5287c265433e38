package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/smm-panel/internal/model"
)

// ReadBalance возвращает текущий баланс пользователя.
func (r *PostgresRepository) ReadBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var balance pgtype.Numeric
	err := r.pool.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1`, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("user: %w", model.ErrNotFound)
		}
		return decimal.Zero, fmt.Errorf("read balance: %w", err)
	}
	return fromNumeric(balance), nil
}

// ApplyTransaction записывает операцию и новый баланс одной транзакцией БД.
func (r *PostgresRepository) ApplyTransaction(ctx context.Context, draft model.TransactionDraft) (*model.Transaction, error) {
	var res *model.Transaction
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		t, err := applyInTx(ctx, tx, draft)
		if err != nil {
			return err
		}
		res = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SetBalance записывает ручную операцию, после которой баланс равен value.
// Если баланс уже равен value, операция не записывается и возвращается nil.
func (r *PostgresRepository) SetBalance(ctx context.Context, userID uuid.UUID, value decimal.Decimal, description string) (*model.Transaction, error) {
	var res *model.Transaction
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		res = nil

		var balance pgtype.Numeric
		err := tx.QueryRow(ctx, `SELECT balance FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("user: %w", model.ErrNotFound)
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		delta := model.RoundMoney(value).Sub(fromNumeric(balance))
		if delta.IsZero() {
			return nil
		}

		t, err := applyInTx(ctx, tx, model.TransactionDraft{
			UserID:      userID,
			Type:        model.TransactionManual,
			Amount:      delta,
			Description: description,
		})
		if err != nil {
			return err
		}
		res = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// applyInTx блокирует строку пользователя, вычисляет остатки и записывает операцию.
// Блокировка строки пользователя сериализует все изменения его баланса.
func applyInTx(ctx context.Context, tx pgx.Tx, draft model.TransactionDraft) (*model.Transaction, error) {
	var (
		balance pgtype.Numeric
		frozen  bool
	)
	err := tx.QueryRow(ctx,
		`SELECT balance, ledger_frozen FROM users WHERE id = $1 FOR UPDATE`,
		draft.UserID,
	).Scan(&balance, &frozen)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("lock user for update: %w", err)
	}

	before := fromNumeric(balance)
	draft.Amount = model.RoundMoney(draft.Amount)
	if draft.Amount.IsZero() {
		return nil, model.NewValidationError("amount", "amount must not be zero")
	}

	if frozen && draft.Type != model.TransactionManual {
		return nil, &model.DriftError{UserID: draft.UserID, Stored: before, Detail: "ledger frozen until drift is resolved"}
	}

	after := before.Add(draft.Amount)
	if after.IsNegative() {
		if draft.Type == model.TransactionPurchase {
			return nil, model.ErrInsufficientBalance
		}
		return nil, model.NewValidationError("amount", "balance cannot become negative")
	}

	t := &model.Transaction{
		ID:               uuid.New(),
		UserID:           draft.UserID,
		Type:             draft.Type,
		Amount:           draft.Amount,
		BalanceBefore:    before,
		BalanceAfter:     after,
		OrderID:          draft.OrderID,
		PaymentMethod:    draft.PaymentMethod,
		PaymentReference: draft.PaymentReference,
		Description:      draft.Description,
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO transactions
		   (id, user_id, type, amount, balance_before, balance_after, order_id,
		    payment_method, payment_reference, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		t.ID, t.UserID, string(t.Type), toNumeric(t.Amount), toNumeric(before), toNumeric(after),
		t.OrderID, t.PaymentMethod, t.PaymentReference, t.Description,
	).Scan(&t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET balance = $2 WHERE id = $1`, draft.UserID, toNumeric(after)); err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}

	return t, nil
}

// ListTransactions возвращает журнал пользователя в порядке записи.
func (r *PostgresRepository) ListTransactions(ctx context.Context, userID uuid.UUID) ([]model.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, type, amount, balance_before, balance_after, order_id,
		        payment_method, payment_reference, description, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select transactions: %w", err)
	}
	defer rows.Close()

	var res []model.Transaction
	for rows.Next() {
		var (
			t                     model.Transaction
			typ                   string
			amount, before, after pgtype.Numeric
		)
		if err := rows.Scan(&t.ID, &t.UserID, &typ, &amount, &before, &after, &t.OrderID,
			&t.PaymentMethod, &t.PaymentReference, &t.Description, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Type = model.TransactionType(typ)
		t.Amount = fromNumeric(amount)
		t.BalanceBefore = fromNumeric(before)
		t.BalanceAfter = fromNumeric(after)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// FreezeLedger блокирует автоматические операции пользователя до устранения расхождения.
func (r *PostgresRepository) FreezeLedger(ctx context.Context, userID uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE users SET ledger_frozen = TRUE, frozen_reason = $2 WHERE id = $1`,
		userID, reason,
	)
	if err != nil {
		return fmt.Errorf("freeze ledger: %w", err)
	}
	return nil
}

// ResolveDrift пересчитывает баланс как первый остаток журнала плюс сумма операций
// (так же, как сверка) и снимает блокировку.
func (r *PostgresRepository) ResolveDrift(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		var dummy int
		err := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&dummy)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("user: %w", model.ErrNotFound)
			}
			return fmt.Errorf("lock user for update: %w", err)
		}

		var sum pgtype.Numeric
		err = tx.QueryRow(ctx,
			`SELECT COALESCE((SELECT balance_before FROM transactions
			                   WHERE user_id = $1 ORDER BY seq LIMIT 1), 0)
			      + COALESCE(SUM(amount), 0)
			 FROM transactions WHERE user_id = $1`,
			userID,
		).Scan(&sum)
		if err != nil {
			return fmt.Errorf("sum transactions: %w", err)
		}
		balance = fromNumeric(sum)

		_, err = tx.Exec(ctx,
			`UPDATE users SET balance = $2, ledger_frozen = FALSE, frozen_reason = '' WHERE id = $1`,
			userID, toNumeric(balance),
		)
		if err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}
