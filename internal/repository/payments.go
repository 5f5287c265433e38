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
	"github.com/mmeshcher/smm-panel/internal/pricing"
)

const paymentColumns = `id, user_id, gateway_id, amount, fee, bonus, total, status, reference,
	checkout_url, error, created_at, completed_at`

// CreatePayment сохраняет новую заявку на пополнение.
func (r *PostgresRepository) CreatePayment(ctx context.Context, p model.Payment) (*model.Payment, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO payments (id, user_id, gateway_id, amount, fee, bonus, total, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+paymentColumns,
		p.ID, p.UserID, p.GatewayID, toNumeric(p.Amount), toNumeric(p.Fee), toNumeric(p.Bonus),
		toNumeric(p.Total), string(model.PaymentPending),
	)
	saved, err := scanPayment(row)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return saved, nil
}

// SetPaymentCheckout сохраняет ссылку на оплату и идентификатор платежа в шлюзе.
func (r *PostgresRepository) SetPaymentCheckout(ctx context.Context, id uuid.UUID, reference, checkoutURL string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE payments SET reference = $2, checkout_url = $3 WHERE id = $1`,
		id, reference, checkoutURL,
	)
	if err != nil {
		return fmt.Errorf("set payment checkout: %w", err)
	}
	return nil
}

// GetPayment возвращает пополнение по идентификатору.
func (r *PostgresRepository) GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
}

// GetPaymentByReference возвращает пополнение по идентификатору платежа в шлюзе.
func (r *PostgresRepository) GetPaymentByReference(ctx context.Context, reference string) (*model.Payment, error) {
	return r.getPayment(ctx, `SELECT `+paymentColumns+` FROM payments WHERE reference = $1 AND reference <> ''`, reference)
}

func (r *PostgresRepository) getPayment(ctx context.Context, sql string, arg any) (*model.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, sql, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payment: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return p, nil
}

// ListPaymentsByUser возвращает пополнения пользователя, новые первыми.
func (r *PostgresRepository) ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]model.Payment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	defer rows.Close()

	var res []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		res = append(res, *p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// CompletePayment подтверждает пополнение и зачисляет депозит, бонус и реферальное вознаграждение
// одной транзакцией БД. Повторное подтверждение ничего не меняет и возвращает пустой список операций.
func (r *PostgresRepository) CompletePayment(ctx context.Context, id uuid.UUID, reference string, referralPct decimal.Decimal) (*model.Payment, []model.Transaction, error) {
	var (
		payment *model.Payment
		written []model.Transaction
	)

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		written = nil

		p, err := scanPayment(tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("payment: %w", model.ErrNotFound)
			}
			return fmt.Errorf("lock payment: %w", err)
		}

		switch p.Status {
		case model.PaymentCompleted:
			payment = p
			return nil
		case model.PaymentFailed:
			return fmt.Errorf("%w: payment %s already failed", model.ErrConflict, id)
		}

		if reference == "" {
			reference = p.Reference
		}

		var slug string
		if err := tx.QueryRow(ctx, `SELECT slug FROM payment_gateways WHERE id = $1`, p.GatewayID).Scan(&slug); err != nil {
			return fmt.Errorf("get gateway slug: %w", err)
		}

		updated, err := scanPayment(tx.QueryRow(ctx,
			`UPDATE payments SET status = $2, reference = $3, completed_at = NOW()
			 WHERE id = $1
			 RETURNING `+paymentColumns,
			id, string(model.PaymentCompleted), reference))
		if err != nil {
			return fmt.Errorf("update payment: %w", err)
		}

		deposit, err := applyInTx(ctx, tx, model.TransactionDraft{
			UserID:           p.UserID,
			Type:             model.TransactionDeposit,
			Amount:           p.Amount,
			PaymentMethod:    slug,
			PaymentReference: reference,
			Description:      "Balance top-up",
		})
		if err != nil {
			return err
		}
		written = append(written, *deposit)

		if p.Bonus.IsPositive() {
			bonus, err := applyInTx(ctx, tx, model.TransactionDraft{
				UserID:           p.UserID,
				Type:             model.TransactionBonus,
				Amount:           p.Bonus,
				PaymentMethod:    slug,
				PaymentReference: reference,
				Description:      "Top-up bonus",
			})
			if err != nil {
				return err
			}
			written = append(written, *bonus)
		}

		if referralPct.IsPositive() {
			payout, err := referralInTx(ctx, tx, p, referralPct)
			if err != nil {
				return err
			}
			if payout != nil {
				written = append(written, *payout)
			}
		}

		payment = updated
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return payment, written, nil
}

// referralInTx начисляет вознаграждение пригласившему пользователю.
// Замороженный журнал пригласившего не мешает зачислению депозита: вознаграждение пропускается.
func referralInTx(ctx context.Context, tx pgx.Tx, p *model.Payment, pct decimal.Decimal) (*model.Transaction, error) {
	var referrer *uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT referred_by FROM users WHERE id = $1`, p.UserID).Scan(&referrer); err != nil {
		return nil, fmt.Errorf("get referrer: %w", err)
	}
	if referrer == nil {
		return nil, nil
	}

	amount := pricing.ReferralPayout(p.Amount, pct)
	if !amount.IsPositive() {
		return nil, nil
	}

	t, err := applyInTx(ctx, tx, model.TransactionDraft{
		UserID:           *referrer,
		Type:             model.TransactionReferral,
		Amount:           amount,
		PaymentReference: p.ID.String(),
		Description:      "Referral reward",
	})
	if err != nil {
		var drift *model.DriftError
		if errors.As(err, &drift) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// FailPayment отмечает ожидающее пополнение как неуспешное.
func (r *PostgresRepository) FailPayment(ctx context.Context, id uuid.UUID, reason string) (*model.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx,
		`UPDATE payments SET status = $2, error = $3
		 WHERE id = $1 AND status = $4
		 RETURNING `+paymentColumns,
		id, string(model.PaymentFailed), reason, string(model.PaymentPending)))
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("fail payment: %w", err)
	}

	current, getErr := r.GetPayment(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if current.Status == model.PaymentFailed {
		return current, nil
	}
	return nil, fmt.Errorf("%w: payment %s is %s", model.ErrConflict, id, current.Status)
}

func scanPayment(row pgx.Row) (*model.Payment, error) {
	var (
		p                         model.Payment
		amount, fee, bonus, total pgtype.Numeric
		status                    string
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.GatewayID, &amount, &fee, &bonus, &total, &status,
		&p.Reference, &p.CheckoutURL, &p.Error, &p.CreatedAt, &p.CompletedAt); err != nil {
		return nil, err
	}
	p.Amount = fromNumeric(amount)
	p.Fee = fromNumeric(fee)
	p.Bonus = fromNumeric(bonus)
	p.Total = fromNumeric(total)
	p.Status = model.PaymentStatus(status)
	return &p, nil
}
