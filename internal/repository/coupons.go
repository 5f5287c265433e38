package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/mmeshcher/smm-panel/internal/model"
)

const couponColumns = `id, code, type, value, uses_count, max_uses, starts_at, expires_at, active`

// GetCouponByCode возвращает купон по коду.
func (r *PostgresRepository) GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error) {
	c, err := scanCoupon(r.pool.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &model.CouponRejectedError{Code: code, Reason: model.CouponNotFound}
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}
	return c, nil
}

// RedeemBalanceCoupon применяет купон на пополнение: увеличивает счётчик с проверкой лимита
// и начисляет бонус одной транзакцией БД.
func (r *PostgresRepository) RedeemBalanceCoupon(ctx context.Context, code string, userID uuid.UUID) (*model.Coupon, *model.Transaction, error) {
	var (
		coupon *model.Coupon
		credit *model.Transaction
	)

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		c, err := scanCoupon(tx.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return &model.CouponRejectedError{Code: code, Reason: model.CouponNotFound}
			}
			return fmt.Errorf("get coupon: %w", err)
		}
		if c.Type != model.CouponBalance {
			return &model.CouponRejectedError{Code: code, Reason: model.CouponWrongType}
		}

		if err := redeemInTx(ctx, tx, c.ID, userID, model.CouponBalance); err != nil {
			return err
		}

		t, err := applyInTx(ctx, tx, model.TransactionDraft{
			UserID:      userID,
			Type:        model.TransactionBonus,
			Amount:      c.Value,
			Description: fmt.Sprintf("Coupon %s", c.Code),
		})
		if err != nil {
			return err
		}

		c.UsesCount++
		coupon, credit = c, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return coupon, credit, nil
}

// redeemInTx атомарно увеличивает счётчик использований, не превышая max_uses,
// и фиксирует применение купона пользователем.
func redeemInTx(ctx context.Context, tx pgx.Tx, couponID, userID uuid.UUID, want model.CouponType) error {
	var code string
	err := tx.QueryRow(ctx,
		`UPDATE coupons SET uses_count = uses_count + 1
		 WHERE id = $1 AND type = $2 AND active
		   AND (max_uses IS NULL OR uses_count < max_uses)
		   AND (starts_at IS NULL OR starts_at <= NOW())
		   AND (expires_at IS NULL OR expires_at > NOW())
		 RETURNING code`,
		couponID, string(want),
	).Scan(&code)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("increment coupon: %w", err)
		}
		return couponRejection(ctx, tx, couponID, want)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO coupon_redemptions (coupon_id, user_id) VALUES ($1, $2)`,
		couponID, userID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &model.CouponRejectedError{Code: code, Reason: model.CouponAlreadyUsed}
		}
		return fmt.Errorf("insert redemption: %w", err)
	}
	return nil
}

func couponRejection(ctx context.Context, tx pgx.Tx, couponID uuid.UUID, want model.CouponType) error {
	c, err := scanCoupon(tx.QueryRow(ctx, `SELECT `+couponColumns+` FROM coupons WHERE id = $1`, couponID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.CouponRejectedError{Reason: model.CouponNotFound}
		}
		return fmt.Errorf("get coupon: %w", err)
	}
	if c.Type != want {
		return &model.CouponRejectedError{Code: c.Code, Reason: model.CouponWrongType}
	}
	if reason, rejected := c.Rejection(time.Now()); rejected {
		return &model.CouponRejectedError{Code: c.Code, Reason: reason}
	}
	// Купон стал недоступен между UPDATE и повторным чтением.
	return &model.CouponRejectedError{Code: c.Code, Reason: model.CouponMaxUsesReached}
}

func scanCoupon(row pgx.Row) (*model.Coupon, error) {
	var (
		c     model.Coupon
		typ   string
		value pgtype.Numeric
	)
	if err := row.Scan(&c.ID, &c.Code, &typ, &value, &c.UsesCount, &c.MaxUses,
		&c.StartsAt, &c.ExpiresAt, &c.Active); err != nil {
		return nil, err
	}
	c.Type = model.CouponType(typ)
	c.Value = fromNumeric(value)
	return &c, nil
}
