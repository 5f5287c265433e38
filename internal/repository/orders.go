package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/mmeshcher/smm-panel/internal/lifecycle"
	"github.com/mmeshcher/smm-panel/internal/model"
)

const orderColumns = `id, order_number, user_id, service_id, link, quantity, price, status,
	start_count, remains, external_order_id, comments, coupon_id, error_message, created_at, completed_at`

// CreateOrder сохраняет заказ вместе с операцией списания его цены.
// При нехватке баланса или отказе купона заказ не сохраняется.
func (r *PostgresRepository) CreateOrder(ctx context.Context, o model.Order) (*model.Order, *model.Transaction, error) {
	var (
		created  *model.Order
		purchase *model.Transaction
	)

	o.Price = model.RoundMoney(o.Price)

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		if o.CouponID != nil {
			if err := redeemInTx(ctx, tx, *o.CouponID, o.UserID, model.CouponDiscount); err != nil {
				return err
			}
		}

		comments := o.Comments
		if comments == nil {
			comments = []string{}
		}

		row := tx.QueryRow(ctx,
			`INSERT INTO orders (id, user_id, service_id, link, quantity, price, status, remains, comments, coupon_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			 RETURNING `+orderColumns,
			o.ID, o.UserID, o.ServiceID, o.Link, o.Quantity, toNumeric(o.Price),
			string(model.OrderPending), o.Quantity, comments, o.CouponID,
		)
		saved, err := scanOrder(row)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		t, err := applyInTx(ctx, tx, model.TransactionDraft{
			UserID:      o.UserID,
			Type:        model.TransactionPurchase,
			Amount:      saved.Price.Neg(),
			OrderID:     &saved.ID,
			Description: fmt.Sprintf("Order #%d", saved.Number),
		})
		if err != nil {
			return err
		}

		created, purchase = saved, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return created, purchase, nil
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrdersByUser возвращает заказы пользователя, новые первыми.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

// ListOrdersForPolling возвращает переданные поставщику заказы, статус которых нужно обновить.
func (r *PostgresRepository) ListOrdersForPolling(ctx context.Context, limit int) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status IN ($1, $2) AND external_order_id IS NOT NULL
		 ORDER BY created_at
		 LIMIT $3`,
		string(model.OrderProcessing), string(model.OrderInProgress), limit,
	)
}

// ListUnsubmittedOrders возвращает ожидающие заказы, которые поставщик так и не принял.
func (r *PostgresRepository) ListUnsubmittedOrders(ctx context.Context, olderThan time.Time, limit int) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+`
		 FROM orders
		 WHERE status = $1 AND external_order_id IS NULL AND created_at < $2
		 ORDER BY created_at
		 LIMIT $3`,
		string(model.OrderPending), olderThan, limit,
	)
}

func (r *PostgresRepository) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var res []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		res = append(res, *o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// UpdateOrderStatus условно меняет статус заказа.
// Если expected задан и не совпадает с текущим статусом, возвращается model.ErrConflict.
// Внешний номер записывается только один раз.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, expected *model.OrderStatus, next model.OrderStatus, upd model.OrderUpdate) (*model.Order, error) {
	sets := []string{"status = $2"}
	args := []any{id, string(next)}
	where := []string{"id = $1"}

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if upd.ExternalOrderID != nil {
		sets = append(sets, "external_order_id = "+arg(*upd.ExternalOrderID))
		where = append(where, "external_order_id IS NULL")
	}
	if upd.StartCount != nil {
		sets = append(sets, "start_count = "+arg(*upd.StartCount))
	}
	if upd.Remains != nil {
		if upd.CorrectRemains {
			sets = append(sets, "remains = "+arg(*upd.Remains))
		} else {
			sets = append(sets, "remains = LEAST(remains, "+arg(*upd.Remains)+")")
		}
	}
	if upd.ErrorMessage != nil {
		sets = append(sets, "error_message = "+arg(*upd.ErrorMessage))
	}
	if upd.CompletedAt != nil {
		sets = append(sets, "completed_at = COALESCE(completed_at, "+arg(*upd.CompletedAt)+")")
	}
	if expected != nil {
		where = append(where, "status = "+arg(string(*expected)))
	}

	sql := `UPDATE orders SET ` + strings.Join(sets, ", ") +
		` WHERE ` + strings.Join(where, " AND ") +
		` RETURNING ` + orderColumns

	o, err := scanOrder(r.pool.QueryRow(ctx, sql, args...))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update order: %w", err)
	}

	if _, getErr := r.GetOrder(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("%w: order %s changed concurrently", model.ErrConflict, id)
}

// SetOrderError сохраняет текст последней ошибки поставщика для ожидающего заказа.
func (r *PostgresRepository) SetOrderError(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE orders SET error_message = $2 WHERE id = $1 AND status = $3`,
		id, message, string(model.OrderPending),
	)
	if err != nil {
		return fmt.Errorf("set order error: %w", err)
	}
	return nil
}

// RefundOrder переводит заказ в статус refunded и возвращает полную цену одной транзакцией БД.
func (r *PostgresRepository) RefundOrder(ctx context.Context, id uuid.UUID, description string) (*model.Order, *model.Transaction, error) {
	var (
		refunded *model.Order
		refund   *model.Transaction
	)

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanOrder(tx.QueryRow(ctx,
			`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("order: %w", model.ErrNotFound)
			}
			return fmt.Errorf("lock order: %w", err)
		}

		if current.Status == model.OrderRefunded {
			return fmt.Errorf("%w: order %s already refunded", model.ErrConflict, id)
		}
		if _, err := lifecycle.Check(current.Status, model.OrderRefunded); err != nil {
			return err
		}

		updated, err := scanOrder(tx.QueryRow(ctx,
			`UPDATE orders SET status = $2 WHERE id = $1 RETURNING `+orderColumns,
			id, string(model.OrderRefunded)))
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		if description == "" {
			description = fmt.Sprintf("Refund for order #%d", current.Number)
		}
		t, err := applyInTx(ctx, tx, model.TransactionDraft{
			UserID:      current.UserID,
			Type:        model.TransactionRefund,
			Amount:      current.Price,
			OrderID:     &current.ID,
			Description: description,
		})
		if err != nil {
			return err
		}

		refunded, refund = updated, t
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return refunded, refund, nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	var (
		o      model.Order
		price  pgtype.Numeric
		status string
	)
	if err := row.Scan(&o.ID, &o.Number, &o.UserID, &o.ServiceID, &o.Link, &o.Quantity, &price, &status,
		&o.StartCount, &o.Remains, &o.ExternalOrderID, &o.Comments, &o.CouponID, &o.ErrorMessage,
		&o.CreatedAt, &o.CompletedAt); err != nil {
		return nil, err
	}
	o.Price = fromNumeric(price)
	o.Status = model.OrderStatus(status)
	return &o, nil
}
