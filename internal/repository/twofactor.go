package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/smm-panel/internal/model"
)

// UpsertTwoFactorCode сохраняет новый код, заменяя предыдущий код пользователя.
func (r *PostgresRepository) UpsertTwoFactorCode(ctx context.Context, c model.TwoFactorCode) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO two_factor_codes (user_id, code_hash, purpose, attempts, expires_at, used_at, created_at)
		 VALUES ($1, $2, $3, 0, $4, NULL, NOW())
		 ON CONFLICT (user_id) DO UPDATE
		 SET code_hash = EXCLUDED.code_hash,
		     purpose = EXCLUDED.purpose,
		     attempts = 0,
		     expires_at = EXCLUDED.expires_at,
		     used_at = NULL,
		     created_at = NOW()`,
		c.UserID, c.CodeHash, string(c.Purpose), c.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert two-factor code: %w", err)
	}
	return nil
}

// ConsumeTwoFactorCode проверяет код под блокировкой строки.
// Если check возвращает ошибку, счётчик попыток увеличивается и ошибка возвращается вызывающему.
// При успехе код помечается использованным, а связанное с ним действие применяется в той же транзакции.
func (r *PostgresRepository) ConsumeTwoFactorCode(ctx context.Context, userID uuid.UUID, check func(model.TwoFactorCode) error) (*model.TwoFactorCode, error) {
	var (
		consumed *model.TwoFactorCode
		checkErr error
	)

	err := r.withTx(ctx, func(tx pgx.Tx) error {
		checkErr = nil

		var (
			c       model.TwoFactorCode
			purpose string
		)
		err := tx.QueryRow(ctx,
			`SELECT user_id, code_hash, purpose, attempts, expires_at, used_at, created_at
			 FROM two_factor_codes WHERE user_id = $1 FOR UPDATE`,
			userID,
		).Scan(&c.UserID, &c.CodeHash, &purpose, &c.Attempts, &c.ExpiresAt, &c.UsedAt, &c.CreatedAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				checkErr = model.ErrInvalidCode
				return nil
			}
			return fmt.Errorf("lock two-factor code: %w", err)
		}
		c.Purpose = model.TwoFactorPurpose(purpose)

		if err := check(c); err != nil {
			checkErr = err
			if c.UsedAt != nil {
				return nil
			}
			_, err := tx.Exec(ctx, `UPDATE two_factor_codes SET attempts = attempts + 1 WHERE user_id = $1`, userID)
			if err != nil {
				return fmt.Errorf("count attempt: %w", err)
			}
			return nil
		}

		if err := tx.QueryRow(ctx,
			`UPDATE two_factor_codes SET used_at = NOW() WHERE user_id = $1 RETURNING used_at`,
			userID,
		).Scan(&c.UsedAt); err != nil {
			return fmt.Errorf("mark code used: %w", err)
		}

		switch c.Purpose {
		case model.TwoFactorEnable, model.TwoFactorDisable:
			_, err := tx.Exec(ctx,
				`UPDATE users SET two_factor_enabled = $2 WHERE id = $1`,
				userID, c.Purpose == model.TwoFactorEnable,
			)
			if err != nil {
				return fmt.Errorf("update two-factor flag: %w", err)
			}
		}

		consumed = &c
		return nil
	})
	if err != nil {
		return nil, err
	}
	if checkErr != nil {
		return nil, checkErr
	}
	return consumed, nil
}
