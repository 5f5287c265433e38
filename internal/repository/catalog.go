package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/mmeshcher/smm-panel/internal/model"
)

const serviceColumns = `id, name, category, provider_id, external_service_id, price,
	min_quantity, max_quantity, comments_required, active`

// GetService возвращает услугу каталога.
func (r *PostgresRepository) GetService(ctx context.Context, id uuid.UUID) (*model.Service, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id)
	s, err := scanService(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("service: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("get service: %w", err)
	}
	return s, nil
}

// ListServices возвращает активные услуги каталога.
func (r *PostgresRepository) ListServices(ctx context.Context) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE active ORDER BY category, name`)
	if err != nil {
		return nil, fmt.Errorf("select services: %w", err)
	}
	defer rows.Close()

	var res []model.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		res = append(res, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func scanService(row pgx.Row) (*model.Service, error) {
	var (
		s     model.Service
		price pgtype.Numeric
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Category, &s.ProviderID, &s.ExternalServiceID, &price,
		&s.MinQuantity, &s.MaxQuantity, &s.CommentsRequired, &s.Active); err != nil {
		return nil, err
	}
	s.PricePer1000 = fromNumeric(price)
	return &s, nil
}

// GetProvider возвращает настройки поставщика.
func (r *PostgresRepository) GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error) {
	var p model.Provider
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, api_url, api_key FROM providers WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.APIURL, &p.APIKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("provider: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	return &p, nil
}

const gatewayColumns = `id, slug, name, kind, fee_percentage, fee_fixed, min_amount, max_amount,
	redirect_url, function_name, active`

// GetGateway возвращает платёжный метод.
func (r *PostgresRepository) GetGateway(ctx context.Context, id uuid.UUID) (*model.PaymentGateway, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+gatewayColumns+` FROM payment_gateways WHERE id = $1`, id)
	g, err := scanGateway(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("gateway: %w", model.ErrNotFound)
		}
		return nil, fmt.Errorf("get gateway: %w", err)
	}
	return g, nil
}

// ListGateways возвращает активные платёжные методы.
func (r *PostgresRepository) ListGateways(ctx context.Context) ([]model.PaymentGateway, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+gatewayColumns+` FROM payment_gateways WHERE active ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select gateways: %w", err)
	}
	defer rows.Close()

	var res []model.PaymentGateway
	for rows.Next() {
		g, err := scanGateway(rows)
		if err != nil {
			return nil, fmt.Errorf("scan gateway: %w", err)
		}
		res = append(res, *g)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

func scanGateway(row pgx.Row) (*model.PaymentGateway, error) {
	var (
		g                                model.PaymentGateway
		kind                             string
		feePct, feeFixed, minAmt, maxAmt pgtype.Numeric
	)
	if err := row.Scan(&g.ID, &g.Slug, &g.Name, &kind, &feePct, &feeFixed, &minAmt, &maxAmt,
		&g.RedirectURL, &g.FunctionName, &g.Active); err != nil {
		return nil, err
	}
	g.Kind = model.GatewayKind(kind)
	g.FeePercentage = fromNumeric(feePct)
	g.FeeFixed = fromNumeric(feeFixed)
	g.MinAmount = fromNumeric(minAmt)
	g.MaxAmount = fromNumeric(maxAmt)
	return &g, nil
}

// ListBonusTiers возвращает уровни бонусов, отсортированные по порогу.
func (r *PostgresRepository) ListBonusTiers(ctx context.Context) ([]model.BonusTier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, min_amount, bonus_percentage, active FROM bonus_tiers ORDER BY min_amount`)
	if err != nil {
		return nil, fmt.Errorf("select bonus tiers: %w", err)
	}
	defer rows.Close()

	var res []model.BonusTier
	for rows.Next() {
		var (
			t           model.BonusTier
			minAmt, pct pgtype.Numeric
		)
		if err := rows.Scan(&t.ID, &minAmt, &pct, &t.Active); err != nil {
			return nil, fmt.Errorf("scan bonus tier: %w", err)
		}
		t.MinAmount = fromNumeric(minAmt)
		t.BonusPercentage = fromNumeric(pct)
		res = append(res, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return res, nil
}

// GetSettings возвращает глобальные настройки сайта.
func (r *PostgresRepository) GetSettings(ctx context.Context) (*model.Settings, error) {
	var (
		s   model.Settings
		pct pgtype.Numeric
	)
	err := r.pool.QueryRow(ctx,
		`SELECT bonus_enabled, referral_percentage FROM settings WHERE id`,
	).Scan(&s.BonusEnabled, &pct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &model.Settings{}, nil
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	s.ReferralPercentage = fromNumeric(pct)
	return &s, nil
}
