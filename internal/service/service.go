// Package service реализует бизнес-логику SMM-панели: журнал баланса, жизненный цикл заказов,
// пополнения, купоны и двухфакторные коды.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-panel/internal/gateway"
	"github.com/mmeshcher/smm-panel/internal/model"
	"github.com/mmeshcher/smm-panel/internal/provider"
	"github.com/mmeshcher/smm-panel/internal/ratelimit"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, u model.User) error
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)

	ReadBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ApplyTransaction(ctx context.Context, draft model.TransactionDraft) (*model.Transaction, error)
	SetBalance(ctx context.Context, userID uuid.UUID, value decimal.Decimal, description string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]model.Transaction, error)
	FreezeLedger(ctx context.Context, userID uuid.UUID, reason string) error
	ResolveDrift(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)

	GetService(ctx context.Context, id uuid.UUID) (*model.Service, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	GetProvider(ctx context.Context, id uuid.UUID) (*model.Provider, error)
	GetGateway(ctx context.Context, id uuid.UUID) (*model.PaymentGateway, error)
	ListGateways(ctx context.Context) ([]model.PaymentGateway, error)
	ListBonusTiers(ctx context.Context) ([]model.BonusTier, error)
	GetSettings(ctx context.Context) (*model.Settings, error)

	CreateOrder(ctx context.Context, o model.Order) (*model.Order, *model.Transaction, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	ListOrdersForPolling(ctx context.Context, limit int) ([]model.Order, error)
	ListUnsubmittedOrders(ctx context.Context, olderThan time.Time, limit int) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id uuid.UUID, expected *model.OrderStatus, next model.OrderStatus, upd model.OrderUpdate) (*model.Order, error)
	SetOrderError(ctx context.Context, id uuid.UUID, message string) error
	RefundOrder(ctx context.Context, id uuid.UUID, description string) (*model.Order, *model.Transaction, error)

	GetCouponByCode(ctx context.Context, code string) (*model.Coupon, error)
	RedeemBalanceCoupon(ctx context.Context, code string, userID uuid.UUID) (*model.Coupon, *model.Transaction, error)

	CreatePayment(ctx context.Context, p model.Payment) (*model.Payment, error)
	SetPaymentCheckout(ctx context.Context, id uuid.UUID, reference, checkoutURL string) error
	GetPayment(ctx context.Context, id uuid.UUID) (*model.Payment, error)
	GetPaymentByReference(ctx context.Context, reference string) (*model.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]model.Payment, error)
	CompletePayment(ctx context.Context, id uuid.UUID, reference string, referralPct decimal.Decimal) (*model.Payment, []model.Transaction, error)
	FailPayment(ctx context.Context, id uuid.UUID, reason string) (*model.Payment, error)

	UpsertTwoFactorCode(ctx context.Context, c model.TwoFactorCode) error
	ConsumeTwoFactorCode(ctx context.Context, userID uuid.UUID, check func(model.TwoFactorCode) error) (*model.TwoFactorCode, error)
}

// ProviderAPI размещает заказы у поставщика и запрашивает их состояние.
type ProviderAPI interface {
	AddOrder(ctx context.Context, p model.Provider, svc model.Service, o model.Order) (string, error)
	GetStatus(ctx context.Context, p model.Provider, externalID string) (*provider.OrderStatus, error)
}

// Limiter ограничивает частоту повторной отправки кодов.
type Limiter interface {
	Allow(ctx context.Context, scope, subject string) (ratelimit.Decision, error)
}

// Service содержит бизнес-логику SMM-панели.
type Service struct {
	repo      Repository
	provider  ProviderAPI
	functions gateway.Invoker
	limiter   Limiter
	logger    *zap.Logger
	now       func() time.Time
}

// Option настраивает необязательные зависимости сервиса.
type Option func(*Service)

// WithProvider задаёт клиент API поставщиков.
func WithProvider(p ProviderAPI) Option {
	return func(s *Service) { s.provider = p }
}

// WithFunctions задаёт клиент серверных функций (оплата, доставка кодов).
func WithFunctions(inv gateway.Invoker) Option {
	return func(s *Service) { s.functions = inv }
}

// WithLimiter задаёт ограничитель отправки кодов.
func WithLimiter(l Limiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithLogger задаёт логгер.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService создаёт новый сервис с указанным репозиторием.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// ListServices возвращает активные услуги каталога.
func (s *Service) ListServices(ctx context.Context) ([]model.Service, error) {
	return s.repo.ListServices(ctx)
}

// ListGateways возвращает активные платёжные методы.
func (s *Service) ListGateways(ctx context.Context) ([]model.PaymentGateway, error) {
	return s.repo.ListGateways(ctx)
}
