// Package model содержит доменные сущности SMM-панели.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Role описывает роль пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User представляет зарегистрированного клиента или администратора панели.
type User struct {
	ID               uuid.UUID
	Login            string
	PasswordHash     []byte
	Role             Role
	Balance          decimal.Decimal
	TwoFactorEnabled bool
	ReferredBy       *uuid.UUID
	LedgerFrozen     bool
	FrozenReason     string
	CreatedAt        time.Time
}

// TransactionType описывает вид операции в журнале баланса.
type TransactionType string

const (
	TransactionDeposit  TransactionType = "deposit"
	TransactionPurchase TransactionType = "purchase"
	TransactionRefund   TransactionType = "refund"
	TransactionBonus    TransactionType = "bonus"
	TransactionManual   TransactionType = "manual"
	TransactionReferral TransactionType = "referral"
)

// Valid сообщает, относится ли тип к известным видам операций.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionDeposit, TransactionPurchase, TransactionRefund,
		TransactionBonus, TransactionManual, TransactionReferral:
		return true
	}
	return false
}

// Transaction описывает неизменяемую запись журнала баланса.
type Transaction struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	Type             TransactionType
	Amount           decimal.Decimal
	BalanceBefore    decimal.Decimal
	BalanceAfter     decimal.Decimal
	OrderID          *uuid.UUID
	PaymentMethod    string
	PaymentReference string
	Description      string
	CreatedAt        time.Time
}

// TransactionDraft описывает операцию, которую нужно записать в журнал.
// Остатки до и после вычисляет хранилище под блокировкой пользователя.
type TransactionDraft struct {
	UserID           uuid.UUID
	Type             TransactionType
	Amount           decimal.Decimal
	OrderID          *uuid.UUID
	PaymentMethod    string
	PaymentReference string
	Description      string
}

// OrderStatus описывает статус выполнения заказа.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderPartial    OrderStatus = "partial"
	OrderFailed     OrderStatus = "failed"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

// Order описывает заказ услуги пользователем.
type Order struct {
	ID              uuid.UUID
	Number          int64
	UserID          uuid.UUID
	ServiceID       uuid.UUID
	Link            string
	Quantity        int64
	Price           decimal.Decimal
	Status          OrderStatus
	StartCount      int64
	Remains         int64
	ExternalOrderID *string
	Comments        []string
	CouponID        *uuid.UUID
	ErrorMessage    string
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// Service описывает позицию каталога услуг.
type Service struct {
	ID                uuid.UUID
	Name              string
	Category          string
	ProviderID        uuid.UUID
	ExternalServiceID string
	PricePer1000      decimal.Decimal
	MinQuantity       int64
	MaxQuantity       int64
	CommentsRequired  bool
	Active            bool
}

// Provider описывает внешнего поставщика услуг.
type Provider struct {
	ID     uuid.UUID
	Name   string
	APIURL string
	APIKey string
}

// GatewayKind определяет способ приёма оплаты.
type GatewayKind string

const (
	GatewayManualRedirect GatewayKind = "manual_redirect"
	GatewayCryptoCheckout GatewayKind = "crypto_checkout"
	GatewayCardCheckout   GatewayKind = "card_checkout"
	GatewaySmartButton    GatewayKind = "smart_button"
)

// PaymentGateway содержит настройки платёжного метода.
type PaymentGateway struct {
	ID            uuid.UUID
	Slug          string
	Name          string
	Kind          GatewayKind
	FeePercentage decimal.Decimal
	FeeFixed      decimal.Decimal
	MinAmount     decimal.Decimal
	MaxAmount     decimal.Decimal
	RedirectURL   string
	FunctionName  string
	Active        bool
}

// BonusTier задаёт порог пополнения и процент бонуса.
type BonusTier struct {
	ID              uuid.UUID
	MinAmount       decimal.Decimal
	BonusPercentage decimal.Decimal
	Active          bool
}

// Settings содержит глобальные настройки сайта, влияющие на расчёты.
type Settings struct {
	BonusEnabled       bool
	ReferralPercentage decimal.Decimal
}

// PaymentStatus описывает статус пополнения.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment описывает заявку на пополнение баланса.
type Payment struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	GatewayID   uuid.UUID
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	Bonus       decimal.Decimal
	Total       decimal.Decimal
	Status      PaymentStatus
	Reference   string
	CheckoutURL string
	Error       string
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// CouponType определяет действие купона.
type CouponType string

const (
	CouponBalance  CouponType = "balance"
	CouponDiscount CouponType = "discount"
)

// Coupon описывает промокод.
type Coupon struct {
	ID        uuid.UUID
	Code      string
	Type      CouponType
	Value     decimal.Decimal
	UsesCount int64
	MaxUses   *int64
	StartsAt  *time.Time
	ExpiresAt *time.Time
	Active    bool
}

// TwoFactorPurpose определяет действие, к которому привязан код.
type TwoFactorPurpose string

const (
	TwoFactorEnable  TwoFactorPurpose = "enable"
	TwoFactorDisable TwoFactorPurpose = "disable"
	TwoFactorLogin   TwoFactorPurpose = "login"
)

// TwoFactorCode хранит единственный действующий код пользователя.
type TwoFactorCode struct {
	UserID    uuid.UUID
	CodeHash  []byte
	Purpose   TwoFactorPurpose
	Attempts  int
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// OrderUpdate перечисляет поля, меняющиеся вместе со статусом заказа.
// Nil означает «не менять».
type OrderUpdate struct {
	ExternalOrderID *string
	StartCount      *int64
	Remains         *int64
	ErrorMessage    *string
	CompletedAt     *time.Time
	// CorrectRemains разрешает увеличить остаток; используется только при ручной правке.
	CorrectRemains bool
}
