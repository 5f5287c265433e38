package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/smm-panel/internal/lifecycle"
	"github.com/mmeshcher/smm-panel/internal/model"
	"github.com/mmeshcher/smm-panel/internal/pricing"
)

// fakeRepo реализует хранилище в памяти с той же семантикой блокировок, что и PostgreSQL-репозиторий:
// каждая операция выполняется под одним мьютексом и либо применяется целиком, либо не применяется.
type fakeRepo struct {
	mu sync.Mutex

	users       map[uuid.UUID]*model.User
	txs         []model.Transaction
	services    map[uuid.UUID]*model.Service
	providers   map[uuid.UUID]*model.Provider
	gateways    map[uuid.UUID]*model.PaymentGateway
	tiers       []model.BonusTier
	settings    model.Settings
	orders      map[uuid.UUID]*model.Order
	orderSeq    int64
	coupons     map[string]*model.Coupon
	redemptions map[[2]uuid.UUID]bool
	payments    map[uuid.UUID]*model.Payment
	codes       map[uuid.UUID]*model.TwoFactorCode

	// beforeUpdate вызывается перед условным обновлением заказа; используется для имитации гонок.
	beforeUpdate func(o *model.Order)
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		users:       make(map[uuid.UUID]*model.User),
		services:    make(map[uuid.UUID]*model.Service),
		providers:   make(map[uuid.UUID]*model.Provider),
		gateways:    make(map[uuid.UUID]*model.PaymentGateway),
		orders:      make(map[uuid.UUID]*model.Order),
		coupons:     make(map[string]*model.Coupon),
		redemptions: make(map[[2]uuid.UUID]bool),
		payments:    make(map[uuid.UUID]*model.Payment),
		codes:       make(map[uuid.UUID]*model.TwoFactorCode),
	}
}

func (r *fakeRepo) Close() error { return nil }

func (r *fakeRepo) addUser(u model.User) *model.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	r.users[u.ID] = &u
	return &u
}

func (r *fakeRepo) CreateUser(_ context.Context, u model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Login == u.Login {
			return fmt.Errorf("%w: %s", model.ErrUserExists, u.Login)
		}
	}
	u.Balance = decimal.Zero
	r.users[u.ID] = &u
	return nil
}

func (r *fakeRepo) GetUserByLogin(_ context.Context, login string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Login == login {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("user: %w", model.ErrNotFound)
}

func (r *fakeRepo) GetUser(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user: %w", model.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (r *fakeRepo) ListUserIDs(_ context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uuid.UUID, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids, nil
}

func (r *fakeRepo) ReadBalance(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("user: %w", model.ErrNotFound)
	}
	return u.Balance, nil
}

// checkLocked проверяет, можно ли записать операцию, ничего не меняя.
func (r *fakeRepo) checkLocked(d model.TransactionDraft) error {
	u, ok := r.users[d.UserID]
	if !ok {
		return fmt.Errorf("user: %w", model.ErrNotFound)
	}
	// Как и NUMERIC(20,6) с CHECK на остатки, сумма с лишними знаками не записывается.
	if !d.Amount.Equal(model.RoundMoney(d.Amount)) {
		return fmt.Errorf("amount %s exceeds storage scale %d", d.Amount, model.MoneyScale)
	}
	if u.LedgerFrozen && d.Type != model.TransactionManual {
		return &model.DriftError{UserID: u.ID, Stored: u.Balance, Detail: "ledger frozen until drift is resolved"}
	}
	if u.Balance.Add(d.Amount).IsNegative() {
		if d.Type == model.TransactionPurchase {
			return model.ErrInsufficientBalance
		}
		return model.NewValidationError("amount", "balance cannot become negative")
	}
	return nil
}

func (r *fakeRepo) applyLocked(d model.TransactionDraft) (*model.Transaction, error) {
	if err := r.checkLocked(d); err != nil {
		return nil, err
	}
	u := r.users[d.UserID]
	before := u.Balance
	after := before.Add(d.Amount)
	t := model.Transaction{
		ID:               uuid.New(),
		UserID:           d.UserID,
		Type:             d.Type,
		Amount:           d.Amount,
		BalanceBefore:    before,
		BalanceAfter:     after,
		OrderID:          d.OrderID,
		PaymentMethod:    d.PaymentMethod,
		PaymentReference: d.PaymentReference,
		Description:      d.Description,
		CreatedAt:        time.Now(),
	}
	r.txs = append(r.txs, t)
	u.Balance = after
	return &t, nil
}

func (r *fakeRepo) ApplyTransaction(_ context.Context, d model.TransactionDraft) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyLocked(d)
}

func (r *fakeRepo) SetBalance(_ context.Context, userID uuid.UUID, value decimal.Decimal, description string) (*model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, fmt.Errorf("user: %w", model.ErrNotFound)
	}
	delta := value.Sub(u.Balance)
	if delta.IsZero() {
		return nil, nil
	}
	return r.applyLocked(model.TransactionDraft{UserID: userID, Type: model.TransactionManual, Amount: delta, Description: description})
}

func (r *fakeRepo) ListTransactions(_ context.Context, userID uuid.UUID) ([]model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Transaction
	for _, t := range r.txs {
		if t.UserID == userID {
			res = append(res, t)
		}
	}
	return res, nil
}

func (r *fakeRepo) FreezeLedger(_ context.Context, userID uuid.UUID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[userID]; ok {
		u.LedgerFrozen = true
		u.FrozenReason = reason
	}
	return nil
}

func (r *fakeRepo) ResolveDrift(_ context.Context, userID uuid.UUID) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("user: %w", model.ErrNotFound)
	}
	sum := decimal.Zero
	first := true
	for _, t := range r.txs {
		if t.UserID != userID {
			continue
		}
		if first {
			sum = t.BalanceBefore
			first = false
		}
		sum = sum.Add(t.Amount)
	}
	u.Balance = sum
	u.LedgerFrozen = false
	u.FrozenReason = ""
	return sum, nil
}

func (r *fakeRepo) GetService(_ context.Context, id uuid.UUID) (*model.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.services[id]
	if !ok {
		return nil, fmt.Errorf("service: %w", model.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) ListServices(_ context.Context) ([]model.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Service
	for _, s := range r.services {
		if s.Active {
			res = append(res, *s)
		}
	}
	return res, nil
}

func (r *fakeRepo) GetProvider(_ context.Context, id uuid.UUID) (*model.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("provider: %w", model.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) GetGateway(_ context.Context, id uuid.UUID) (*model.PaymentGateway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gateways[id]
	if !ok {
		return nil, fmt.Errorf("gateway: %w", model.ErrNotFound)
	}
	cp := *g
	return &cp, nil
}

func (r *fakeRepo) ListGateways(_ context.Context) ([]model.PaymentGateway, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.PaymentGateway
	for _, g := range r.gateways {
		if g.Active {
			res = append(res, *g)
		}
	}
	return res, nil
}

func (r *fakeRepo) ListBonusTiers(_ context.Context) ([]model.BonusTier, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.BonusTier(nil), r.tiers...), nil
}

func (r *fakeRepo) GetSettings(_ context.Context) (*model.Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.settings
	return &s, nil
}

// couponCheckLocked повторяет условие атомарного UPDATE купона.
func (r *fakeRepo) couponCheckLocked(c *model.Coupon, userID uuid.UUID, want model.CouponType) error {
	if c.Type != want {
		return &model.CouponRejectedError{Code: c.Code, Reason: model.CouponWrongType}
	}
	if reason, rejected := c.Rejection(time.Now()); rejected {
		return &model.CouponRejectedError{Code: c.Code, Reason: reason}
	}
	if r.redemptions[[2]uuid.UUID{c.ID, userID}] {
		return &model.CouponRejectedError{Code: c.Code, Reason: model.CouponAlreadyUsed}
	}
	return nil
}

func (r *fakeRepo) couponByIDLocked(id uuid.UUID) *model.Coupon {
	for _, c := range r.coupons {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (r *fakeRepo) CreateOrder(_ context.Context, o model.Order) (*model.Order, *model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var coupon *model.Coupon
	if o.CouponID != nil {
		coupon = r.couponByIDLocked(*o.CouponID)
		if coupon == nil {
			return nil, nil, &model.CouponRejectedError{Reason: model.CouponNotFound}
		}
		if err := r.couponCheckLocked(coupon, o.UserID, model.CouponDiscount); err != nil {
			return nil, nil, err
		}
	}

	draft := model.TransactionDraft{UserID: o.UserID, Type: model.TransactionPurchase, Amount: o.Price.Neg(), OrderID: &o.ID}
	if err := r.checkLocked(draft); err != nil {
		return nil, nil, err
	}

	if coupon != nil {
		coupon.UsesCount++
		r.redemptions[[2]uuid.UUID{coupon.ID, o.UserID}] = true
	}

	r.orderSeq++
	o.Number = r.orderSeq
	o.Status = model.OrderPending
	o.Remains = o.Quantity
	o.CreatedAt = time.Now()
	r.orders[o.ID] = &o

	draft.Description = fmt.Sprintf("Order #%d", o.Number)
	t, err := r.applyLocked(draft)
	if err != nil {
		return nil, nil, err
	}
	cp := o
	return &cp, t, nil
}

func (r *fakeRepo) GetOrder(_ context.Context, id uuid.UUID) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order: %w", model.ErrNotFound)
	}
	cp := *o
	return &cp, nil
}

func (r *fakeRepo) ListOrdersByUser(_ context.Context, userID uuid.UUID) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			res = append(res, *o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Number > res[j].Number })
	return res, nil
}

func (r *fakeRepo) ListOrdersForPolling(_ context.Context, limit int) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Order
	for _, o := range r.orders {
		if (o.Status == model.OrderProcessing || o.Status == model.OrderInProgress) && o.ExternalOrderID != nil {
			res = append(res, *o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Number < res[j].Number })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *fakeRepo) ListUnsubmittedOrders(_ context.Context, olderThan time.Time, limit int) ([]model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Order
	for _, o := range r.orders {
		if o.Status == model.OrderPending && o.ExternalOrderID == nil && o.CreatedAt.Before(olderThan) {
			res = append(res, *o)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Number < res[j].Number })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (r *fakeRepo) UpdateOrderStatus(_ context.Context, id uuid.UUID, expected *model.OrderStatus, next model.OrderStatus, upd model.OrderUpdate) (*model.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order: %w", model.ErrNotFound)
	}
	if r.beforeUpdate != nil {
		hook := r.beforeUpdate
		r.beforeUpdate = nil
		hook(o)
	}
	if expected != nil && o.Status != *expected {
		return nil, fmt.Errorf("%w: order %s changed concurrently", model.ErrConflict, id)
	}
	if upd.ExternalOrderID != nil && o.ExternalOrderID != nil {
		return nil, fmt.Errorf("%w: order %s changed concurrently", model.ErrConflict, id)
	}

	o.Status = next
	if upd.ExternalOrderID != nil {
		ext := *upd.ExternalOrderID
		o.ExternalOrderID = &ext
	}
	if upd.StartCount != nil {
		o.StartCount = *upd.StartCount
	}
	if upd.Remains != nil {
		if upd.CorrectRemains || *upd.Remains < o.Remains {
			o.Remains = *upd.Remains
		}
	}
	if upd.ErrorMessage != nil {
		o.ErrorMessage = *upd.ErrorMessage
	}
	if upd.CompletedAt != nil && o.CompletedAt == nil {
		at := *upd.CompletedAt
		o.CompletedAt = &at
	}
	cp := *o
	return &cp, nil
}

func (r *fakeRepo) SetOrderError(_ context.Context, id uuid.UUID, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[id]; ok && o.Status == model.OrderPending {
		o.ErrorMessage = message
	}
	return nil
}

func (r *fakeRepo) RefundOrder(_ context.Context, id uuid.UUID, description string) (*model.Order, *model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, nil, fmt.Errorf("order: %w", model.ErrNotFound)
	}
	if o.Status == model.OrderRefunded {
		return nil, nil, fmt.Errorf("%w: order %s already refunded", model.ErrConflict, id)
	}
	if _, err := lifecycle.Check(o.Status, model.OrderRefunded); err != nil {
		return nil, nil, err
	}

	if description == "" {
		description = fmt.Sprintf("Refund for order #%d", o.Number)
	}
	t, err := r.applyLocked(model.TransactionDraft{
		UserID: o.UserID, Type: model.TransactionRefund, Amount: o.Price, OrderID: &o.ID, Description: description,
	})
	if err != nil {
		return nil, nil, err
	}
	o.Status = model.OrderRefunded
	cp := *o
	return &cp, t, nil
}

func (r *fakeRepo) GetCouponByCode(_ context.Context, code string) (*model.Coupon, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.coupons[code]
	if !ok {
		return nil, &model.CouponRejectedError{Code: code, Reason: model.CouponNotFound}
	}
	cp := *c
	return &cp, nil
}

func (r *fakeRepo) RedeemBalanceCoupon(_ context.Context, code string, userID uuid.UUID) (*model.Coupon, *model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.coupons[code]
	if !ok {
		return nil, nil, &model.CouponRejectedError{Code: code, Reason: model.CouponNotFound}
	}
	if err := r.couponCheckLocked(c, userID, model.CouponBalance); err != nil {
		return nil, nil, err
	}
	draft := model.TransactionDraft{UserID: userID, Type: model.TransactionBonus, Amount: c.Value, Description: "Coupon " + c.Code}
	if err := r.checkLocked(draft); err != nil {
		return nil, nil, err
	}

	c.UsesCount++
	r.redemptions[[2]uuid.UUID{c.ID, userID}] = true
	t, err := r.applyLocked(draft)
	if err != nil {
		return nil, nil, err
	}
	cp := *c
	return &cp, t, nil
}

func (r *fakeRepo) CreatePayment(_ context.Context, p model.Payment) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.Status = model.PaymentPending
	p.CreatedAt = time.Now()
	r.payments[p.ID] = &p
	cp := p
	return &cp, nil
}

func (r *fakeRepo) SetPaymentCheckout(_ context.Context, id uuid.UUID, reference, checkoutURL string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.payments[id]; ok {
		p.Reference = reference
		p.CheckoutURL = checkoutURL
	}
	return nil
}

func (r *fakeRepo) GetPayment(_ context.Context, id uuid.UUID) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment: %w", model.ErrNotFound)
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) GetPaymentByReference(_ context.Context, reference string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if reference != "" && p.Reference == reference {
			cp := *p
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("payment: %w", model.ErrNotFound)
}

func (r *fakeRepo) ListPaymentsByUser(_ context.Context, userID uuid.UUID) ([]model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []model.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			res = append(res, *p)
		}
	}
	return res, nil
}

func (r *fakeRepo) CompletePayment(_ context.Context, id uuid.UUID, reference string, referralPct decimal.Decimal) (*model.Payment, []model.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return nil, nil, fmt.Errorf("payment: %w", model.ErrNotFound)
	}
	switch p.Status {
	case model.PaymentCompleted:
		cp := *p
		return &cp, nil, nil
	case model.PaymentFailed:
		return nil, nil, fmt.Errorf("%w: payment %s already failed", model.ErrConflict, id)
	}

	deposit := model.TransactionDraft{UserID: p.UserID, Type: model.TransactionDeposit, Amount: p.Amount, PaymentReference: reference}
	if err := r.checkLocked(deposit); err != nil {
		return nil, nil, err
	}

	var written []model.Transaction
	t, _ := r.applyLocked(deposit)
	written = append(written, *t)
	if p.Bonus.IsPositive() {
		t, _ = r.applyLocked(model.TransactionDraft{UserID: p.UserID, Type: model.TransactionBonus, Amount: p.Bonus, PaymentReference: reference})
		written = append(written, *t)
	}
	if u := r.users[p.UserID]; referralPct.IsPositive() && u.ReferredBy != nil {
		amount := pricing.ReferralPayout(p.Amount, referralPct)
		ref := model.TransactionDraft{UserID: *u.ReferredBy, Type: model.TransactionReferral, Amount: amount, PaymentReference: p.ID.String()}
		if r.checkLocked(ref) == nil {
			t, _ = r.applyLocked(ref)
			written = append(written, *t)
		}
	}

	now := time.Now()
	p.Status = model.PaymentCompleted
	p.CompletedAt = &now
	if reference != "" {
		p.Reference = reference
	}
	cp := *p
	return &cp, written, nil
}

func (r *fakeRepo) FailPayment(_ context.Context, id uuid.UUID, reason string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, fmt.Errorf("payment: %w", model.ErrNotFound)
	}
	switch p.Status {
	case model.PaymentCompleted:
		return nil, fmt.Errorf("%w: payment %s is completed", model.ErrConflict, id)
	case model.PaymentPending:
		p.Status = model.PaymentFailed
		p.Error = reason
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) UpsertTwoFactorCode(_ context.Context, c model.TwoFactorCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.Attempts = 0
	c.UsedAt = nil
	c.CreatedAt = time.Now()
	r.codes[c.UserID] = &c
	return nil
}

func (r *fakeRepo) ConsumeTwoFactorCode(_ context.Context, userID uuid.UUID, check func(model.TwoFactorCode) error) (*model.TwoFactorCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.codes[userID]
	if !ok {
		return nil, model.ErrInvalidCode
	}
	if err := check(*c); err != nil {
		if c.UsedAt == nil {
			c.Attempts++
		}
		return nil, err
	}
	now := time.Now()
	c.UsedAt = &now
	switch c.Purpose {
	case model.TwoFactorEnable:
		r.users[userID].TwoFactorEnabled = true
	case model.TwoFactorDisable:
		r.users[userID].TwoFactorEnabled = false
	}
	cp := *c
	return &cp, nil
}
