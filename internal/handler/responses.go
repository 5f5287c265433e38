package handler

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/smm-panel/internal/lifecycle"
	"github.com/mmeshcher/smm-panel/internal/model"
)

type userResponse struct {
	ID               uuid.UUID `json:"id"`
	Login            string    `json:"login"`
	Role             string    `json:"role"`
	Balance          string    `json:"balance"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
}

func newUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Login:            u.Login,
		Role:             string(u.Role),
		Balance:          u.Balance.StringFixed(2),
		TwoFactorEnabled: u.TwoFactorEnabled,
	}
}

type transactionResponse struct {
	ID               uuid.UUID  `json:"id"`
	Type             string     `json:"type"`
	Amount           string     `json:"amount"`
	BalanceBefore    string     `json:"balance_before"`
	BalanceAfter     string     `json:"balance_after"`
	OrderID          *uuid.UUID `json:"order_id,omitempty"`
	PaymentMethod    string     `json:"payment_method,omitempty"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	Description      string     `json:"description,omitempty"`
	CreatedAt        string     `json:"created_at"`
}

func newTransactionResponse(t *model.Transaction) *transactionResponse {
	if t == nil {
		return nil
	}
	return &transactionResponse{
		ID:               t.ID,
		Type:             string(t.Type),
		Amount:           t.Amount.StringFixed(2),
		BalanceBefore:    t.BalanceBefore.StringFixed(2),
		BalanceAfter:     t.BalanceAfter.StringFixed(2),
		OrderID:          t.OrderID,
		PaymentMethod:    t.PaymentMethod,
		PaymentReference: t.PaymentReference,
		Description:      t.Description,
		CreatedAt:        t.CreatedAt.Format(time.RFC3339),
	}
}

func newTransactionsResponse(txs []model.Transaction) []*transactionResponse {
	resp := make([]*transactionResponse, 0, len(txs))
	for i := range txs {
		resp = append(resp, newTransactionResponse(&txs[i]))
	}
	return resp
}

type orderResponse struct {
	ID              uuid.UUID `json:"id"`
	Number          int64     `json:"number"`
	ServiceID       uuid.UUID `json:"service_id"`
	Link            string    `json:"link"`
	Quantity        int64     `json:"quantity"`
	Price           string    `json:"price"`
	Status          string    `json:"status"`
	StartCount      int64     `json:"start_count"`
	Remains         int64     `json:"remains"`
	Progress        int       `json:"progress"`
	ExternalOrderID *string   `json:"external_order_id,omitempty"`
	Error           string    `json:"error,omitempty"`
	CreatedAt       string    `json:"created_at"`
	CompletedAt     string    `json:"completed_at,omitempty"`
}

func newOrderResponse(o *model.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID,
		Number:          o.Number,
		ServiceID:       o.ServiceID,
		Link:            o.Link,
		Quantity:        o.Quantity,
		Price:           o.Price.StringFixed(2),
		Status:          string(o.Status),
		StartCount:      o.StartCount,
		Remains:         o.Remains,
		Progress:        lifecycle.Progress(*o),
		ExternalOrderID: o.ExternalOrderID,
		Error:           o.ErrorMessage,
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
	}
	if o.CompletedAt != nil {
		resp.CompletedAt = o.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

type serviceResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Category         string    `json:"category"`
	PricePer1000     string    `json:"price_per_1000"`
	MinQuantity      int64     `json:"min_quantity"`
	MaxQuantity      int64     `json:"max_quantity"`
	CommentsRequired bool      `json:"comments_required"`
}

type gatewayResponse struct {
	ID            uuid.UUID `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	Kind          string    `json:"kind"`
	FeePercentage string    `json:"fee_percentage"`
	FeeFixed      string    `json:"fee_fixed"`
	MinAmount     string    `json:"min_amount"`
	MaxAmount     string    `json:"max_amount"`
}

type paymentResponse struct {
	ID          uuid.UUID `json:"id"`
	GatewayID   uuid.UUID `json:"gateway_id"`
	Amount      string    `json:"amount"`
	Fee         string    `json:"fee"`
	Bonus       string    `json:"bonus"`
	Total       string    `json:"total"`
	Status      string    `json:"status"`
	Reference   string    `json:"reference,omitempty"`
	CheckoutURL string    `json:"checkout_url,omitempty"`
	CreatedAt   string    `json:"created_at"`
}

func newPaymentResponse(p *model.Payment) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		GatewayID:   p.GatewayID,
		Amount:      p.Amount.StringFixed(2),
		Fee:         p.Fee.StringFixed(2),
		Bonus:       p.Bonus.StringFixed(2),
		Total:       p.Total.StringFixed(2),
		Status:      string(p.Status),
		Reference:   p.Reference,
		CheckoutURL: p.CheckoutURL,
		CreatedAt:   p.CreatedAt.Format(time.RFC3339),
	}
}

type balanceResponse struct {
	Balance string `json:"balance"`
}

func newBalanceResponse(d decimal.Decimal) balanceResponse {
	return balanceResponse{Balance: d.StringFixed(2)}
}
