// Package gateway описывает способы приёма оплаты пополнений.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/smm-panel/internal/model"
)

// Invoker вызывает серверную функцию платёжного шлюза.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload, out any) error
}

// Request содержит данные для создания платежа на стороне шлюза.
type Request struct {
	PaymentID uuid.UUID
	UserID    uuid.UUID
	Email     string
	Amount    decimal.Decimal
	Total     decimal.Decimal
}

// Checkout описывает результат создания платежа.
type Checkout struct {
	Reference string
	URL       string
}

// Gateway создаёт платёж во внешней системе.
type Gateway interface {
	Kind() model.GatewayKind
	Checkout(ctx context.Context, req Request) (*Checkout, error)
}

// New выбирает реализацию по виду шлюза.
func New(gw model.PaymentGateway, inv Invoker) (Gateway, error) {
	switch gw.Kind {
	case model.GatewayManualRedirect:
		if gw.RedirectURL == "" {
			return nil, fmt.Errorf("gateway %s: redirect url is empty", gw.Slug)
		}
		return &ManualRedirect{redirectURL: gw.RedirectURL}, nil
	case model.GatewayCryptoCheckout, model.GatewayCardCheckout, model.GatewaySmartButton:
		if gw.FunctionName == "" {
			return nil, fmt.Errorf("gateway %s: function name is empty", gw.Slug)
		}
		if inv == nil {
			return nil, fmt.Errorf("gateway %s: functions not configured", gw.Slug)
		}
	default:
		return nil, fmt.Errorf("gateway %s: unknown kind %q", gw.Slug, gw.Kind)
	}

	fc := functionCheckout{name: gw.FunctionName, inv: inv}
	switch gw.Kind {
	case model.GatewayCryptoCheckout:
		return &CryptoCheckout{fc}, nil
	case model.GatewayCardCheckout:
		return &CardCheckout{fc}, nil
	default:
		return &SmartButtonCheckout{fc}, nil
	}
}

// ManualRedirect отправляет пользователя на внешнюю страницу оплаты; подтверждает администратор.
type ManualRedirect struct {
	redirectURL string
}

func (g *ManualRedirect) Kind() model.GatewayKind { return model.GatewayManualRedirect }

func (g *ManualRedirect) Checkout(_ context.Context, req Request) (*Checkout, error) {
	u, err := url.Parse(g.redirectURL)
	if err != nil {
		return nil, fmt.Errorf("parse redirect url: %w", err)
	}
	q := u.Query()
	q.Set("payment_id", req.PaymentID.String())
	q.Set("amount", req.Total.StringFixed(2))
	u.RawQuery = q.Encode()

	return &Checkout{Reference: req.PaymentID.String(), URL: u.String()}, nil
}

type functionCheckout struct {
	name string
	inv  Invoker
}

type checkoutPayload struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Amount    string `json:"amount"`
	Total     string `json:"total"`
	Currency  string `json:"currency"`
}

type checkoutResponse struct {
	URL       string `json:"url"`
	Reference string `json:"reference"`
	InvoiceID string `json:"invoice_id"`
	OrderID   string `json:"order_id"`
	UUID      string `json:"uuid"`
}

func (f functionCheckout) invoke(ctx context.Context, req Request) (*checkoutResponse, error) {
	var resp checkoutResponse
	err := f.inv.Invoke(ctx, f.name, checkoutPayload{
		PaymentID: req.PaymentID.String(),
		UserID:    req.UserID.String(),
		Email:     req.Email,
		Amount:    req.Amount.StringFixed(2),
		Total:     req.Total.StringFixed(2),
		Currency:  "USD",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

var errNoCheckoutURL = errors.New("checkout url missing in response")

// CryptoCheckout создаёт счёт в криптовалютном шлюзе и возвращает ссылку на него.
type CryptoCheckout struct{ functionCheckout }

func (g *CryptoCheckout) Kind() model.GatewayKind { return model.GatewayCryptoCheckout }

func (g *CryptoCheckout) Checkout(ctx context.Context, req Request) (*Checkout, error) {
	resp, err := g.invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.URL == "" {
		return nil, &model.ExternalServiceError{Service: g.name, Err: errNoCheckoutURL}
	}
	return &Checkout{Reference: firstNonEmpty(resp.UUID, resp.Reference, req.PaymentID.String()), URL: resp.URL}, nil
}

// CardCheckout создаёт счёт карточного шлюза.
type CardCheckout struct{ functionCheckout }

func (g *CardCheckout) Kind() model.GatewayKind { return model.GatewayCardCheckout }

func (g *CardCheckout) Checkout(ctx context.Context, req Request) (*Checkout, error) {
	resp, err := g.invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.URL == "" {
		return nil, &model.ExternalServiceError{Service: g.name, Err: errNoCheckoutURL}
	}
	return &Checkout{Reference: firstNonEmpty(resp.InvoiceID, resp.Reference, req.PaymentID.String()), URL: resp.URL}, nil
}

// SmartButtonCheckout создаёт заказ для кнопки оплаты на странице; ссылки нет, клиент получает идентификатор заказа.
type SmartButtonCheckout struct{ functionCheckout }

func (g *SmartButtonCheckout) Kind() model.GatewayKind { return model.GatewaySmartButton }

func (g *SmartButtonCheckout) Checkout(ctx context.Context, req Request) (*Checkout, error) {
	resp, err := g.invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	ref := firstNonEmpty(resp.OrderID, resp.Reference)
	if ref == "" {
		return nil, &model.ExternalServiceError{Service: g.name, Err: errors.New("order id missing in response")}
	}
	return &Checkout{Reference: ref}, nil
}
