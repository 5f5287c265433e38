package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/smm-panel/internal/model"
)

type stubInvoker struct {
	name    string
	payload checkoutPayload
	resp    string
	err     error
}

func (s *stubInvoker) Invoke(_ context.Context, name string, payload, out any) error {
	s.name = name
	s.payload = payload.(checkoutPayload)
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.resp), out)
}

func testRequest() Request {
	return Request{
		PaymentID: uuid.MustParse("6f0a3c1e-8a51-4d7b-9a77-3a1a4f6c0b11"),
		UserID:    uuid.New(),
		Amount:    decimal.RequireFromString("50"),
		Total:     decimal.RequireFromString("56.5"),
	}
}

func TestNew_SelectsVariant(t *testing.T) {
	inv := &stubInvoker{}

	tests := []struct {
		name string
		gw   model.PaymentGateway
		want model.GatewayKind
		err  bool
	}{
		{"manual", model.PaymentGateway{Kind: model.GatewayManualRedirect, RedirectURL: "https://pay.example"}, model.GatewayManualRedirect, false},
		{"manual without url", model.PaymentGateway{Kind: model.GatewayManualRedirect}, "", true},
		{"crypto", model.PaymentGateway{Kind: model.GatewayCryptoCheckout, FunctionName: "cryptomus-payment"}, model.GatewayCryptoCheckout, false},
		{"card", model.PaymentGateway{Kind: model.GatewayCardCheckout, FunctionName: "fawaterk-payment"}, model.GatewayCardCheckout, false},
		{"smart button", model.PaymentGateway{Kind: model.GatewaySmartButton, FunctionName: "paypal-create-order"}, model.GatewaySmartButton, false},
		{"function missing", model.PaymentGateway{Kind: model.GatewayCardCheckout}, "", true},
		{"unknown", model.PaymentGateway{Kind: "barter"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.gw, inv)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, g.Kind())
		})
	}
}

func TestNew_AutomaticNeedsInvoker(t *testing.T) {
	_, err := New(model.PaymentGateway{Kind: model.GatewayCryptoCheckout, FunctionName: "x"}, nil)
	require.Error(t, err)
}

func TestManualRedirect_Checkout(t *testing.T) {
	g, err := New(model.PaymentGateway{Kind: model.GatewayManualRedirect, RedirectURL: "https://pay.example/form?lang=en"}, nil)
	require.NoError(t, err)

	req := testRequest()
	co, err := g.Checkout(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, req.PaymentID.String(), co.Reference)
	assert.Contains(t, co.URL, "lang=en")
	assert.Contains(t, co.URL, "amount=56.50")
	assert.Contains(t, co.URL, "payment_id="+req.PaymentID.String())
}

func TestCryptoCheckout_Checkout(t *testing.T) {
	inv := &stubInvoker{resp: `{"url":"https://pay.crypto/inv/1","uuid":"c-1"}`}
	g, err := New(model.PaymentGateway{Kind: model.GatewayCryptoCheckout, FunctionName: "cryptomus-payment"}, inv)
	require.NoError(t, err)

	co, err := g.Checkout(context.Background(), testRequest())
	require.NoError(t, err)

	assert.Equal(t, "cryptomus-payment", inv.name)
	assert.Equal(t, "56.50", inv.payload.Total)
	assert.Equal(t, "50.00", inv.payload.Amount)
	assert.Equal(t, "c-1", co.Reference)
	assert.Equal(t, "https://pay.crypto/inv/1", co.URL)
}

func TestCardCheckout_MissingURL(t *testing.T) {
	inv := &stubInvoker{resp: `{"invoice_id":"77"}`}
	g, err := New(model.PaymentGateway{Kind: model.GatewayCardCheckout, FunctionName: "fawaterk-payment"}, inv)
	require.NoError(t, err)

	_, err = g.Checkout(context.Background(), testRequest())

	var ext *model.ExternalServiceError
	require.True(t, errors.As(err, &ext))
}

func TestSmartButtonCheckout_ReturnsOrderID(t *testing.T) {
	inv := &stubInvoker{resp: `{"order_id":"PAYPAL-5O190127TN364715T"}`}
	g, err := New(model.PaymentGateway{Kind: model.GatewaySmartButton, FunctionName: "paypal-create-order"}, inv)
	require.NoError(t, err)

	co, err := g.Checkout(context.Background(), testRequest())
	require.NoError(t, err)
	assert.Equal(t, "PAYPAL-5O190127TN364715T", co.Reference)
	assert.Empty(t, co.URL)
}

func TestFunctionCheckout_PropagatesError(t *testing.T) {
	boom := &model.ExternalServiceError{Service: "x", Retryable: true, Err: errors.New("timeout")}
	inv := &stubInvoker{err: boom}
	g, err := New(model.PaymentGateway{Kind: model.GatewayCryptoCheckout, FunctionName: "x"}, inv)
	require.NoError(t, err)

	_, err = g.Checkout(context.Background(), testRequest())
	assert.ErrorIs(t, err, boom)
}
