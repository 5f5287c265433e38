package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mmeshcher/smm-panel/internal/lifecycle"
	"github.com/mmeshcher/smm-panel/internal/model"
	"github.com/mmeshcher/smm-panel/internal/provider"
	"github.com/mmeshcher/smm-panel/internal/service"
)

const webhookSecretHeader = "X-Webhook-Secret"

// requireWebhookSecret пропускает только запросы с общим секретом. Без настроенного секрета вебхуки закрыты.
func (h *Handler) requireWebhookSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(webhookSecretHeader)
		if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			writeStatus(w, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type providerWebhookRequest struct {
	OrderID    string `json:"order_id" validate:"required,uuid"`
	Status     string `json:"status" validate:"required"`
	StartCount *int64 `json:"start_count" validate:"omitempty,gte=0"`
	Remains    *int64 `json:"remains" validate:"omitempty,gte=0"`
}

// ProviderWebhook принимает уведомление поставщика о смене статуса заказа.
func (h *Handler) ProviderWebhook(w http.ResponseWriter, r *http.Request) {
	var req providerWebhookRequest
	if !decode(w, r, &req) {
		return
	}

	status, ok := provider.MapStatus(req.Status)
	if !ok {
		status = model.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status)))
		if !lifecycle.Known(status) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "unknown status", Field: "status"})
			return
		}
	}
	if status == model.OrderRefunded {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "refunds are issued by an administrator only", Field: "status"})
		return
	}

	o, err := h.service.ApplyStatusEvent(r.Context(), service.StatusEvent{
		OrderID:    uuid.MustParse(req.OrderID),
		Status:     status,
		StartCount: req.StartCount,
		Remains:    req.Remains,
		Source:     service.SourceWebhook,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type paymentWebhookRequest struct {
	PaymentID string `json:"payment_id" validate:"omitempty,uuid"`
	Reference string `json:"reference" validate:"max=255"`
	Status    string `json:"status" validate:"required,oneof=completed failed"`
	Reason    string `json:"reason" validate:"max=500"`
}

// PaymentWebhook принимает уведомление платёжного шлюза. Повторное уведомление не зачисляет средства повторно.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var req paymentWebhookRequest
	if !decode(w, r, &req) {
		return
	}
	if req.PaymentID == "" && req.Reference == "" {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "payment_id or reference is required", Field: "payment_id"})
		return
	}

	var (
		p   *model.Payment
		err error
	)
	switch {
	case req.Status == string(model.PaymentFailed) && req.PaymentID == "":
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "payment_id is required", Field: "payment_id"})
		return
	case req.Status == string(model.PaymentFailed):
		p, err = h.service.FailPayment(r.Context(), uuid.MustParse(req.PaymentID), req.Reason)
	case req.PaymentID != "":
		p, _, err = h.service.ConfirmPayment(r.Context(), uuid.MustParse(req.PaymentID), req.Reference)
	default:
		p, _, err = h.service.ConfirmPaymentByReference(r.Context(), req.Reference)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentResponse(p))
}
