package handler

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-panel/internal/model"
	"github.com/mmeshcher/smm-panel/internal/service"
)

type statusRequest struct {
	Status     string `json:"status" validate:"required"`
	StartCount *int64 `json:"start_count" validate:"omitempty,gte=0"`
	Remains    *int64 `json:"remains" validate:"omitempty,gte=0"`
}

// SetOrderStatus применяет статус заказа от имени администратора.
func (h *Handler) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}

	o, err := h.service.ApplyStatusEvent(r.Context(), service.StatusEvent{
		OrderID:    orderID,
		Status:     model.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		StartCount: req.StartCount,
		Remains:    req.Remains,
		Source:     service.SourceAdmin,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type refundResponse struct {
	Order       orderResponse        `json:"order"`
	Transaction *transactionResponse `json:"transaction"`
}

// RefundOrder возвращает пользователю полную цену заказа.
func (h *Handler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	o, t, err := h.service.RefundOrder(r.Context(), orderID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refundResponse{Order: newOrderResponse(o), Transaction: newTransactionResponse(t)})
}

// CancelOrder отменяет активный заказ без возврата.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	o, err := h.service.CancelOrder(r.Context(), orderID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

// ResubmitOrder повторно передаёт оплаченный заказ поставщику.
func (h *Handler) ResubmitOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}

	o, err := h.service.SubmitOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type correctionRequest struct {
	StartCount *int64 `json:"start_count"`
	Remains    *int64 `json:"remains"`
}

// CorrectOrder правит счётчики заказа.
func (h *Handler) CorrectOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req correctionRequest
	if !decode(w, r, &req) {
		return
	}

	o, err := h.service.CorrectOrder(r.Context(), orderID, service.CorrectionInput{
		StartCount: req.StartCount,
		Remains:    req.Remains,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}

type balanceRequest struct {
	Delta       string `json:"delta" validate:"omitempty,delta"`
	Set         string `json:"set" validate:"omitempty,numeric"`
	Description string `json:"description" validate:"max=500"`
}

// AdjustBalance изменяет баланс пользователя на delta или устанавливает его равным set.
func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req balanceRequest
	if !decode(w, r, &req) {
		return
	}
	if (req.Set == "") == (req.Delta == "") {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "exactly one of delta or set is required", Field: "delta"})
		return
	}

	var (
		t   *model.Transaction
		err error
	)
	if req.Set != "" {
		t, err = h.service.SetBalance(r.Context(), userID, decimal.RequireFromString(req.Set), req.Description)
	} else {
		t, err = h.service.AdjustBalance(r.Context(), userID, decimal.RequireFromString(strings.TrimSpace(req.Delta)), req.Description)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if t == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionResponse(t))
}

type reconcileResponse struct {
	UserID       string `json:"user_id"`
	Stored       string `json:"stored"`
	Computed     string `json:"computed"`
	Transactions int    `json:"transactions"`
	Consistent   bool   `json:"consistent"`
}

// ReconcileUser сверяет журнал пользователя. Расхождение возвращается с кодом 423.
func (h *Handler) ReconcileUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}

	report, err := h.service.Reconcile(r.Context(), userID)
	if report == nil {
		h.writeError(w, r, err)
		return
	}

	resp := reconcileResponse{
		UserID:       report.UserID.String(),
		Stored:       report.Stored.StringFixed(2),
		Computed:     report.Computed.StringFixed(2),
		Transactions: report.Transactions,
		Consistent:   report.Consistent,
	}
	status := http.StatusOK
	if err != nil {
		h.logger.Warn("reconcile user", zap.String("userID", userID.String()), zap.Error(err))
		status = http.StatusLocked
	}
	writeJSON(w, status, resp)
}

// ResolveDrift пересчитывает баланс по журналу и снимает блокировку.
func (h *Handler) ResolveDrift(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}

	balance, err := h.service.ResolveDrift(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBalanceResponse(balance))
}

type confirmRequest struct {
	Reference string `json:"reference" validate:"max=255"`
}

type confirmResponse struct {
	Payment      paymentResponse        `json:"payment"`
	Transactions []*transactionResponse `json:"transactions"`
}

// ConfirmPayment подтверждает пополнение вручную.
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	p, txs, err := h.service.ConfirmPayment(r.Context(), paymentID, req.Reference)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Payment: newPaymentResponse(p), Transactions: newTransactionsResponse(txs)})
}

// FailPayment отклоняет пополнение.
func (h *Handler) FailPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req reasonRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	p, err := h.service.FailPayment(r.Context(), paymentID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentResponse(p))
}
