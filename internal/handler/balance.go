package handler

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GetBalance возвращает баланс текущего пользователя.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	balance, err := h.service.GetBalance(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBalanceResponse(balance))
}

// GetTransactions возвращает журнал операций текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	txs, err := h.service.ListTransactions(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, newTransactionsResponse(txs))
}

// GetServices возвращает каталог услуг.
func (h *Handler) GetServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]serviceResponse, 0, len(services))
	for _, s := range services {
		resp = append(resp, serviceResponse{
			ID:               s.ID,
			Name:             s.Name,
			Category:         s.Category,
			PricePer1000:     s.PricePer1000.String(),
			MinQuantity:      s.MinQuantity,
			MaxQuantity:      s.MaxQuantity,
			CommentsRequired: s.CommentsRequired,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetGateways возвращает доступные способы пополнения.
func (h *Handler) GetGateways(w http.ResponseWriter, r *http.Request) {
	gateways, err := h.service.ListGateways(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]gatewayResponse, 0, len(gateways))
	for _, g := range gateways {
		resp = append(resp, gatewayResponse{
			ID:            g.ID,
			Slug:          g.Slug,
			Name:          g.Name,
			Kind:          string(g.Kind),
			FeePercentage: g.FeePercentage.String(),
			FeeFixed:      g.FeeFixed.StringFixed(2),
			MinAmount:     g.MinAmount.StringFixed(2),
			MaxAmount:     g.MaxAmount.StringFixed(2),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type topUpRequest struct {
	GatewayID string `json:"gateway_id" validate:"required,uuid"`
	Amount    string `json:"amount" validate:"required,money"`
}

// CreateTopUp создаёт заявку на пополнение и возвращает данные для оплаты.
func (h *Handler) CreateTopUp(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req topUpRequest
	if !decode(w, r, &req) {
		return
	}

	p, err := h.service.CreateTopUp(r.Context(), userID, uuid.MustParse(req.GatewayID),
		decimal.RequireFromString(strings.TrimSpace(req.Amount)))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newPaymentResponse(p))
}

// GetTopUps возвращает пополнения текущего пользователя.
func (h *Handler) GetTopUps(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	payments, err := h.service.ListTopUps(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, newPaymentResponse(&payments[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type redeemRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

type redeemResponse struct {
	Applied     bool                 `json:"applied"`
	Reason      string               `json:"reason,omitempty"`
	Transaction *transactionResponse `json:"transaction,omitempty"`
}

// RedeemCoupon применяет купон на пополнение баланса.
func (h *Handler) RedeemCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req redeemRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.RedeemCoupon(r.Context(), userID, req.Code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if !res.Applied {
		writeJSON(w, http.StatusUnprocessableEntity, redeemResponse{Reason: string(res.Reason)})
		return
	}
	writeJSON(w, http.StatusOK, redeemResponse{Applied: true, Transaction: newTransactionResponse(res.Transaction)})
}
