package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/mmeshcher/smm-panel/internal/service"
	"github.com/mmeshcher/smm-panel/internal/validation"
)

type placeOrderRequest struct {
	ServiceID  string `json:"service_id" validate:"required,uuid"`
	Link       string `json:"link" validate:"required,smmlink"`
	Quantity   int64  `json:"quantity" validate:"required,gt=0"`
	Comments   string `json:"comments"`
	CouponCode string `json:"coupon_code" validate:"omitempty,max=64"`
}

type placeOrderResponse struct {
	Order       orderResponse        `json:"order"`
	Transaction *transactionResponse `json:"transaction,omitempty"`
	Submitted   bool                 `json:"submitted"`
}

// PlaceOrder создаёт и оплачивает заказ. Если поставщик не принял заказ сразу, отвечает 202:
// заказ оплачен и будет отправлен повторно.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	var req placeOrderRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.PlaceOrder(r.Context(), userID, service.PlaceOrderInput{
		ServiceID:  uuid.MustParse(req.ServiceID),
		Link:       req.Link,
		Quantity:   req.Quantity,
		Comments:   validation.ParseComments(req.Comments),
		CouponCode: req.CouponCode,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if res.SubmitErr != nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, placeOrderResponse{
		Order:       newOrderResponse(res.Order),
		Transaction: newTransactionResponse(res.Transaction),
		Submitted:   res.SubmitErr == nil,
	})
}

// GetOrders возвращает список заказов текущего пользователя.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}

	orders, err := h.service.ListOrders(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newOrderResponse(&orders[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder возвращает заказ текущего пользователя.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r)
	if !ok {
		return
	}

	o, err := h.service.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(o))
}
