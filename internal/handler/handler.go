// Package handler содержит HTTP-обработчики API SMM-панели.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/smm-panel/internal/middleware"
	"github.com/mmeshcher/smm-panel/internal/model"
	"github.com/mmeshcher/smm-panel/internal/service"
	"github.com/mmeshcher/smm-panel/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterInput) (*model.User, error)
	Login(ctx context.Context, login, password string) (*model.User, error)
	VerifyLogin(ctx context.Context, login, password, code string) (*model.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*model.User, error)
	SendCode(ctx context.Context, userID uuid.UUID, purpose model.TwoFactorPurpose) error
	VerifyCode(ctx context.Context, userID uuid.UUID, purpose model.TwoFactorPurpose, code string) error

	GetBalance(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)
	ListTransactions(ctx context.Context, userID uuid.UUID) ([]model.Transaction, error)
	ListServices(ctx context.Context) ([]model.Service, error)
	ListGateways(ctx context.Context) ([]model.PaymentGateway, error)
	CreateTopUp(ctx context.Context, userID, gatewayID uuid.UUID, amount decimal.Decimal) (*model.Payment, error)
	ListTopUps(ctx context.Context, userID uuid.UUID) ([]model.Payment, error)
	RedeemCoupon(ctx context.Context, userID uuid.UUID, code string) (*service.RedeemResult, error)

	PlaceOrder(ctx context.Context, userID uuid.UUID, in service.PlaceOrderInput) (*service.PlaceOrderResult, error)
	ListOrders(ctx context.Context, userID uuid.UUID) ([]model.Order, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*model.Order, error)

	ApplyStatusEvent(ctx context.Context, ev service.StatusEvent) (*model.Order, error)
	RefundOrder(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, *model.Transaction, error)
	CancelOrder(ctx context.Context, orderID uuid.UUID, reason string) (*model.Order, error)
	SubmitOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	CorrectOrder(ctx context.Context, orderID uuid.UUID, in service.CorrectionInput) (*model.Order, error)

	AdjustBalance(ctx context.Context, userID uuid.UUID, delta decimal.Decimal, description string) (*model.Transaction, error)
	SetBalance(ctx context.Context, userID uuid.UUID, value decimal.Decimal, description string) (*model.Transaction, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*service.ReconcileReport, error)
	ResolveDrift(ctx context.Context, userID uuid.UUID) (decimal.Decimal, error)

	ConfirmPayment(ctx context.Context, paymentID uuid.UUID, reference string) (*model.Payment, []model.Transaction, error)
	ConfirmPaymentByReference(ctx context.Context, reference string) (*model.Payment, []model.Transaction, error)
	FailPayment(ctx context.Context, paymentID uuid.UUID, reason string) (*model.Payment, error)
}

// Handler реализует HTTP-обработчики API SMM-панели.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	webhookSecret  string
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, webhookSecret string) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
		webhookSecret:  webhookSecret,
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Field  string            `json:"field,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
	Reason string            `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int) {
	writeJSON(w, status, errorResponse{Error: http.StatusText(status)})
}

// decode читает JSON-тело и проверяет его тегами validate. При ошибке ответ уже записан.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeStatus(w, http.StatusBadRequest)
		return false
	}
	if fields := validation.Struct(dst); fields != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: fields})
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id", Field: "id"})
		return uuid.Nil, false
	}
	return id, true
}

func currentUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeStatus(w, http.StatusUnauthorized)
	}
	return id, ok
}

// writeError переводит доменную ошибку в HTTP-ответ.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *model.ValidationError
		rejected *model.CouponRejectedError
		drift    *model.DriftError
		ext      *model.ExternalServiceError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: verr.Message, Field: verr.Field})
	case errors.As(err, &rejected):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "coupon rejected", Reason: string(rejected.Reason)})
	case errors.As(err, &drift):
		h.logger.Error("request blocked by ledger drift",
			zap.String("uri", r.RequestURI),
			zap.String("userID", drift.UserID.String()),
			zap.Error(err),
		)
		writeJSON(w, http.StatusLocked, errorResponse{Error: "balance is locked pending reconciliation"})
	case errors.Is(err, model.ErrInsufficientBalance):
		writeJSON(w, http.StatusPaymentRequired, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrNotFound):
		writeStatus(w, http.StatusNotFound)
	case errors.Is(err, model.ErrUserExists), errors.Is(err, model.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, model.ErrInvalidCredentials):
		writeStatus(w, http.StatusUnauthorized)
	case errors.Is(err, model.ErrInvalidCode):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: model.ErrInvalidCode.Error()})
	case errors.Is(err, model.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: err.Error()})
	case errors.As(err, &ext):
		h.logger.Warn("external service error", zap.String("uri", r.RequestURI), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "external service unavailable"})
	default:
		h.logger.Error("request error", zap.String("uri", r.RequestURI), zap.Error(err))
		writeStatus(w, http.StatusInternalServerError)
	}
}
