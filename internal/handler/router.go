package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/mmeshcher/smm-panel/internal/metrics"
	custommiddleware "github.com/mmeshcher/smm-panel/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware SMM-панели.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/login/verify", h.VerifyLogin)

			r.Group(func(r chi.Router) {
				r.Use(h.authMiddleware.Middleware)

				r.Get("/me", h.Me)
				r.Get("/balance", h.GetBalance)
				r.Get("/transactions", h.GetTransactions)

				r.Post("/topups", h.CreateTopUp)
				r.Get("/topups", h.GetTopUps)

				r.Post("/orders", h.PlaceOrder)
				r.Get("/orders", h.GetOrders)
				r.Get("/orders/{id}", h.GetOrder)

				r.Post("/coupons/redeem", h.RedeemCoupon)

				r.Post("/2fa/send", h.SendTwoFactorCode)
				r.Post("/2fa/verify", h.VerifyTwoFactorCode)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/services", h.GetServices)
			r.Get("/gateways", h.GetGateways)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)
			r.Use(custommiddleware.RequireAdmin)

			r.Post("/orders/{id}/status", h.SetOrderStatus)
			r.Post("/orders/{id}/refund", h.RefundOrder)
			r.Post("/orders/{id}/cancel", h.CancelOrder)
			r.Post("/orders/{id}/resubmit", h.ResubmitOrder)
			r.Post("/orders/{id}/correct", h.CorrectOrder)

			r.Post("/users/{id}/balance", h.AdjustBalance)
			r.Post("/users/{id}/reconcile", h.ReconcileUser)
			r.Post("/users/{id}/resolve-drift", h.ResolveDrift)

			r.Post("/payments/{id}/confirm", h.ConfirmPayment)
			r.Post("/payments/{id}/fail", h.FailPayment)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Use(h.requireWebhookSecret)

			r.Post("/provider", h.ProviderWebhook)
			r.Post("/payments", h.PaymentWebhook)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
