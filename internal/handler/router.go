package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custommiddleware "github.com/mmeshcher/betwallet-ledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса кошельков.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/webhooks/paystack", h.PaystackWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Post("/wallet", h.OpenWallet)
		r.Get("/wallet", h.GetWallet)
		r.Get("/wallet/audit", h.GetAudit)

		r.Post("/deposits", h.CreateDeposit)
		r.Get("/deposits/{reference}", h.GetDeposit)
		r.Post("/deposits/{reference}/verify", h.VerifyDeposit)
		r.Post("/deposits/{reference}/pay", h.PayDeposit)

		r.Post("/withdrawals", h.RequestWithdrawal)
		r.Get("/withdrawals/{id}", h.GetWithdrawal)
		r.Post("/withdrawals/{id}/cancel", h.CancelWithdrawal)

		r.Get("/bundles/{id}", h.GetBundle)
		r.Get("/bundles/{id}/payouts", h.GetPayouts)
		r.Post("/bundles/{id}/purchase", h.PurchaseBundle)

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommiddleware.RequireAdmin(h.authorizer))

			r.Post("/withdrawals/{id}/approve", h.ApproveWithdrawal)
			r.Post("/withdrawals/{id}/decline", h.DeclineWithdrawal)

			r.Post("/bundles", h.CreateBundle)
			r.Post("/bundles/{id}/won", h.MarkWon)
			r.Post("/bundles/{id}/lost", h.MarkLost)
			r.Get("/bundles/{id}/pending-payouts", h.GetPendingPayouts)
			r.Post("/bundles/{id}/payouts/retry", h.RetryPayouts)

			r.Get("/wallets/{id}/reconcile", h.ReconcileWallet)
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
