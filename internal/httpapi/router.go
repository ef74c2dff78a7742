package httpapi

import (
	"net/http"

	"lnledger/internal/ratelimit"
	"lnledger/internal/store"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the complete /v0 router: chi's RequestID/Recoverer
// stand in front of the request logger, then every route below is gated
// by token auth followed by per-user rate limiting.
func NewRouter(s *Server, tokens *store.AuthTokenRepository, limiter *ratelimit.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/v0", func(v chi.Router) {
		v.Use(authenticate(tokens, s.DB))
		v.Use(rateLimitByUser(limiter))

		v.Get("/user", s.getUser)

		v.Route("/deposits", func(d chi.Router) {
			d.Get("/", s.listDeposits)
			d.Get("/{id}", s.getDeposit)
			d.Route("/addresses", func(a chi.Router) {
				a.Post("/", s.createDepositAddress)
				a.Get("/", s.listDepositAddresses)
			})
		})

		v.Route("/invoices", func(i chi.Router) {
			i.Post("/", s.createInvoice)
			i.Get("/", s.listInvoices)
		})

		v.Route("/payments", func(p chi.Router) {
			p.Post("/", s.createPayment)
			p.Get("/", s.listPayments)
		})

		v.Route("/withdrawals", func(wd chi.Router) {
			wd.Post("/", s.createWithdrawal)
			wd.Get("/", s.listWithdrawals)
		})
	})

	return r
}
