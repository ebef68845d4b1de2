/**
 * @description
 * HTTP router setup for the payment portal using go-chi/chi.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: Routing and standard middleware.
 * - github.com/go-chi/cors: CORS handling for the browser portal.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the portal, admin and webhook routes.
func NewRouter(h *Handler, allowedOrigins []string, adminSecret string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("School fees service is healthy"))
	})

	r.Route("/portal", func(r chi.Router) {
		r.Get("/lookup", h.handleLookup)
		r.Get("/fee-types", h.handleListFeeTypes)
		r.Get("/academic-years", h.handleListAcademicYears)
		r.Get("/academic-terms", h.handleListAcademicTerms)
		r.Get("/students/{id}/fees", h.handleGetStudentFees)
		r.Post("/students/{id}/fees", h.handleRequestFee)
		r.Get("/students/{id}/payments", h.handleGetStudentPayments)
		r.Post("/payments", h.handleMakePayment)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminAuthMiddleware(adminSecret))
		r.Get("/accounting/connection", h.handleAccountingStatus)
		r.Put("/accounting/connection", h.handleConnectAccounting)
		r.Delete("/accounting/connection", h.handleDisconnectAccounting)
		r.Get("/accounting/customers/{id}/invoices", h.handleCustomerInvoices)
		r.Get("/accounting/customers/{id}/payments", h.handleCustomerPayments)
		r.Post("/payments/{id}/accounting-sync", h.handleResyncPayment)
	})

	r.Post("/webhooks/quickbooks", h.handleAccountingWebhook)

	return r
}
