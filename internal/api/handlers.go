/**
 * @description
 * HTTP handlers for the parent-facing portal.
 *
 * @dependencies
 * - internal/app: Portal business logic.
 * - github.com/go-chi/chi/v5: URL parameters.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/schoolfees/payment-service/internal/app"
	"github.com/schoolfees/payment-service/internal/domain"
	"github.com/schoolfees/payment-service/internal/store"
	"github.com/schoolfees/payment-service/pkg/quickbooks"
)

// PortalService is the business logic used by the HTTP layer.
type PortalService interface {
	LookupFamily(ctx context.Context, term, clientKey string) (*domain.LookupResult, error)
	GetStudentFees(ctx context.Context, studentID uuid.UUID) ([]domain.StudentFee, error)
	GetStudentPayments(ctx context.Context, studentID uuid.UUID) ([]domain.Payment, error)
	ListFeeTypes(ctx context.Context) ([]domain.FeeType, error)
	ListAcademicYears(ctx context.Context) ([]domain.AcademicYear, error)
	ListAcademicTerms(ctx context.Context, academicYearID *uuid.UUID) ([]domain.AcademicTerm, error)
	RequestFee(ctx context.Context, studentID uuid.UUID, req domain.RequestFeeRequest) (*domain.StudentFee, error)
	MakePayment(ctx context.Context, req domain.MakePaymentRequest) (*domain.PaymentResult, error)
	ResyncPayment(ctx context.Context, paymentID uuid.UUID) (*domain.SyncResult, error)
	PublishWebhookEvent(ctx context.Context, entity string, body interface{})
}

// AccountingAdmin manages the accounting connection.
type AccountingAdmin interface {
	Connect(ctx context.Context, cred domain.Credential) (app.AccountingStatus, error)
	Disconnect(ctx context.Context) error
	Status(ctx context.Context) (app.AccountingStatus, error)
	CustomerInvoices(ctx context.Context, customerID string) ([]quickbooks.Invoice, error)
	CustomerPayments(ctx context.Context, customerID string) ([]quickbooks.Payment, error)
}

// Handler holds the services that handlers interact with.
type Handler struct {
	service PortalService
	admin   AccountingAdmin
}

func NewHandler(service PortalService, admin AccountingAdmin) *Handler {
	return &Handler{service: service, admin: admin}
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		http.Error(w, "Query parameter q is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.LookupFamily(r.Context(), term, clientKey(r))
	if err != nil {
		writeError(w, "looking up family", err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetStudentFees(w http.ResponseWriter, r *http.Request) {
	studentID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	fees, err := h.service.GetStudentFees(r.Context(), studentID)
	if err != nil {
		writeError(w, "getting fees for student "+studentID.String(), err)
		return
	}
	respondWithJSON(w, http.StatusOK, fees)
}

func (h *Handler) handleGetStudentPayments(w http.ResponseWriter, r *http.Request) {
	studentID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	payments, err := h.service.GetStudentPayments(r.Context(), studentID)
	if err != nil {
		writeError(w, "getting payments for student "+studentID.String(), err)
		return
	}
	respondWithJSON(w, http.StatusOK, payments)
}

func (h *Handler) handleRequestFee(w http.ResponseWriter, r *http.Request) {
	studentID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req domain.RequestFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fee, err := h.service.RequestFee(r.Context(), studentID, req)
	if err != nil {
		writeError(w, "requesting fee for student "+studentID.String(), err)
		return
	}
	respondWithJSON(w, http.StatusCreated, fee)
}

func (h *Handler) handleListFeeTypes(w http.ResponseWriter, r *http.Request) {
	feeTypes, err := h.service.ListFeeTypes(r.Context())
	if err != nil {
		writeError(w, "listing fee types", err)
		return
	}
	respondWithJSON(w, http.StatusOK, feeTypes)
}

func (h *Handler) handleListAcademicYears(w http.ResponseWriter, r *http.Request) {
	years, err := h.service.ListAcademicYears(r.Context())
	if err != nil {
		writeError(w, "listing academic years", err)
		return
	}
	respondWithJSON(w, http.StatusOK, years)
}

func (h *Handler) handleListAcademicTerms(w http.ResponseWriter, r *http.Request) {
	var yearID *uuid.UUID
	if raw := r.URL.Query().Get("academic_year_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid academic_year_id", http.StatusBadRequest)
			return
		}
		yearID = &parsed
	}

	terms, err := h.service.ListAcademicTerms(r.Context(), yearID)
	if err != nil {
		writeError(w, "listing academic terms", err)
		return
	}
	respondWithJSON(w, http.StatusOK, terms)
}

func (h *Handler) handleMakePayment(w http.ResponseWriter, r *http.Request) {
	var req domain.MakePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.MakePayment(r.Context(), req)
	if err != nil {
		writeError(w, "making payment for student "+req.StudentID.String(), err)
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		http.Error(w, "Invalid "+name, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps service errors to HTTP statuses.
func writeError(w http.ResponseWriter, action string, err error) {
	var rateErr *app.RateLimitError
	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		http.Error(w, rateErr.Error(), http.StatusTooManyRequests)
	case errors.Is(err, store.ErrStudentNotFound),
		errors.Is(err, store.ErrParentNotFound),
		errors.Is(err, store.ErrPaymentNotFound),
		errors.Is(err, app.ErrNoStudents):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, app.ErrInvalidPayment),
		errors.Is(err, app.ErrInvalidFee),
		errors.Is(err, app.ErrInvalidCredential):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, app.ErrAccountingDisabled):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Printf("Error %s: %v", action, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling JSON response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
