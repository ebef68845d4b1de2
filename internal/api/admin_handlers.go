package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/schoolfees/payment-service/internal/domain"
)

type connectAccountingRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	RealmID      string `json:"realm_id"`
	CompanyID    string `json:"company_id"`
}

func (h *Handler) handleAccountingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.admin.Status(r.Context())
	if err != nil {
		writeError(w, "reading accounting status", err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) handleConnectAccounting(w http.ResponseWriter, r *http.Request) {
	var req connectAccountingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	status, err := h.admin.Connect(r.Context(), domain.Credential{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		RealmID:      req.RealmID,
		CompanyID:    req.CompanyID,
	})
	if err != nil {
		writeError(w, "connecting accounting", err)
		return
	}

	subject, _ := AdminFromContext(r.Context())
	log.Printf("Accounting connection updated by %q for realm %s", subject, status.RealmID)
	respondWithJSON(w, http.StatusOK, status)
}

func (h *Handler) handleDisconnectAccounting(w http.ResponseWriter, r *http.Request) {
	if err := h.admin.Disconnect(r.Context()); err != nil {
		writeError(w, "disconnecting accounting", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleCustomerInvoices(w http.ResponseWriter, r *http.Request) {
	customerID := strings.TrimSpace(chi.URLParam(r, "id"))
	if customerID == "" {
		http.Error(w, "Customer ID is required", http.StatusBadRequest)
		return
	}

	invoices, err := h.admin.CustomerInvoices(r.Context(), customerID)
	if err != nil {
		writeError(w, "listing invoices for customer "+customerID, err)
		return
	}
	respondWithJSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleCustomerPayments(w http.ResponseWriter, r *http.Request) {
	customerID := strings.TrimSpace(chi.URLParam(r, "id"))
	if customerID == "" {
		http.Error(w, "Customer ID is required", http.StatusBadRequest)
		return
	}

	payments, err := h.admin.CustomerPayments(r.Context(), customerID)
	if err != nil {
		writeError(w, "listing payments for customer "+customerID, err)
		return
	}
	respondWithJSON(w, http.StatusOK, payments)
}

func (h *Handler) handleResyncPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	result, err := h.service.ResyncPayment(r.Context(), paymentID)
	if err != nil {
		writeError(w, "re-syncing payment "+paymentID.String(), err)
		return
	}
	respondWithJSON(w, http.StatusOK, result)
}

// webhookNotification is the change notification posted by the accounting service.
type webhookNotification struct {
	EventNotifications []struct {
		RealmID         string `json:"realmId"`
		DataChangeEvent struct {
			Entities []struct {
				Name        string `json:"name"`
				ID          string `json:"id"`
				Operation   string `json:"operation"`
				LastUpdated string `json:"lastUpdated"`
			} `json:"entities"`
		} `json:"dataChangeEvent"`
	} `json:"eventNotifications"`
}

// AccountingChangeEvent is published once per changed accounting entity.
type AccountingChangeEvent struct {
	RealmID     string    `json:"realm_id"`
	Entity      string    `json:"entity"`
	EntityID    string    `json:"entity_id"`
	Operation   string    `json:"operation"`
	LastUpdated string    `json:"last_updated,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// handleAccountingWebhook fans change notifications out as events. Malformed
// payloads are logged and acknowledged so the sender does not retry them.
func (h *Handler) handleAccountingWebhook(w http.ResponseWriter, r *http.Request) {
	var notification webhookNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		log.Printf("Ignoring malformed accounting webhook: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	received := time.Now().UTC()
	published := 0
	for _, n := range notification.EventNotifications {
		for _, entity := range n.DataChangeEvent.Entities {
			if entity.Name == "" {
				continue
			}
			h.service.PublishWebhookEvent(r.Context(), entity.Name, AccountingChangeEvent{
				RealmID:     n.RealmID,
				Entity:      entity.Name,
				EntityID:    entity.ID,
				Operation:   entity.Operation,
				LastUpdated: entity.LastUpdated,
				ReceivedAt:  received,
			})
			published++
		}
	}
	if published == 0 {
		log.Printf("Accounting webhook carried no entities")
	}
	w.WriteHeader(http.StatusOK)
}
