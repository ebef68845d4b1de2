package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/schoolfees/payment-service/internal/domain"
	"github.com/schoolfees/payment-service/pkg/quickbooks"
)

var ErrInvalidCredential = errors.New("invalid accounting credential")

// CredentialManager reads and replaces the stored accounting credential.
type CredentialManager interface {
	CredentialSource
	Save(ctx context.Context, cred domain.Credential) error
	Clear(ctx context.Context) error
}

// AccountingStatus reports the connection state without exposing tokens.
type AccountingStatus struct {
	Connected bool   `json:"connected"`
	RealmID   string `json:"realm_id,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
}

// AccountingAdmin serves the operator-facing accounting operations.
type AccountingAdmin struct {
	creds  CredentialManager
	sync   *AccountingSync
	logger *slog.Logger
}

func NewAccountingAdmin(creds CredentialManager, sync *AccountingSync, logger *slog.Logger) *AccountingAdmin {
	return &AccountingAdmin{creds: creds, sync: sync, logger: logger.With("component", "accounting_admin")}
}

// Connect stores a new credential; subsequent payments use it.
func (a *AccountingAdmin) Connect(ctx context.Context, cred domain.Credential) (AccountingStatus, error) {
	cred.AccessToken = strings.TrimSpace(cred.AccessToken)
	cred.RefreshToken = strings.TrimSpace(cred.RefreshToken)
	cred.RealmID = strings.TrimSpace(cred.RealmID)
	cred.CompanyID = strings.TrimSpace(cred.CompanyID)
	if !cred.Connected() {
		return AccountingStatus{}, fmt.Errorf("%w: access token and realm id are required", ErrInvalidCredential)
	}

	if err := a.creds.Save(ctx, cred); err != nil {
		return AccountingStatus{}, fmt.Errorf("failed to save credential: %w", err)
	}
	a.logger.Info("accounting company connected", "realm_id", cred.RealmID)
	return statusOf(cred, true), nil
}

// Disconnect removes the credential; synchronization becomes disabled.
func (a *AccountingAdmin) Disconnect(ctx context.Context) error {
	if err := a.creds.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	a.logger.Info("accounting company disconnected")
	return nil
}

func (a *AccountingAdmin) Status(ctx context.Context) (AccountingStatus, error) {
	cred, ok, err := a.creds.Load(ctx)
	if err != nil {
		return AccountingStatus{}, err
	}
	return statusOf(cred, ok), nil
}

func (a *AccountingAdmin) CustomerInvoices(ctx context.Context, customerID string) ([]quickbooks.Invoice, error) {
	return a.sync.CustomerInvoices(ctx, customerID)
}

func (a *AccountingAdmin) CustomerPayments(ctx context.Context, customerID string) ([]quickbooks.Payment, error) {
	return a.sync.CustomerPayments(ctx, customerID)
}

func statusOf(cred domain.Credential, ok bool) AccountingStatus {
	if !ok {
		return AccountingStatus{}
	}
	return AccountingStatus{Connected: true, RealmID: cred.RealmID, CompanyID: cred.CompanyID}
}
