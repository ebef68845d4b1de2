package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/schoolfees/payment-service/internal/domain"
	"github.com/shopspring/decimal"
)

func TestFeeStatusAfterPayment(t *testing.T) {
	tests := []struct {
		name   string
		amount string
		paid   string
		want   string
	}{
		{name: "nothing paid", amount: "500", paid: "0", want: domain.FeeStatusPending},
		{name: "partially paid", amount: "500", paid: "120.50", want: domain.FeeStatusPartial},
		{name: "exactly paid", amount: "500", paid: "500.00", want: domain.FeeStatusPaid},
		{name: "overpaid", amount: "500", paid: "600", want: domain.FeeStatusPaid},
		{name: "zero fee", amount: "0", paid: "0", want: domain.FeeStatusPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FeeStatusAfterPayment(decimal.RequireFromString(tt.amount), decimal.RequireFromString(tt.paid))
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestUUIDStrings(t *testing.T) {
	a := uuid.MustParse("8a9f2f64-1e4d-4c49-9f0c-3b1f0c7b5a01")
	b := uuid.MustParse("5d0a4c2e-9b7f-4e8a-a1c3-6f2e8d9b0c12")

	got := uuidStrings([]uuid.UUID{a, b})
	if len(got) != 2 || got[0] != a.String() || got[1] != b.String() {
		t.Fatalf("unexpected ids %v", got)
	}
}

func TestSettingsHashKey(t *testing.T) {
	tests := []struct {
		prefix string
		want   string
	}{
		{prefix: "schoolfees:rate_limit", want: "schoolfees:rate_limit:integration_settings"},
		{prefix: "tenant-a:", want: "tenant-a:integration_settings"},
		{prefix: "  ", want: "schoolfees:integration_settings"},
	}

	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			if got := settingsHashKey(tt.prefix); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
