package credentials

import (
	"errors"
	"testing"
)

func TestAEADSealer(t *testing.T) {
	sealer, err := NewAEADSealer("passphrase")
	if err != nil {
		t.Fatalf("NewAEADSealer: %v", err)
	}

	sealed, err := sealer.Seal("eyJhbGciOi.token")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	again, _ := sealer.Seal("eyJhbGciOi.token")
	if sealed == again {
		t.Fatal("expected a fresh nonce per seal")
	}

	opened, err := sealer.Open(sealed)
	if err != nil || opened != "eyJhbGciOi.token" {
		t.Fatalf("Open returned %q, %v", opened, err)
	}

	if plain, err := sealer.Open("legacy-plain-token"); err != nil || plain != "legacy-plain-token" {
		t.Fatalf("expected unsealed value passed through, got %q, %v", plain, err)
	}

	raw := []byte(sealed)
	idx := len(sealedPrefix) + 10
	if raw[idx] == 'A' {
		raw[idx] = 'B'
	} else {
		raw[idx] = 'A'
	}
	tampered := string(raw)
	if _, err := sealer.Open(tampered); !errors.Is(err, ErrUnsealable) {
		t.Fatalf("expected ErrUnsealable for tampered value, got %v", err)
	}

	if empty, err := sealer.Seal(""); err != nil || empty != "" {
		t.Fatalf("expected empty value to stay empty, got %q, %v", empty, err)
	}
}

func TestNewAEADSealer_RejectsEmptyKey(t *testing.T) {
	if _, err := NewAEADSealer("  "); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestNoopSealer_RejectsSealedValues(t *testing.T) {
	if _, err := (NoopSealer{}).Open(sealedPrefix + "abc"); !errors.Is(err, ErrUnsealable) {
		t.Fatalf("expected ErrUnsealable, got %v", err)
	}
}
