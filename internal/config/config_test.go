package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_AccountingDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "QB_BASE_URL")
	unsetEnvWithCleanup(t, "QB_PLACEHOLDER_EMAIL_DOMAIN")
	unsetEnvWithCleanup(t, "QB_PLACEHOLDER_PHONE")
	unsetEnvWithCleanup(t, "QB_DEFAULT_DUE_TODAY")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	qb := cfg.QuickBooks
	if qb.BaseURL != "https://sandbox-quickbooks.api.intuit.com/v3" {
		t.Fatalf("unexpected default base url %q", qb.BaseURL)
	}
	if qb.PlaceholderEmailDomain != "school.com" {
		t.Fatalf("unexpected placeholder email domain %q", qb.PlaceholderEmailDomain)
	}
	if qb.PlaceholderPhone != "+260 000 000 000" {
		t.Fatalf("unexpected placeholder phone %q", qb.PlaceholderPhone)
	}
	if !qb.DefaultDueToday {
		t.Fatal("expected due date to default to today")
	}
	if qb.TimeoutSeconds != 30 {
		t.Fatalf("expected 30s timeout, got %d", qb.TimeoutSeconds)
	}
}

func TestLoadConfig_AccountingOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "QB_BASE_URL", "https://quickbooks.api.intuit.com/v3/")
	setEnvWithCleanup(t, "QB_PLACEHOLDER_EMAIL_DOMAIN", "@academy.example")
	setEnvWithCleanup(t, "QB_DEFAULT_DUE_TODAY", "false")
	setEnvWithCleanup(t, "QB_TIMEOUT_SECONDS", "-5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	qb := cfg.QuickBooks
	if qb.BaseURL != "https://quickbooks.api.intuit.com/v3" {
		t.Fatalf("expected trailing slash trimmed, got %q", qb.BaseURL)
	}
	if qb.PlaceholderEmailDomain != "academy.example" {
		t.Fatalf("expected leading @ trimmed, got %q", qb.PlaceholderEmailDomain)
	}
	if qb.DefaultDueToday {
		t.Fatal("expected due-today default to be disabled")
	}
	if qb.TimeoutSeconds != 30 {
		t.Fatalf("expected negative timeout coerced to 30, got %d", qb.TimeoutSeconds)
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "8080")
	setEnvWithCleanup(t, "PORT", "9090")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_CredentialBackend(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		redisURL string
		want     string
	}{
		{name: "defaults to postgres", backend: "", want: CredentialBackendPostgres},
		{name: "accepts redis with url", backend: "Redis", redisURL: "redis://localhost:6379/0", want: CredentialBackendRedis},
		{name: "redis without url falls back", backend: "redis", want: CredentialBackendPostgres},
		{name: "unknown backend falls back", backend: "dynamo", want: CredentialBackendPostgres},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			t.Cleanup(viper.Reset)

			if tt.backend == "" {
				unsetEnvWithCleanup(t, "CREDENTIAL_BACKEND")
			} else {
				setEnvWithCleanup(t, "CREDENTIAL_BACKEND", tt.backend)
			}
			if tt.redisURL == "" {
				unsetEnvWithCleanup(t, "REDIS_URL")
			} else {
				setEnvWithCleanup(t, "REDIS_URL", tt.redisURL)
			}

			cfg, err := LoadConfig(t.TempDir())
			if err != nil {
				t.Fatalf("LoadConfig returned error: %v", err)
			}
			if cfg.CredentialBackend != tt.want {
				t.Fatalf("expected backend %q, got %q", tt.want, cfg.CredentialBackend)
			}
		})
	}
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Config{CORSAllowedOrigins: " https://portal.example , ,http://localhost:3000"}
	got := cfg.AllowedOrigins()
	if len(got) != 2 || got[0] != "https://portal.example" || got[1] != "http://localhost:3000" {
		t.Fatalf("unexpected origins %v", got)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
		}
	})
}
