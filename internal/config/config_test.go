package config

import "testing"

func TestLoadDoesNotInjectWeakSecretDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("WEBHOOK_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.WebhookSecret != "" {
		t.Fatalf("expected empty WEBHOOK_SECRET when unset, got %q", cfg.WebhookSecret)
	}
}

func TestLoadFallsBackOnBadNumericValues(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	t.Setenv("WEBHOOK_TOLERANCE_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected token TTL fallback 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.WebhookToleranceSeconds != 300 {
		t.Fatalf("expected tolerance fallback 300, got %d", cfg.WebhookToleranceSeconds)
	}
}
