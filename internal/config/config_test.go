package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.HTTP.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", config.HTTP.Port)
	}
	if config.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("unexpected default model %q", config.Gemini.Model)
	}
	if config.Scraper.DefaultPostcode != "TS1 3BA" {
		t.Errorf("unexpected default postcode %q", config.Scraper.DefaultPostcode)
	}
	if config.Scraper.MinEvents != 5 || config.Scraper.MaxExpansions != 4 {
		t.Errorf("unexpected scraper defaults: min %d, expansions %d", config.Scraper.MinEvents, config.Scraper.MaxExpansions)
	}
	if config.Redis.ContextTTL != 24*time.Hour {
		t.Errorf("expected 24h context TTL, got %s", config.Redis.ContextTTL)
	}
	if !config.IsDevelopment() {
		t.Error("expected development environment by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("DEFAULT_POSTCODE", "SW1A 1AA")
	t.Setenv("GEMINI_TIMEOUT", "90s")

	config, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if config.HTTP.Port != 9090 {
		t.Errorf("expected port 9090, got %d", config.HTTP.Port)
	}
	if config.IsDevelopment() {
		t.Error("expected production environment")
	}
	if config.Scraper.DefaultPostcode != "SW1A 1AA" {
		t.Errorf("expected overridden postcode, got %q", config.Scraper.DefaultPostcode)
	}
	if config.Gemini.Timeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %s", config.Gemini.Timeout)
	}
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to fail without GEMINI_API_KEY")
	}
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("PORT", "99999")

	if _, err := Load(); err == nil {
		t.Fatal("expected Load to reject an out-of-range port")
	}
}

func TestEnvHelperFallbacks(t *testing.T) {
	t.Setenv("TEST_BAD_INT", "not-a-number")
	t.Setenv("TEST_BAD_DURATION", "soonish")

	if got := getIntEnv("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
	if got := getDurationEnv("TEST_BAD_DURATION", time.Minute); got != time.Minute {
		t.Errorf("expected fallback 1m, got %s", got)
	}
	if got := getEnv("TEST_UNSET_VALUE", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}
