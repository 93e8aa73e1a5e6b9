package providers

import (
	"os"
	"testing"

	"github.com/chainforge-ai/chainforge/internal/config"
)

func TestSplit(t *testing.T) {
	provider, name, ok := Split("openai/gpt-4o-mini")
	if !ok || provider != "openai" || name != "gpt-4o-mini" {
		t.Fatalf("Split = %q, %q, %v", provider, name, ok)
	}
	if _, _, ok := Split("no-slash-here"); ok {
		t.Fatal("expected ok=false for a model ref with no slash")
	}
}

func TestMissingCredential(t *testing.T) {
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("DISABLE_OPENAI")
	r := New(config.DefaultProviders())
	s := r.Status("openai")
	if s.Available {
		t.Fatal("expected openai unavailable with no API key set")
	}
	if s.Reason != "missing_credential" {
		t.Fatalf("reason = %q, want missing_credential", s.Reason)
	}
}

func TestProviderDisabled(t *testing.T) {
	os.Setenv("OPENAI_API_KEY", "sk-test")
	defer os.Unsetenv("OPENAI_API_KEY")
	os.Setenv("DISABLE_OPENAI", "true")
	defer os.Unsetenv("DISABLE_OPENAI")

	r := New(config.DefaultProviders())
	s := r.Status("openai")
	if s.Available {
		t.Fatal("expected openai unavailable when DISABLE_OPENAI is truthy")
	}
	if s.Reason != "provider_disabled" {
		t.Fatalf("reason = %q, want provider_disabled", s.Reason)
	}
}

func TestProviderAvailable(t *testing.T) {
	os.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	defer os.Unsetenv("ANTHROPIC_API_KEY")
	os.Unsetenv("DISABLE_ANTHROPIC")

	r := New(config.DefaultProviders())
	if !r.Enabled("anthropic") {
		t.Fatal("expected anthropic available with credential set and not disabled")
	}
	if r.AvailableCount() < 1 {
		t.Fatal("expected AvailableCount >= 1")
	}
}

func TestUnknownProvider(t *testing.T) {
	r := New(config.DefaultProviders())
	s := r.Status("does-not-exist")
	if s.Available {
		t.Fatal("expected unknown provider to report unavailable")
	}
}
