package internal

import (
	"strings"
	"testing"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestFoldersConfig_Required(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Folders.Inbox = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty inbox should fail validation")
	}

	cfg = NewDefaultConfig()
	cfg.Folders.Archive = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty archive should fail validation")
	}
}

func TestMatchingConfig_Range(t *testing.T) {
	cfg := MatchingConfig{KeywordFloor: 1.5}
	if err := cfg.Validate(); err == nil {
		t.Fatal("keyword floor above 1 should fail")
	}

	cfg = MatchingConfig{KeywordFloor: 0.5, RuleThreshold: 0.7}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid thresholds rejected: %v", err)
	}

	// Zero values mean "use the matcher defaults" and must pass.
	cfg = MatchingConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("zero matching config rejected: %v", err)
	}
}

func TestHTTPConfig_PortRange(t *testing.T) {
	cfg := HTTPConfig{Port: 0}
	if err := cfg.Validate(); err == nil {
		t.Fatal("port 0 should fail validation")
	}
	cfg = HTTPConfig{Port: 70000}
	if err := cfg.Validate(); err == nil {
		t.Fatal("port above 65535 should fail validation")
	}
	cfg = HTTPConfig{Port: 8080}
	if cfg.Address() != ":8080" {
		t.Errorf("address = %q", cfg.Address())
	}
}
