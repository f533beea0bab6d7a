package config

import (
	"path/filepath"
	"reflect"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Account: AccountConfig{Email: "me@example.com", Password: "secret", LoginMode: LoginModePassword},
		Portal:  PortalConfig{LoginURL: "https://hr.example.com/login"},
		Browser: BrowserConfig{Engine: EngineChromedp},
	}
}

func TestValidateRunRequiresEmail(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Account.Email = ""
	err := cfg.ValidateRun()
	if !IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestValidateRunPasswordOptionalForOAuth(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Account.Password = ""
	if err := cfg.ValidateRun(); !IsConfigurationError(err) {
		t.Fatalf("password mode without password should fail, got %v", err)
	}
	cfg.Account.LoginMode = LoginModeOAuth
	if err := cfg.ValidateRun(); err != nil {
		t.Fatalf("oauth mode without password should pass: %v", err)
	}
}

func TestValidateRunRejectsUnknownValues(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Account.LoginMode = "saml"
	if err := cfg.ValidateRun(); !IsConfigurationError(err) {
		t.Fatalf("unknown login mode should fail, got %v", err)
	}
	cfg = validConfig()
	cfg.Browser.Engine = "webkit"
	if err := cfg.ValidateRun(); !IsConfigurationError(err) {
		t.Fatalf("unknown engine should fail, got %v", err)
	}
}

func TestValidateRunAcceptsIdentifierWithOAuth(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Account: AccountConfig{Email: "me@example.com", LoginMode: LoginModeOAuth},
		Browser: BrowserConfig{Engine: EngineChromedp},
	}
	if err := cfg.ValidateRun(); err != nil {
		t.Fatalf("identifier plus oauth should validate without a login url: %v", err)
	}
}

func TestValidateAuthority(t *testing.T) {
	t.Parallel()
	cfg := validConfig()
	cfg.Schedule.Authority = AuthorityLaunchd
	if err := cfg.ValidateAuthority(AuthorityLaunchd); err != nil {
		t.Fatalf("launchd should be accepted: %v", err)
	}
	if err := cfg.ValidateAuthority(AuthorityLoop); !IsConfigurationError(err) {
		t.Fatalf("loop command under launchd authority should fail, got %v", err)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("AUTOPUNCH_EMAIL", " me@example.com ")
	t.Setenv("AUTOPUNCH_LOGIN_MODE", "OAuth")
	t.Setenv("AUTOPUNCH_ACTION_SELECTORS", "#clock-in, , button.punch")
	t.Setenv("AUTOPUNCH_HEADLESS", "false")
	t.Setenv("AUTOPUNCH_LOG_RETENTION", "0")
	t.Setenv("AUTOPUNCH_LOGIN_URL", "https://hr.example.com/login")
	state := t.TempDir()
	t.Setenv("AUTOPUNCH_STATE_DIR", state)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := cfg.Finalize(); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if cfg.Account.Email != "me@example.com" {
		t.Fatalf("email not trimmed: %q", cfg.Account.Email)
	}
	if cfg.Account.LoginMode != LoginModeOAuth {
		t.Fatalf("login mode = %q", cfg.Account.LoginMode)
	}
	if want := []string{"#clock-in", "button.punch"}; !reflect.DeepEqual(cfg.Portal.ActionSelectors, want) {
		t.Fatalf("selectors = %v, want %v", cfg.Portal.ActionSelectors, want)
	}
	if cfg.Browser.Headless {
		t.Fatalf("headless should be false")
	}
	if cfg.Log.Retention != defaultRunLogKeep {
		t.Fatalf("retention should fall back to default, got %d", cfg.Log.Retention)
	}
	if cfg.Portal.ActionURL != cfg.Portal.LoginURL {
		t.Fatalf("action url should default to login url, got %q", cfg.Portal.ActionURL)
	}
	if cfg.Browser.SessionFile != filepath.Join(state, "session.json") {
		t.Fatalf("session file = %q", cfg.Browser.SessionFile)
	}
	if !reflect.DeepEqual(cfg.Portal.LoginMarkers, defaultLoginMarkers) {
		t.Fatalf("login markers = %v", cfg.Portal.LoginMarkers)
	}
}
