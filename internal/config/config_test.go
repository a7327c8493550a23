package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("YAHOO_MATCHUPS", "449.l.12345:3")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.AppEnv != EnvDev {
		t.Fatalf("AppEnv = %q, want %q", cfg.AppEnv, EnvDev)
	}
	if cfg.OAuthFile != "/config/oauth.json" {
		t.Fatalf("OAuthFile = %q", cfg.OAuthFile)
	}
	if cfg.MinUpdateInterval != 5*time.Minute {
		t.Fatalf("MinUpdateInterval = %v", cfg.MinUpdateInterval)
	}
	if cfg.YahooTimeout != 30*time.Second {
		t.Fatalf("YahooTimeout = %v", cfg.YahooTimeout)
	}
	if cfg.YahooMaxAttempts != 3 {
		t.Fatalf("YahooMaxAttempts = %d", cfg.YahooMaxAttempts)
	}
	if cfg.YahooBaseURL != "https://fantasysports.yahooapis.com/fantasy/v2" {
		t.Fatalf("YahooBaseURL = %q", cfg.YahooBaseURL)
	}
	if cfg.DebugMode {
		t.Fatal("DebugMode should default to false")
	}
	if !cfg.StatusEnabled || cfg.StatusAddr != ":8127" {
		t.Fatalf("status defaults = %v %q", cfg.StatusEnabled, cfg.StatusAddr)
	}
}

func TestLoad_MissingMatchups(t *testing.T) {
	t.Setenv("YAHOO_MATCHUPS", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when YAHOO_MATCHUPS is empty")
	}
}

func TestLoad_InvalidAppEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown APP_ENV")
	}
}

func TestParseMatchups_MultipleItems(t *testing.T) {
	t.Parallel()

	got, err := parseMatchups(" 449.l.12345:3 , 461.l.98765:7 ")
	if err != nil {
		t.Fatalf("parseMatchups: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	first := got[0]
	if first.GameKey != "449" || first.LeagueID != "12345" || first.TeamID != "3" {
		t.Fatalf("first = %+v", first)
	}
	if first.LeagueKey() != "449.l.12345" {
		t.Fatalf("LeagueKey = %q", first.LeagueKey())
	}
	if first.TeamKey() != "449.l.12345.t.3" {
		t.Fatalf("TeamKey = %q", first.TeamKey())
	}
}

func TestParseMatchups_Invalid(t *testing.T) {
	t.Parallel()

	cases := []string{
		"449.l.12345",
		"449.l.12345:",
		"not-a-league-key:3",
		".l.12345:3",
		"449.l.:3",
	}
	for _, raw := range cases {
		if _, err := parseMatchups(raw); err == nil {
			t.Fatalf("parseMatchups(%q) should fail", raw)
		}
	}
}

func TestLoad_ConditionalRequirements(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("UPTRACE_ENABLED", "true")
	t.Setenv("UPTRACE_DSN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when UPTRACE_ENABLED without DSN")
	}
}
