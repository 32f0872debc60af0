package config

import (
	"testing"
	"time"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  http_port: 9090\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.Server.HTTPPort)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Session.DefaultAgentID != "main" {
		t.Errorf("DefaultAgentID = %q, want main", cfg.Session.DefaultAgentID)
	}
	if cfg.Approval.Timeout != 5*time.Minute {
		t.Errorf("Approval.Timeout = %v, want 5m", cfg.Approval.Timeout)
	}
	if cfg.Scheduler.CheckInterval != time.Minute {
		t.Errorf("Scheduler.CheckInterval = %v, want 1m", cfg.Scheduler.CheckInterval)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	if _, err := Parse([]byte("serverr:\n  host: x\n")); err == nil {
		t.Fatal("expected error for unknown top-level key")
	}
}

func TestParseExpandsEnv(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "tok-123")
	cfg, err := Parse([]byte("channels:\n  telegram:\n    enabled: true\n    bot_token: ${TEST_BOT_TOKEN}\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Channels.Telegram.BotToken != "tok-123" {
		t.Errorf("BotToken = %q, want expanded env value", cfg.Channels.Telegram.BotToken)
	}
}

func TestValidateRejectsBadPolicyAction(t *testing.T) {
	_, err := Parse([]byte("policy:\n  rules:\n    - level: global\n      scope: \"*\"\n      tool_pattern: exec\n      action: maybe\n"))
	if err == nil {
		t.Fatal("expected error for invalid policy action")
	}
}

func TestValidateRefusesMemoryStoreInProduction(t *testing.T) {
	t.Setenv("CRATOS_ENV", "production")
	t.Setenv("CRATOS_ALLOW_MEMORY_STORE_IN_PRODUCTION", "")
	if _, err := Parse([]byte("server:\n  http_port: 8080\n")); err == nil {
		t.Fatal("expected refusal without durable store in production")
	}

	t.Setenv("CRATOS_ALLOW_MEMORY_STORE_IN_PRODUCTION", "1")
	if _, err := Parse([]byte("server:\n  http_port: 8080\n")); err != nil {
		t.Fatalf("expected escape hatch to allow start, got %v", err)
	}
}
