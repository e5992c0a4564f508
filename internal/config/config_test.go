package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBrokerConfig(t *testing.T) {
	tmp := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmp, "config", "dev"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	setting := "environment=dev\nlog_file=/tmp/base.log\nlog_level=debug\nmodel=base-model\ndefault_balance=500\n"
	if err := os.WriteFile(filepath.Join(tmp, "config", "setting.ini"), []byte(setting), 0o644); err != nil {
		t.Fatalf("write setting: %v", err)
	}
	content := "port=9191\nledger_driver=memory\ntxlog_driver=memory\nmodel=env-model\nprovider=groq\ngroq_api_key=ini-key\nauth_secret=override-secret\nrefund_on_failure=false\n"
	if err := os.WriteFile(filepath.Join(tmp, "config", "dev", "broker.ini"), []byte(content), 0o644); err != nil {
		t.Fatalf("write env config: %v", err)
	}
	os.Setenv("ULTIMA_AUTH_SECRET", "env-secret")
	t.Cleanup(func() { os.Unsetenv("ULTIMA_AUTH_SECRET") })

	cfg, err := LoadBrokerConfig(tmp)
	if err != nil {
		t.Fatalf("LoadBrokerConfig: %v", err)
	}
	if cfg.Port != 9191 {
		t.Fatalf("unexpected port %d", cfg.Port)
	}
	if cfg.Model != "env-model" {
		t.Fatalf("env config must win over base, got %s", cfg.Model)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected log level from base config, got %s", cfg.LogLevel)
	}
	if cfg.DefaultBalance != 500 {
		t.Fatalf("unexpected default balance %d", cfg.DefaultBalance)
	}
	if cfg.Provider != "groq" || cfg.GroqAPIKey != "ini-key" {
		t.Fatalf("unexpected provider config %s/%s", cfg.Provider, cfg.GroqAPIKey)
	}
	if cfg.AuthSecret != "env-secret" {
		t.Fatalf("env override must win, got %s", cfg.AuthSecret)
	}
	if cfg.RefundOnFailure {
		t.Fatalf("refund_on_failure=false not honored")
	}
}

func TestLoadBrokerConfigDefaults(t *testing.T) {
	cfg, err := LoadBrokerConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadBrokerConfig: %v", err)
	}
	if cfg.Environment != "dev" {
		t.Fatalf("unexpected environment %s", cfg.Environment)
	}
	if cfg.Port != 8090 {
		t.Fatalf("unexpected default port %d", cfg.Port)
	}
	if cfg.Provider != "loopback" {
		t.Fatalf("unexpected default provider %s", cfg.Provider)
	}
	if cfg.DefaultBalance != 1000 {
		t.Fatalf("unexpected default balance %d", cfg.DefaultBalance)
	}
	if cfg.Temperature != 0.7 {
		t.Fatalf("unexpected default temperature %v", cfg.Temperature)
	}
	if cfg.MaxTokens != 1024 {
		t.Fatalf("unexpected default max tokens %d", cfg.MaxTokens)
	}
	if !cfg.RefundOnFailure {
		t.Fatalf("refunds must default on")
	}
	if !cfg.AuthDisabled {
		t.Fatalf("auth must default disabled")
	}
}

func TestLoadBrokerConfigRejectsUnknownDriver(t *testing.T) {
	tmp := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmp, "config"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	setting := "environment=dev\nledger_driver=redis\n"
	if err := os.WriteFile(filepath.Join(tmp, "config", "setting.ini"), []byte(setting), 0o644); err != nil {
		t.Fatalf("write setting: %v", err)
	}
	if _, err := LoadBrokerConfig(tmp); err == nil {
		t.Fatalf("expected error for unsupported ledger driver")
	}
}
