package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ultima-ai/ultima-broker/internal/config"
)

func TestInitCreatesConfigFiles(t *testing.T) {
	tmp := t.TempDir()
	opts := InitOptions{
		Root:     tmp,
		Provider: "groq",
		Model:    "llama3-8b-8192",
	}
	if err := Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}

	settingBytes, err := os.ReadFile(filepath.Join(tmp, "config", "setting.ini"))
	if err != nil {
		t.Fatalf("read setting: %v", err)
	}
	content := string(settingBytes)
	if !strings.Contains(content, "environment=dev") {
		t.Fatalf("missing environment: %s", content)
	}
	if !strings.Contains(content, "default_balance=1000") {
		t.Fatalf("missing default balance: %s", content)
	}

	brokerBytes, err := os.ReadFile(filepath.Join(tmp, "config", "dev", "broker.ini"))
	if err != nil {
		t.Fatalf("read broker: %v", err)
	}
	brokerContent := string(brokerBytes)
	if !strings.Contains(brokerContent, "provider=groq") {
		t.Fatalf("missing provider: %s", brokerContent)
	}
	if !strings.Contains(brokerContent, "model=llama3-8b-8192") {
		t.Fatalf("missing model: %s", brokerContent)
	}
}

func TestInitRespectsForce(t *testing.T) {
	tmp := t.TempDir()
	opts := InitOptions{Root: tmp}
	if err := Init(opts); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := Init(opts); err == nil {
		t.Fatalf("expected error when files exist")
	}
	opts.Force = true
	if err := Init(opts); err != nil {
		t.Fatalf("Init with force: %v", err)
	}
}

func TestOpenStoresMemory(t *testing.T) {
	cfg := config.BrokerConfig{
		LedgerDriver:   "memory",
		TxLogDriver:    "memory",
		DefaultBalance: 1000,
	}
	ledgerStore, err := OpenLedger(cfg)
	if err != nil {
		t.Fatalf("OpenLedger: %v", err)
	}
	defer ledgerStore.Close()

	balance, err := ledgerStore.Balance(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	if balance != 1000 {
		t.Fatalf("expected default balance 1000, got %d", balance)
	}

	txStore, err := OpenTxLog(cfg)
	if err != nil {
		t.Fatalf("OpenTxLog: %v", err)
	}
	defer txStore.Close()
}

func TestOpenGeneratorLoopback(t *testing.T) {
	gen, err := OpenGenerator(config.BrokerConfig{Provider: "loopback"})
	if err != nil {
		t.Fatalf("OpenGenerator: %v", err)
	}
	if gen == nil {
		t.Fatalf("expected client")
	}
	if _, err := OpenGenerator(config.BrokerConfig{Provider: "bogus"}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}

func TestPostgresRequiresDSN(t *testing.T) {
	if _, err := OpenLedger(config.BrokerConfig{LedgerDriver: "postgres"}); err == nil {
		t.Fatalf("expected error without ledger dsn")
	}
	if _, err := OpenTxLog(config.BrokerConfig{TxLogDriver: "postgres"}); err == nil {
		t.Fatalf("expected error without txlog dsn")
	}
}
