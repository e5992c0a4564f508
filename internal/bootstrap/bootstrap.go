package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ultima-ai/ultima-broker/internal/config"
	"github.com/ultima-ai/ultima-broker/internal/generator"
	"github.com/ultima-ai/ultima-broker/internal/generator/groq"
	"github.com/ultima-ai/ultima-broker/internal/generator/loopback"
	"github.com/ultima-ai/ultima-broker/internal/generator/ollama"
	"github.com/ultima-ai/ultima-broker/internal/generator/openai"
	"github.com/ultima-ai/ultima-broker/internal/ledger"
	ledgermem "github.com/ultima-ai/ultima-broker/internal/ledger/memory"
	ledgerpg "github.com/ultima-ai/ultima-broker/internal/ledger/postgres"
	ledgersqlite "github.com/ultima-ai/ultima-broker/internal/ledger/sqlite"
	"github.com/ultima-ai/ultima-broker/internal/txlog"
	txlogmem "github.com/ultima-ai/ultima-broker/internal/txlog/memory"
	txlogpg "github.com/ultima-ai/ultima-broker/internal/txlog/postgres"
	txlogsqlite "github.com/ultima-ai/ultima-broker/internal/txlog/sqlite"
)

// InitOptions configures the bootstrap process for generating config files.
type InitOptions struct {
	Root        string
	Environment string
	Provider    string
	Model       string
	LedgerPath  string
	TxLogPath   string
	Force       bool
}

// Init scaffolds configuration files for the broker.
func Init(opts InitOptions) error {
	applyDefaults(&opts)
	if err := os.MkdirAll(filepath.Join(opts.Root, "config", opts.Environment), 0o755); err != nil {
		return err
	}

	settingPath := filepath.Join(opts.Root, "config", "setting.ini")
	if err := writeFile(settingPath, settingTemplate(opts), opts.Force); err != nil {
		return err
	}

	brokerPath := filepath.Join(opts.Root, "config", opts.Environment, "broker.ini")
	if err := writeFile(brokerPath, brokerTemplate(opts), opts.Force); err != nil {
		return err
	}

	return nil
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.Provider) == "" {
		opts.Provider = "loopback"
	}
	if strings.TrimSpace(opts.Model) == "" {
		opts.Model = "llama3-8b-8192"
	}
	if strings.TrimSpace(opts.LedgerPath) == "" {
		opts.LedgerPath = config.DefaultLedgerPath()
	}
	if strings.TrimSpace(opts.TxLogPath) == "" {
		opts.TxLogPath = config.DefaultTxLogPath()
	}
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Ultima broker settings
environment=%s
log_level=info
default_balance=1000
`, opts.Environment)
}

func brokerTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# Environment specific overrides for %s
port=8090
# Dash '-' disables file output.
log_file=logs/brokerd.log
ledger_driver=sqlite
ledger_path=%s
txlog_driver=sqlite
txlog_path=%s
provider=%s
model=%s
temperature=0.7
max_output_tokens=1024
refund_on_failure=true
auth_disabled=true
`, opts.Environment, opts.LedgerPath, opts.TxLogPath, opts.Provider, opts.Model)
}

// OpenLedger constructs the ledger store selected by the config.
func OpenLedger(cfg config.BrokerConfig) (ledger.Store, error) {
	switch cfg.LedgerDriver {
	case "memory":
		return ledgermem.New(cfg.DefaultBalance), nil
	case "sqlite":
		return ledgersqlite.New(cfg.LedgerPath, cfg.DefaultBalance)
	case "postgres":
		if strings.TrimSpace(cfg.LedgerDSN) == "" {
			return nil, fmt.Errorf("ledger_dsn required for postgres ledger")
		}
		return ledgerpg.New(cfg.LedgerDSN, cfg.DefaultBalance, 10, 5, 30)
	default:
		return nil, fmt.Errorf("unsupported ledger_driver %q", cfg.LedgerDriver)
	}
}

// OpenTxLog constructs the transaction log store selected by the config.
func OpenTxLog(cfg config.BrokerConfig) (txlog.Store, error) {
	switch cfg.TxLogDriver {
	case "memory":
		return txlogmem.New(), nil
	case "sqlite":
		return txlogsqlite.New(cfg.TxLogPath)
	case "postgres":
		if strings.TrimSpace(cfg.TxLogDSN) == "" {
			return nil, fmt.Errorf("txlog_dsn required for postgres txlog")
		}
		return txlogpg.New(cfg.TxLogDSN, 10, 5, 30)
	default:
		return nil, fmt.Errorf("unsupported txlog_driver %q", cfg.TxLogDriver)
	}
}

// OpenGenerator constructs the generation client selected by the config.
func OpenGenerator(cfg config.BrokerConfig) (generator.Client, error) {
	switch cfg.Provider {
	case "loopback":
		return loopback.New(), nil
	case "groq":
		return groq.New(groq.Config{APIKey: cfg.GroqAPIKey, BaseURL: cfg.GroqBaseURL})
	case "openai":
		return openai.New(openai.Config{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Organization: cfg.OpenAIOrg})
	case "ollama":
		return ollama.New(ollama.Config{BaseURL: cfg.OllamaBaseURL}), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", cfg.Provider)
	}
}
