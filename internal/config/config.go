package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/broker.ini"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// BrokerConfig describes runtime options for the broker daemon and CLI.
type BrokerConfig struct {
	Environment string
	Port        int
	LogFile     string
	LogLevel    string
	// Ledger storage
	LedgerDriver string // memory|sqlite|postgres
	LedgerPath   string
	LedgerDSN    string
	// Transaction log storage
	TxLogDriver string // memory|sqlite|postgres
	TxLogPath   string
	TxLogDSN    string
	// Tokens granted to accounts seen for the first time.
	DefaultBalance int64
	// Optional YAML overrides for operation costs and packages.
	PricingFile string
	// Generation provider
	Provider      string // loopback|groq|openai|ollama
	GroqAPIKey    string
	GroqBaseURL   string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIOrg     string
	OllamaBaseURL string
	Model         string
	Temperature   float64
	MaxTokens     int
	// Whether a failed generation credits the deducted tokens back.
	RefundOnFailure bool
	// Session auth
	AuthSecret   string
	AuthDisabled bool
	// Payments
	StripeAPIKey string
}

// LoadBrokerConfig reads the current environment and loads the appropriate broker config file.
func LoadBrokerConfig(root string) (BrokerConfig, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return BrokerConfig{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return BrokerConfig{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := BrokerConfig{
		Environment:     s.Environment,
		Port:            parseOptionalInt(firstNonEmpty(os.Getenv("ULTIMA_PORT"), merged["port"]), 8090),
		LogFile:         firstNonEmpty(os.Getenv("ULTIMA_LOG_FILE"), merged["log_file"]),
		LogLevel:        firstNonEmpty(merged["log_level"], "info"),
		LedgerDriver:    firstNonEmpty(os.Getenv("ULTIMA_LEDGER_DRIVER"), merged["ledger_driver"], "sqlite"),
		LedgerPath:      firstNonEmpty(os.Getenv("ULTIMA_LEDGER_PATH"), merged["ledger_path"], DefaultLedgerPath()),
		LedgerDSN:       firstNonEmpty(os.Getenv("ULTIMA_LEDGER_DSN"), merged["ledger_dsn"]),
		TxLogDriver:     firstNonEmpty(os.Getenv("ULTIMA_TXLOG_DRIVER"), merged["txlog_driver"], "sqlite"),
		TxLogPath:       firstNonEmpty(os.Getenv("ULTIMA_TXLOG_PATH"), merged["txlog_path"], DefaultTxLogPath()),
		TxLogDSN:        firstNonEmpty(os.Getenv("ULTIMA_TXLOG_DSN"), merged["txlog_dsn"]),
		PricingFile:     firstNonEmpty(os.Getenv("ULTIMA_PRICING_FILE"), merged["pricing_file"]),
		Provider:        firstNonEmpty(os.Getenv("ULTIMA_PROVIDER"), merged["provider"], "loopback"),
		GroqAPIKey:      firstNonEmpty(os.Getenv("ULTIMA_GROQ_API_KEY"), os.Getenv("GROQ_API_KEY"), merged["groq_api_key"]),
		GroqBaseURL:     firstNonEmpty(os.Getenv("ULTIMA_GROQ_BASE_URL"), merged["groq_base_url"]),
		OpenAIAPIKey:    firstNonEmpty(os.Getenv("ULTIMA_OPENAI_API_KEY"), merged["openai_api_key"]),
		OpenAIBaseURL:   firstNonEmpty(os.Getenv("ULTIMA_OPENAI_BASE_URL"), merged["openai_base_url"]),
		OpenAIOrg:       firstNonEmpty(os.Getenv("ULTIMA_OPENAI_ORG"), merged["openai_org"]),
		OllamaBaseURL:   firstNonEmpty(os.Getenv("ULTIMA_OLLAMA_BASE_URL"), merged["ollama_base_url"]),
		Model:           firstNonEmpty(os.Getenv("ULTIMA_MODEL"), merged["model"], "llama3-8b-8192"),
		MaxTokens:       parseOptionalInt(firstNonEmpty(os.Getenv("ULTIMA_MAX_TOKENS"), merged["max_output_tokens"]), 1024),
		RefundOnFailure: parseOptionalBool(firstNonEmpty(os.Getenv("ULTIMA_REFUND_ON_FAILURE"), merged["refund_on_failure"]), true),
		AuthSecret:      firstNonEmpty(os.Getenv("ULTIMA_AUTH_SECRET"), merged["auth_secret"], "ultima-dev-secret"),
		AuthDisabled:    parseOptionalBool(firstNonEmpty(os.Getenv("ULTIMA_AUTH_DISABLED"), merged["auth_disabled"]), true),
		StripeAPIKey:    firstNonEmpty(os.Getenv("ULTIMA_STRIPE_API_KEY"), merged["stripe_api_key"]),
		DefaultBalance:  1000,
		Temperature:     0.7,
	}
	if v := firstNonEmpty(os.Getenv("ULTIMA_DEFAULT_BALANCE"), merged["default_balance"]); v != "" {
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || parsed < 0 {
			return BrokerConfig{}, fmt.Errorf("invalid default_balance %q", v)
		}
		cfg.DefaultBalance = parsed
	}
	if v := firstNonEmpty(os.Getenv("ULTIMA_TEMPERATURE"), merged["temperature"]); v != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return BrokerConfig{}, fmt.Errorf("invalid temperature %q: %w", v, err)
		}
		cfg.Temperature = parsed
	}
	switch cfg.LedgerDriver {
	case "memory", "sqlite", "postgres":
	default:
		return BrokerConfig{}, fmt.Errorf("unsupported ledger_driver %q", cfg.LedgerDriver)
	}
	switch cfg.TxLogDriver {
	case "memory", "sqlite", "postgres":
	default:
		return BrokerConfig{}, fmt.Errorf("unsupported txlog_driver %q", cfg.TxLogDriver)
	}
	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv, Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := values["environment"]
	if env == "" {
		env = defaultEnv
	}
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalBool(v string, fallback bool) bool {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return parseBool(v)
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DefaultLedgerPath returns the fallback ledger database path.
func DefaultLedgerPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "ledger.db"
	}
	return filepath.Join(home, ".ultima", "ledger.db")
}

// DefaultTxLogPath returns the fallback transaction log database path.
func DefaultTxLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "txlog.db"
	}
	return filepath.Join(home, ".ultima", "txlog.db")
}
