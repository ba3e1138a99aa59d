package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dhopegraphics/hivedemia-web-version-sub001/internal/retry"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// ProviderConfig describes one model service.
type ProviderConfig struct {
	Engine  string // "anthropic"|"openai"
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// ProvidersConfig holds the document-capable primary and the text-only secondary service.
type ProvidersConfig struct {
	Primary   ProviderConfig
	Secondary ProviderConfig
}

// RetryConfig holds the backoff schedules per generation path.
type RetryConfig struct {
	Default retry.Config
	File    retry.Config
	Text    retry.Config
}

// GovernorConfig paces calls to each provider.
type GovernorConfig struct {
	CallsPerMinute  int
	TokensPerMinute int
	LargeCooldown   time.Duration
}

// BudgetConfig holds token budgets for document content.
type BudgetConfig struct {
	PrimaryTokens   int
	ReferenceTokens int
	// LargeFileTokens marks a document as large for progress wording and time estimates.
	LargeFileTokens int
	MaxPDFPages     int
}

// RedisConfig is shared by the breaker and the status store.
type RedisConfig struct {
	URL string
}

// BreakerConfig controls the shared provider cooldown.
type BreakerConfig struct {
	Enabled     bool
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// StatusConfig controls status and progress tracking for polling clients.
type StatusConfig struct {
	Enabled bool
	TTL     time.Duration
}

// StorageConfig describes where document bytes come from.
type StorageConfig struct {
	S3Region   string
	S3Endpoint string
	// Password decrypts uploads stored in the GCM3NCR0 format.
	Password   string
	MaxBytes   int64
	AllowLocal bool
	// HealthBucket is checked by /health when set.
	HealthBucket string

	// Remote http(s) documents are off unless AllowRemote; AllowedHosts narrows them further.
	AllowRemote       bool
	AllowedHosts      []string
	AllowPrivateHosts bool
}

// ConverterConfig controls office-to-PDF conversion.
type ConverterConfig struct {
	Binary  string
	Workers int
	Timeout time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Config is the top-level configuration.
type Config struct {
	Logging   LoggingConfig
	Axiom     AxiomConfig
	Providers ProvidersConfig
	Retry     RetryConfig
	Governor  GovernorConfig
	Budget    BudgetConfig
	Redis     RedisConfig
	Breaker   BreakerConfig
	Status    StatusConfig
	Storage   StorageConfig
	Converter ConverterConfig
	Server    ServerConfig
}

// Load reads an optional .env file (or the given files) and then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	cfg := FromEnv()
	return cfg, cfg.Validate()
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/quizgen.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_quizgen",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	requestTimeout := parseDuration(getEnv("REQUEST_TIMEOUT", "60s"), 60*time.Second)
	cfg.Providers = ProvidersConfig{
		Primary: ProviderConfig{
			Engine:  getEnv("PRIMARY_ENGINE", "anthropic"),
			Model:   getEnv("PRIMARY_MODEL", "claude-3-5-sonnet-20241022"),
			APIKey:  getEnv("ANTHROPIC_API_KEY", ""),
			BaseURL: getEnv("ANTHROPIC_BASE_URL", ""),
			Timeout: parseDuration(getEnv("PRIMARY_TIMEOUT", ""), requestTimeout),
		},
		Secondary: ProviderConfig{
			Engine:  getEnv("SECONDARY_ENGINE", "cohere"),
			Model:   getEnv("SECONDARY_MODEL", "command-r-plus"),
			APIKey:  getEnv("SECONDARY_API_KEY", os.Getenv("COHERE_API_KEY")),
			BaseURL: getEnv("SECONDARY_BASE_URL", "https://api.cohere.ai/compatibility/v1"),
			Timeout: parseDuration(getEnv("SECONDARY_TIMEOUT", ""), requestTimeout),
		},
	}

	cfg.Retry = RetryConfig{
		Default: retryFromEnv("RETRY", retry.Default),
		File:    retryFromEnv("RETRY_FILE", retry.Config{MaxRetries: 3, BaseDelay: 3 * time.Second, MaxDelay: 60 * time.Second, BackoffMultiplier: 2}),
		Text:    retryFromEnv("RETRY_TEXT", retry.Config{MaxRetries: 2, BaseDelay: time.Second, MaxDelay: 10 * time.Second, BackoffMultiplier: 2}),
	}

	cfg.Governor = GovernorConfig{
		CallsPerMinute:  parseInt(getEnv("GOVERNOR_CALLS_PER_MINUTE", "10"), 10),
		TokensPerMinute: parseInt(getEnv("GOVERNOR_TOKENS_PER_MINUTE", "50000"), 50000),
		LargeCooldown:   parseDuration(getEnv("GOVERNOR_LARGE_COOLDOWN", "3s"), 3*time.Second),
	}

	cfg.Budget = BudgetConfig{
		PrimaryTokens:   parseInt(getEnv("BUDGET_PRIMARY_TOKENS", "12000"), 12000),
		ReferenceTokens: parseInt(getEnv("BUDGET_REFERENCE_TOKENS", "8000"), 8000),
		LargeFileTokens: parseInt(getEnv("BUDGET_LARGE_FILE_TOKENS", "15000"), 15000),
		MaxPDFPages:     parseInt(getEnv("MAX_PDF_PAGES", "300"), 300),
	}

	cfg.Redis = RedisConfig{URL: getEnv("REDIS_URL", "redis://localhost:6379")}

	cfg.Breaker = BreakerConfig{
		Enabled:     parseBool(getEnv("BREAKER_ENABLED", "0")),
		BaseBackoff: parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
		MaxBackoff:  parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
	}

	cfg.Status = StatusConfig{
		Enabled: parseBool(getEnv("STATUS_ENABLED", "0")),
		TTL:     parseDuration(getEnv("STATUS_TTL", "24h"), 24*time.Hour),
	}

	cfg.Storage = StorageConfig{
		S3Region:   getEnv("S3_REGION", ""),
		S3Endpoint: getEnv("S3_ENDPOINT", ""),
		Password:   getEnv("ENCRYPTION_PASSWORD", ""),
		MaxBytes:   int64(parseInt(getEnv("MAX_DOCUMENT_MB", "25"), 25)) << 20,
		AllowLocal: parseBool(getEnv("ALLOW_LOCAL_FILES", "0")),

		HealthBucket: getEnv("S3_HEALTH_BUCKET", ""),

		AllowRemote:       parseBool(getEnv("ALLOW_REMOTE_DOCUMENTS", "0")),
		AllowedHosts:      parseList(getEnv("DOCUMENT_ALLOWED_HOSTS", "")),
		AllowPrivateHosts: parseBool(getEnv("ALLOW_PRIVATE_DOCUMENT_HOSTS", "0")),
	}

	cfg.Converter = ConverterConfig{
		Binary:  getEnv("LIBREOFFICE_BIN", "soffice"),
		Workers: parseInt(getEnv("CONVERTER_WORKERS", "2"), 2),
		Timeout: parseDuration(getEnv("CONVERTER_TIMEOUT", "120s"), 120*time.Second),
	}

	cfg.Server = ServerConfig{
		Port:            getEnv("PORT", "8080"),
		RequestTimeout:  parseDuration(getEnv("GENERATE_TIMEOUT", "5m"), 5*time.Minute),
		ShutdownTimeout: parseDuration(getEnv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
	}

	return cfg
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	for name, rc := range map[string]retry.Config{"RETRY": c.Retry.Default, "RETRY_FILE": c.Retry.File, "RETRY_TEXT": c.Retry.Text} {
		if err := rc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if c.Budget.PrimaryTokens <= 0 || c.Budget.ReferenceTokens <= 0 {
		errs = append(errs, errors.New("token budgets must be positive"))
	}
	for _, p := range []ProviderConfig{c.Providers.Primary, c.Providers.Secondary} {
		if p.Model == "" {
			errs = append(errs, fmt.Errorf("provider %s has no model", p.Engine))
		}
	}
	return errors.Join(errs...)
}

func retryFromEnv(prefix string, def retry.Config) retry.Config {
	return retry.Config{
		MaxRetries:        parseInt(getEnv(prefix+"_MAX_RETRIES", ""), def.MaxRetries),
		BaseDelay:         parseDuration(getEnv(prefix+"_BASE_DELAY", ""), def.BaseDelay),
		MaxDelay:          parseDuration(getEnv(prefix+"_MAX_DELAY", ""), def.MaxDelay),
		BackoffMultiplier: parseFloat(getEnv(prefix+"_BACKOFF_FACTOR", ""), def.BackoffMultiplier),
	}
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return def
}

// parseList splits a comma separated value, dropping empty items.
func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" {
		return "true"
	}
	return "false"
}
