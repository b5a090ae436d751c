package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"bauchermatch/internal/core"
)

// Duplicate policies for uploads that share (filename, month, year).
const (
	DuplicateKeep   = "duplicate"
	DuplicateReject = "reject"
	DuplicateUpsert = "upsert"
)

type Config struct {
	// HTTP Server
	Port             string
	MaxUploadBytes   int64
	UploadsPerMinute int
	TrustedProxies   []string

	// Storage
	DataBackend    string
	SQLiteDBPath   string
	OutputDir      string
	StorageTimeout time.Duration

	// Extraction service
	ExtractionBaseURL string
	ExtractionTimeout time.Duration
	DefaultVariant    string
	PDFPreflight      bool
	DuplicatePolicy   string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID   string
	GoogleCredentialsFile string
	GoogleCredentialsJSON string
	ExportPollInterval    time.Duration

	// Inbox watcher
	InboxDir      string
	InboxDebounce time.Duration

	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8081"),
		MaxUploadBytes: int64(getEnvInt("MAX_UPLOAD_MB", 20)) << 20,

		UploadsPerMinute: getEnvInt("UPLOADS_PER_MINUTE", 30),
		TrustedProxies:   getEnvList("TRUSTED_PROXIES"),

		DataBackend:    getEnv("DATA_BACKEND", "sqlite"),
		SQLiteDBPath:   getEnv("SQLITE_DB_PATH", "./data/baucher_match.db"),
		OutputDir:      getEnv("OUTPUT_DIR", "./data/exports"),
		StorageTimeout: getEnvDuration("STORAGE_TIMEOUT", 5*time.Second),

		ExtractionBaseURL: getEnv("EXTRACTION_BASE_URL", "http://localhost:8000"),
		ExtractionTimeout: getEnvDuration("EXTRACTION_TIMEOUT", 2*time.Minute),
		DefaultVariant:    getEnv("EXTRACTION_VARIANT", string(core.VariantPartial)),
		PDFPreflight:      getEnvBool("PDF_PREFLIGHT", true),
		DuplicatePolicy:   getEnv("DUPLICATE_POLICY", DuplicateKeep),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bauchermatch"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "export_series"),

		GoogleSpreadsheetID:   getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON: getEnv("GOOGLE_CREDENTIALS_JSON", ""),
		ExportPollInterval:    getEnvDuration("EXPORT_POLL_INTERVAL", 30*time.Second),

		InboxDir:      getEnv("INBOX_DIR", ""),
		InboxDebounce: getEnvDuration("INBOX_DEBOUNCE", 2*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.MaxUploadBytes < 1<<20 {
		errors = append(errors, fmt.Sprintf("invalid max upload size %d bytes: must be at least 1 MB", c.MaxUploadBytes))
	}

	if c.UploadsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid uploads per minute %d: must be at least 1", c.UploadsPerMinute))
	}

	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR", cidr))
		}
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
	}

	if c.OutputDir == "" {
		errors = append(errors, "output directory cannot be empty")
	}

	if c.StorageTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid storage timeout %v: must be positive", c.StorageTimeout))
	}

	if parsedURL, err := url.Parse(c.ExtractionBaseURL); err != nil || c.ExtractionBaseURL == "" {
		errors = append(errors, fmt.Sprintf("invalid extraction base URL '%s'", c.ExtractionBaseURL))
	} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid extraction base URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
	}

	if c.ExtractionTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid extraction timeout %v: must be at least 1 second", c.ExtractionTimeout))
	} else if c.ExtractionTimeout > 30*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid extraction timeout %v: must be at most 30 minutes", c.ExtractionTimeout))
	}

	if _, err := core.ParseVariant(c.DefaultVariant); err != nil {
		errors = append(errors, fmt.Sprintf("invalid extraction variant '%s': must be one of [full full-json partial]", c.DefaultVariant))
	}

	switch c.DuplicatePolicy {
	case DuplicateKeep, DuplicateReject, DuplicateUpsert:
	default:
		errors = append(errors, fmt.Sprintf("invalid duplicate policy '%s': must be one of [duplicate reject upsert]", c.DuplicatePolicy))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		hasFile := c.GoogleCredentialsFile != ""
		if !hasFile && c.GoogleCredentialsJSON == "" {
			errors = append(errors, "either GOOGLE_CREDENTIALS_FILE or GOOGLE_CREDENTIALS_JSON must be provided for sheets export")
		}
		if hasFile {
			if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
			}
		}
		if c.ExportPollInterval < time.Second {
			errors = append(errors, fmt.Sprintf("invalid export poll interval %v: must be at least 1 second", c.ExportPollInterval))
		}
	}

	if c.InboxDir != "" {
		if c.InboxDebounce < 100*time.Millisecond {
			errors = append(errors, fmt.Sprintf("invalid inbox debounce %v: must be at least 100ms", c.InboxDebounce))
		}
		if abs, err := filepath.Abs(c.InboxDir); err == nil && abs == mustAbs(c.OutputDir) {
			errors = append(errors, "inbox directory must differ from the output directory")
		}
	}

	if _, ok := parseLevel(c.LogLevel); !ok {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of [debug info warn error]", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Level returns the slog level named by LogLevel, defaulting to info.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

// Variant returns the configured default extraction variant.
func (c *Config) Variant() core.Variant {
	v, err := core.ParseVariant(c.DefaultVariant)
	if err != nil {
		return core.VariantPartial
	}
	return v
}

// SheetsEnabled reports whether yearly series are exported to a spreadsheet.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

func mustAbs(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
