// Package config provides centralized configuration management for the
// converter service. It loads configuration from environment variables with
// sensible defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"path"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Artifact ArtifactConfig
	Document DocumentConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `env:"SERVER_PORT" default:"8000"`

	// APIPrefix is prepended to every route (default: /api/v1)
	APIPrefix string `env:"API_PREFIX" default:"/api/v1"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the artifact index connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// UploadConfig holds spreadsheet upload settings.
type UploadConfig struct {
	// Dir is where uploaded workbooks are staged before conversion (default: uploads)
	Dir string `env:"UPLOAD_DIR" default:"uploads"`

	// MaxSizeMB is the maximum allowed upload size in megabytes (default: 10)
	MaxSizeMB int64 `env:"MAX_UPLOAD_SIZE_MB" default:"10"`

	// AllowedExtensions is the comma-separated extension allow-list (default: .xlsx,.xls)
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" default:".xlsx,.xls"`
}

// ArtifactConfig holds converted-output storage settings.
type ArtifactConfig struct {
	// Dir is where converted documents are persisted (default: output)
	Dir string `env:"OUTPUT_DIR" default:"output"`

	// EncryptionKey is the base64-encoded 32-byte at-rest key.
	// Empty disables at-rest encryption.
	EncryptionKey string `env:"ARTIFACT_ENCRYPTION_KEY"`

	// RetainAfterDownload keeps the stored artifact after a successful
	// download; false purges it once served (default: true)
	RetainAfterDownload bool `env:"ARTIFACT_RETAIN_AFTER_DOWNLOAD" default:"true"`

	// Retention is how long stored artifacts are kept before the sweeper
	// removes them (default: 24h)
	Retention time.Duration `env:"ARTIFACT_RETENTION" default:"24h"`

	// SweepInterval is how often the retention sweeper runs (default: 1h)
	SweepInterval time.Duration `env:"ARTIFACT_SWEEP_INTERVAL" default:"1h"`
}

// DocumentConfig holds output document settings.
type DocumentConfig struct {
	// RootElement names the document root; the per-row record element is
	// derived from it as <RootElement>_DATA (default: CALLREPORT)
	RootElement string `env:"XML_ROOT_ELEMENT" default:"CALLREPORT"`

	// SchemaVersion is reported by the health endpoint (default: 1.0.0)
	SchemaVersion string `env:"XML_SCHEMA_VERSION" default:"1.0.0"`

	// Encoding is the declared document encoding (default: UTF-8)
	Encoding string `env:"XML_ENCODING" default:"UTF-8"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// Route joins the API prefix with a route pattern.
func (c *ServerConfig) Route(pattern string) string {
	return path.Join("/", c.APIPrefix, pattern)
}

// MaxSizeBytes returns the upload size cap in bytes.
func (c *UploadConfig) MaxSizeBytes() int64 {
	return c.MaxSizeMB * 1024 * 1024
}

// ExtensionAllowed reports whether ext (including the leading dot) is in the
// allow-list. Matching is case-insensitive.
func (c *UploadConfig) ExtensionAllowed(ext string) bool {
	for _, allowed := range c.AllowedExtensions {
		if strings.EqualFold(allowed, ext) {
			return true
		}
	}
	return false
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
