// Package config loads the importer's settings from environment variables
// with defaults, and validates them on startup so a misconfigured run fails
// before touching any data.
package config

import (
	"net"
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverPostgres  = "postgres"
	DriverPostgREST = "postgrest"
)

// Config holds all application configuration.
type Config struct {
	Store   StoreConfig
	Import  ImportConfig
	Server  ServerConfig
	Logging LoggingConfig
}

// StoreConfig selects and configures the tabular store.
type StoreConfig struct {
	// Driver is postgres (direct pgx connection) or postgrest (Supabase REST API).
	Driver string `env:"STORE_DRIVER" default:"postgrest"`

	// DatabaseURL is the PostgreSQL connection string for the postgres driver.
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SupabaseURL is the project URL for the postgrest driver.
	SupabaseURL string `env:"SUPABASE_URL"`

	// SupabaseKey is the service-role key for the postgrest driver.
	SupabaseKey string `env:"SUPABASE_SERVICE_KEY" envAlt:"SUPABASE_KEY"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"4"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"0"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// HTTPTimeout bounds one PostgREST request (default: 30s)
	HTTPTimeout time.Duration `env:"STORE_HTTP_TIMEOUT" default:"30s"`

	// MaxRetries is how often a throttled PostgREST request is replayed (default: 3)
	MaxRetries int `env:"STORE_MAX_RETRIES" default:"3"`
}

// ImportConfig holds pipeline settings.
type ImportConfig struct {
	// Delay is the pause between course writes (default: 500ms)
	Delay time.Duration `env:"IMPORT_DELAY" default:"500ms"`

	// LessonDelay is the pause between lesson writes (default: 0s)
	LessonDelay time.Duration `env:"IMPORT_LESSON_DELAY" default:"0s"`

	// CSVPath is the source used when no input is given on the command line.
	CSVPath string `env:"IMPORT_CSV_PATH" default:"docs/internal_docs/cursos_classplay.csv"`

	// DataDir holds courses.json and lessons.json from a previous run.
	DataDir string `env:"IMPORT_DATA_DIR" default:"docs/internal_docs/processed"`

	// CourseKey is the natural key of courses, a subset of pilar,tipo,nome
	// that contains nome (default: nome)
	CourseKey []string `env:"IMPORT_COURSE_KEY" default:"nome"`

	// OnConflict switches to atomic INSERT ... ON CONFLICT upserts. Requires
	// unique constraints on the natural keys.
	OnConflict bool `env:"IMPORT_ON_CONFLICT" default:"false"`

	// Schema forces a CSV layout by name; auto detects it from the header.
	Schema string `env:"IMPORT_SCHEMA" default:"auto"`

	// SchemaFile loads a custom CSV layout from YAML and overrides Schema.
	SchemaFile string `env:"IMPORT_SCHEMA_FILE"`

	// SuccessPolicy overrides the entry point's default (threshold or zero-errors).
	SuccessPolicy string `env:"IMPORT_SUCCESS_POLICY"`

	// MaxConcurrent is the number of imports the server runs at once (default: 1)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"1"`

	// MaxWaitTime is how long an HTTP import waits for a slot (default: 5s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"5s"`

	// MaxUploadSize caps uploaded CSV files in bytes (default: 100MB)
	MaxUploadSize int64 `env:"IMPORT_MAX_UPLOAD_SIZE" default:"104857600"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for running imports (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds one request, imports included (default: 30m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"30m"`

	// APIKeys guard POST /api/imports via X-API-Key. Empty disables the check.
	APIKeys []string `env:"SERVER_API_KEYS"`

	// TrustedProxies lists CIDRs whose X-Real-IP / X-Forwarded-For are honoured.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
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
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
