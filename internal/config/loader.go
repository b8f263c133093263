package config

import (
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with a custom variable lookup, e.g. a map read from a
// .env file.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), getenv); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value, getenv func(string) string) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, getenv); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		envAlt := field.Tag.Get("envAlt")
		defaultVal := field.Tag.Get("default")
		required := field.Tag.Get("required") == "true"

		if envName == "" {
			continue
		}

		// Try primary env var, then alternate
		value := strings.TrimSpace(getenv(envName))
		if value == "" && envAlt != "" {
			value = strings.TrimSpace(getenv(envAlt))
		}

		if value == "" {
			if required {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = defaultVal
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		field.Set(reflect.ValueOf(SplitList(value)))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// SplitList splits a comma-separated value, trimming blanks.
func SplitList(value string) []string {
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

// courseKeyColumns are the course columns a natural key may use.
var courseKeyColumns = []string{"pilar", "tipo", "nome"}

// ValidateCourseKey checks that key contains nome and only course columns.
func ValidateCourseKey(key []string) error {
	if !slices.Contains(key, "nome") {
		return fmt.Errorf("course key %v must include nome", key)
	}
	for _, col := range key {
		if !slices.Contains(courseKeyColumns, col) {
			return fmt.Errorf("course key column %q must be one of %s", col, strings.Join(courseKeyColumns, ", "))
		}
	}
	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Store validation
	switch c.Store.Driver {
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required for STORE_DRIVER=postgres")
		}
		if c.Store.MaxConns <= 0 {
			errs = append(errs, "DB_MAX_CONNS must be positive")
		}
		if c.Store.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
		if c.Store.MaxConns < c.Store.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Store.MaxConns, c.Store.MinConns))
		}
	case DriverPostgREST:
		if c.Store.SupabaseURL == "" {
			errs = append(errs, "SUPABASE_URL is required for STORE_DRIVER=postgrest")
		}
		if c.Store.SupabaseKey == "" {
			errs = append(errs, "SUPABASE_SERVICE_KEY is required for STORE_DRIVER=postgrest")
		}
		if c.Store.HTTPTimeout <= 0 {
			errs = append(errs, "STORE_HTTP_TIMEOUT must be positive")
		}
		if c.Store.MaxRetries < 0 {
			errs = append(errs, "STORE_MAX_RETRIES must be non-negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_DRIVER (%q) must be one of: %s, %s",
			c.Store.Driver, DriverPostgres, DriverPostgREST))
	}

	// Import validation
	if c.Import.Delay < 0 {
		errs = append(errs, "IMPORT_DELAY must be non-negative")
	}
	if c.Import.LessonDelay < 0 {
		errs = append(errs, "IMPORT_LESSON_DELAY must be non-negative")
	}
	if err := ValidateCourseKey(c.Import.CourseKey); err != nil {
		errs = append(errs, "IMPORT_COURSE_KEY: "+err.Error())
	}
	if c.Import.MaxConcurrent <= 0 {
		errs = append(errs, "IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxConcurrent > 1 && !c.Import.OnConflict {
		errs = append(errs, "IMPORT_MAX_CONCURRENT > 1 requires IMPORT_ON_CONFLICT=true")
	}
	// Only the postgres driver has an atomic upsert; postgrest falls back to
	// check-then-act, which races under concurrent imports.
	if c.Import.MaxConcurrent > 1 && c.Store.Driver != DriverPostgres {
		errs = append(errs, "IMPORT_MAX_CONCURRENT > 1 requires STORE_DRIVER=postgres")
	}
	if c.Import.MaxWaitTime <= 0 {
		errs = append(errs, "IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.MaxUploadSize <= 0 {
		errs = append(errs, "IMPORT_MAX_UPLOAD_SIZE must be positive")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Credentials are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Store: {Driver: %q, DatabaseURL: %s, SupabaseURL: %q, SupabaseKey: %s}, ",
		c.Store.Driver, mask(c.Store.DatabaseURL), c.Store.SupabaseURL, mask(c.Store.SupabaseKey))
	fmt.Fprintf(&b, "Import: {Delay: %s, CSVPath: %q, DataDir: %q, CourseKey: %v, OnConflict: %v, Schema: %q}, ",
		c.Import.Delay, c.Import.CSVPath, c.Import.DataDir, c.Import.CourseKey, c.Import.OnConflict, c.Import.Schema)
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d, APIKeys: %d configured}, ", c.Server.Host, c.Server.Port, len(c.Server.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
