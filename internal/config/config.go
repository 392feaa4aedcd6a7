package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the base server configuration.
type Config struct {
	Host                     string
	Port                     string
	SQLiteDBPath             string
	NodeEnv                  string
	AllowTestMode            bool
	JWTSecret                string
	JWTAccessTokenExpirySec  int
	JWTRefreshTokenExpirySec int
	LogLevel                 string
	LogFormat                string // console or json

	// Freebox client settings
	FreeboxURL          string
	FreeboxTimeoutMs    int
	FreeboxUseHTTPS     bool
	FreeboxAppID        string
	FreeboxAppName      string
	FreeboxAppVersion   string
	FreeboxDeviceName   string
	FreeboxReceiverName string

	// Local network advertisement
	NSDEnabled     bool
	NSDServiceName string
	NSDServiceType string

	// NATSURL enables the event sink when set.
	NATSURL           string
	NATSSubjectPrefix string

	CORSAllowedOrigins []string
	AuditRetentionDays int
	SchedulesEnabled   bool
}

// Load reads configuration from environment variables with defaults. When
// CONFIG_FILE names a YAML file its keys are used as a base layer under the
// environment.
func Load() (Config, error) {
	src, err := newSource(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Host:                     src.envString("HOST", "0.0.0.0"),
		Port:                     src.envString("PORT", "9000"),
		SQLiteDBPath:             src.envString("SQLITE_DB_PATH", "./data/freebox-hub.db"),
		NodeEnv:                  src.envString("NODE_ENV", "development"),
		AllowTestMode:            src.envBool("ALLOW_TEST_MODE", false),
		JWTSecret:                src.envString("JWT_SECRET", ""),
		JWTAccessTokenExpirySec:  src.envInt("JWT_ACCESS_TOKEN_EXPIRY", 3600),
		JWTRefreshTokenExpirySec: src.envInt("JWT_REFRESH_TOKEN_EXPIRY", 2592000),
		LogLevel:                 src.envString("LOG_LEVEL", "info"),
		LogFormat:                src.envString("LOG_FORMAT", "console"),

		FreeboxURL:          src.envString("FREEBOX_URL", "http://mafreebox.freebox.fr"),
		FreeboxTimeoutMs:    src.envInt("FREEBOX_TIMEOUT_MS", 5000),
		FreeboxUseHTTPS:     src.envBool("FREEBOX_USE_HTTPS", false),
		FreeboxAppID:        src.envString("FREEBOX_APP_ID", "ctf"),
		FreeboxAppName:      src.envString("FREEBOX_APP_NAME", "Cast to Freebox"),
		FreeboxAppVersion:   src.envString("FREEBOX_APP_VERSION", "1.0"),
		FreeboxDeviceName:   src.envString("FREEBOX_DEVICE_NAME", "Smartphone"),
		FreeboxReceiverName: src.envString("FREEBOX_RECEIVER_NAME", "Freebox Player"),

		NSDEnabled:     src.envBool("NSD_ENABLED", true),
		NSDServiceName: src.envString("NSD_SERVICE_NAME", "Cast to Freebox Service"),
		NSDServiceType: src.envString("NSD_SERVICE_TYPE", "_fbx-api._tcp"),

		NATSURL:           src.envString("NATS_URL", ""),
		NATSSubjectPrefix: src.envString("NATS_SUBJECT_PREFIX", "freebox-hub"),

		CORSAllowedOrigins: src.envCSV("CORS_ALLOWED_ORIGINS"),
		AuditRetentionDays: src.envInt("AUDIT_RETENTION_DAYS", 30),
		SchedulesEnabled:   src.envBool("SCHEDULES_ENABLED", true),
	}

	if len(strings.TrimSpace(cfg.JWTSecret)) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("LOG_FORMAT must be console or json, got %q", cfg.LogFormat)
	}
	if cfg.FreeboxTimeoutMs <= 0 {
		return Config{}, fmt.Errorf("FREEBOX_TIMEOUT_MS must be positive")
	}

	return cfg, nil
}

// source resolves a key from the environment first, then the config file.
type source struct {
	file map[string]string
}

func newSource(path string) (source, error) {
	src := source{file: map[string]string{}}
	if path == "" {
		return src, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return src, fmt.Errorf("read config file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return src, fmt.Errorf("parse config file %s: %w", path, err)
	}
	for key, val := range raw {
		src.file[strings.ToUpper(key)] = flatten(val)
	}
	return src, nil
}

// flatten renders scalar YAML values as env strings and lists as CSV.
func flatten(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(v)
	}
}

func (s source) lookup(key string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return s.file[key]
}

func (s source) envString(key, fallback string) string {
	val := s.lookup(key)
	if val == "" {
		return fallback
	}
	return val
}

func (s source) envInt(key string, fallback int) int {
	val := s.lookup(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) envBool(key string, fallback bool) bool {
	val := s.lookup(key)
	if val == "" {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func (s source) envCSV(key string) []string {
	val := s.lookup(key)
	if val == "" {
		return []string{}
	}
	parts := strings.Split(val, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		result = append(result, trimmed)
	}
	return result
}
