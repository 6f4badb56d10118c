package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultMaxUploadSize     = 10 << 20
	DefaultMaxLines          = 100_000
	DefaultReprocessMaxBatch = 1000
	DefaultReprocessWorkers  = 8
	DefaultErrorCacheTTL     = 10 * time.Minute
)

// UploadConfig bounds what the ingestion path accepts.
type UploadConfig struct {
	MaxSizeBytes      int64    `yaml:"max_size_bytes"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxLines          int      `yaml:"max_lines"`
}

// IsExtensionAllowed compares case-insensitively and ignores a leading dot.
func (u UploadConfig) IsExtensionAllowed(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return false
	}
	for _, allowed := range u.AllowedExtensions {
		if strings.ToLower(strings.TrimPrefix(strings.TrimSpace(allowed), ".")) == ext {
			return true
		}
	}
	return false
}

type ReprocessConfig struct {
	MaxBatch int `yaml:"max_batch"`
	Workers  int `yaml:"workers"`
}

type Config struct {
	DBHost     string `yaml:"db_host"`
	DBPort     string `yaml:"db_port"`
	DBUser     string `yaml:"db_user"`
	DBPassword string `yaml:"db_password"`
	DBName     string `yaml:"db_name"`
	DBSSLMode  string `yaml:"db_sslmode"`
	ServerPort string `yaml:"server_port"`

	// RedisAddr enables the error-code cache when set.
	RedisAddr     string        `yaml:"redis_addr"`
	ErrorCacheTTL time.Duration `yaml:"error_cache_ttl"`

	LogLevel string `yaml:"log_level"`

	Upload    UploadConfig    `yaml:"upload"`
	Reprocess ReprocessConfig `yaml:"reprocess"`
}

// Default returns a configuration usable for local development.
func Default() *Config {
	return &Config{
		DBHost:        "localhost",
		DBPort:        "5432",
		DBUser:        "postgres",
		DBPassword:    "password",
		DBName:        "nach",
		DBSSLMode:     "disable",
		ServerPort:    "8080",
		ErrorCacheTTL: DefaultErrorCacheTTL,
		LogLevel:      "info",
		Upload: UploadConfig{
			MaxSizeBytes:      DefaultMaxUploadSize,
			AllowedExtensions: []string{"txt"},
			MaxLines:          DefaultMaxLines,
		},
		Reprocess: ReprocessConfig{
			MaxBatch: DefaultReprocessMaxBatch,
			Workers:  DefaultReprocessWorkers,
		},
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// NACH_CONFIG_FILE and finally environment variables.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv("NACH_CONFIG_FILE"))
}

// LoadFrom is Load with an explicit YAML path; an empty path skips the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a YAML file on top of the defaults, without environment overrides.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(path); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString(&c.DBHost, "DB_HOST")
	setString(&c.DBPort, "DB_PORT")
	setString(&c.DBUser, "DB_USER")
	setString(&c.DBPassword, "DB_PASSWORD")
	setString(&c.DBName, "DB_NAME")
	setString(&c.DBSSLMode, "DB_SSLMODE")
	setString(&c.ServerPort, "SERVER_PORT")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("UPLOAD_ALLOWED_EXTENSIONS"); v != "" {
		c.Upload.AllowedExtensions = strings.Split(v, ",")
	}

	var errs []error
	if v := os.Getenv("UPLOAD_MAX_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("UPLOAD_MAX_SIZE: %w", err))
		}
		c.Upload.MaxSizeBytes = n
	}
	if err := setInt(&c.Upload.MaxLines, "UPLOAD_MAX_LINES"); err != nil {
		errs = append(errs, err)
	}
	if err := setInt(&c.Reprocess.Workers, "REPROCESS_WORKERS"); err != nil {
		errs = append(errs, err)
	}
	if err := setInt(&c.Reprocess.MaxBatch, "REPROCESS_MAX_BATCH"); err != nil {
		errs = append(errs, err)
	}
	if v := os.Getenv("ERROR_CACHE_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("ERROR_CACHE_TTL: %w", err))
		}
		c.ErrorCacheTTL = d
	}
	return errors.Join(errs...)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DBHost == "" {
		errs = append(errs, errors.New("db_host is required"))
	}
	if c.DBName == "" {
		errs = append(errs, errors.New("db_name is required"))
	}
	if c.Upload.MaxSizeBytes <= 0 {
		errs = append(errs, errors.New("upload.max_size_bytes must be positive"))
	}
	if len(c.Upload.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("upload.allowed_extensions must not be empty"))
	}
	if c.Upload.MaxLines <= 0 {
		errs = append(errs, errors.New("upload.max_lines must be positive"))
	}
	if c.Reprocess.MaxBatch <= 0 {
		errs = append(errs, errors.New("reprocess.max_batch must be positive"))
	}
	if c.Reprocess.Workers <= 0 {
		errs = append(errs, errors.New("reprocess.workers must be positive"))
	}
	if c.ErrorCacheTTL < 0 {
		errs = append(errs, errors.New("error_cache_ttl must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}
