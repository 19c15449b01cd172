package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Shugur-Network/torstatus/internal/logger"
	"github.com/Shugur-Network/torstatus/internal/report"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is set at runtime from build information
var Version = "dev" // This will be set by the main package during initialization

// EnvPrefix prefixes every environment override: TORSTATUS_DATABASE_URL.
const EnvPrefix = "TORSTATUS"

var validate = validator.New()

var hostnamePattern = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`)

// Config holds every sub‑config.
type Config struct {
	General   GeneralConfig   `mapstructure:"GENERAL"    validate:"required"`
	Web       WebConfig       `mapstructure:"WEB"        validate:"required"`
	Session   SessionConfig   `mapstructure:"SESSION"    validate:"required"`
	Database  DatabaseConfig  `mapstructure:"DATABASE"   validate:"required"`
	Logging   LoggingConfig   `mapstructure:"LOGGING"    validate:"required"`
	Metrics   MetricsConfig   `mapstructure:"METRICS"    validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"RATE_LIMIT" validate:"required"`
	GeoIP     GeoIPConfig     `mapstructure:"GEOIP"      validate:"required"`
	ExitIndex ExitIndexConfig `mapstructure:"EXIT_INDEX" validate:"required"`
}

// Register custom validation rules
func init() {
	registerCustomValidators()

	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(Config)
		performCrossFieldValidation(sl, cfg)
	}, Config{})
}

// registerCustomValidators registers custom validation functions
func registerCustomValidators() {
	validators := map[string]validator.Func{
		// ":8080" or "host:8080"
		"listen_addr": func(fl validator.FieldLevel) bool {
			host, port, err := net.SplitHostPort(fl.Field().String())
			if err != nil || port == "" {
				return false
			}
			if _, err := net.LookupPort("tcp", port); err != nil {
				return false
			}
			if host != "" && net.ParseIP(host) == nil && !hostnamePattern.MatchString(host) {
				return false
			}
			return true
		},
		// Between 1 second and 24 hours
		"reasonable_duration": func(fl validator.FieldLevel) bool {
			d := fl.Field().Interface().(time.Duration)
			return d >= time.Second && d <= 24*time.Hour
		},
		// Between 1 second and 1 hour
		"timeout_duration": func(fl validator.FieldLevel) bool {
			d := fl.Field().Interface().(time.Duration)
			return d >= time.Second && d <= time.Hour
		},
		"log_level": func(fl validator.FieldLevel) bool {
			switch fl.Field().String() {
			case "debug", "info", "warn", "error", "fatal":
				return true
			}
			return false
		},
		"log_format": func(fl validator.FieldLevel) bool {
			format := fl.Field().String()
			return format == "console" || format == "json"
		},
		"host": func(fl validator.FieldLevel) bool {
			host := fl.Field().String()
			if host == "" {
				return false
			}
			return net.ParseIP(host) != nil || hostnamePattern.MatchString(host)
		},
		"db_driver": func(fl validator.FieldLevel) bool {
			d := fl.Field().String()
			return d == DriverPostgres || d == DriverSQLite
		},
		"cron_spec": func(fl validator.FieldLevel) bool {
			_, err := cron.ParseStandard(fl.Field().String())
			return err == nil
		},
		"column": func(fl validator.FieldLevel) bool {
			return report.IsColumn(fl.Field().String())
		},
	}

	for tag, fn := range validators {
		if err := validate.RegisterValidation(tag, fn); err != nil {
			logger.Error("Failed to register validator", zap.String("tag", tag), zap.Error(err))
		}
	}
}

// Database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// performCrossFieldValidation performs validation across multiple fields
func performCrossFieldValidation(sl validator.StructLevel, cfg Config) {
	// The metrics listener cannot share the report server's port
	if cfg.Metrics.Enabled {
		if _, port, err := net.SplitHostPort(cfg.Web.ListenAddr); err == nil {
			if p, err := strconv.Atoi(port); err == nil && p == cfg.Metrics.Port {
				sl.ReportError(cfg.Metrics.Port, "Port", "Port", "port_conflict", "")
			}
		}
	}

	switch cfg.Database.Driver {
	case DriverSQLite:
		if cfg.Database.SQLitePath == "" {
			sl.ReportError(cfg.Database.SQLitePath, "SQLitePath", "SQLitePath", "sqlite_path_required", "")
		}
	case DriverPostgres:
		if cfg.Database.URL == "" && cfg.Database.Server == "" {
			sl.ReportError(cfg.Database.URL, "URL", "URL", "postgres_target_required", "")
		}
	}

	if cfg.ExitIndex.Capacity > 0 && cfg.ExitIndex.FalsePositiveRate >= 0.5 {
		sl.ReportError(cfg.ExitIndex.FalsePositiveRate, "FalsePositiveRate", "FalsePositiveRate", "fp_rate_too_high", "")
	}
}

/* ------------------------------------------------------------------ *
|  Public API                                                         |
* -------------------------------------------------------------------*/

// SetVersion sets the version from build information
func SetVersion(v string) {
	Version = v
}

// Load merges defaults → file (optional) → .env → env vars, validates, and
// returns cfg.
func Load(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix) // TORSTATUS_WEB_LISTEN_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 1. defaults.yaml (embedded)
	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	// 2. optional user file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		// Check for config.yaml in current directory if no path specified
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err != nil {
			if log != nil {
				log.Info("No config.yaml found, using defaults")
			}
		} else if log != nil {
			log.Info("Loaded config.yaml from current directory")
		}
	}

	// 3. .env in the working directory feeds the environment; real env vars win
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read .env: %w", err)
	}

	// 4. env already merged by AutomaticEnv()

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	if log != nil {
		log.Info("configuration loaded",
			zap.String("version", Version),
			zap.String("db_driver", cfg.Database.Driver),
		)
	}
	if err := initializeLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	if log != nil {
		log.Info("logger initialized",
			zap.String("level", cfg.Logging.Level),
			zap.String("format", cfg.Logging.Format),
			zap.String("file", cfg.Logging.FilePath),
		)
	}
	return &cfg, nil
}

// Validate checks a configuration after flags have been applied over it.
func Validate(cfg *Config) error {
	if err := validate.Struct(*cfg); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// initializeLogger initializes the logger using the LoggingConfig
func initializeLogger(loggingConfig LoggingConfig) error {
	return logger.Init(
		logger.WithLevel(loggingConfig.Level),
		logger.WithFormat(loggingConfig.Format),
		logger.WithFile(loggingConfig.FilePath),
		logger.WithVersion(Version),
		logger.WithComponent("torstatus"),
		logger.WithRotation(loggingConfig.MaxSize, loggingConfig.MaxBackups, loggingConfig.MaxAge),
	)
}

// formatValidationError converts validator errors into user-friendly messages
func formatValidationError(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		messages := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			messages = append(messages, getFieldErrorMessage(fieldError))
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
	}

	return fmt.Errorf("configuration validation failed: %w", err)
}

// getFieldErrorMessage returns a user-friendly error message for a field validation error
func getFieldErrorMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	value := fe.Value()
	param := fe.Param()

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required but not provided", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s (got: %v)", field, param, value)
	case "max":
		return fmt.Sprintf("%s must be at most %s (got: %v)", field, param, value)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s (got: %v)", field, param, value)
	case "lt":
		return fmt.Sprintf("%s must be less than %s (got: %v)", field, param, value)
	case "listen_addr":
		return fmt.Sprintf("%s must be a listen address in format ':port' or 'host:port' (got: %v)", field, value)
	case "reasonable_duration":
		return fmt.Sprintf("%s must be between 1 second and 24 hours (got: %v)", field, value)
	case "timeout_duration":
		return fmt.Sprintf("%s must be between 1 second and 1 hour (got: %v)", field, value)
	case "log_level":
		return fmt.Sprintf("%s must be one of: debug, info, warn, error, fatal (got: %v)", field, value)
	case "log_format":
		return fmt.Sprintf("%s must be either 'console' or 'json' (got: %v)", field, value)
	case "host":
		return fmt.Sprintf("%s must be a valid hostname or IP address (got: %v)", field, value)
	case "db_driver":
		return fmt.Sprintf("%s must be either '%s' or '%s' (got: %v)", field, DriverPostgres, DriverSQLite, value)
	case "cron_spec":
		return fmt.Sprintf("%s must be a five-field cron expression (got: %v)", field, value)
	case "column":
		return fmt.Sprintf("%s is not a recognised column name (got: %v)", field, value)
	case "port_conflict":
		return "metrics port conflicts with the web listen port, they must be different"
	case "sqlite_path_required":
		return "DATABASE.SQLITE_PATH is required when DATABASE.DRIVER is sqlite"
	case "postgres_target_required":
		return "DATABASE.URL or DATABASE.SERVER is required when DATABASE.DRIVER is postgres"
	case "fp_rate_too_high":
		return fmt.Sprintf("%s must be below 0.5 for the exit index to be useful (got: %v)", field, value)
	default:
		return fmt.Sprintf("%s validation failed: %s (got: %v)", field, fe.Tag(), value)
	}
}
