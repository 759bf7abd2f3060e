package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"mongoinit/pkg/schema"

	"github.com/spf13/viper"
)

// Report backends
const (
	ReportBackendFile  = "file"
	ReportBackendRedis = "redis"
	ReportBackendNone  = "none"
)

// AppConfig holds the complete configuration for the tool
type AppConfig struct {
	Environment string        `mapstructure:"environment"`
	LogLevel    string        `mapstructure:"log_level"`
	ServiceName string        `mapstructure:"service_name"`
	Profile     string        `mapstructure:"profile"`
	MongoDB     MongoConfig   `mapstructure:"mongodb"`
	AppUser     AppUserConfig `mapstructure:"app_user"`
	Report      ReportConfig  `mapstructure:"report"`
	Metrics     MetricsConfig `mapstructure:"metrics"`
}

type MongoConfig struct {
	URI              string        `mapstructure:"uri"`
	Database         string        `mapstructure:"database"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	ConnectAttempts  int           `mapstructure:"connect_attempts"`
}

// AppUserConfig describes the database-scoped account the application logs in with.
// An empty Username skips user provisioning.
type AppUserConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Role     string `mapstructure:"role"`
}

type ReportConfig struct {
	Backend   string `mapstructure:"backend"`
	Path      string `mapstructure:"path"`
	RedisAddr string `mapstructure:"redis_addr"`
	RedisKey  string `mapstructure:"redis_key"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

// Load loads configuration from file and environment variables
func Load(path string) (*AppConfig, error) {
	return load(path, (*AppConfig).Validate)
}

// LoadOffline loads configuration for commands that never connect to
// MongoDB, so mongodb.uri may be absent.
func LoadOffline(path string) (*AppConfig, error) {
	return load(path, (*AppConfig).ValidateOffline)
}

func load(path string, validate func(*AppConfig) error) (*AppConfig, error) {
	v := viper.New()

	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("service_name", "mongoinit")
	v.SetDefault("profile", schema.ProfileScript)
	v.SetDefault("mongodb.database", "betting")
	v.SetDefault("mongodb.connect_timeout", 10*time.Second)
	v.SetDefault("mongodb.operation_timeout", 60*time.Second)
	v.SetDefault("mongodb.connect_attempts", 3)
	v.SetDefault("app_user.role", "readWrite")
	v.SetDefault("report.backend", ReportBackendFile)
	v.SetDefault("report.path", "mongoinit-report.json")
	v.SetDefault("report.redis_key", "mongoinit:report")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	// Nested keys need explicit bindings for Unmarshal to see env overrides.
	v.BindEnv("service_name", "SERVICE_NAME")
	v.BindEnv("environment", "ENVIRONMENT")
	v.BindEnv("log_level", "LOG_LEVEL")
	v.BindEnv("profile", "MONGOINIT_PROFILE")
	v.BindEnv("mongodb.uri", "MONGODB_URI")
	v.BindEnv("mongodb.database", "MONGODB_DB", "MONGODB_DATABASE")
	v.BindEnv("mongodb.connect_timeout", "MONGODB_CONNECT_TIMEOUT")
	v.BindEnv("mongodb.operation_timeout", "MONGODB_OPERATION_TIMEOUT")
	v.BindEnv("mongodb.connect_attempts", "MONGODB_CONNECT_ATTEMPTS")
	v.BindEnv("app_user.username", "APP_DB_USER")
	v.BindEnv("app_user.password", "APP_DB_PASSWORD")
	v.BindEnv("app_user.role", "APP_DB_ROLE")
	v.BindEnv("report.backend", "REPORT_BACKEND")
	v.BindEnv("report.path", "REPORT_PATH")
	v.BindEnv("report.redis_addr", "REPORT_REDIS_ADDR")
	v.BindEnv("report.redis_key", "REPORT_REDIS_KEY")
	v.BindEnv("metrics.pushgateway_url", "METRICS_PUSHGATEWAY_URL")

	var config AppConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks if the configuration is valid for connecting to MongoDB
func (c *AppConfig) Validate() error {
	if c.MongoDB.URI == "" {
		return errors.New("mongodb.uri is required")
	}
	return c.ValidateOffline()
}

// ValidateOffline checks everything except the connection string.
func (c *AppConfig) ValidateOffline() error {
	if c.ServiceName == "" {
		return errors.New("service_name is required")
	}
	if _, err := schema.PlanFor(c.Profile, c.MongoDB.Database); err != nil {
		return err
	}
	if c.MongoDB.Database == "" {
		return errors.New("mongodb.database is required")
	}
	if strings.ContainsAny(c.MongoDB.Database, "/\\. \"$") {
		return fmt.Errorf("mongodb.database %q contains characters MongoDB does not allow", c.MongoDB.Database)
	}
	if c.MongoDB.ConnectTimeout < 0 {
		return errors.New("mongodb.connect_timeout must not be negative")
	}
	if c.MongoDB.OperationTimeout <= 0 {
		return errors.New("mongodb.operation_timeout must be positive")
	}
	if c.MongoDB.ConnectAttempts < 1 {
		return errors.New("mongodb.connect_attempts must be at least 1")
	}
	if c.AppUser.Username != "" {
		if c.AppUser.Password == "" {
			return errors.New("app_user.password is required when app_user.username is set")
		}
		if c.AppUser.Role == "" {
			return errors.New("app_user.role is required when app_user.username is set")
		}
	}
	switch c.Report.Backend {
	case ReportBackendFile:
		if c.Report.Path == "" {
			return errors.New("report.path is required for the file backend")
		}
	case ReportBackendRedis:
		if c.Report.RedisAddr == "" {
			return errors.New("report.redis_addr is required for the redis backend")
		}
		if c.Report.RedisKey == "" {
			return errors.New("report.redis_key is required for the redis backend")
		}
	case ReportBackendNone, "":
	default:
		return fmt.Errorf("unknown report.backend %q", c.Report.Backend)
	}
	return nil
}
