package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Redis    RedisConfig    `mapstructure:"redis"`
	SendGrid SendGridConfig `mapstructure:"sendgrid"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	RFQ      RFQConfig      `mapstructure:"rfq"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

type GRPCConfig struct {
	Port       int  `mapstructure:"port"`
	Reflection bool `mapstructure:"reflection"`
}

type DatabaseConfig struct {
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	User        string        `mapstructure:"user"`
	Password    string        `mapstructure:"password"`
	Database    string        `mapstructure:"name"`
	SSLMode     string        `mapstructure:"sslmode"`
	MaxConns    int32         `mapstructure:"max_conns"`
	MinConns    int32         `mapstructure:"min_conns"`
	MaxConnTime time.Duration `mapstructure:"max_conn_time"`
	MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
	HealthCheck time.Duration `mapstructure:"health_check"`
}

// NATSConfig is optional; an empty URL disables event publishing.
type NATSConfig struct {
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// RedisConfig is optional; an empty address disables the dispatch lease.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	DispatchTTL  time.Duration `mapstructure:"dispatch_ttl"`
	KeyNamespace string        `mapstructure:"key_namespace"`
}

// SendGridConfig is optional; an empty API key puts dispatch in dry-run mode.
type SendGridConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	FromEmail  string        `mapstructure:"from_email"`
	FromName   string        `mapstructure:"from_name"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

// GeminiConfig is optional; an empty API key keeps the template renderer.
type GeminiConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type RFQConfig struct {
	DefaultVendorLimit  int    `mapstructure:"default_vendor_limit"`
	DispatchConcurrency int    `mapstructure:"dispatch_concurrency"`
	BrokerName          string `mapstructure:"broker_name"`
	ReplyToEmail        string `mapstructure:"reply_to_email"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

var defaults = map[string]any{
	"service.name":        "be-print-rfq",
	"service.version":     "dev",
	"service.environment": "development",

	"server.port":             8086,
	"server.read_timeout":     "15s",
	"server.write_timeout":    "30s",
	"server.idle_timeout":     "60s",
	"server.shutdown_timeout": "20s",
	"server.request_timeout":  "30s",
	"server.cors_origins":     []string{"*"},

	"grpc.port":       9086,
	"grpc.reflection": true,

	"database.host":          "localhost",
	"database.port":          5432,
	"database.user":          "postgres",
	"database.password":      "",
	"database.name":          "print_rfq",
	"database.sslmode":       "disable",
	"database.max_conns":     10,
	"database.min_conns":     2,
	"database.max_conn_time": "1h",
	"database.max_idle_time": "5m",
	"database.health_check":  "1m",

	"nats.url":            "",
	"nats.subject_prefix": "rfq.events",

	"redis.addr":          "",
	"redis.password":      "",
	"redis.db":            0,
	"redis.dispatch_ttl":  "2m",
	"redis.key_namespace": "rfq",

	"sendgrid.api_key":     "",
	"sendgrid.base_url":    "https://api.sendgrid.com",
	"sendgrid.from_email":  "",
	"sendgrid.from_name":   "",
	"sendgrid.timeout":     "30s",
	"sendgrid.max_retries": 3,

	"gemini.api_key": "",
	"gemini.model":   "gemini-2.5-flash",

	"rfq.default_vendor_limit": 5,
	"rfq.dispatch_concurrency": 4,
	"rfq.broker_name":          "Print Broker",
	"rfq.reply_to_email":       "",

	"log.level": "info",
}

// Load reads configuration from defaults, an optional config file and the
// environment. Environment keys are the upper-cased paths with dots replaced
// by underscores (DATABASE_HOST, RFQ_DEFAULT_VENDOR_LIMIT, ...).
func Load(configFile ...string) (*Config, error) {
	return LoadWith(viper.New(), configFile...)
}

// LoadWith is Load over a caller-supplied viper instance, which lets the CLI
// bind flags before loading.
func LoadWith(v *viper.Viper, configFile ...string) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(configFile) > 0 && strings.TrimSpace(configFile[0]) != "" {
		v.SetConfigFile(configFile[0])
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("rfq")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.GRPC.Port <= 0 || c.GRPC.Port > 65535 {
		return fmt.Errorf("grpc.port out of range: %d", c.GRPC.Port)
	}
	if c.Server.Port == c.GRPC.Port {
		return fmt.Errorf("server.port and grpc.port must differ")
	}
	if c.RFQ.DefaultVendorLimit <= 0 {
		return fmt.Errorf("rfq.default_vendor_limit must be positive")
	}
	if c.RFQ.DispatchConcurrency <= 0 {
		return fmt.Errorf("rfq.dispatch_concurrency must be positive")
	}
	if c.SendGrid.APIKey != "" && c.SendGrid.FromEmail == "" {
		return fmt.Errorf("sendgrid.from_email is required when sendgrid.api_key is set")
	}
	return nil
}
