package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// storage selects the user/scan store: "memory" or "postgres".
	Storage     string `yaml:"storage"`
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	// sessionStrategy selects the session store: "memory", "redis", or "jwt".
	SessionStrategy string `yaml:"sessionStrategy"`
	SessionTTL      string `yaml:"sessionTTL"`
	JWTSecret       string `yaml:"jwtSecret"`

	GeminiAPIKey       string `yaml:"geminiAPIKey"`
	GeminiModel        string `yaml:"geminiModel"`
	ClassifyTimeout    string `yaml:"classifyTimeout"`
	MinAnalyzeDuration string `yaml:"minAnalyzeDuration"`

	// otpDelivery selects the reset-code channel: "http", "amqp", or "" (log only).
	OTPDelivery    string `yaml:"otpDelivery"`
	OTPDeliveryURL string `yaml:"otpDeliveryURL"`
	AMQPURL        string `yaml:"amqpURL"`
	AMQPQueue      string `yaml:"amqpQueue"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	TrustedProxies []string `yaml:"trustedProxies"`

	SignupRateLimitPerMinute int `yaml:"signupRateLimitPerMinute"`
	LoginRateLimitPerMinute  int `yaml:"loginRateLimitPerMinute"`
	ForgotRateLimitPerMinute int `yaml:"forgotRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment-variable overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("OTP_DELIVERY_URL"); v != "" {
		cfg.OTPDeliveryURL = v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.AMQPURL = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("SIGNUP_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SignupRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("FORGOT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ForgotRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.GeminiAPIKey == "" {
		return errors.New("config: geminiAPIKey is required (set GEMINI_API_KEY)")
	}
	switch strings.TrimSpace(cfg.Storage) {
	case "", "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return errors.New("config: databaseURL is required for postgres storage")
		}
	default:
		return fmt.Errorf("config: unknown storage %q", cfg.Storage)
	}
	switch strings.TrimSpace(cfg.SessionStrategy) {
	case "", "memory":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for redis session strategy")
		}
	case "jwt":
		if strings.TrimSpace(cfg.JWTSecret) == "" {
			return errors.New("config: jwtSecret is required for jwt session strategy")
		}
	default:
		return fmt.Errorf("config: unknown sessionStrategy %q", cfg.SessionStrategy)
	}
	switch strings.TrimSpace(cfg.OTPDelivery) {
	case "", "http", "amqp":
	default:
		return fmt.Errorf("config: unknown otpDelivery %q", cfg.OTPDelivery)
	}
	if cfg.SignupRateLimitPerMinute < 0 || cfg.LoginRateLimitPerMinute < 0 || cfg.ForgotRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	return nil
}

// ParseDuration parses an optional duration string; empty means zero.
func ParseDuration(field, raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", field, err)
	}
	return dur, nil
}
