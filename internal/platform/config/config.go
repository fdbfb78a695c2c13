// Package config loads service configuration from the environment. Every value
// has a development default so the server starts with no environment at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server     Server
	Credential CredentialConfig
	Auth       AuthConfig
	Scoring    ScoringConfig
	Oracle     OracleConfig
	Alert      AlertConfig
	Regional   RegionalConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	Kafka      KafkaConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	LogLevel        string
	ShutdownTimeout time.Duration
}

// CredentialConfig holds the shared secret mixed into every credential hash.
// Rotating it invalidates all issued credentials.
type CredentialConfig struct {
	Secret string
}

type AuthConfig struct {
	AdminToken    string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
}

type ScoringConfig struct {
	// Scheme selects a weight preset: "weighted4" or "weighted5".
	Scheme string
	// Weights overrides Scheme with "factor=value,..." when set.
	Weights string

	RashSpeedKmh            float64
	RouteDeviationThreshold float64

	// Aggregation selects the worker policy: cumulative_mean, rolling_window or blended.
	Aggregation   string
	RollingWindow int
}

type OracleConfig struct {
	// URL of the model-serving oracle. Empty selects the rule-based oracle.
	URL     string
	Timeout time.Duration
}

type AlertConfig struct {
	Cooldown time.Duration
}

type RegionalConfig struct {
	FeedURL         string
	APIKey          string
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type KafkaConfig struct {
	Brokers    []string
	AlertTopic string
	Partitions int32
}

// FromEnv builds a Config from environment variables.
func FromEnv() (Config, error) {
	var errs []string
	e := envReader{errs: &errs}

	cfg := Config{
		Server: Server{
			Addr:            e.String("GIGSAFE_ADDR", ":8080"),
			LogLevel:        e.String("LOG_LEVEL", "info"),
			ShutdownTimeout: e.Duration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Credential: CredentialConfig{
			Secret: e.String("CREDENTIAL_SECRET", "GIGSAFE_2025_SECURE"),
		},
		Auth: AuthConfig{
			AdminToken:    e.String("ADMIN_TOKEN", "dev-admin-token-change-in-production"),
			JWTSigningKey: e.String("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:     e.String("JWT_ISSUER", "gigsafe"),
			JWTAudience:   e.String("JWT_AUDIENCE", "gigsafe-api"),
		},
		Scoring: ScoringConfig{
			Scheme:                  e.String("SCORING_SCHEME", "weighted4"),
			Weights:                 e.String("SCORING_WEIGHTS", ""),
			RashSpeedKmh:            e.Float("RASH_SPEED_KMH", 80),
			RouteDeviationThreshold: e.Float("ROUTE_DEVIATION_THRESHOLD", 20),
			Aggregation:             e.String("SCORE_AGGREGATION", "cumulative_mean"),
			RollingWindow:           e.Int("SCORE_ROLLING_WINDOW", 20),
		},
		Oracle: OracleConfig{
			URL:     e.String("ORACLE_URL", ""),
			Timeout: e.Duration("ORACLE_TIMEOUT", 2*time.Second),
		},
		Alert: AlertConfig{
			Cooldown: e.Duration("ALERT_COOLDOWN", time.Hour),
		},
		Regional: RegionalConfig{
			FeedURL:         e.String("REGIONAL_FEED_URL", ""),
			APIKey:          e.String("REGIONAL_FEED_API_KEY", ""),
			RefreshInterval: e.Duration("REGIONAL_REFRESH_INTERVAL", 24*time.Hour),
			RefreshTimeout:  e.Duration("REGIONAL_REFRESH_TIMEOUT", 10*time.Second),
		},
		Redis: RedisConfig{
			URL:          e.String("REDIS_URL", ""),
			PoolSize:     e.Int("REDIS_POOL_SIZE", 10),
			MinIdleConns: e.Int("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  e.Duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  e.Duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: e.Duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Database: DatabaseConfig{
			URL:             e.String("DATABASE_URL", ""),
			MaxOpenConns:    e.Int("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    e.Int("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: e.Duration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:    e.List("KAFKA_BROKERS"),
			AlertTopic: e.String("KAFKA_ALERT_TOPIC", "gigsafe.alerts"),
			Partitions: int32(e.Int("KAFKA_ALERT_PARTITIONS", 3)),
		},
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid environment: %s", strings.Join(errs, "; "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the services cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Credential.Secret == "":
		return fmt.Errorf("CREDENTIAL_SECRET must not be empty")
	case strings.Contains(c.Credential.Secret, "|"):
		return fmt.Errorf("CREDENTIAL_SECRET must not contain '|'")
	case c.Auth.AdminToken == "":
		return fmt.Errorf("ADMIN_TOKEN must not be empty")
	case c.Auth.JWTSigningKey == "":
		return fmt.Errorf("JWT_SIGNING_KEY must not be empty")
	case c.Scoring.RashSpeedKmh <= 0:
		return fmt.Errorf("RASH_SPEED_KMH must be positive")
	case c.Scoring.RouteDeviationThreshold <= 0:
		return fmt.Errorf("ROUTE_DEVIATION_THRESHOLD must be positive")
	case c.Scoring.RollingWindow <= 0:
		return fmt.Errorf("SCORE_ROLLING_WINDOW must be positive")
	case c.Oracle.Timeout <= 0:
		return fmt.Errorf("ORACLE_TIMEOUT must be positive")
	case c.Alert.Cooldown <= 0:
		return fmt.Errorf("ALERT_COOLDOWN must be positive")
	case c.Regional.RefreshInterval <= 0:
		return fmt.Errorf("REGIONAL_REFRESH_INTERVAL must be positive")
	case c.Regional.RefreshTimeout <= 0 || c.Regional.RefreshTimeout > c.Regional.RefreshInterval:
		return fmt.Errorf("REGIONAL_REFRESH_TIMEOUT must be positive and below the refresh interval")
	case len(c.Kafka.Brokers) > 0 && c.Kafka.AlertTopic == "":
		return fmt.Errorf("KAFKA_ALERT_TOPIC must be set when brokers are configured")
	}
	return nil
}

type envReader struct {
	errs *[]string
}

func (e envReader) String(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e envReader) Duration(key string, def time.Duration) time.Duration {
	v := e.String(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return d
}

func (e envReader) Int(key string, def int) int {
	v := e.String(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return n
}

func (e envReader) Float(key string, def float64) float64 {
	v := e.String(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Sprintf("%s: %v", key, err))
		return def
	}
	return f
}

func (e envReader) List(key string) []string {
	v := e.String(key, "")
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
