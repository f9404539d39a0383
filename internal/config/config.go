package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the application's configuration values.
// Tags like `envconfig:"APP_PORT"` specify the environment variable name.
type Config struct {
	AppEnv     string `envconfig:"APP_ENV" default:"development"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty  bool   `envconfig:"LOG_PRETTY" default:"false"`
	HttpServer ServerConfig
	GrpcServer GrpcServerConfig
	Postgres   PostgresConfig
	Elastic    ElasticConfig
	Redis      RedisConfig
	Search     SearchConfig
}

// ServerConfig holds HTTP server-specific configurations.
type ServerConfig struct {
	Port           string        `envconfig:"HTTP_SERVER_PORT" default:"8080"`
	TimeoutRead    time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_READ" default:"15s"`
	TimeoutWrite   time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_WRITE" default:"15s"`
	TimeoutIdle    time.Duration `envconfig:"HTTP_SERVER_TIMEOUT_IDLE" default:"60s"`
	RequestTimeout time.Duration `envconfig:"HTTP_SERVER_REQUEST_TIMEOUT" default:"30s"`
}

// GrpcServerConfig holds gRPC server-specific configurations.
type GrpcServerConfig struct {
	Port string `envconfig:"GRPC_SERVER_PORT" default:"9090"`
}

// PostgresConfig holds PostgreSQL database connection details.
type PostgresConfig struct {
	Host         string        `envconfig:"POSTGRES_HOST" required:"true"`
	Port         string        `envconfig:"POSTGRES_PORT" default:"5432"`
	User         string        `envconfig:"POSTGRES_USER" required:"true"`
	Password     string        `envconfig:"POSTGRES_PASSWORD" required:"true"`
	DBName       string        `envconfig:"POSTGRES_DBNAME" required:"true"`
	SSLMode      string        `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	MaxOpenConns int           `envconfig:"POSTGRES_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns int           `envconfig:"POSTGRES_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLife  time.Duration `envconfig:"POSTGRES_CONN_MAX_LIFETIME" default:"30m"`
}

// DSN constructs the Data Source Name string for connecting to PostgreSQL.
func (pc *PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// ElasticConfig locates the search backend. URL wins over CloudID; CloudID
// accepts either the Elastic Cloud "name:base64" form or a plain URL.
type ElasticConfig struct {
	URL        string `envconfig:"ELASTIC_URL"`
	CloudID    string `envconfig:"ELASTIC_CLOUD_ID"`
	APIKey     string `envconfig:"ELASTIC_API_KEY"`
	GamesIndex string `envconfig:"ELASTIC_GAMES_INDEX" default:"games"`
	HitsIndex  string `envconfig:"ELASTIC_HITS_INDEX" default:"search-hits"`
	// Strict propagates every backend failure instead of degrading.
	Strict bool `envconfig:"ELASTIC_STRICT" default:"false"`
}

// RedisConfig is optional; an empty Addr disables the top-searched cache.
type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	Prefix   string        `envconfig:"REDIS_PREFIX" default:"games"`
	TopTTL   time.Duration `envconfig:"REDIS_TOP_TTL" default:"30s"`
}

// SearchConfig bounds result sizes for search-backed endpoints.
type SearchConfig struct {
	DefaultSize        int `envconfig:"SEARCH_DEFAULT_SIZE" default:"10"`
	MaxSize            int `envconfig:"SEARCH_MAX_SIZE" default:"100"`
	SuggestSize        int `envconfig:"SUGGEST_SIZE" default:"5"`
	ReindexConcurrency int `envconfig:"REINDEX_CONCURRENCY" default:"4"`
}

// Load reads an optional .env file and then processes the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process configuration: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Search.DefaultSize <= 0 || c.Search.MaxSize <= 0 || c.Search.DefaultSize > c.Search.MaxSize {
		return fmt.Errorf("invalid search sizes: default=%d max=%d", c.Search.DefaultSize, c.Search.MaxSize)
	}
	if c.Search.SuggestSize <= 0 {
		return fmt.Errorf("invalid SUGGEST_SIZE: %d", c.Search.SuggestSize)
	}
	if c.Search.ReindexConcurrency <= 0 {
		c.Search.ReindexConcurrency = 1
	}
	return nil
}
