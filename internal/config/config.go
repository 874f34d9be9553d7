package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Env        string `yaml:"env"`
	Storage    string `yaml:"storage"`
	HTTPServer `yaml:"http_server"`
	Postgres   `yaml:"postgres"`
	Shortener  `yaml:"shortener"`
	URLPolicy  `yaml:"url_policy"`
	Payment    `yaml:"payment"`
	RateLimit  `yaml:"rate_limit"`
	Metrics    `yaml:"metrics"`
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	BaseURL        string        `yaml:"base_url"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MigrationsPath  string        `yaml:"migrations_path"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
	MigrationsPath:  "file://migrations",
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type Shortener struct {
	MaxAttempts int `yaml:"max_attempts"`
	// TTL of zero keeps URLs forever.
	TTL time.Duration `yaml:"ttl"`
}

var defaultShortener = Shortener{
	MaxAttempts: 10,
}

type URLPolicy struct {
	MaxLength         int      `yaml:"max_length"`
	MaxPathLength     int      `yaml:"max_path_length"`
	MaxQueryLength    int      `yaml:"max_query_length"`
	BlockedShorteners []string `yaml:"blocked_shorteners"`
}

// Amounts are in atomic units of the asset.
type Payment struct {
	Network    string        `yaml:"network"`
	Asset      string        `yaml:"asset"`
	PayTo      string        `yaml:"pay_to"`
	MinAmount  int64         `yaml:"min_amount"`
	MaxAmount  int64         `yaml:"max_amount"`
	MaxTimeout time.Duration `yaml:"max_timeout"`
}

// RateLimit keeps counters in process memory unless RedisURL is set.
type RateLimit struct {
	Enabled           bool   `yaml:"enabled"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	RedisURL          string `yaml:"redis_url"`
}

var defaultRateLimit = RateLimit{
	Enabled:           true,
	RequestsPerMinute: 10,
}

type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads the YAML config at path. ${VAR} references are expanded from the
// environment before decoding.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read config file: %w", op, err)
	}

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.Storage = StoragePostgres
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Shortener = defaultShortener
	cfg.RateLimit = defaultRateLimit
	cfg.Metrics = Metrics{Enabled: true}
}

// Validate reports settings the service cannot run with.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage {
	case StoragePostgres, StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage %q", c.Storage))
	}

	if c.Storage == StoragePostgres && c.Postgres.MigrationsPath == "" {
		errs = append(errs, errors.New("postgres.migrations_path is required"))
	}

	if c.Shortener.MaxAttempts < 1 {
		errs = append(errs, errors.New("shortener.max_attempts must be at least 1"))
	}
	if c.Shortener.TTL < 0 {
		errs = append(errs, errors.New("shortener.ttl must not be negative"))
	}

	if c.Payment.Network == "" {
		errs = append(errs, errors.New("payment.network is required"))
	}
	if c.Payment.Asset == "" {
		errs = append(errs, errors.New("payment.asset is required"))
	}
	if c.Payment.MinAmount <= 0 {
		errs = append(errs, errors.New("payment.min_amount must be positive"))
	}
	if c.Payment.MinAmount > c.Payment.MaxAmount {
		errs = append(errs, errors.New("payment.min_amount must not exceed payment.max_amount"))
	}

	if c.RateLimit.Enabled && c.RateLimit.RequestsPerMinute < 1 {
		errs = append(errs, errors.New("rate_limit.requests_per_minute must be at least 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}

	return nil
}
