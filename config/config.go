package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	PostgresURL    string   `yaml:"postgres_url"`
	RedisURL       string   `yaml:"redis_url"`
	NatsURL        string   `yaml:"nats_url"`
	JWTKey         string   `yaml:"jwt_key"`
	LogLevel       string   `yaml:"log_level"`
	LogPretty      bool     `yaml:"log_pretty"`
	Game           Game     `yaml:"game"`
}

// Game holds the live match engine tunables.
type Game struct {
	CountdownSeconds   int           `yaml:"countdown_seconds"`
	CloseGrace         time.Duration `yaml:"close_grace"`
	ReservationTTL     time.Duration `yaml:"reservation_ttl"`
	BufferInterval     time.Duration `yaml:"buffer_interval"`
	OverloadedDelay    time.Duration `yaml:"overloaded_delay"`
	StableDelay        time.Duration `yaml:"stable_delay"`
	BufferCooldown     time.Duration `yaml:"buffer_cooldown"`
	MinBatchSize       int           `yaml:"min_batch_size"`
	MaxBatchSize       int           `yaml:"max_batch_size"`
	PersistenceTimeout time.Duration `yaml:"persistence_timeout"`
}

func Default() Config {
	return Config{
		Port:     5000,
		LogLevel: "info",
		Game: Game{
			CountdownSeconds:   3,
			CloseGrace:         2 * time.Second,
			ReservationTTL:     5 * time.Minute,
			BufferInterval:     5 * time.Second,
			OverloadedDelay:    100 * time.Millisecond,
			StableDelay:        20 * time.Millisecond,
			BufferCooldown:     30 * time.Second,
			MinBatchSize:       1,
			MaxBatchSize:       10,
			PersistenceTimeout: 5 * time.Second,
		},
	}
}

// Load layers defaults, an optional YAML file named by CONFIG_FILE and the
// environment, in that order. A .env file in the working directory is read
// first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path, ok := os.LookupEnv("CONFIG_FILE"); ok {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("ALLOWED_ORIGINS"); ok {
		cfg.AllowedOrigins = strings.Split(v, ",")
	}
	if v, ok := lookup("POSTGRES_URL"); ok {
		cfg.PostgresURL = v
	}
	if v, ok := lookup("REDIS_URL"); ok {
		cfg.RedisURL = v
	}
	if v, ok := lookup("NATS_URL"); ok {
		cfg.NatsURL = v
	}
	if v, ok := lookup("JWT_KEY"); ok {
		cfg.JWTKey = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	if v, ok := lookup("LOG_PRETTY"); ok {
		cfg.LogPretty = v == "true" || v == "1"
	}
	if v, ok := lookup("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if len(c.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("missing allowed origins"))
	}
	if c.PostgresURL == "" {
		errs = append(errs, errors.New("missing postgres url"))
	}
	if c.JWTKey == "" {
		errs = append(errs, errors.New("missing jwt signing key"))
	}
	if c.Game.MinBatchSize < 1 || c.Game.MaxBatchSize < c.Game.MinBatchSize {
		errs = append(errs, fmt.Errorf("invalid batch size bounds %d..%d", c.Game.MinBatchSize, c.Game.MaxBatchSize))
	}
	if c.Game.CountdownSeconds < 1 {
		errs = append(errs, errors.New("countdown must last at least one second"))
	}
	return errors.Join(errs...)
}
