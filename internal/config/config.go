package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/ledger"
)

type Config struct {
	ListenAddr  string         `yaml:"listen_addr"`
	LogLevel    string         `yaml:"log_level"`
	DB          DBConfig       `yaml:"db"`
	Consent     ConsentConfig  `yaml:"consent"`
	CatalogPath string         `yaml:"catalog_path"`
	Scorer      ScorerConfig   `yaml:"scorer"`
	Fairness    FairnessConfig `yaml:"fairness"`
	Admin       AdminConfig    `yaml:"admin"`
}

type DBConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ConsentConfig struct {
	// Backend is db (the ledger database), file or redis.
	Backend string      `yaml:"backend"`
	Path    string      `yaml:"path"`
	Redis   RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type ScorerConfig struct {
	ModelPath      string        `yaml:"model_path"`
	Timeout        time.Duration `yaml:"timeout"`
	BackgroundSize int           `yaml:"background_size"`
}

type FairnessConfig struct {
	DatasetPath         string        `yaml:"dataset_path"`
	SensitiveAttribute  string        `yaml:"sensitive_attribute"`
	DisparateImpactMin  float64       `yaml:"disparate_impact_min"`
	ParityDifferenceMax float64       `yaml:"parity_difference_max"`
	Interval            time.Duration `yaml:"interval"`
}

type AdminConfig struct {
	Token string `yaml:"token"`
}

const (
	ConsentBackendDB    = "db"
	ConsentBackendFile  = "file"
	ConsentBackendRedis = "redis"
)

func Load(path string) (Config, error) {
	// #nosec G304 -- path is operator-provided config path.
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	expanded := os.ExpandEnv(string(raw))
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyDefaults()
	return cfg, cfg.Validate()
}

// Default is the configuration used when no file is given: in-memory
// ledger, in-ledger consent, built-in catalog.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Consent.Backend == "" {
		c.Consent.Backend = ConsentBackendDB
	}
	if c.Scorer.ModelPath == "" {
		c.Scorer.ModelPath = "models/loan_v1.yaml"
	}
	if c.Scorer.Timeout == 0 {
		c.Scorer.Timeout = 5 * time.Second
	}
	if c.Scorer.BackgroundSize == 0 {
		c.Scorer.BackgroundSize = 100
	}
	if c.Fairness.DisparateImpactMin == 0 {
		c.Fairness.DisparateImpactMin = 0.8
	}
	if c.Fairness.ParityDifferenceMax == 0 {
		c.Fairness.ParityDifferenceMax = 0.2
	}
}

func (c Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	driver, err := ledger.ParseDriver(c.DB.Driver)
	if err != nil {
		return err
	}
	if driver != ledger.DBMemory && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required when db.driver is %s", driver)
	}

	switch c.Consent.Backend {
	case ConsentBackendDB:
	case ConsentBackendFile:
		if c.Consent.Path == "" {
			return fmt.Errorf("consent.path is required when consent.backend=file")
		}
	case ConsentBackendRedis:
		if c.Consent.Redis.Addr == "" {
			return fmt.Errorf("consent.redis.addr is required when consent.backend=redis")
		}
	default:
		return fmt.Errorf("unsupported consent.backend: %s", c.Consent.Backend)
	}

	if c.Scorer.ModelPath == "" {
		return fmt.Errorf("scorer.model_path is required")
	}
	if c.Scorer.Timeout < 0 {
		return fmt.Errorf("scorer.timeout must not be negative")
	}
	if c.Fairness.DisparateImpactMin < 0 || c.Fairness.DisparateImpactMin > 1 {
		return fmt.Errorf("fairness.disparate_impact_min must be within [0,1]")
	}
	if c.Fairness.ParityDifferenceMax < 0 || c.Fairness.ParityDifferenceMax > 1 {
		return fmt.Errorf("fairness.parity_difference_max must be within [0,1]")
	}
	if c.Fairness.Interval < 0 {
		return fmt.Errorf("fairness.interval must not be negative")
	}
	if c.Fairness.Interval > 0 && c.Fairness.DatasetPath == "" {
		return fmt.Errorf("fairness.dataset_path is required when fairness.interval is set")
	}
	return nil
}
