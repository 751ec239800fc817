package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the process configuration of dbpulse. The monitor section only
// seeds the runtime options; once persisted, the stored copy wins.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// StoreConfig selects and configures the observed data store
type StoreConfig struct {
	Driver          string        `yaml:"driver"` // sqlite or postgres
	DataDir         string        `yaml:"data_dir"`
	DSN             string        `yaml:"dsn"`
	MaxConnections  int           `yaml:"max_connections"`
	MinConnections  int           `yaml:"min_connections"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	Tables          []string      `yaml:"tables"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// MetricsConfig controls the background loops of the recorder
type MetricsConfig struct {
	CleanupInterval   time.Duration `yaml:"cleanup_interval"`
	AlertScanInterval time.Duration `yaml:"alert_scan_interval"`
	PersistInterval   time.Duration `yaml:"persist_interval"`
	EnablePrometheus  bool          `yaml:"enable_prometheus"`
}

// LoadConfig reads configPath when it exists, expands ${VAR} references,
// applies environment overrides and validates the result
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal([]byte(expand(string(data))), cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// expand substitutes environment variables; unset ones are left as written
func expand(input string) string {
	return os.Expand(input, func(name string) string {
		if v := os.Getenv(name); v != "" {
			return v
		}
		return "${" + name + "}"
	})
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8089,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  time.Minute,
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
			Tables:  []string{"products", "sales", "sale_items", "customers", "suppliers", "stock_movements"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			CleanupInterval:   time.Hour,
			AlertScanInterval: time.Minute,
			PersistInterval:   5 * time.Second,
			EnablePrometheus:  true,
		},
		Monitor: DefaultMonitorConfig(),
	}
}

func (c *Config) applyEnv() {
	fromEnv(&c.Server.Host, "SERVER_HOST", asString)
	fromEnv(&c.Server.Port, "SERVER_PORT", strconv.Atoi)

	fromEnv(&c.Logging.Level, "LOG_LEVEL", asString)
	fromEnv(&c.Logging.Format, "LOG_FORMAT", asString)

	driverSet := fromEnv(&c.Store.Driver, "DBPULSE_DRIVER", asString)
	fromEnv(&c.Store.DataDir, "DBPULSE_DATA_DIR", asString)
	if fromEnv(&c.Store.DSN, "DATABASE_URL", asString) && !driverSet {
		c.Store.Driver = "postgres"
	}

	fromEnv(&c.Metrics.CleanupInterval, "METRICS_CLEANUP_INTERVAL", time.ParseDuration)

	if fromEnv(&c.Monitor.SlowQueryThresholdMs, "SLOW_QUERY_THRESHOLD_MS", parseFloat) {
		c.Monitor.AlertThresholds.SlowQueryMs = c.Monitor.SlowQueryThresholdMs
	}
	fromEnv(&c.Monitor.MaxStoredMetrics, "MAX_STORED_METRICS", strconv.Atoi)
}

// fromEnv stores the parsed value of key in dst. Unset or unparsable
// variables leave dst alone.
func fromEnv[T any](dst *T, key string, parse func(string) (T, error)) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return false
	}
	v, err := parse(raw)
	if err != nil {
		return false
	}
	*dst = v
	return true
}

func asString(s string) (string, error) { return s, nil }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// Validate checks every section
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: port out of range: %d", c.Server.Port)
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	if c.Metrics.CleanupInterval <= 0 || c.Metrics.AlertScanInterval <= 0 {
		return fmt.Errorf("metrics: intervals must be positive")
	}
	return c.Monitor.Validate()
}

func (l LoggingConfig) validate() error {
	if _, err := logrus.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("logging: unknown format %q", l.Format)
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Driver {
	case "sqlite":
		if s.DataDir == "" {
			return fmt.Errorf("store: data_dir is required for sqlite")
		}
	case "postgres":
		if s.DSN == "" {
			return fmt.Errorf("store: dsn is required for postgres")
		}
	default:
		return fmt.Errorf("store: unsupported driver: %s", s.Driver)
	}
	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".dbpulse"
	}
	return filepath.Join(home, ".dbpulse")
}
