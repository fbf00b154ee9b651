package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Environment        string   `toml:"Environment"`
	DataDir            string   `toml:"DataDir"`
	Backend            string   `toml:"Backend"`
	RPCAddress         string   `toml:"RPCAddress"`
	GenesisFile        string   `toml:"GenesisFile"`
	Admins             []string `toml:"Admins"`
	BlockInterval      string   `toml:"BlockInterval"`
	JWTSecretEnv       string   `toml:"JWTSecretEnv"`
	RateLimitPerMinute int      `toml:"RateLimitPerMinute"`
	RateLimitBurst     int      `toml:"RateLimitBurst"`

	Logging   Logging   `toml:"Logging"`
	History   History   `toml:"History"`
	Telemetry Telemetry `toml:"Telemetry"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		Environment:        "local",
		DataDir:            "./metanode-data",
		Backend:            BackendLevelDB,
		RPCAddress:         "127.0.0.1:8545",
		GenesisFile:        "",
		Admins:             []string{},
		BlockInterval:      "2s",
		JWTSecretEnv:       "METANODE_JWT_SECRET",
		RateLimitPerMinute: 600,
		RateLimitBurst:     60,
		Logging: Logging{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		History: History{
			Driver: HistorySQLite,
			DSN:    "history.db",
		},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4318",
			Insecure:    true,
			SampleRatio: 1,
		},
	}
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	} else if err != nil {
		return nil, err
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s: unknown field %s", path, undecoded[0])
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	defaults := Default()
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = defaults.Backend
	}
	if strings.TrimSpace(c.BlockInterval) == "" {
		c.BlockInterval = defaults.BlockInterval
	}
	if c.Admins == nil {
		c.Admins = []string{}
	}
	c.History.Driver = strings.ToLower(strings.TrimSpace(c.History.Driver))
	if c.History.Driver == "" {
		c.History.Driver = HistoryNone
	}
}

// BlockDuration returns the parsed block interval.
func (c *Config) BlockDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(c.BlockInterval))
	if err != nil {
		return 0
	}
	return d
}

// StoragePath returns the on-disk location of the state database.
func (c *Config) StoragePath() string {
	switch c.Backend {
	case BackendBolt:
		return filepath.Join(c.DataDir, "state.bolt")
	default:
		return filepath.Join(c.DataDir, "state")
	}
}

// HistoryDSN resolves relative sqlite paths against DataDir.
func (c *Config) HistoryDSN() string {
	dsn := strings.TrimSpace(c.History.DSN)
	if c.History.Driver == HistorySQLite && dsn != "" && dsn != ":memory:" && !filepath.IsAbs(dsn) {
		return filepath.Join(c.DataDir, dsn)
	}
	return dsn
}

// JWTSecret reads the RPC signing secret from the configured environment
// variable.
func (c *Config) JWTSecret() string {
	if strings.TrimSpace(c.JWTSecretEnv) == "" {
		return ""
	}
	return os.Getenv(strings.TrimSpace(c.JWTSecretEnv))
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
