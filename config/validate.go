package config

import (
	"fmt"
	"strings"
	"time"

	"metanode/crypto"
)

var (
	MinBlockInterval = 10 * time.Millisecond
)

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("backend: unsupported %q", c.Backend)
	}
	if c.Backend != BackendMemory && strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("datadir: required for %s backend", c.Backend)
	}
	if strings.TrimSpace(c.RPCAddress) == "" {
		return fmt.Errorf("rpc: address required")
	}
	interval, err := time.ParseDuration(strings.TrimSpace(c.BlockInterval))
	if err != nil {
		return fmt.Errorf("blockinterval: %w", err)
	}
	if interval < MinBlockInterval {
		return fmt.Errorf("blockinterval: must be at least %s", MinBlockInterval)
	}
	for i, admin := range c.Admins {
		addr, err := crypto.DecodeAddress(strings.TrimSpace(admin))
		if err != nil {
			return fmt.Errorf("admins[%d]: %w", i, err)
		}
		if addr.Prefix() != crypto.MNDPrefix {
			return fmt.Errorf("admins[%d]: unsupported hrp %q", i, addr.Prefix())
		}
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("ratelimit: values must not be negative")
	}
	if c.RateLimitPerMinute > 0 && c.RateLimitBurst == 0 {
		return fmt.Errorf("ratelimit: burst required when a rate is set")
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging: rotation limits must not be negative")
	}
	switch c.History.Driver {
	case HistoryNone:
	case HistorySQLite, HistoryPostgres:
		if strings.TrimSpace(c.History.DSN) == "" {
			return fmt.Errorf("history: dsn required for %s", c.History.Driver)
		}
	default:
		return fmt.Errorf("history: unsupported driver %q", c.History.Driver)
	}
	if c.Telemetry.Enabled && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		return fmt.Errorf("telemetry: endpoint required when enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry: sample ratio must be within [0, 1]")
	}
	return nil
}
