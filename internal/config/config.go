package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defines central system configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"VOLTCORE_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"VOLTCORE_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr" env:"VOLTCORE_REDIS_ADDR"`
		Password string `yaml:"password" env:"VOLTCORE_REDIS_PASSWORD"`
	} `yaml:"redis"`
	WebSocket struct {
		WriteTimeoutSeconds int `yaml:"writeTimeoutSeconds" env:"VOLTCORE_WS_WRITE_TIMEOUT"`
	} `yaml:"websocket"`
	OCPP struct {
		HeartbeatIntervalSeconds int `yaml:"heartbeatIntervalSeconds" env:"VOLTCORE_HEARTBEAT_INTERVAL"`
		CommandTimeoutSeconds    int `yaml:"commandTimeoutSeconds" env:"VOLTCORE_COMMAND_TIMEOUT"`
		AuthCacheTTLSeconds      int `yaml:"authCacheTtlSeconds" env:"VOLTCORE_AUTH_CACHE_TTL"`
	} `yaml:"ocpp"`
}

// Load reads config from file and environment and validates required fields.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "9000"
	cfg.WebSocket.WriteTimeoutSeconds = 15
	cfg.OCPP.HeartbeatIntervalSeconds = 300
	cfg.OCPP.CommandTimeoutSeconds = 30
	cfg.OCPP.AuthCacheTTLSeconds = 60

	if err := loadInto(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database DSN is required")
	}

	return cfg, nil
}

// HTTPAddress returns :port style address.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "9000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// WriteTimeout returns websocket write timeout.
func (c *Config) WriteTimeout() time.Duration {
	if c.WebSocket.WriteTimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.WebSocket.WriteTimeoutSeconds) * time.Second
}

// HeartbeatInterval returns the interval handed to charge points on boot.
func (c *Config) HeartbeatInterval() time.Duration {
	if c.OCPP.HeartbeatIntervalSeconds <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.OCPP.HeartbeatIntervalSeconds) * time.Second
}

// SweepInterval returns how often the liveness monitor runs. One third of
// the heartbeat interval keeps demotion latency well under the deadline.
func (c *Config) SweepInterval() time.Duration {
	return c.HeartbeatInterval() / 3
}

// OfflineDeadline returns how long a charge point may stay silent before it
// is demoted to offline. 2.5 heartbeat intervals tolerates one missed beat.
func (c *Config) OfflineDeadline() time.Duration {
	return c.HeartbeatInterval() * 5 / 2
}

// CommandTimeout returns how long to wait for a charge point reply to a
// centrally initiated command.
func (c *Config) CommandTimeout() time.Duration {
	if c.OCPP.CommandTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.OCPP.CommandTimeoutSeconds) * time.Second
}

// AuthCacheTTL returns the lifetime of cached authorization verdicts.
func (c *Config) AuthCacheTTL() time.Duration {
	if c.OCPP.AuthCacheTTLSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.OCPP.AuthCacheTTLSeconds) * time.Second
}
