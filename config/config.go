// Package config loads settings for the cache polling process.
package config

import (
	"time"
)

// EnvConnectionString overrides Config.ConnectionString when set.
const EnvConnectionString = "RESCACHE_CONNECTION_STRING"

// Config is the process configuration. Durations are integer milliseconds so
// the same file shape works in YAML, TOML and JSON.
type Config struct {
	ConnectionString string    `yaml:"connection_string" toml:"connection_string" json:"connection_string"`
	Key              string    `yaml:"key" toml:"key" json:"key"`
	PollIntervalMS   int       `yaml:"poll_interval_ms" toml:"poll_interval_ms" json:"poll_interval_ms"`
	ConnectTimeoutMS int       `yaml:"connect_timeout_ms" toml:"connect_timeout_ms" json:"connect_timeout_ms"`
	RetryIntervalMS  int       `yaml:"retry_interval_ms" toml:"retry_interval_ms" json:"retry_interval_ms"`
	Log              LogConfig `yaml:"log" toml:"log" json:"log"`
	Memory           Memory    `yaml:"memory" toml:"memory" json:"memory"`
}

type LogConfig struct {
	Level    string `yaml:"level" toml:"level" json:"level"`          // debug|info|warn|error
	Encoding string `yaml:"encoding" toml:"encoding" json:"encoding"` // console|json
}

// Memory sizes the in-process store used for memory:// connection strings.
type Memory struct {
	NumCounters int64 `yaml:"num_counters" toml:"num_counters" json:"num_counters"`
	MaxCost     int64 `yaml:"max_cost" toml:"max_cost" json:"max_cost"`
}

func DefaultConfig() Config {
	return Config{
		ConnectionString: "localhost:6379,abortConnect=false",
		Key:              "foo",
		PollIntervalMS:   1000,
		ConnectTimeoutMS: 5000,
		RetryIntervalMS:  2000,
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutMS) * time.Millisecond
}

// RetryInterval is how long a connection opened while the store was down
// may recover on its own before it is replaced.
func (c *Config) RetryInterval() time.Duration {
	return time.Duration(c.RetryIntervalMS) * time.Millisecond
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() {
	d := DefaultConfig()
	if c.ConnectionString == "" {
		c.ConnectionString = d.ConnectionString
	}
	if c.Key == "" {
		c.Key = d.Key
	}
	if c.PollIntervalMS == 0 {
		c.PollIntervalMS = d.PollIntervalMS
	}
	if c.ConnectTimeoutMS == 0 {
		c.ConnectTimeoutMS = d.ConnectTimeoutMS
	}
	if c.RetryIntervalMS == 0 {
		c.RetryIntervalMS = d.RetryIntervalMS
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Encoding == "" {
		c.Log.Encoding = d.Log.Encoding
	}
}
