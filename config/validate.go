package config

import "strings"

var (
	validLevels    = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validEncodings = map[string]bool{"console": true, "json": true}
)

// Validate checks c and reports all problems at once.
func (c *Config) Validate() error {
	errs := &ValidationError{}

	if strings.TrimSpace(c.ConnectionString) == "" {
		errs.Addf("connection_string is required")
	}
	if strings.TrimSpace(c.Key) == "" {
		errs.Addf("key is required")
	}
	if c.PollIntervalMS <= 0 {
		errs.Addf("poll_interval_ms must be positive, got %d", c.PollIntervalMS)
	}
	if c.ConnectTimeoutMS < 0 {
		errs.Addf("connect_timeout_ms must not be negative, got %d", c.ConnectTimeoutMS)
	}
	if c.RetryIntervalMS < 0 {
		errs.Addf("retry_interval_ms must not be negative, got %d", c.RetryIntervalMS)
	}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs.Addf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	if !validEncodings[strings.ToLower(c.Log.Encoding)] {
		errs.Addf("log.encoding %q is not one of console, json", c.Log.Encoding)
	}
	if c.Memory.NumCounters < 0 || c.Memory.MaxCost < 0 {
		errs.Addf("memory sizes must not be negative")
	}

	return errs.ToError()
}
