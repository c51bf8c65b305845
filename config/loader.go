package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format selects the decoder used by LoadFromReader.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatOf picks a Format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Load reads path, expands ${VAR} references, applies defaults and the
// RESCACHE_CONNECTION_STRING override, then validates.
func Load(path string) (*Config, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer file.Close()

	return LoadFromReader(file, format)
}

// LoadOrDefault is Load, except that a missing file yields DefaultConfig
// (still subject to the environment override).
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		d := DefaultConfig()
		return finish(&d)
	}
	return cfg, err
}

func LoadFromReader(r io.Reader, format Format) (*Config, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := []byte(os.ExpandEnv(string(content)))

	var cfg Config
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(expanded, &cfg)
	case FormatTOML:
		err = toml.NewDecoder(bytes.NewReader(expanded)).DisallowUnknownFields().Decode(&cfg)
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(expanded))
		dec.DisallowUnknownFields()
		err = dec.Decode(&cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", format, err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConnectionString)); v != "" {
		cfg.ConnectionString = v
	}
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
