package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is parsed from DF_WASM_* environment variables.
type Config struct {
	// BaseURL plays the role of the document base: module paths resolve against it.
	BaseURL       string        `env:"DF_WASM_BASE_URL" envDefault:"file:///"`
	Root          string        `env:"DF_WASM_ROOT" envDefault:"."`
	HTTPTimeout   time.Duration `env:"DF_WASM_HTTP_TIMEOUT" envDefault:"30s"`
	StrictExports bool          `env:"DF_WASM_STRICT_EXPORTS"`
	LogLevel      string        `env:"DF_WASM_LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"DF_WASM_LOG_FORMAT" envDefault:"text"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields that have a closed set of values.
func (c Config) Validate() error {
	if _, err := c.Base(); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q: must be 'text' or 'json'", c.LogFormat)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("invalid http timeout %s", c.HTTPTimeout)
	}
	return nil
}

// Base parses BaseURL, which must be absolute.
func (c Config) Base() (*url.URL, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", c.BaseURL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("invalid base url %q: must be absolute", c.BaseURL)
	}
	return u, nil
}

// NewLogger builds the process logger writing to w.
func (c Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(c.LogFormat) == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", s)
	}
}

// Preload lists module paths to load at startup.
type Preload struct {
	Modules []string `yaml:"modules"`
}

// LoadPreload reads a YAML preload file.
func LoadPreload(path string) (Preload, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return Preload{}, err
	}

	var p Preload
	if err := yaml.Unmarshal(payload, &p); err != nil {
		return Preload{}, fmt.Errorf("parse preload %s: %w", path, err)
	}
	for i, m := range p.Modules {
		if strings.TrimSpace(m) == "" {
			return Preload{}, fmt.Errorf("parse preload %s: module %d is empty", path, i)
		}
	}
	return p, nil
}
