// Package config loads runtime settings from defaults, an optional YAML file,
// and environment variables, in that order of precedence (lowest first).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultWorkers    = 16
	DefaultRunTimeout = time.Hour
	DefaultDrainGrace = 30 * time.Second
)

type Config struct {
	InputDir      string        `yaml:"input_dir"`
	OutputDir     string        `yaml:"output_dir"`
	OutputURL     string        `yaml:"output_url"` // gocloud blob URL; replaces OutputDir when set
	Workers       int           `yaml:"workers"`
	DispatchMode  string        `yaml:"dispatch_mode"` // "static" | "pool"
	RunTimeout    time.Duration `yaml:"run_timeout"`
	DrainGrace    time.Duration `yaml:"drain_grace"`
	Filter        string        `yaml:"filter"`
	Extensions    []string      `yaml:"accepted_extensions"`
	NATSURL       string        `yaml:"nats_url"`
	ResultSubject string        `yaml:"result_subject"`
	MetricsAddr   string        `yaml:"metrics_addr"`
	LogLevel      string        `yaml:"log_level"`
	LogFormat     string        `yaml:"log_format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		InputDir:      filepath.Join("imagenes", "ImagenesParalela"),
		Workers:       DefaultWorkers,
		DispatchMode:  "static",
		RunTimeout:    DefaultRunTimeout,
		DrainGrace:    DefaultDrainGrace,
		Filter:        "grayscale",
		Extensions:    []string{".png", ".jpg", ".jpeg", ".bmp", ".gif"},
		ResultSubject: "images.grayscale.done",
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load builds the configuration. CONFIG_FILE, when set, names a YAML file
// applied on top of the defaults; environment variables win over both.
func Load() (Config, error) {
	cfg := Default()

	if path := getenv("CONFIG_FILE", ""); path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	cfg.InputDir = getenv("INPUT_DIR", cfg.InputDir)
	cfg.OutputDir = getenv("OUTPUT_DIR", cfg.OutputDir)
	cfg.OutputURL = getenv("OUTPUT_URL", cfg.OutputURL)
	cfg.DispatchMode = getenv("DISPATCH_MODE", cfg.DispatchMode)
	cfg.Filter = getenv("FILTER", cfg.Filter)
	cfg.NATSURL = getenv("NATS_URL", cfg.NATSURL)
	cfg.ResultSubject = getenv("RESULT_SUBJECT", cfg.ResultSubject)
	cfg.MetricsAddr = getenv("METRICS_ADDR", cfg.MetricsAddr)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("LOG_FORMAT", cfg.LogFormat)

	if v := getenv("WORKERS", ""); v != "" {
		workers, err := parsePositiveInt(v, "WORKERS")
		if err != nil {
			return Config{}, err
		}
		cfg.Workers = workers
	}

	var err error
	if cfg.RunTimeout, err = getenvDuration("RUN_TIMEOUT", cfg.RunTimeout); err != nil {
		return Config{}, err
	}
	if cfg.DrainGrace, err = getenvDuration("DRAIN_GRACE", cfg.DrainGrace); err != nil {
		return Config{}, err
	}

	if v := getenv("ACCEPTED_EXTENSIONS", ""); v != "" {
		cfg.Extensions = splitList(v)
	}

	if cfg.OutputDir == "" {
		cfg.OutputDir = filepath.Join(cfg.InputDir, "salidaImagenes")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays the YAML document at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks values that cannot be recovered from at run time.
func (c Config) Validate() error {
	if strings.TrimSpace(c.InputDir) == "" {
		return fmt.Errorf("input directory must be set")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be greater than zero (got %d)", c.Workers)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run timeout must not be negative (got %s)", c.RunTimeout)
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("at least one accepted extension is required")
	}
	return nil
}

// ParseError reports an invalid worker-count argument. Callers recover from it
// by falling back to the default.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid worker count %q: %v", e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseWorkers reads the optional positional worker count. It always returns
// a usable count: def when args is empty or the argument is invalid, in which
// case a *ParseError is returned alongside.
func ParseWorkers(args []string, def int) (int, error) {
	if len(args) == 0 {
		return def, nil
	}
	n, err := parsePositiveInt(strings.TrimSpace(args[0]), "worker count")
	if err != nil {
		return def, &ParseError{Value: args[0], Err: err}
	}
	return n, nil
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := getenv(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
