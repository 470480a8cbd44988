// Package config loads the application configuration from a YAML or
// JSON-with-comments file, applies environment overrides, and watches
// the file for changes.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChienNQuang/Note/internal/errs"
	"github.com/ChienNQuang/Note/internal/store"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values.
const (
	EnvDataDir  = "NOTE_DATA_DIR"
	EnvLogLevel = "NOTE_LOG_LEVEL"
)

// Config is the application configuration.
type Config struct {
	DataDir        string   `yaml:"data_dir" json:"data_dir" validate:"required"`
	DatabaseFile   string   `yaml:"database_file" json:"database_file" validate:"required,excludesall=/\\"`
	MaxConnections int      `yaml:"max_connections" json:"max_connections" validate:"min=1,max=64"`
	AcquireTimeout Duration `yaml:"acquire_timeout" json:"acquire_timeout" validate:"gt=0"`
	BusyTimeout    Duration `yaml:"busy_timeout" json:"busy_timeout" validate:"gt=0"`
	LogLevel       string   `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	dir := ".note"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".note")
	}
	return &Config{
		DataDir:        dir,
		DatabaseFile:   "note.db",
		MaxConnections: 5,
		AcquireTimeout: Duration(10 * time.Second),
		BusyTimeout:    Duration(5 * time.Second),
		LogLevel:       "info",
	}
}

// DatabasePath is the full path of the database file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.DatabaseFile)
}

// StoreConfig converts c into the store's configuration.
func (c *Config) StoreConfig(logger *slog.Logger) store.Config {
	return store.Config{
		Path:           c.DatabasePath(),
		MaxConnections: c.MaxConnections,
		AcquireTimeout: time.Duration(c.AcquireTimeout),
		BusyTimeout:    time.Duration(c.BusyTimeout),
		Logger:         logger,
	}
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Load reads the file at path over the defaults. An empty path or a
// missing file yields the defaults. The format follows the extension:
// .yaml/.yml, or .json/.jsonc/.hujson (comments and trailing commas
// allowed). Environment overrides are applied last.
func Load(path string) (*Config, error) {
	const op = "config.Load"
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, errs.E(errs.KindValidation, op, fmt.Errorf("parse %s: %w", path, err))
			}
		}
	}

	applyEnv(cfg)
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := errs.Validate(op, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".json", ".jsonc", ".hujson":
		std, err := hujson.Standardize(data)
		if err != nil {
			return err
		}
		return json.Unmarshal(std, cfg)
	default:
		return fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// ─── Duration ────────────────────────────────────────────────────────────────

// Duration is a time.Duration written as "10s" or "1m30s" in config
// files. A bare number is read as seconds.
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v any) error {
	switch x := v.(type) {
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(x))
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(x * float64(time.Second))
	case int:
		*d = Duration(time.Duration(x) * time.Second)
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}
