// Package config resolves run settings from, in increasing priority,
// built-in defaults, a TOML file, a .env file and IMAGEDUPES_* environment
// variables, and explicitly set command line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/pflag"

	"imagedupes/internal/cluster"
	"imagedupes/internal/fingerprint"
	"imagedupes/internal/hash"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv
const EnvPrefix = "IMAGEDUPES_"

type LogConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

type Config struct {
	Database       string    `toml:"database"`
	Threshold      int       `toml:"threshold"`
	HashSize       int       `toml:"hash_size"`
	Workers        int       `toml:"workers"`
	TimeoutSeconds int       `toml:"timeout_seconds"`
	Recursive      bool      `toml:"recursive"`
	Algorithm      string    `toml:"algorithm"`
	Strategy       string    `toml:"strategy"`
	Keep           string    `toml:"keep"`
	Log            LogConfig `toml:"log"`

	// timeout keeps the exact --timeout value, which may be finer than a second
	timeout time.Duration
}

// Dir is the per-user directory holding the database and config file
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".imagedupes"
	}
	return filepath.Join(home, ".imagedupes")
}

// DefaultPath is where Load looks when no config file is given
func DefaultPath() string {
	return filepath.Join(Dir(), "config.toml")
}

func Default() *Config {
	return &Config{
		Database:       filepath.Join(Dir(), "images.db"),
		Threshold:      95,
		HashSize:       fingerprint.DefaultHashSize,
		Workers:        runtime.NumCPU(),
		TimeoutSeconds: 30,
		Algorithm:      string(fingerprint.KindAverage),
		Strategy:       string(cluster.Greedy),
		Keep:           string(cluster.KeepSeed),
		Log: LogConfig{
			Level: "warn",
		},
	}
}

// Load returns the defaults overlaid with the TOML file at path. An empty
// path means DefaultPath, which is allowed to be missing; an explicit path
// must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files (default ".env") into
// the process environment without overriding variables already set. Missing
// files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from IMAGEDUPES_* variables found by lookup,
// normally os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = n
	}
	flag := func(name string, dst *bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			return
		}
		*dst = b
	}

	str("DB", &c.Database)
	num("THRESHOLD", &c.Threshold)
	num("HASH_SIZE", &c.HashSize)
	num("WORKERS", &c.Workers)
	num("TIMEOUT", &c.TimeoutSeconds)
	flag("RECURSIVE", &c.Recursive)
	str("ALGORITHM", &c.Algorithm)
	str("STRATEGY", &c.Strategy)
	str("KEEP", &c.Keep)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)

	return errors.Join(errs...)
}

// ApplyFlags copies the flags the user set explicitly. Flags left at their
// default do not override the file or environment.
func (c *Config) ApplyFlags(flags *pflag.FlagSet) error {
	var errs []error
	flags.Visit(func(f *pflag.Flag) {
		var err error
		switch f.Name {
		case "db":
			c.Database, err = flags.GetString(f.Name)
		case "threshold":
			c.Threshold, err = flags.GetInt(f.Name)
		case "hash-size":
			c.HashSize, err = flags.GetInt(f.Name)
		case "workers":
			c.Workers, err = flags.GetInt(f.Name)
		case "timeout":
			var d time.Duration
			d, err = flags.GetDuration(f.Name)
			if err == nil && d < 0 {
				err = fmt.Errorf("must not be negative, got %s", d)
			}
			if err == nil {
				c.timeout = d
				c.TimeoutSeconds = int((d + time.Second - 1) / time.Second)
			}
		case "recursive":
			c.Recursive, err = flags.GetBool(f.Name)
		case "algorithm":
			c.Algorithm, err = flags.GetString(f.Name)
		case "strategy":
			c.Strategy, err = flags.GetString(f.Name)
		case "keep":
			c.Keep, err = flags.GetString(f.Name)
		case "log-level":
			c.Log.Level, err = flags.GetString(f.Name)
		case "log-file":
			c.Log.File, err = flags.GetString(f.Name)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", f.Name, err))
		}
	})
	return errors.Join(errs...)
}

// Validate checks ranges and enumerated values
func (c *Config) Validate() error {
	var errs []error

	if c.Threshold < 0 || c.Threshold > 100 {
		errs = append(errs, fmt.Errorf("threshold must be between 0 and 100, got %d", c.Threshold))
	}
	if err := fingerprint.ValidateHashSize(c.HashSize); err != nil {
		errs = append(errs, err)
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", c.Workers))
	}
	if c.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %d", c.TimeoutSeconds))
	}
	if _, err := hash.ParseKind(c.Algorithm); err != nil {
		errs = append(errs, err)
	}
	if _, err := cluster.ParseStrategy(c.Strategy); err != nil {
		errs = append(errs, err)
	}
	if _, err := cluster.ParseKeepPolicy(c.Keep); err != nil {
		errs = append(errs, err)
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database path must not be empty"))
	}

	return errors.Join(errs...)
}

// Timeout is the per-image hashing limit; zero disables it
func (c *Config) Timeout() time.Duration {
	if c.timeout > 0 {
		return c.timeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
