// Package config resolves the configuration of the tzdb command.
// Resolution order (later layers win):
//  1. built-in defaults
//  2. config.yaml, from --config or the current working directory
//  3. environment variables
//  4. CLI flags
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile     = "config.yaml"
	DefaultZoneinfo       = "/usr/share/zoneinfo"
	DefaultMatchThreshold = 0.7
	DefaultListen         = ":8080"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"

	EnvStream         = "TZDB_STREAM"
	EnvZoneinfo       = "ZONEINFO"
	EnvWindowsZones   = "TZDB_WINDOWS_ZONES"
	EnvStore          = "TZDB_STORE"
	EnvMatchThreshold = "TZDB_MATCH_THRESHOLD"
	EnvListen         = "TZDB_LISTEN"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
)

// File is the on-disk representation of config.yaml.
type File struct {
	Stream         string  `yaml:"stream,omitempty"`
	Zoneinfo       string  `yaml:"zoneinfo,omitempty"`
	WindowsZones   string  `yaml:"windows_zones,omitempty"`
	Store          string  `yaml:"store,omitempty"`
	MatchThreshold float64 `yaml:"match_threshold,omitempty"`
	Listen         string  `yaml:"listen,omitempty"`
	Log            struct {
		Level  string `yaml:"level,omitempty"`
		Format string `yaml:"format,omitempty"`
	} `yaml:"log,omitempty"`
}

// Config is the fully resolved configuration.
type Config struct {
	// Stream is an encoded stream file. If set, it is used instead of
	// importing Zoneinfo.
	Stream       string
	Zoneinfo     string
	WindowsZones string
	Store        string
	// MatchThreshold is the minimum score of a host zone guess.
	MatchThreshold float64
	Listen         string
	LogLevel       string
	LogFormat      string
	// ConfigPath is the config.yaml that was loaded, empty if none.
	ConfigPath string
}

// Flags holds CLI flag values. Zero values are not applied.
type Flags = Config

// Load resolves the configuration. path names a config file that must
// exist; if empty, config.yaml in the working directory is read when
// present. lookupEnv is usually os.LookupEnv.
func Load(path string, flags Flags, lookupEnv func(string) (string, bool)) (*Config, error) {
	cfg := &Config{
		Zoneinfo:       DefaultZoneinfo,
		MatchThreshold: DefaultMatchThreshold,
		Listen:         DefaultListen,
		LogLevel:       DefaultLogLevel,
		LogFormat:      DefaultLogFormat,
	}
	if home, err := os.UserHomeDir(); err == nil {
		cfg.Store = filepath.Join(home, ".tzdb", "tzdb.db")
	}

	f, loaded, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if f != nil {
		applyFile(cfg, f, loaded)
	}

	if err := applyEnv(cfg, lookupEnv); err != nil {
		return nil, err
	}
	apply(cfg, flags)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match threshold %v out of range (0, 1]", c.MatchThreshold)
	}
	if c.Stream == "" && c.Zoneinfo == "" {
		return errors.New("neither stream nor zoneinfo configured")
	}
	return nil
}

func loadFile(path string) (*File, string, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("read config: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parse %s: %w", abs, err)
	}
	return &f, abs, nil
}

func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	apply(cfg, Config{
		Stream:         f.Stream,
		Zoneinfo:       f.Zoneinfo,
		WindowsZones:   f.WindowsZones,
		Store:          f.Store,
		MatchThreshold: f.MatchThreshold,
		Listen:         f.Listen,
		LogLevel:       f.Log.Level,
		LogFormat:      f.Log.Format,
	})
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) error {
	env := func(key string) string {
		v, _ := lookupEnv(key)
		return v
	}
	var threshold float64
	if v := env(EnvMatchThreshold); v != "" {
		var err error
		if threshold, err = strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("parse %s: %w", EnvMatchThreshold, err)
		}
	}
	apply(cfg, Config{
		Stream:         env(EnvStream),
		Zoneinfo:       env(EnvZoneinfo),
		WindowsZones:   env(EnvWindowsZones),
		Store:          env(EnvStore),
		MatchThreshold: threshold,
		Listen:         env(EnvListen),
		LogLevel:       env(EnvLogLevel),
		LogFormat:      env(EnvLogFormat),
	})
	return nil
}

// apply copies the non-zero values of layer into cfg.
func apply(cfg *Config, layer Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Stream, layer.Stream)
	set(&cfg.Zoneinfo, layer.Zoneinfo)
	set(&cfg.WindowsZones, layer.WindowsZones)
	set(&cfg.Store, layer.Store)
	set(&cfg.Listen, layer.Listen)
	set(&cfg.LogLevel, layer.LogLevel)
	set(&cfg.LogFormat, layer.LogFormat)
	if layer.MatchThreshold != 0 {
		cfg.MatchThreshold = layer.MatchThreshold
	}
}

// Template returns a File populated with the defaults, suitable for an
// initial config.yaml.
func Template() File {
	var f File
	f.Zoneinfo = DefaultZoneinfo
	f.MatchThreshold = DefaultMatchThreshold
	f.Listen = DefaultListen
	f.Log.Level = DefaultLogLevel
	f.Log.Format = DefaultLogFormat
	return f
}

// WriteFile writes f as YAML to path.
func WriteFile(path string, f File) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
