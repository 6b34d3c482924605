// Package config loads the hookline CLI configuration from a yaml
// file, defaulting to ~/.hookline/config.yaml.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	CollectorURL string        `yaml:"collector_url"`
	Token        string        `yaml:"token"`
	QueueDir     string        `yaml:"queue_dir"`
	LogDir       string        `yaml:"log_dir"`
	SendTimeout  time.Duration `yaml:"send_timeout"`
	MaxRetries   int           `yaml:"max_retries"`

	path string
}

func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".hookline")
	return &Config{
		CollectorURL: "http://localhost:8090/api/v1/events",
		QueueDir:     filepath.Join(base, "queue"),
		LogDir:       filepath.Join(base, "logs"),
		SendTimeout:  5 * time.Second,
		MaxRetries:   5,
	}
}

// Load reads cfgFile, or the default location when empty. A missing
// file yields the defaults rather than an error so a fresh install
// works without setup.
func Load(cfgFile string) (*Config, error) {
	if cfgFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		cfgFile = filepath.Join(home, ".hookline", "config.yaml")
	}

	cfg := Default()
	cfg.path = cfgFile

	data, err := os.ReadFile(cfgFile)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
		// Defaults apply; env overrides below still do.
	default:
		return nil, err
	}

	// Environment overrides for hook environments where editing a
	// config file is awkward. They apply whether or not a file exists.
	if v := os.Getenv("HOOKLINE_COLLECTOR_URL"); v != "" {
		cfg.CollectorURL = v
	}
	if v := os.Getenv("HOOKLINE_TOKEN"); v != "" {
		cfg.Token = v
	}

	return cfg, nil
}

// Save writes the config back to its source path.
func (c *Config) Save() error {
	if c.path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		c.path = filepath.Join(home, ".hookline", "config.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0o600)
}
