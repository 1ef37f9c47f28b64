package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/cpu/acmekit/acme"
	"github.com/cpu/acmekit/internal/logging"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

const (
	PEBBLE_DIRECTORY  = "https://localhost:14000/dir"
	HTTP_PORT_DEFAULT = 5002
	TLS_PORT_DEFAULT  = 5001
	DNS_PORT_DEFAULT  = 5252
)

// Config holds every acmeshell setting. It is read from an optional YAML file
// and overridden by the command line flags that were set.
type Config struct {
	Directory         string        `yaml:"directory"`
	CA                string        `yaml:"ca"`
	Contacts          []string      `yaml:"contacts"`
	Account           string        `yaml:"account"`
	AutoRegister      bool          `yaml:"autoregister"`
	HTTPPort          int           `yaml:"httpPort"`
	TLSPort           int           `yaml:"tlsPort"`
	DNSPort           int           `yaml:"dnsPort"`
	ChallSrv          string        `yaml:"challSrv"`
	Pebble            bool          `yaml:"pebble"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	CommandTimeout    time.Duration `yaml:"commandTimeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	LogLevel          string        `yaml:"logLevel"`
	LogJSON           string        `yaml:"logJSON"`
	Dump              bool          `yaml:"dump"`
	In                string        `yaml:"in"`
}

func defaultConfig() *Config {
	return &Config{
		Directory:      acme.LetsEncryptStagingURL,
		AutoRegister:   true,
		HTTPPort:       HTTP_PORT_DEFAULT,
		TLSPort:        TLS_PORT_DEFAULT,
		DNSPort:        DNS_PORT_DEFAULT,
		PollInterval:   time.Second,
		CommandTimeout: 5 * time.Minute,
		LogLevel:       "warn",
	}
}

// loadConfig reads the YAML file at path over the values already in cfg.
func loadConfig(fs afero.Fs, path string, cfg *Config) error {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Wrap(err, "failed to read config")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrapf(err, "failed to parse config %q", path)
	}
	return nil
}

// resolveConfig builds the effective configuration: defaults, then the config
// file at path (if any), then every flag reported as changed, taken from
// flagCfg.
func resolveConfig(fs afero.Fs, path string, changed func(string) bool, flagCfg *Config) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := loadConfig(fs, path, cfg); err != nil {
			return nil, err
		}
	}

	overrides := []struct {
		flag  string
		apply func()
	}{
		{"directory", func() { cfg.Directory = flagCfg.Directory }},
		{"ca", func() { cfg.CA = flagCfg.CA }},
		{"contact", func() { cfg.Contacts = flagCfg.Contacts }},
		{"account", func() { cfg.Account = flagCfg.Account }},
		{"autoregister", func() { cfg.AutoRegister = flagCfg.AutoRegister }},
		{"httpPort", func() { cfg.HTTPPort = flagCfg.HTTPPort }},
		{"tlsPort", func() { cfg.TLSPort = flagCfg.TLSPort }},
		{"dnsPort", func() { cfg.DNSPort = flagCfg.DNSPort }},
		{"challSrv", func() { cfg.ChallSrv = flagCfg.ChallSrv }},
		{"pebble", func() { cfg.Pebble = flagCfg.Pebble }},
		{"pollInterval", func() { cfg.PollInterval = flagCfg.PollInterval }},
		{"commandTimeout", func() { cfg.CommandTimeout = flagCfg.CommandTimeout }},
		{"rps", func() { cfg.RequestsPerSecond = flagCfg.RequestsPerSecond }},
		{"logLevel", func() { cfg.LogLevel = flagCfg.LogLevel }},
		{"logJSON", func() { cfg.LogJSON = flagCfg.LogJSON }},
		{"dump", func() { cfg.Dump = flagCfg.Dump }},
		{"in", func() { cfg.In = flagCfg.In }},
	}
	for _, o := range overrides {
		if changed(o.flag) {
			o.apply()
		}
	}

	if cfg.Pebble {
		cfg.Directory = PEBBLE_DIRECTORY
		if !changed("ca") {
			pebbleBaseDir := os.Getenv("GOPATH")
			cfg.CA = pebbleBaseDir + "/src/github.com/letsencrypt/pebble/test/certs/pebble.minica.pem"
		}
	}
	return cfg, nil
}

// parseLevel maps a level name to a slog level. "trace" also logs every HTTP
// exchange when dumping is enabled.
func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "trace":
		return logging.LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, errors.Errorf("unknown log level %q", name)
}
