package config

// Defines the application configuration read from config.yaml.

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config defines properties controlling a netdeploy run.
type Config struct {
	Inventory Inventory `yaml:"inventory"`
	Runner    Runner    `yaml:"runner"`
	Paths     Paths     `yaml:"paths"`
	Deploy    Deploy    `yaml:"deploy"`
	SSH       SSH       `yaml:"ssh"`
	Logging   Logging   `yaml:"logging"`
}

// Inventory locates the host, group and defaults files.
// Groups and defaults are optional.
type Inventory struct {
	Hosts    string `yaml:"hosts"`
	Groups   string `yaml:"groups"`
	Defaults string `yaml:"defaults"`
}

// Runner defines task execution properties.
type Runner struct {
	// Maximum number of hosts processed concurrently.
	NumWorkers int `yaml:"num_workers"`
}

// Paths defines the directories holding templates, tests and generated artifacts.
type Paths struct {
	Templates string `yaml:"templates"`
	Tests     string `yaml:"tests"`
	Configs   string `yaml:"configs"`
	Backups   string `yaml:"backups"`
	Diffs     string `yaml:"diffs"`
}

// Deploy defines workflow behaviour.
type Deploy struct {
	// Merge loads configuration as a merge rather than a full replace.
	Merge bool `yaml:"merge"`
	// SettleTime is how long to wait after deploying before validating.
	SettleTime time.Duration `yaml:"settle_time"`
	// ReadyAttempts bounds the SNMP readiness polling of a device.
	ReadyAttempts int `yaml:"ready_attempts"`
	// ReadyInterval is the delay between readiness polls.
	ReadyInterval time.Duration `yaml:"ready_interval"`
	// SkipRollback leaves devices as deployed when validation fails.
	SkipRollback bool `yaml:"skip_rollback"`
}

// SSH defines the client side of device connections.
type SSH struct {
	Timeout               time.Duration `yaml:"timeout"`
	KnownHosts            string        `yaml:"known_hosts"`
	InsecureIgnoreHostKey bool          `yaml:"insecure_ignore_host_key"`
	PrivateKey            string        `yaml:"private_key"`
	LegacyAlgorithms      bool          `yaml:"legacy_algorithms"`
	ConnectAttempts       int           `yaml:"connect_attempts"`
	ConnectInterval       time.Duration `yaml:"connect_interval"`
}

// Logging defines the log output.
type Logging struct {
	Level   string `yaml:"level"`
	NoColor bool   `yaml:"no_color"`
}

// DefaultConfig holds the values applied to any property a config file leaves unset.
var DefaultConfig = Config{
	Inventory: Inventory{
		Hosts: "inventory/hosts.yaml",
	},
	Runner: Runner{
		NumWorkers: 20,
	},
	Paths: Paths{
		Templates: "templates",
		Tests:     "network_tests",
		Configs:   "configs",
		Backups:   "backup",
		Diffs:     "diffs",
	},
	Deploy: Deploy{
		SettleTime:    10 * time.Second,
		ReadyAttempts: 30,
		ReadyInterval: 2 * time.Second,
	},
	SSH: SSH{
		Timeout:         10 * time.Second,
		ConnectAttempts: 3,
		ConnectInterval: 2 * time.Second,
	},
	Logging: Logging{
		Level: "info",
	},
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path) // nolint: gosec
	if err != nil {
		return nil, errors.Wrap(err, "read config failed")
	}
	return Parse(b)
}

// Parse decodes a YAML configuration over the defaults, so only the properties the document sets
// replace them, zero values included.
func Parse(b []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default delivers a copy of the default configuration.
func Default() *Config {
	cfg := DefaultConfig
	return &cfg
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch {
	case c.Inventory.Hosts == "":
		return errors.New("inventory hosts file not defined")
	case c.Runner.NumWorkers < 1:
		return errors.Errorf("num_workers must be positive, got %d", c.Runner.NumWorkers)
	case c.SSH.InsecureIgnoreHostKey && c.SSH.KnownHosts != "":
		return errors.New("known_hosts and insecure_ignore_host_key are mutually exclusive")
	}
	return nil
}
