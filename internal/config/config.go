package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"

	"github.com/rzbill/flr/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// RepositoryDir is the directory of chunk files followed by tail.
	RepositoryDir string `json:"repositoryDir" yaml:"repositoryDir"`
	// DataDir holds flr state. Checkpoints live in CheckpointDir.
	DataDir string `json:"dataDir" yaml:"dataDir"`
	// BlockSize is the reader block size in bytes. Zero selects the default.
	BlockSize int  `json:"blockSize" yaml:"blockSize"`
	Ordered   bool `json:"ordered" yaml:"ordered"`
	Reuse     bool `json:"reuse" yaml:"reuse"`
	// PollInterval is how often the repository directory is rescanned.
	PollInterval Duration `json:"pollInterval" yaml:"pollInterval"`
	// WaitInterval bounds one wait for the next chunk.
	WaitInterval Duration `json:"waitInterval" yaml:"waitInterval"`
	// Fsync is the checkpoint durability mode: always, interval or never.
	Fsync     string `json:"fsync" yaml:"fsync"`
	LogLevel  string `json:"logLevel" yaml:"logLevel"`
	LogFormat string `json:"logFormat" yaml:"logFormat"`
	// LogOutput is stderr, stdout, none or a file path.
	LogOutput string `json:"logOutput" yaml:"logOutput"`
}

// Duration is a time.Duration written as a Go duration string ("500ms").
type Duration time.Duration

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DataDir:      DefaultDataDir(),
		PollInterval: Duration(500 * time.Millisecond),
		WaitInterval: Duration(time.Second),
		Fsync:        "interval",
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is
// empty, returns defaults. Values absent from the file keep their defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config: %s", path)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "config: %s", path)
		}
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.BlockSize < 0 {
		return errors.Errorf("config: negative blockSize %d", c.BlockSize)
	}
	if c.PollInterval < 0 || c.WaitInterval < 0 {
		return errors.New("config: intervals must not be negative")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "config")
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return errors.Errorf("config: unknown logFormat %q", c.LogFormat)
	}
	switch c.Fsync {
	case "", "always", "interval", "never":
	default:
		return errors.Errorf("config: unknown fsync mode %q", c.Fsync)
	}
	return nil
}

// LogConfig returns the logging part of c.
func (c Config) LogConfig() log.Config {
	return log.Config{Level: c.LogLevel, Format: c.LogFormat, Output: c.LogOutput}
}
