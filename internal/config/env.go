package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays FLR_* environment variables onto cfg. Unparseable values
// are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FLR_REPOSITORY"); v != "" {
		cfg.RepositoryDir = v
	}
	if v := os.Getenv("FLR_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("FLR_BLOCK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BlockSize = n
		}
	}
	if v := os.Getenv("FLR_ORDERED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Ordered = b
		}
	}
	if v := os.Getenv("FLR_REUSE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Reuse = b
		}
	}
	if v := os.Getenv("FLR_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = Duration(d)
		}
	}
	if v := os.Getenv("FLR_WAIT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WaitInterval = Duration(d)
		}
	}
	if v := os.Getenv("FLR_FSYNC"); v != "" {
		cfg.Fsync = v
	}
	if v := os.Getenv("FLR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLR_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("FLR_LOG_OUTPUT"); v != "" {
		cfg.LogOutput = v
	}
}
