package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither file, env nor flags provide a value.
const (
	DefaultAddress             = "0.0.0.0"
	DefaultPort                = 18567
	DefaultDataDir             = "./data"
	DefaultMaxRegistered       = 100
	DefaultCheckIntervalSec    = 600
	DefaultSimilarityThreshold = 0.4
	DefaultMaxUploadBytes      = 8 << 20
	DefaultRetryBudget         = 3
	DefaultCaptionerMaxTokens  = 1000
	DefaultCaptionerTimeoutSec = 120
)

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyEnvOverrides mutates cfg with EMOJID_* environment variables and
// reports whether any env var was used.
func ApplyEnvOverrides(cfg *Config) bool {
	used := false
	setStr := func(env string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
			used = true
		}
	}
	setStr("EMOJID_SERVER_ADDRESS", &cfg.Server.Address)
	if v := strings.TrimSpace(os.Getenv("EMOJID_SERVER_PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
			used = true
		}
	}
	setStr("EMOJID_DATA_DIR", &cfg.Storage.DataDir)
	setStr("EMOJID_CAPTIONER_BASE_URL", &cfg.Captioner.BaseURL)
	setStr("EMOJID_CAPTIONER_API_KEY", &cfg.Captioner.APIKey)
	setStr("EMOJID_CAPTIONER_VISION_MODEL", &cfg.Captioner.VisionModel)
	setStr("EMOJID_CAPTIONER_UTILS_MODEL", &cfg.Captioner.UtilsModel)
	setStr("EMOJID_LOG_LEVEL", &cfg.Logging.Level)
	if v := strings.TrimSpace(os.Getenv("EMOJID_MAX_REGISTERED")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Emoji.MaxRegistered = n
			used = true
		}
	}
	if v := strings.TrimSpace(os.Getenv("EMOJID_REPLACE_AT_CAPACITY")); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			cfg.Emoji.ReplaceAtCapacity = true
		default:
			cfg.Emoji.ReplaceAtCapacity = false
		}
		used = true
	}
	return used
}

// ApplyDefaults fills zero values with defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultAddress
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = DefaultDataDir
	}
	if cfg.Emoji.MaxRegistered == 0 {
		cfg.Emoji.MaxRegistered = DefaultMaxRegistered
	}
	if cfg.Emoji.CheckInterval.Duration() == 0 {
		cfg.Emoji.CheckInterval = Duration(DefaultCheckIntervalSec * 1e9)
	}
	if cfg.Emoji.SimilarityThreshold == 0 {
		cfg.Emoji.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Emoji.MaxUploadSize == 0 {
		cfg.Emoji.MaxUploadSize = SizeBytes(DefaultMaxUploadBytes)
	}
	if cfg.Emoji.RegisterRetryBudget == 0 {
		cfg.Emoji.RegisterRetryBudget = DefaultRetryBudget
	}
	if cfg.Captioner.MaxTokens == 0 {
		cfg.Captioner.MaxTokens = DefaultCaptionerMaxTokens
	}
	if cfg.Captioner.Timeout.Duration() == 0 {
		cfg.Captioner.Timeout = Duration(DefaultCaptionerTimeoutSec * 1e9)
	}
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// LoadEffective loads the config file (missing file is not an error),
// applies env overrides and defaults, and reports whether env vars were
// consulted.
func LoadEffective(path string) (*Config, bool, error) {
	cfg := &Config{}
	if path != "" {
		loaded, err := Load(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, false, err
			}
		} else {
			cfg = loaded
		}
	}
	envUsed := ApplyEnvOverrides(cfg)
	ApplyDefaults(cfg)
	return cfg, envUsed, nil
}
