package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Emoji     EmojiConfig     `yaml:"emoji"`
	Captioner CaptionerConfig `yaml:"captioner"`
	Security  SecurityConfig  `yaml:"security"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds http and tls settings.
type ServerConfig struct {
	Address string    `yaml:"address"`
	Port    int       `yaml:"port"`
	TLS     TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate configuration.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StorageConfig holds the data directory layout root. All asset
// directories and the record collection live under DataDir.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// EmojiConfig controls the registry capacity and the reconciler loop.
type EmojiConfig struct {
	// MaxRegistered bounds the number of active records.
	MaxRegistered int `yaml:"max_registered"`
	// ReplaceAtCapacity enables eviction of an existing record when a new
	// asset is discovered at capacity.
	ReplaceAtCapacity bool `yaml:"replace_at_capacity"`
	// CheckInterval is the reconciler cycle interval.
	CheckInterval Duration `yaml:"check_interval"`
	// Cron, when set, overrides CheckInterval with a cron schedule.
	Cron string `yaml:"cron"`
	// SimilarityThreshold is the minimum tag similarity for a match.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// MaxUploadSize bounds accepted upload bodies.
	MaxUploadSize SizeBytes `yaml:"max_upload_size"`
	// RegisterRetryBudget is the number of reconcile cycles a staged file
	// may fail registration before it is deleted as unrecoverable.
	RegisterRetryBudget int `yaml:"register_retry_budget"`
}

// CaptionerConfig holds the captioning collaborator endpoint settings.
type CaptionerConfig struct {
	BaseURL     string   `yaml:"base_url"`
	APIKey      string   `yaml:"api_key"`
	VisionModel string   `yaml:"vision_model"`
	UtilsModel  string   `yaml:"utils_model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
}

// SecurityConfig holds security related settings.
type SecurityConfig struct {
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly
// strings like "8MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*s = 0
		return nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		*s = SizeBytes(v)
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		*s = SizeBytes(i)
		return nil
	}
	return fmt.Errorf("invalid size value: %q", node.Value)
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// Duration wraps time.Duration and supports YAML parsing from strings like
// "10m" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	raw := strings.TrimSpace(node.Value)
	if raw == "" {
		*d = Duration(0)
		return nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		*d = Duration(td)
		return nil
	}
	// allow numeric seconds
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		*d = Duration(time.Duration(f * float64(time.Second)))
		return nil
	}
	return fmt.Errorf("invalid duration value: %q", node.Value)
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }
