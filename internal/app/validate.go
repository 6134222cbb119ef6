package app

import (
	"fmt"

	"emojid/pkg/config"
)

// validateConfig checks the effective config for fatal misconfiguration
// before any resource is touched.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}
	if cfg.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir must be set")
	}
	if cfg.Emoji.MaxRegistered <= 0 {
		return fmt.Errorf("emoji.max_registered must be positive")
	}
	if cfg.Emoji.SimilarityThreshold < 0 || cfg.Emoji.SimilarityThreshold >= 1 {
		return fmt.Errorf("emoji.similarity_threshold must be in [0, 1): %v", cfg.Emoji.SimilarityThreshold)
	}
	if cfg.Emoji.CheckInterval.Duration() <= 0 && cfg.Emoji.Cron == "" {
		return fmt.Errorf("emoji.check_interval or emoji.cron must be set")
	}
	if (cfg.Server.TLS.CertFile == "") != (cfg.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls requires both cert_file and key_file")
	}
	return nil
}
