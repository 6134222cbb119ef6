package app

import (
	"testing"

	"emojid/pkg/config"
)

func validCfg() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestValidateConfig(t *testing.T) {
	if err := validateConfig(validCfg()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"NilConfig", nil},
		{"BadPort", func(c *config.Config) { c.Server.Port = 70000 }},
		{"NoDataDir", func(c *config.Config) { c.Storage.DataDir = "" }},
		{"ZeroCapacity", func(c *config.Config) { c.Emoji.MaxRegistered = -1 }},
		{"ThresholdTooHigh", func(c *config.Config) { c.Emoji.SimilarityThreshold = 1.0 }},
		{"NoSchedule", func(c *config.Config) {
			c.Emoji.CheckInterval = 0
			c.Emoji.Cron = ""
		}},
		{"HalfTLS", func(c *config.Config) { c.Server.TLS.CertFile = "/cert.pem" }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if c.mutate == nil {
				if err := validateConfig(nil); err == nil {
					t.Fatal("nil config should fail")
				}
				return
			}
			cfg := validCfg()
			c.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCronScheduleSatisfiesValidation(t *testing.T) {
	cfg := validCfg()
	cfg.Emoji.CheckInterval = 0
	cfg.Emoji.Cron = "*/10 * * * *"
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("cron-only schedule should validate: %v", err)
	}
}
