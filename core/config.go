package core

import (
	"fmt"
	"strings"
	"time"
)

type ProviderConfig struct {
	SigningSecret string `koanf:"signing_secret" mapstructure:"signing_secret"`
}

type RetryConfig struct {
	MaxAttempts int `koanf:"max_attempts" mapstructure:"max_attempts"`
	SweepBatch  int `koanf:"sweep_batch" mapstructure:"sweep_batch"`
}

type IngressConfig struct {
	MaxBodyBytes      int64 `koanf:"max_body_bytes" mapstructure:"max_body_bytes"`
	RequestsPerMinute int   `koanf:"requests_per_minute" mapstructure:"requests_per_minute"`
}

type Config struct {
	ServiceName      string         `koanf:"service_name" mapstructure:"service_name"`
	TolerableSkew    time.Duration  `koanf:"tolerable_skew" mapstructure:"tolerable_skew"`
	PayloadByteLimit int            `koanf:"payload_byte_limit" mapstructure:"payload_byte_limit"`
	Meet             ProviderConfig `koanf:"meet" mapstructure:"meet"`
	Mail             ProviderConfig `koanf:"mail" mapstructure:"mail"`
	Retry            RetryConfig    `koanf:"retry" mapstructure:"retry"`
	Ingress          IngressConfig  `koanf:"ingress" mapstructure:"ingress"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:      "intake",
		TolerableSkew:    300 * time.Second,
		PayloadByteLimit: 10 * 1024,
		Retry: RetryConfig{
			MaxAttempts: DefaultMaxAttempts,
			SweepBatch:  50,
		},
		Ingress: IngressConfig{
			MaxBodyBytes:      1 << 20,
			RequestsPerMinute: 600,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.TolerableSkew <= 0 {
		return fmt.Errorf("core: tolerable_skew must be positive")
	}
	if c.PayloadByteLimit <= 0 {
		return fmt.Errorf("core: payload_byte_limit must be positive")
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("core: retry.max_attempts must not be negative")
	}
	return nil
}
