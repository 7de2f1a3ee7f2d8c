// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

// Package config loads the saga engine configuration from file and
// environment, producing validated settings for the resilience layer and
// the optional state recorder.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/orchestrix/sagaflow/pkg/resilience"
	"github.com/orchestrix/sagaflow/pkg/saga/state"
	"github.com/spf13/viper"
)

// Config is the root engine configuration.
type Config struct {
	Breaker BreakerSettings `mapstructure:"breaker"`
	Retry   RetrySettings   `mapstructure:"retry"`
	Client  ClientSettings  `mapstructure:"client"`
	State   StateSettings   `mapstructure:"state"`
}

// BreakerSettings configures the default circuit breaker parameters.
type BreakerSettings struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	WindowSize       int           `mapstructure:"window_size"`
}

// RetrySettings configures the default retry policy.
type RetrySettings struct {
	MaxRetries           int           `mapstructure:"max_retries"`
	BaseDelay            time.Duration `mapstructure:"base_delay"`
	MaxDelay             time.Duration `mapstructure:"max_delay"`
	ExponentialBase      float64       `mapstructure:"exponential_base"`
	Jitter               bool          `mapstructure:"jitter"`
	TransientStatusCodes []int         `mapstructure:"transient_status_codes"`
}

// ClientSettings configures outbound-call timeouts.
type ClientSettings struct {
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StateSettings selects and configures the step-outcome recorder backend.
type StateSettings struct {
	// Backend is "memory" or "redis".
	Backend string `mapstructure:"backend"`

	Redis RedisSettings `mapstructure:"redis"`
}

// RedisSettings configures the Redis recorder backend.
type RedisSettings struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// Default returns the engine configuration defaults.
func Default() *Config {
	breaker := resilience.DefaultBreakerConfig()
	retry := resilience.DefaultRetryPolicy()
	client := resilience.DefaultClientConfig()
	redis := state.DefaultRedisConfig()

	return &Config{
		Breaker: BreakerSettings{
			FailureThreshold: breaker.FailureThreshold,
			SuccessThreshold: breaker.SuccessThreshold,
			OpenTimeout:      breaker.OpenTimeout,
			WindowSize:       breaker.WindowSize,
		},
		Retry: RetrySettings{
			MaxRetries:      retry.MaxRetries,
			BaseDelay:       retry.BaseDelay,
			MaxDelay:        retry.MaxDelay,
			ExponentialBase: retry.ExponentialBase,
			Jitter:          retry.Jitter,
		},
		Client: ClientSettings{
			ConnectTimeout: client.ConnectTimeout,
			RequestTimeout: client.RequestTimeout,
		},
		State: StateSettings{
			Backend: "memory",
			Redis: RedisSettings{
				Addr:      redis.Addr,
				KeyPrefix: redis.KeyPrefix,
				TTL:       redis.TTL,
			},
		},
	}
}

// Load reads the configuration file at path, layering it over the defaults.
// Environment variables prefixed with SAGAFLOW_ override file values, e.g.
// SAGAFLOW_BREAKER_FAILURE_THRESHOLD.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("sagaflow")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers the default values with viper.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("breaker.failure_threshold", d.Breaker.FailureThreshold)
	v.SetDefault("breaker.success_threshold", d.Breaker.SuccessThreshold)
	v.SetDefault("breaker.open_timeout", d.Breaker.OpenTimeout)
	v.SetDefault("breaker.window_size", d.Breaker.WindowSize)

	v.SetDefault("retry.max_retries", d.Retry.MaxRetries)
	v.SetDefault("retry.base_delay", d.Retry.BaseDelay)
	v.SetDefault("retry.max_delay", d.Retry.MaxDelay)
	v.SetDefault("retry.exponential_base", d.Retry.ExponentialBase)
	v.SetDefault("retry.jitter", d.Retry.Jitter)

	v.SetDefault("client.connect_timeout", d.Client.ConnectTimeout)
	v.SetDefault("client.request_timeout", d.Client.RequestTimeout)

	v.SetDefault("state.backend", d.State.Backend)
	v.SetDefault("state.redis.addr", d.State.Redis.Addr)
	v.SetDefault("state.redis.key_prefix", d.State.Redis.KeyPrefix)
	v.SetDefault("state.redis.ttl", d.State.Redis.TTL)
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	bc := c.BreakerConfig()
	if err := bc.Validate(); err != nil {
		return err
	}
	rp := c.RetryPolicy()
	if err := rp.Validate(); err != nil {
		return err
	}
	cc := c.ClientConfig()
	if err := cc.Validate(); err != nil {
		return err
	}
	if c.State.Backend != "memory" && c.State.Backend != "redis" {
		return fmt.Errorf("unknown state backend %q", c.State.Backend)
	}
	return nil
}

// BreakerConfig converts the settings into a resilience breaker config.
func (c *Config) BreakerConfig() resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold: c.Breaker.FailureThreshold,
		SuccessThreshold: c.Breaker.SuccessThreshold,
		OpenTimeout:      c.Breaker.OpenTimeout,
		WindowSize:       c.Breaker.WindowSize,
	}
}

// RetryPolicy converts the settings into a resilience retry policy.
func (c *Config) RetryPolicy() resilience.RetryPolicy {
	policy := resilience.RetryPolicy{
		MaxRetries:      c.Retry.MaxRetries,
		BaseDelay:       c.Retry.BaseDelay,
		MaxDelay:        c.Retry.MaxDelay,
		ExponentialBase: c.Retry.ExponentialBase,
		Jitter:          c.Retry.Jitter,
	}
	if len(c.Retry.TransientStatusCodes) > 0 {
		policy.Classifier = resilience.NewTransientStatusClassifier(c.Retry.TransientStatusCodes)
	}
	return policy
}

// ClientConfig converts the settings into a resilient client config.
func (c *Config) ClientConfig() resilience.ClientConfig {
	return resilience.ClientConfig{
		ConnectTimeout: c.Client.ConnectTimeout,
		RequestTimeout: c.Client.RequestTimeout,
		RetryPolicy:    c.RetryPolicy(),
	}
}

// RedisConfig converts the settings into a state recorder Redis config.
func (c *Config) RedisConfig() state.RedisConfig {
	return state.RedisConfig{
		Addr:      c.State.Redis.Addr,
		Password:  c.State.Redis.Password,
		DB:        c.State.Redis.DB,
		KeyPrefix: c.State.Redis.KeyPrefix,
		TTL:       c.State.Redis.TTL,
	}
}
