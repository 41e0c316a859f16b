/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/budzeciak/rpc-proxy/config"
)

// Default values.
const (
	DefaultWindow  = 60 * time.Second
	DefaultLimit   = 30
	DefaultMaxKeys = 10000
)

// Alg is a rate limiting algorithm.
type Alg string

// Rate limiting algorithms.
const (
	AlgFixedWindow   Alg = "fixedWindow"
	AlgSlidingWindow Alg = "slidingWindow"
	AlgLeakyBucket   Alg = "leakyBucket"
)

var availableAlgs = []string{string(AlgFixedWindow), string(AlgSlidingWindow), string(AlgLeakyBucket)}

// Operation names in overrides may contain "*" wildcards.
var operationNameRegexp = regexp.MustCompile(`^[A-Za-z0-9_*]+$`)

const (
	cfgKeyPrefix      = "rateLimit"
	cfgKeyWindow      = "window"
	cfgKeyLimit       = "limit"
	cfgKeyFailOpen    = "failOpen"
	cfgKeyAlg         = "alg"
	cfgKeyOperations  = "operations"
	cfgKeyExcludedIDs = "excludedIdentities"

	cfgStoreKeyPrefix = "counterStore"
	cfgKeyStoreURL    = "url"
	cfgKeyStoreToken  = "token"
	cfgKeyStoreMaxKey = "maxKeys"
)

// OperationConfig overrides the limit (and optionally the window) of a single operation.
type OperationConfig struct {
	Name   string              `mapstructure:"name"`
	Limit  int                 `mapstructure:"limit"`
	Window config.TimeDuration `mapstructure:"window"`
}

// IsPattern reports whether Name is a glob pattern matching several operations.
func (op OperationConfig) IsPattern() bool {
	return strings.Contains(op.Name, "*")
}

// Config represents the rate limiting configuration.
type Config struct {
	Window     config.TimeDuration
	Limit      int
	FailOpen   bool
	Alg        Alg
	Operations []OperationConfig

	// ExcludedIdentities are glob patterns of client identities that bypass the limit ("10.0.*", "monitoring-*").
	ExcludedIdentities []string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)
var _ config.EnvBinder = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return cfgKeyPrefix
}

// BindEnvVars binds the keys to their environment variables.
func (c *Config) BindEnvVars(dp config.DataProvider) error {
	bindings := []struct {
		key     string
		envVars []string
	}{
		{cfgKeyWindow, []string{"RATE_LIMIT_WINDOW_SECONDS", "RATE_LIMIT_WINDOW"}},
		{cfgKeyLimit, []string{"RATE_LIMIT_MAX", "RATE_LIMIT_LIMIT"}},
		{cfgKeyFailOpen, []string{"RATE_LIMIT_FAIL_OPEN"}},
		{cfgKeyAlg, []string{"RATE_LIMIT_ALG"}},
		{cfgKeyExcludedIDs, []string{"RATE_LIMIT_EXCLUDED_IDENTITIES"}},
	}
	for _, b := range bindings {
		if err := dp.BindEnv(b.key, b.envVars...); err != nil {
			return err
		}
	}
	return nil
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyWindow, int(DefaultWindow/time.Second))
	dp.SetDefault(cfgKeyLimit, DefaultLimit)
	dp.SetDefault(cfgKeyFailOpen, true)
	dp.SetDefault(cfgKeyAlg, string(AlgFixedWindow))
}

// Set sets the configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Window, err = config.GetTimeDuration(dp, cfgKeyWindow); err != nil {
		return err
	}
	if c.Window < config.TimeDuration(time.Second) {
		return dp.WrapKeyErr(cfgKeyWindow, errors.New("must be at least 1 second"))
	}

	if c.Limit, err = dp.GetInt(cfgKeyLimit); err != nil {
		return err
	}
	if c.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyLimit, errors.New("must be positive"))
	}

	if c.FailOpen, err = dp.GetBool(cfgKeyFailOpen); err != nil {
		return err
	}

	alg, err := dp.GetStringFromSet(cfgKeyAlg, availableAlgs, true)
	if err != nil {
		return err
	}
	c.Alg = Alg(alg)

	if err = dp.UnmarshalKey(cfgKeyOperations, &c.Operations, config.WithTimeDurations()); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Operations))
	for i, op := range c.Operations {
		key := fmt.Sprintf("%s[%d]", cfgKeyOperations, i)
		if !operationNameRegexp.MatchString(op.Name) {
			return dp.WrapKeyErr(key, fmt.Errorf("invalid operation name %q", op.Name))
		}
		if seen[op.Name] {
			return dp.WrapKeyErr(key, fmt.Errorf("duplicate operation %q", op.Name))
		}
		seen[op.Name] = true
		if op.Limit <= 0 {
			return dp.WrapKeyErr(key+".limit", errors.New("must be positive"))
		}
		if op.Window != 0 && op.Window < config.TimeDuration(time.Second) {
			return dp.WrapKeyErr(key+".window", errors.New("must be at least 1 second"))
		}
	}

	c.ExcludedIdentities = nil
	if err = dp.UnmarshalKey(cfgKeyExcludedIDs, &c.ExcludedIdentities); err != nil {
		return err
	}
	for i, pattern := range c.ExcludedIdentities {
		if strings.TrimSpace(pattern) == "" {
			return dp.WrapKeyErr(fmt.Sprintf("%s[%d]", cfgKeyExcludedIDs, i), errors.New("must not be empty"))
		}
	}
	return nil
}

// Rate returns the default rate.
func (c *Config) Rate() Rate {
	return Rate{Count: c.Limit, Duration: time.Duration(c.Window)}
}

// OperationRate returns the rate of an overridden operation.
// A zero window means the default one.
func (c *Config) OperationRate(op OperationConfig) Rate {
	window := op.Window
	if window == 0 {
		window = c.Window
	}
	return Rate{Count: op.Limit, Duration: time.Duration(window)}
}

// StoreConfig represents the counter store configuration.
type StoreConfig struct {
	URL     string
	Token   string
	MaxKeys int
}

var _ config.Config = (*StoreConfig)(nil)
var _ config.KeyPrefixProvider = (*StoreConfig)(nil)
var _ config.EnvBinder = (*StoreConfig)(nil)

// NewStoreConfig creates a new instance of the StoreConfig.
func NewStoreConfig() *StoreConfig {
	return &StoreConfig{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *StoreConfig) KeyPrefix() string {
	return cfgStoreKeyPrefix
}

// BindEnvVars binds the keys to their environment variables.
func (c *StoreConfig) BindEnvVars(dp config.DataProvider) error {
	if err := dp.BindEnv(cfgKeyStoreURL, "UPSTASH_REDIS_REST_URL", "COUNTER_STORE_URL"); err != nil {
		return err
	}
	if err := dp.BindEnv(cfgKeyStoreToken, "UPSTASH_REDIS_REST_TOKEN", "COUNTER_STORE_TOKEN"); err != nil {
		return err
	}
	return dp.BindEnv(cfgKeyStoreMaxKey, "COUNTER_STORE_MAX_KEYS")
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *StoreConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyStoreMaxKey, DefaultMaxKeys)
}

// Set sets the configuration values from config.DataProvider.
func (c *StoreConfig) Set(dp config.DataProvider) error {
	var err error
	if c.URL, err = dp.GetString(cfgKeyStoreURL); err != nil {
		return err
	}
	if c.Token, err = dp.GetString(cfgKeyStoreToken); err != nil {
		return err
	}
	if c.MaxKeys, err = dp.GetInt(cfgKeyStoreMaxKey); err != nil {
		return err
	}
	if c.MaxKeys <= 0 {
		return dp.WrapKeyErr(cfgKeyStoreMaxKey, errors.New("must be positive"))
	}
	return nil
}

// Remote reports whether a shared counter store is configured.
func (c *StoreConfig) Remote() bool {
	return c.URL != "" && c.Token != ""
}
