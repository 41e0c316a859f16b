/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"errors"

	"github.com/budzeciak/rpc-proxy/config"
)

// DefaultAddress binds the profiling server to the loopback interface only.
const DefaultAddress = "127.0.0.1:6060"

const (
	cfgDefaultKeyPrefix = "profServer"
	cfgKeyEnabled       = "enabled"
	cfgKeyAddress       = "address"
)

// Config represents a set of configuration parameters for profiling server.
// The server is disabled by default.
type Config struct {
	Enabled bool
	Address string

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)
var _ config.EnvBinder = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{Address: DefaultAddress, keyPrefix: cfgDefaultKeyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// BindEnvVars binds the keys to their environment variables.
func (c *Config) BindEnvVars(dp config.DataProvider) error {
	if err := dp.BindEnv(cfgKeyEnabled, "PROF_SERVER_ENABLED"); err != nil {
		return err
	}
	return dp.BindEnv(cfgKeyAddress, "PROF_SERVER_ADDRESS")
}

// SetProviderDefaults sets default configuration values for profiling server in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyEnabled, false)
	dp.SetDefault(cfgKeyAddress, DefaultAddress)
}

// Set sets profiling server configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error
	if c.Enabled, err = dp.GetBool(cfgKeyEnabled); err != nil {
		return err
	}
	if c.Address, err = dp.GetString(cfgKeyAddress); err != nil {
		return err
	}
	if c.Enabled && c.Address == "" {
		return dp.WrapKeyErr(cfgKeyAddress, errors.New("must not be empty when the server is enabled"))
	}
	return nil
}
