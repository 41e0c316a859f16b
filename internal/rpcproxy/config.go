/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package rpcproxy

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/budzeciak/rpc-proxy/config"
)

// Environment variables reported in "server_misconfigured" responses.
const (
	EnvBackendURL     = "SUPABASE_URL"
	EnvBackendAnonKey = "SUPABASE_ANON_KEY"
)

// DefaultRPCPath is the path of the backend RPC endpoint, relative to the backend URL.
const DefaultRPCPath = "/rpc"

// DefaultAllowOrigin is the default value of the Access-Control-Allow-Origin header.
const DefaultAllowOrigin = "*"

const (
	cfgBackendKeyPrefix     = "backend"
	cfgKeyBackendURL        = "url"
	cfgKeyBackendAnonKey    = "anonKey"
	cfgKeyBackendServiceKey = "serviceRoleKey"
	cfgKeyBackendRPCPath    = "rpcPath"

	cfgCORSKeyPrefix      = "cors"
	cfgKeyCORSAllowOrigin = "allowOrigin"
)

// BackendConfig represents the configuration of the backend the calls are forwarded to.
// Missing URL or anon key is not an error at load time: the proxy starts and answers
// "server_misconfigured" until an operator fixes it.
type BackendConfig struct {
	URL            string
	AnonKey        string
	ServiceRoleKey string
	RPCPath        string

	// URLFrom and AnonKeyFrom name the source of URL and AnonKey:
	// an environment variable, config.SourceFile or "" when the value is not set.
	URLFrom     string
	AnonKeyFrom string
}

var _ config.Config = (*BackendConfig)(nil)
var _ config.KeyPrefixProvider = (*BackendConfig)(nil)
var _ config.EnvBinder = (*BackendConfig)(nil)

// NewBackendConfig creates a new instance of the BackendConfig.
func NewBackendConfig() *BackendConfig {
	return &BackendConfig{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *BackendConfig) KeyPrefix() string {
	return cfgBackendKeyPrefix
}

// BindEnvVars binds the keys to their environment variables.
// Names used by the web app build (VITE_*) are accepted as fallbacks.
func (c *BackendConfig) BindEnvVars(dp config.DataProvider) error {
	if err := dp.BindEnv(cfgKeyBackendURL, EnvBackendURL, "VITE_SUPABASE_URL"); err != nil {
		return err
	}
	if err := dp.BindEnv(cfgKeyBackendAnonKey, EnvBackendAnonKey, "VITE_SUPABASE_ANON_KEY"); err != nil {
		return err
	}
	if err := dp.BindEnv(cfgKeyBackendServiceKey, "SUPABASE_SERVICE_ROLE_KEY"); err != nil {
		return err
	}
	return dp.BindEnv(cfgKeyBackendRPCPath, "BACKEND_RPC_PATH")
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *BackendConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyBackendRPCPath, DefaultRPCPath)
}

// Set sets the configuration values from config.DataProvider.
func (c *BackendConfig) Set(dp config.DataProvider) error {
	var err error
	if c.URL, err = dp.GetString(cfgKeyBackendURL); err != nil {
		return err
	}
	c.URL = strings.TrimRight(strings.TrimSpace(c.URL), "/")
	if c.URL != "" {
		u, parseErr := url.Parse(c.URL)
		if parseErr != nil {
			return dp.WrapKeyErr(cfgKeyBackendURL, parseErr)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return dp.WrapKeyErr(cfgKeyBackendURL, fmt.Errorf("unsupported scheme %q, expected http or https", u.Scheme))
		}
		c.URLFrom = dp.Source(cfgKeyBackendURL)
	}

	if c.AnonKey, err = dp.GetString(cfgKeyBackendAnonKey); err != nil {
		return err
	}
	c.AnonKey = strings.TrimSpace(c.AnonKey)
	if c.AnonKey != "" {
		c.AnonKeyFrom = dp.Source(cfgKeyBackendAnonKey)
	}

	if c.ServiceRoleKey, err = dp.GetString(cfgKeyBackendServiceKey); err != nil {
		return err
	}

	if c.RPCPath, err = dp.GetString(cfgKeyBackendRPCPath); err != nil {
		return err
	}
	if !strings.HasPrefix(c.RPCPath, "/") {
		return dp.WrapKeyErr(cfgKeyBackendRPCPath, errors.New(`must start with "/"`))
	}
	c.RPCPath = strings.TrimRight(c.RPCPath, "/")
	return nil
}

// Configured reports whether calls can be forwarded.
func (c *BackendConfig) Configured() bool {
	return c.URL != "" && c.AnonKey != ""
}

// Missing reports which required settings are absent, by their environment variable names.
func (c *BackendConfig) Missing() map[string]bool {
	return map[string]bool{
		EnvBackendURL:     c.URL == "",
		EnvBackendAnonKey: c.AnonKey == "",
	}
}

// CORSConfig represents the CORS settings of the proxy and health endpoints.
type CORSConfig struct {
	AllowOrigin string
}

var _ config.Config = (*CORSConfig)(nil)
var _ config.KeyPrefixProvider = (*CORSConfig)(nil)
var _ config.EnvBinder = (*CORSConfig)(nil)

// NewCORSConfig creates a new instance of the CORSConfig.
func NewCORSConfig() *CORSConfig {
	return &CORSConfig{}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *CORSConfig) KeyPrefix() string {
	return cfgCORSKeyPrefix
}

// BindEnvVars binds the keys to their environment variables.
func (c *CORSConfig) BindEnvVars(dp config.DataProvider) error {
	return dp.BindEnv(cfgKeyCORSAllowOrigin, "CORS_ALLOW_ORIGIN")
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *CORSConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyCORSAllowOrigin, DefaultAllowOrigin)
}

// Set sets the configuration values from config.DataProvider.
func (c *CORSConfig) Set(dp config.DataProvider) error {
	var err error
	if c.AllowOrigin, err = dp.GetString(cfgKeyCORSAllowOrigin); err != nil {
		return err
	}
	if c.AllowOrigin == "" {
		return dp.WrapKeyErr(cfgKeyCORSAllowOrigin, errors.New("must not be empty"))
	}
	return nil
}
