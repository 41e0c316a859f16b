/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads the proxy configuration from an optional file and from environment variables.
package config

// Config is a common interface for configuration objects that may be used by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is an interface for providing key prefix that will be used for configuration parameters.
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// EnvBinder is implemented by configuration objects that read some of their values
// from environment variables with names that do not follow the key naming scheme
// (e.g. SUPABASE_URL for "backend.url").
type EnvBinder interface {
	BindEnvVars(dp DataProvider) error
}

func dataProviderFor(dp DataProvider, cfg interface{}) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}
