/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/budzeciak/rpc-proxy/config"
	"github.com/budzeciak/rpc-proxy/httpclient"
	"github.com/budzeciak/rpc-proxy/log"
	"github.com/budzeciak/rpc-proxy/lrucache"
	"github.com/budzeciak/rpc-proxy/retry"
)

// DefaultRESTStoreTimeout limits a single command sent to the REST counter store.
const DefaultRESTStoreTimeout = 5 * time.Second

// StoreOpts represents options for NewCounterStore.
type StoreOpts struct {
	// HTTPClientConfig configures the client of the REST store.
	// By default logging is limited to failed commands and the timeout is DefaultRESTStoreTimeout.
	HTTPClientConfig *httpclient.Config

	// HTTPClientOpts are passed to httpclient.NewWithOpts for the REST store.
	// AuthProvider is always replaced by the configured token.
	HTTPClientOpts httpclient.Opts

	// Clock and CacheMetrics are used by the memory store.
	Clock        clockwork.Clock
	CacheMetrics lrucache.MetricsCollector

	Logger log.FieldLogger
}

// UnknownStoreSchemeError is returned when the counter store URL has a scheme that no store speaks.
type UnknownStoreSchemeError struct {
	Scheme string
}

func (e *UnknownStoreSchemeError) Error() string {
	return fmt.Sprintf("unsupported counter store url scheme %q, expected http, https, redis or rediss", e.Scheme)
}

// NewCounterStore picks the counter store for the configuration.
// With both URL and token set, the URL scheme selects the REST (http, https) or Redis (redis, rediss) store;
// otherwise the process-local memory store is used.
func NewCounterStore(cfg *StoreConfig, opts StoreOpts) (CounterStore, StoreKind, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}

	if !cfg.Remote() {
		if cfg.URL != "" || cfg.Token != "" {
			logger.Warn("counter store needs both url and token, the other one is missing")
		}
		logger.Warn("shared counter store is not configured, limits are enforced per process",
			log.Int("max_keys", cfg.MaxKeys))
		store, err := NewMemoryStore(cfg.MaxKeys, MemoryStoreOpts{Clock: opts.Clock, MetricsCollector: opts.CacheMetrics})
		if err != nil {
			return nil, "", err
		}
		return store, StoreKindMemory, nil
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, "", config.WrapKeyErr(cfgStoreKeyPrefix+"."+cfgKeyStoreURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		httpCfg := opts.HTTPClientConfig
		if httpCfg == nil {
			httpCfg = httpclient.NewDefaultConfig()
			httpCfg.Timeout = config.TimeDuration(DefaultRESTStoreTimeout)
			httpCfg.Logger.Mode = httpclient.LoggingModeFailed
		}
		clientOpts := opts.HTTPClientOpts
		clientOpts.AuthProvider = httpclient.StaticTokenProvider(cfg.Token)
		if clientOpts.RequestType == "" {
			clientOpts.RequestType = "counter_store"
		}
		if clientOpts.LoggerProvider == nil {
			clientOpts.LoggerProvider = func(context.Context) log.FieldLogger { return logger }
		}
		logger.Info("using REST counter store", log.String("host", u.Host))
		return NewRESTStore(cfg.URL, httpclient.NewWithOpts(httpCfg, clientOpts)), StoreKindREST, nil

	case "redis", "rediss":
		store, err := NewRedisStore(cfg.URL, cfg.Token)
		if err != nil {
			return nil, "", err
		}
		logger.Info("using Redis counter store", log.String("host", u.Host))
		return store, StoreKindRedis, nil
	}
	return nil, "", &UnknownStoreSchemeError{Scheme: u.Scheme}
}

// Startup ping policy.
const (
	pingAttempts        = 3
	pingInitialInterval = 200 * time.Millisecond
)

// PingStore checks that the store is reachable, retrying with exponential backoff.
func PingStore(ctx context.Context, store CounterStore, logger log.FieldLogger) error {
	policy := retry.Policy{MaxAttempts: pingAttempts, InitialInterval: pingInitialInterval}
	return retry.Do(ctx, policy, store.Ping, retry.Opts{
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn("counter store ping failed, retrying", log.Error(err),
				log.Int("attempt", attempt), log.Duration("retry_in", delay))
		},
	})
}

// NewLimiter creates a limiter implementing alg for the rate.
// Only the fixed window limiter uses the store; the other algorithms keep their state in process memory.
func NewLimiter(alg Alg, store CounterStore, rate Rate, maxKeys int) (Limiter, error) {
	switch alg {
	case AlgFixedWindow, "":
		return NewFixedWindowLimiter(store, rate)
	case AlgSlidingWindow:
		return NewSlidingWindowLimiter(rate, maxKeys)
	case AlgLeakyBucket:
		return NewLeakyBucketLimiter(rate, maxKeys)
	}
	return nil, fmt.Errorf("unknown rate limiting algorithm %q", alg)
}

// NewAdmitterFromConfig creates an Admitter with the default limiter and the per-operation limiters of cfg.
func NewAdmitterFromConfig(
	cfg *Config, store CounterStore, maxKeys int, opts AdmitterOpts,
) (*Admitter, error) {
	defaultLimiter, err := NewLimiter(cfg.Alg, store, cfg.Rate(), maxKeys)
	if err != nil {
		return nil, err
	}
	opts.FailOpen = cfg.FailOpen
	opts.ExcludedIdentities = cfg.ExcludedIdentities
	opts.Operations = make(map[string]OperationLimiter, len(cfg.Operations))
	opts.OperationPatterns = nil
	for _, op := range cfg.Operations {
		rate := cfg.OperationRate(op)
		limiter, err := NewLimiter(cfg.Alg, store, rate, maxKeys)
		if err != nil {
			return nil, fmt.Errorf("operation %s: %w", op.Name, err)
		}
		if op.IsPattern() {
			opts.OperationPatterns = append(opts.OperationPatterns, OperationPatternLimiter{
				Pattern: op.Name, OperationLimiter: OperationLimiter{Limiter: limiter, Rate: rate}})
			continue
		}
		opts.Operations[op.Name] = OperationLimiter{Limiter: limiter, Rate: rate}
	}
	return NewAdmitter(defaultLimiter, cfg.Rate(), opts), nil
}
