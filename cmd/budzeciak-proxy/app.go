/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/budzeciak/rpc-proxy/config"
	"github.com/budzeciak/rpc-proxy/httpclient"
	"github.com/budzeciak/rpc-proxy/httpserver"
	"github.com/budzeciak/rpc-proxy/internal/appinfo"
	"github.com/budzeciak/rpc-proxy/internal/ratelimit"
	"github.com/budzeciak/rpc-proxy/internal/rpcproxy"
	"github.com/budzeciak/rpc-proxy/log"
	"github.com/budzeciak/rpc-proxy/lrucache"
	"github.com/budzeciak/rpc-proxy/profserver"
	"github.com/budzeciak/rpc-proxy/restapi"
	"github.com/budzeciak/rpc-proxy/service"
)

const metricsNamespace = "budzeciak"

const (
	storeMonitorInterval   = 30 * time.Second
	storeCleanupInterval   = time.Minute
	startupPingTimeout     = 5 * time.Second
	healthCheckPingTimeout = 2 * time.Second
	workerStopTimeout      = 5 * time.Second
)

// HealthCheck component names.
const componentCounterStore = "counter_store"

type appConfig struct {
	Log       *log.Config
	Server    *httpserver.Config
	RateLimit *ratelimit.Config
	Store     *ratelimit.StoreConfig
	Backend   *rpcproxy.BackendConfig
	Upstream  *httpclient.Config
	CORS      *rpcproxy.CORSConfig
	Prof      *profserver.Config
}

func newAppConfig() *appConfig {
	return &appConfig{
		Log:       log.NewConfig(),
		Server:    httpserver.NewConfig(),
		RateLimit: ratelimit.NewConfig(),
		Store:     ratelimit.NewStoreConfig(),
		Backend:   rpcproxy.NewBackendConfig(),
		Upstream:  httpclient.NewConfigWithKeyPrefix("upstream"),
		CORS:      rpcproxy.NewCORSConfig(),
		Prof:      profserver.NewConfig(),
	}
}

func (c *appConfig) sections() []config.Config {
	return []config.Config{c.Server, c.RateLimit, c.Store, c.Backend, c.Upstream, c.CORS, c.Prof}
}

// loadConfig reads the configuration from defaults, the optional file and the environment.
func loadConfig(path string) (*appConfig, error) {
	cfg := newAppConfig()
	loader := config.NewDefaultLoader("")
	if path == "" {
		if err := loader.Load(cfg.Log, cfg.sections()...); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	dataType := config.DataTypeYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dataType = config.DataTypeJSON
	}
	if err := loader.LoadFromFile(path, dataType, cfg.Log, cfg.sections()...); err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}
	return cfg, nil
}

func run(cfgPath string) (err error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()
	logger.Info("starting "+appinfo.Name, log.String("version", appinfo.Version()))

	app, err := newApplication(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", log.Error(err))
		return err
	}
	defer func() {
		if closeErr := app.store.Close(); closeErr != nil {
			logger.Error("failed to close counter store", log.Error(closeErr))
			err = multierr.Append(err, closeErr)
		}
	}()

	return service.New(logger, app.unit).Start()
}

// application is the wired proxy: a composite unit of the HTTP server and background workers.
type application struct {
	unit   *service.CompositeUnit
	server *httpserver.HTTPServer
	store  ratelimit.CounterStore
}

func newApplication(cfg *appConfig, logger log.FieldLogger) (*application, error) {
	cacheMetrics := lrucache.NewPrometheusMetricsWithOpts(lrucache.PrometheusMetricsOpts{
		Namespace:   metricsNamespace,
		ConstLabels: prometheus.Labels{"cache": "counter_store"},
	})
	store, storeKind, err := ratelimit.NewCounterStore(cfg.Store, ratelimit.StoreOpts{CacheMetrics: cacheMetrics, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("create counter store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), startupPingTimeout)
	defer cancel()
	if pingErr := ratelimit.PingStore(pingCtx, store, logger); pingErr != nil {
		logger.Warn("counter store is unreachable at startup", log.Error(pingErr),
			log.String("store", string(storeKind)), log.Bool("fail_open", cfg.RateLimit.FailOpen))
	}

	decisionMetrics := ratelimit.NewPrometheusMetrics(metricsNamespace, storeKind)
	admitter, err := ratelimit.NewAdmitterFromConfig(cfg.RateLimit, store, cfg.Store.MaxKeys,
		ratelimit.AdmitterOpts{Logger: logger, MetricsCollector: decisionMetrics})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}
	logger.Info("rate limiter is configured",
		log.String("alg", string(cfg.RateLimit.Alg)),
		log.Int("limit", cfg.RateLimit.Limit),
		log.Duration("window", time.Duration(cfg.RateLimit.Window)),
		log.Int("operation_overrides", len(cfg.RateLimit.Operations)),
		log.Strings("excluded_identities", cfg.RateLimit.ExcludedIdentities),
		log.Bool("fail_open", cfg.RateLimit.FailOpen))

	if !cfg.Backend.Configured() {
		logger.Warn("backend is not configured, calls will be answered with server_misconfigured",
			log.Bool("has_url", cfg.Backend.URL != ""), log.Bool("has_anon_key", cfg.Backend.AnonKey != ""))
	}

	clientMetrics := httpclient.NewPrometheusMetricsCollector(metricsNamespace)
	upstreamClient := httpclient.NewWithOpts(cfg.Upstream, httpclient.Opts{
		UserAgent:   appinfo.UserAgent(),
		RequestType: "backend_rpc",
		Collector:   clientMetrics,
	})
	proxyHandler := rpcproxy.NewProxyHandler(cfg.Backend, admitter, rpcproxy.NewForwarder(cfg.Backend, upstreamClient),
		rpcproxy.ProxyHandlerOpts{AllowOrigin: cfg.CORS.AllowOrigin, Logger: logger})
	healthHandler := rpcproxy.NewHealthHandler(cfg.Backend, cfg.CORS.AllowOrigin)

	server := httpserver.New(cfg.Server, logger, httpserver.Opts{
		APIRoutes: []httpserver.APIRoute{func(r chi.Router) {
			r.Handle("/rpc", proxyHandler)
			r.Handle("/health", healthHandler)
		}},
		HealthCheck:      newStoreHealthCheck(store),
		MetricsNamespace: metricsNamespace,
	})

	monitor := ratelimit.NewStoreMonitor(store, storeKind, metricsNamespace, logger)
	monitorWorker := service.NewPeriodicWorkerWithOpts(monitor, storeMonitorInterval, logger,
		service.PeriodicWorkerOpts{Name: "counter_store_monitor", InitialDelay: storeMonitorInterval})
	metrics := &appMetrics{
		monitor:   monitor,
		cache:     cacheMetrics,
		decisions: decisionMetrics,
		client:    clientMetrics,
		buildInfo: appinfo.NewBuildInfoGauge(metricsNamespace),
	}
	units := []service.Unit{
		server,
		service.NewWorkerUnitWithOpts(monitorWorker, service.WorkerUnitOpts{
			MetricsRegisterer:   metrics,
			GracefulStopTimeout: workerStopTimeout,
		}),
	}
	if memStore, ok := store.(*ratelimit.MemoryStore); ok {
		cleanup := service.WorkerFunc(func(ctx context.Context) error {
			memStore.RunPeriodicCleanup(ctx, storeCleanupInterval)
			return nil
		})
		units = append(units, service.NewWorkerUnitWithOpts(cleanup, service.WorkerUnitOpts{GracefulStopTimeout: workerStopTimeout}))
	}
	if cfg.Prof.Enabled {
		units = append(units, profserver.New(cfg.Prof, logger))
		logger.Info("profiling server is enabled", log.String("address", cfg.Prof.Address))
	}

	return &application{unit: service.NewCompositeUnit(units...), server: server, store: store}, nil
}

func newStoreHealthCheck(store ratelimit.CounterStore) httpserver.HealthCheck {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		pingCtx, cancel := context.WithTimeout(ctx, healthCheckPingTimeout)
		defer cancel()
		status := httpserver.HealthCheckStatusOK
		if err := store.Ping(pingCtx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			status = httpserver.HealthCheckStatusFail
		}
		return httpserver.HealthCheckResult{componentCounterStore: status}, nil
	}
}

// appMetrics registers the collectors that are not owned by a unit.
type appMetrics struct {
	monitor   *ratelimit.StoreMonitor
	cache     *lrucache.PrometheusMetrics
	decisions *ratelimit.PrometheusMetrics
	client    *httpclient.PrometheusMetricsCollector
	buildInfo *prometheus.GaugeVec
}

var _ service.MetricsRegisterer = (*appMetrics)(nil)

func (m *appMetrics) MustRegisterMetrics() {
	restapi.MustInitAndRegisterMetrics(metricsNamespace)
	prometheus.MustRegister(m.buildInfo)
	m.monitor.MustRegisterMetrics()
	m.cache.MustRegister()
	m.decisions.MustRegister()
	m.client.MustRegister()
}

func (m *appMetrics) UnregisterMetrics() {
	restapi.UnregisterMetrics()
	prometheus.Unregister(m.buildInfo)
	m.monitor.UnregisterMetrics()
	m.cache.Unregister()
	m.decisions.Unregister()
	m.client.Unregister()
}
