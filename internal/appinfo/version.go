/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package appinfo provides the build version of the proxy.
package appinfo

import (
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Name is the short name of the application.
const Name = "budzeciak-proxy"

const defaultVersion = "v0.0.0"

// version may be set at link time:
//
//	go build -ldflags "-X github.com/budzeciak/rpc-proxy/internal/appinfo.version=v1.2.3"
var version string

var (
	resolvedVersion     string
	resolvedVersionOnce sync.Once
)

// Version returns the application version.
func Version() string {
	resolvedVersionOnce.Do(func() {
		resolvedVersion = version
		if resolvedVersion == "" {
			if buildInfo, ok := debug.ReadBuildInfo(); ok {
				resolvedVersion = extractVersion(buildInfo)
			}
		}
		if resolvedVersion == "" {
			resolvedVersion = defaultVersion
		}
	})
	return resolvedVersion
}

// UserAgent returns the User-Agent sent with outgoing requests.
func UserAgent() string {
	return Name + "/" + Version()
}

// extractVersion returns the version of the main module, or "" for a local (devel) build.
func extractVersion(buildInfo *debug.BuildInfo) string {
	if buildInfo == nil {
		return ""
	}
	if v := buildInfo.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	return ""
}

// NewBuildInfoGauge creates a gauge that is always 1 and carries the version as a label.
func NewBuildInfoGauge(namespace string) *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information of the running proxy.",
	}, []string{"version"})
	g.WithLabelValues(Version()).Set(1)
	return g
}
