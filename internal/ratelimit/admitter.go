/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/budzeciak/rpc-proxy/httpserver/middleware"
	"github.com/budzeciak/rpc-proxy/log"
)

// ErrStoreUnavailable is returned by Admitter.Admit in fail-closed mode when the limiter fails.
var ErrStoreUnavailable = errors.New("rate limiter store is unavailable")

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	Limit      int
}

// RetryAfterSeconds returns the retry hint in whole seconds, rounded up.
// It is at least 1 for a rejected call and 0 for an admitted one.
func (d Decision) RetryAfterSeconds() int {
	if d.Allowed {
		return 0
	}
	secs := int(math.Ceil(d.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// OperationLimiter is a limiter applied to a single operation instead of the default one.
type OperationLimiter struct {
	Limiter Limiter
	Rate    Rate
}

// OperationPatternLimiter applies a limiter to every operation whose name matches a glob pattern ("get*").
// Each matching operation is still counted under its own key.
type OperationPatternLimiter struct {
	Pattern string
	OperationLimiter
}

type compiledPatternLimiter struct {
	match   func(string) bool
	limiter OperationLimiter
}

// AdmitterOpts represents options for Admitter.
type AdmitterOpts struct {
	// FailOpen makes Admit admit the call when the limiter fails.
	FailOpen bool

	// Operations maps an operation name to its own limiter.
	Operations map[string]OperationLimiter

	// OperationPatterns are tried in order when Operations has no exact entry for the operation.
	OperationPatterns []OperationPatternLimiter

	// ExcludedIdentities are glob patterns of client identities that are never limited nor counted.
	ExcludedIdentities []string

	// Logger is used when the context carries no request-scoped logger.
	Logger log.FieldLogger

	MetricsCollector MetricsCollector
}

// Admitter decides whether a call of an operation made by a client may proceed.
type Admitter struct {
	defaultLimiter OperationLimiter
	operations     map[string]OperationLimiter
	patterns       []compiledPatternLimiter
	excluded       []func(string) bool
	failOpen       bool
	logger         log.FieldLogger
	metrics        MetricsCollector
}

// NewAdmitter creates a new Admitter.
func NewAdmitter(limiter Limiter, rate Rate, opts AdmitterOpts) *Admitter {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	var metrics MetricsCollector = disabledMetrics{}
	if opts.MetricsCollector != nil {
		metrics = opts.MetricsCollector
	}
	patterns := make([]compiledPatternLimiter, 0, len(opts.OperationPatterns))
	for _, p := range opts.OperationPatterns {
		patterns = append(patterns, compiledPatternLimiter{match: glob.Compile(p.Pattern), limiter: p.OperationLimiter})
	}
	excluded := make([]func(string) bool, 0, len(opts.ExcludedIdentities))
	for _, pattern := range opts.ExcludedIdentities {
		excluded = append(excluded, glob.Compile(pattern))
	}
	return &Admitter{
		defaultLimiter: OperationLimiter{Limiter: limiter, Rate: rate},
		operations:     opts.Operations,
		patterns:       patterns,
		excluded:       excluded,
		failOpen:       opts.FailOpen,
		logger:         logger,
		metrics:        metrics,
	}
}

// Admit counts the call of operation by identity and decides whether it may proceed.
// With fail-open a limiter error is logged and the call is admitted; otherwise the error
// wraps ErrStoreUnavailable.
func (a *Admitter) Admit(ctx context.Context, operation, identity string) (Decision, error) {
	opLimiter := a.operationLimiter(operation)
	if a.isExcluded(identity) {
		a.metrics.IncDecisions(DecisionExcluded)
		return Decision{Allowed: true, Limit: opLimiter.Rate.Count}, nil
	}

	allow, retryAfter, err := opLimiter.Limiter.Allow(ctx, MakeKey(operation, identity))
	if err != nil {
		a.metrics.IncDecisions(DecisionStoreError)
		logger := a.getLogger(ctx)
		if a.failOpen {
			logger.Warn("rate limiter failed, call is admitted",
				log.String("rpc", operation), log.Error(err))
			return Decision{Allowed: true, Limit: opLimiter.Rate.Count}, nil
		}
		logger.Error("rate limiter failed, call is rejected",
			log.String("rpc", operation), log.Error(err))
		return Decision{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if !allow {
		a.metrics.IncDecisions(DecisionRejected)
		return Decision{Allowed: false, RetryAfter: retryAfter, Limit: opLimiter.Rate.Count}, nil
	}
	a.metrics.IncDecisions(DecisionAllowed)
	return Decision{Allowed: true, Limit: opLimiter.Rate.Count}, nil
}

func (a *Admitter) operationLimiter(operation string) OperationLimiter {
	if opLimiter, ok := a.operations[operation]; ok {
		return opLimiter
	}
	for i := range a.patterns {
		if a.patterns[i].match(operation) {
			return a.patterns[i].limiter
		}
	}
	return a.defaultLimiter
}

func (a *Admitter) isExcluded(identity string) bool {
	for _, match := range a.excluded {
		if match(identity) {
			return true
		}
	}
	return false
}

func (a *Admitter) getLogger(ctx context.Context) log.FieldLogger {
	if logger := middleware.GetLoggerFromContext(ctx); logger != nil {
		return logger
	}
	return a.logger
}
