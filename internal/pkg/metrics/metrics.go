// Package metrics defines and registers the custom Prometheus metrics of the
// scout-auth service. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics register with the default Prometheus registry on package init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scout_auth"

// ── Login metrics ─────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts by outcome.
// Label:
//   - outcome: "success", "invalid_credentials", "locked", "rate_limited", "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by outcome.",
	},
	[]string{"outcome"},
)

// AccountLockoutsTotal counts transitions into the locked state.
var AccountLockoutsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "account_lockouts_total",
		Help:      "Total number of failed attempts that started a lockout window.",
	},
)

// LoginConflictsTotal counts compare-and-swap conflicts re-evaluated during login.
var LoginConflictsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_conflicts_total",
		Help:      "Total number of concurrent-update conflicts seen while persisting a login result.",
	},
)

// ── Token metrics ─────────────────────────────────────────────────────────────

// TokensIssuedTotal counts minted token pairs.
// Label:
//   - flow: "login", "register", "refresh"
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of token pairs issued, by flow.",
	},
	[]string{"flow"},
)

// TokenRejectionsTotal counts rejected tokens.
// Labels:
//   - type: "access" or "refresh"
//   - reason: "expired", "invalid", "revoked"
var TokenRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_rejections_total",
		Help:      "Total number of rejected tokens, by type and reason.",
	},
	[]string{"type", "reason"},
)

// ── Rate limiter metrics ──────────────────────────────────────────────────────

// RateLimitedTotal counts login attempts rejected by the limiter.
// Label:
//   - scope: the bucket that was full, "addr" or "id"
var RateLimitedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_total",
		Help:      "Total number of login attempts rejected by the rate limiter, by bucket scope.",
	},
	[]string{"scope"},
)

// ── Hashing metrics ───────────────────────────────────────────────────────────

// HashDuration measures bcrypt work, including time spent queued for a worker.
// Label:
//   - op: "hash", "verify", "dummy"
var HashDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "hash_duration_seconds",
		Help:      "Duration of password hashing operations.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"op"},
)

// HashQueueDepth tracks jobs waiting for a hashing worker.
var HashQueueDepth = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hash_queue_depth",
		Help:      "Current number of hashing jobs waiting for a worker.",
	},
)
