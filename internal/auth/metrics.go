// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 tokenward Contributors

package auth

import "github.com/prometheus/client_golang/prometheus"

// Label values for the token metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeNotFound    = "not_found"
	OutcomeExpired     = "expired"
	OutcomeUserMissing = "user_missing"
	OutcomeReused      = "reused"
	OutcomeError       = "error"
	OutcomeLocked      = "locked"
	OutcomeRejected    = "rejected"
)

// TokensIssued counts issued tokens by kind (access, refresh, reset).
var TokensIssued = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenward_tokens_issued_total",
		Help: "Total number of tokens issued by kind",
	},
	[]string{"kind"},
)

// RefreshRotations counts refresh token rotations by outcome.
var RefreshRotations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenward_refresh_rotations_total",
		Help: "Total number of refresh token rotations by outcome",
	},
	[]string{"outcome"},
)

// AccessValidationFailures counts rejected access tokens by internal reason.
var AccessValidationFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenward_access_validation_failures_total",
		Help: "Total number of rejected access tokens by reason",
	},
	[]string{"reason"},
)

// ResetTokenEvents counts password-reset token events (issued, consumed, rejected).
var ResetTokenEvents = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenward_reset_token_events_total",
		Help: "Total number of password reset token events",
	},
	[]string{"event"},
)

// LoginAttempts counts login attempts by outcome.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenward_login_attempts_total",
		Help: "Total number of login attempts by outcome",
	},
	[]string{"outcome"},
)

// SweeperPurged counts records removed by the sweeper by kind.
var SweeperPurged = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenward_sweeper_purged_total",
		Help: "Total number of expired token records removed",
	},
	[]string{"kind"},
)

// SweeperErrors counts failed purges by kind and error code.
var SweeperErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tokenward_sweeper_errors_total",
		Help: "Total number of failed expired token purges",
	},
	[]string{"kind", "code"},
)

// RegisterMetrics registers the auth metrics with the given registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(TokensIssued)
	reg.MustRegister(RefreshRotations)
	reg.MustRegister(AccessValidationFailures)
	reg.MustRegister(ResetTokenEvents)
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(SweeperPurged)
	reg.MustRegister(SweeperErrors)
}
