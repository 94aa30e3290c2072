// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for passkey
// ceremony operations. Replay rejections get their own counter so
// operators can alert on them separately from ordinary verification
// failures.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkey metrics.
	Namespace = "passkey"

	// Label names
	LabelCeremony = "ceremony"
	LabelPhase    = "phase"
	LabelStatus   = "status"
	LabelKind     = "kind"

	// Ceremony names
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Phase names
	PhaseBegin  = "begin"
	PhaseFinish = "finish"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Session kinds
	SessionKindLogin        = "login"
	SessionKindImpersonated = "impersonated"
)

var (
	// CeremoniesTotal tracks ceremony phase outcomes.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony phases by ceremony, phase, and status",
		},
		[]string{LabelCeremony, LabelPhase, LabelStatus},
	)

	// CeremonyDuration tracks ceremony phase handling time in seconds.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony phase handling in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{LabelCeremony, LabelPhase},
	)

	// ReplaySuspectedTotal counts authentications rejected because the
	// signature counter did not increase. These indicate cloned
	// authenticators or state desynchronization and warrant alerting.
	ReplaySuspectedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "replay_suspected_total",
			Help:      "Total number of authentications rejected by the anti-replay counter check",
		},
	)

	// SessionsIssuedTotal counts issued session tokens by kind.
	SessionsIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "sessions_issued_total",
			Help:      "Total number of session tokens issued by kind",
		},
		[]string{LabelKind},
	)
)

// RecordCeremony increments the ceremony counter with the given outcome.
func RecordCeremony(ceremony, phase string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	CeremoniesTotal.WithLabelValues(ceremony, phase, status).Inc()
}

// ObserveCeremonyDuration records how long a ceremony phase took.
func ObserveCeremonyDuration(ceremony, phase string, start time.Time) {
	CeremonyDuration.WithLabelValues(ceremony, phase).Observe(time.Since(start).Seconds())
}

// RecordReplaySuspected increments the replay rejection counter.
func RecordReplaySuspected() {
	ReplaySuspectedTotal.Inc()
}

// RecordSessionIssued increments the issued session counter.
func RecordSessionIssued(kind string) {
	SessionsIssuedTotal.WithLabelValues(kind).Inc()
}
