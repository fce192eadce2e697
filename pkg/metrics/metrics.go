// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-cryptoki.
//
// go-cryptoki is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for cryptoki
// operations: per-operation counters, latency histograms and session
// gauges keyed by slot.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all cryptoki metrics.
	Namespace = "cryptoki"

	LabelOperation = "operation"
	LabelSlot      = "slot"
	LabelStatus    = "status"
	LabelErrorType = "error_type"

	StatusSuccess = "success"
	StatusError   = "error"

	OpSign        = "sign"
	OpVerify      = "verify"
	OpEncrypt     = "encrypt"
	OpDecrypt     = "decrypt"
	OpDigest      = "digest"
	OpGenerate    = "generate"
	OpWrap        = "wrap"
	OpUnwrap      = "unwrap"
	OpDerive      = "derive"
	OpEncapsulate = "encapsulate"
	OpDecapsulate = "decapsulate"
	OpRandom      = "random"
)

var (
	// OperationsTotal tracks completed crypto operations by type, slot
	// and status. Use RecordOperation to increment with the right labels.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of crypto operations by type, slot, and status",
		},
		[]string{LabelOperation, LabelSlot, LabelStatus},
	)

	// OperationDuration tracks operation latency in seconds. Buckets are
	// sized for in-process software crypto.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of crypto operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{LabelOperation, LabelSlot},
	)

	// ErrorsTotal tracks errors by operation, slot and error type. Error
	// types are the short sentinel names, e.g. "mechanism_invalid".
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by operation, slot, and error type",
		},
		[]string{LabelOperation, LabelSlot, LabelErrorType},
	)

	// SessionsActive tracks the number of open sessions per slot.
	SessionsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "sessions_active",
			Help:      "Number of open sessions per slot",
		},
		[]string{LabelSlot},
	)

	// LoginFailuresTotal tracks failed PIN verifications per slot.
	LoginFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "login_failures_total",
			Help:      "Total number of failed PIN verifications per slot",
		},
		[]string{LabelSlot},
	)

	// ObjectsTotal tracks the number of live objects per slot.
	ObjectsTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "objects_total",
			Help:      "Number of live objects per slot",
		},
		[]string{LabelSlot},
	)

	enabled atomic.Bool
)

func init() {
	enabled.Store(true)
}

// RecordOperation records a completed crypto operation with its duration
// and status.
func RecordOperation(operation, slot, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	OperationsTotal.WithLabelValues(operation, slot, status).Inc()
	OperationDuration.WithLabelValues(operation, slot).Observe(duration)
}

// RecordError records an error event for an operation on a slot.
func RecordError(operation, slot, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(operation, slot, errorType).Inc()
}

// RecordLoginFailure records a failed PIN verification on a slot.
func RecordLoginFailure(slot string) {
	if !enabled.Load() {
		return
	}
	LoginFailuresTotal.WithLabelValues(slot).Inc()
}

// SetSessionsActive sets the open-session gauge for a slot.
func SetSessionsActive(slot string, count float64) {
	if !enabled.Load() {
		return
	}
	SessionsActive.WithLabelValues(slot).Set(count)
}

// SetObjectsTotal sets the live-object gauge for a slot.
func SetObjectsTotal(slot string, count float64) {
	if !enabled.Load() {
		return
	}
	ObjectsTotal.WithLabelValues(slot).Set(count)
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection. Useful for tests.
func Disable() {
	enabled.Store(false)
}

// IsEnabled reports whether metrics collection is enabled.
func IsEnabled() bool {
	return enabled.Load()
}
