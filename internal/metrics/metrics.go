// Package metrics exposes the daemon's Prometheus collectors. Collectors
// live on the default registry and are served by the web package at
// /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	modemTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabin_modem_transactions_total",
		Help: "Modem command transactions by command verb and verdict (ok, error, timeout)",
	}, []string{"verb", "verdict"})

	modemTransactionSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cabin_modem_transaction_seconds",
		Help:    "Modem command transaction duration",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
	}, []string{"verb"})

	modemSignal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cabin_modem_signal_dbm",
		Help: "Last signal strength reported by the modem",
	})

	deviceState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cabin_device_state",
		Help: "Current orchestrator state (active=1; others 0)",
	}, []string{"state"})

	captures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabin_captures_total",
		Help: "Image captures by result (saved, failed)",
	}, []string{"result"})

	uploadFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabin_upload_files_total",
		Help: "Files handled by upload cycles by result (sent, failed)",
	}, []string{"result"})

	uploadCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabin_upload_cycles_total",
		Help: "Upload cycles by outcome (complete, partial, interrupted, skipped)",
	}, []string{"outcome"})

	gestures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabin_gestures_total",
		Help: "Recognized button gestures",
	}, []string{"gesture"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabin_notifications_total",
		Help: "Outbound SMS notifications by kind and result",
	}, []string{"kind", "result"})

	telemetryMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cabin_telemetry_messages_total",
		Help: "MQTT telemetry messages by result (published, buffered, dropped)",
	}, []string{"result"})

	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cabin_circuit_breaker_state",
		Help: "Circuit breaker state by component (active=1; others 0)",
	}, []string{"component", "state"})
)

// RecordModemTransaction counts one finished modem transaction.
func RecordModemTransaction(verb, verdict string, d time.Duration) {
	modemTransactions.WithLabelValues(verb, verdict).Inc()
	modemTransactionSeconds.WithLabelValues(verb).Observe(d.Seconds())
}

// SetSignalDBm records the last signal quality reading.
func SetSignalDBm(dbm int) {
	modemSignal.Set(float64(dbm))
}

// SetDeviceState marks state as the active orchestrator state.
func SetDeviceState(states []string, active string) {
	for _, s := range states {
		v := 0.0
		if s == active {
			v = 1.0
		}
		deviceState.WithLabelValues(s).Set(v)
	}
}

// RecordCapture counts a capture attempt.
func RecordCapture(ok bool) {
	if ok {
		captures.WithLabelValues("saved").Inc()
		return
	}
	captures.WithLabelValues("failed").Inc()
}

// RecordUploadCycle counts a finished upload cycle and its file results.
func RecordUploadCycle(outcome string, sent, failed int) {
	uploadCycles.WithLabelValues(outcome).Inc()
	uploadFiles.WithLabelValues("sent").Add(float64(sent))
	uploadFiles.WithLabelValues("failed").Add(float64(failed))
}

// RecordGesture counts a recognized gesture.
func RecordGesture(name string) {
	gestures.WithLabelValues(name).Inc()
}

// RecordNotification counts an SMS notification attempt.
func RecordNotification(kind string, ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	notifications.WithLabelValues(kind, result).Inc()
}

// RecordTelemetry counts one telemetry message outcome.
func RecordTelemetry(result string) {
	telemetryMessages.WithLabelValues(result).Inc()
}

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active circuit breaker state for a component.
func SetCircuitBreakerState(component, state string) {
	for _, s := range circuitStates {
		v := 0.0
		if s == state {
			v = 1.0
		}
		circuitBreakerState.WithLabelValues(component, s).Set(v)
	}
}
