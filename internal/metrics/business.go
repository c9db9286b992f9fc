// SPDX-License-Identifier: MIT
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Configuration metrics
	configInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backend_config_info",
		Help: "Active configuration profile (1 for the loaded profile)",
	}, []string{"profile"}) // profile=production|development

	configLoadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_config_load_failures_total",
		Help: "Total number of configuration load failures",
	})

	// Task queue metrics
	taskPublishTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_task_publish_total",
		Help: "Tasks published to the broker by queue and outcome",
	}, []string{"queue", "outcome"}) // outcome=success|rejected|error

	// Channel layer metrics
	channelMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_channel_messages_total",
		Help: "Channel layer messages by operation and outcome",
	}, []string{"op", "outcome"}) // op=send|group_send|receive, outcome=success|full|error

	// Outbound notification metrics
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_notifications_total",
		Help: "Outbound email and SMS deliveries by channel and outcome",
	}, []string{"channel", "outcome"}) // channel=email|sms|push, outcome=sent|echoed|error

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backend_circuit_breaker_state",
		Help: "Circuit breaker state (1 for the current state)",
	}, []string{"breaker", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_circuit_breaker_trips_total",
		Help: "Circuit breaker transitions to open by reason",
	}, []string{"breaker", "reason"}) // reason=threshold_exceeded|half_open_failure
)

// SetConfigProfile marks profile as the active configuration profile.
func SetConfigProfile(profile string) {
	configInfo.Reset()
	configInfo.WithLabelValues(profile).Set(1)
}

func IncConfigLoadFailure() { configLoadFailures.Inc() }

func IncTaskPublish(queue, outcome string) {
	taskPublishTotal.WithLabelValues(queue, outcome).Inc()
}

func IncChannelMessage(op, outcome string) {
	channelMessagesTotal.WithLabelValues(op, outcome).Inc()
}

func IncNotification(channel, outcome string) {
	notificationsTotal.WithLabelValues(channel, outcome).Inc()
}

var breakerStates = []string{"closed", "open", "half-open"}

// SetCircuitBreakerState sets state to 1 and every other state of name to 0.
func SetCircuitBreakerState(name, state string) {
	for _, st := range breakerStates {
		v := 0.0
		if st == state {
			v = 1
		}
		circuitBreakerState.WithLabelValues(name, st).Set(v)
	}
}

func RecordCircuitBreakerTrip(name, reason string) {
	circuitBreakerTrips.WithLabelValues(name, reason).Inc()
}
