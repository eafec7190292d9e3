package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "shipbox"

// Metrics implements the Metrics hooks of labels, notify, webhooks, reconciler, reminders
// and fulfillment on one registry.
type Metrics struct {
	labelResults        *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	webhookEvents       *prometheus.CounterVec
	persistConflicts    prometheus.Counter
	persistFailures     prometheus.Counter
	reminders           *prometheus.CounterVec
	fulfillmentFailures *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		labelResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "labels",
			Name:      "results_total",
			Help:      "Label creation runs by result and reason.",
		}, []string{"result", "reason"}),
		notifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "SMS notification attempts by event tag and outcome.",
		}, []string{"tag", "outcome"}),
		webhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "webhooks",
			Name:      "events_total",
			Help:      "Carrier tracking webhooks by class and HTTP status.",
		}, []string{"class", "status"}),
		persistConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reconciler",
			Name:      "conflicts_total",
			Help:      "Version conflicts while merging protected data.",
		}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reconciler",
			Name:      "failures_total",
			Help:      "Protected data merges that gave up.",
		}),
		reminders: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "reminders",
			Name:      "total",
			Help:      "Ship-by reminders by slot and outcome.",
		}, []string{"slot", "outcome"}),
		fulfillmentFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "fulfillment",
			Name:      "failures_total",
			Help:      "Accepted transactions that ended without a label.",
		}, []string{"reason"}),
	}
}

func (m *Metrics) LabelResult(result, reason string) {
	m.labelResults.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) Notification(tag, outcome string) {
	m.notifications.WithLabelValues(tag, outcome).Inc()
}

func (m *Metrics) WebhookEvent(class string, status int) {
	if class == "" {
		class = "none"
	}
	m.webhookEvents.WithLabelValues(class, strconv.Itoa(status)).Inc()
}

func (m *Metrics) PersistConflict() { m.persistConflicts.Inc() }

func (m *Metrics) PersistFailed() { m.persistFailures.Inc() }

func (m *Metrics) Reminder(slot, outcome string) {
	m.reminders.WithLabelValues(slot, outcome).Inc()
}

func (m *Metrics) FulfillmentFailure(reason string) {
	m.fulfillmentFailures.WithLabelValues(reason).Inc()
}
