// Package metrics provides Prometheus metrics collection for DistroBaker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "distrobaker"

// Collector holds all Prometheus metrics for DistroBaker.
// A nil *Collector is valid and records nothing.
type Collector struct {
	// Message bus
	MessagesReceived *prometheus.CounterVec

	// Batches
	BatchesProcessed prometheus.Counter
	BatchSize        prometheus.Histogram

	// Build system
	BuildsTagged      *prometheus.CounterVec
	BuildsSubmitted   *prometheus.CounterVec
	BuildFailures     *prometheus.CounterVec
	ComponentsSkipped *prometheus.CounterVec
	RepoWaits         *prometheus.CounterVec

	// Config
	ConfigReloads        prometheus.Counter
	ConfigReloadErrors   prometheus.Counter
	ConfigLastReload     prometheus.Gauge
	ConfiguredComponents *prometheus.GaugeVec

	// Credentials
	CredentialRenewals *prometheus.CounterVec
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		MessagesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_received_total",
				Help:      "Total number of bus messages received, by kind",
			},
			[]string{"kind"},
		),
		BatchesProcessed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_processed_total",
				Help:      "Total number of tagging message batches processed",
			},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_size",
				Help:      "Number of tagging messages per batch",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
			},
		),
		BuildsTagged: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_tagged_total",
				Help:      "Total number of upstream builds tagged into a downstream target",
			},
			[]string{"target"},
		),
		BuildsSubmitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "builds_submitted_total",
				Help:      "Total number of builds submitted to the destination build system",
			},
			[]string{"target", "scratch"},
		),
		BuildFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "build_failures_total",
				Help:      "Total number of failed build submissions",
			},
			[]string{"target"},
		),
		ComponentsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "components_skipped_total",
				Help:      "Total number of components skipped, by reason",
			},
			[]string{"reason"},
		),
		RepoWaits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repo_waits_total",
				Help:      "Total number of buildroot repo waits, by result",
			},
			[]string{"result"},
		),
		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
		ConfiguredComponents: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "configured_components",
				Help:      "Number of configured components, by namespace",
			},
			[]string{"namespace"},
		),
		CredentialRenewals: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_renewals_total",
				Help:      "Total number of Kerberos credential renewals, by result",
			},
			[]string{"result"},
		),
	}
}

// Message records a received bus message of the given kind.
func (c *Collector) Message(kind string) {
	if c == nil {
		return
	}
	c.MessagesReceived.WithLabelValues(kind).Inc()
}

// Batch records a processed batch.
func (c *Collector) Batch(size int) {
	if c == nil {
		return
	}
	c.BatchesProcessed.Inc()
	c.BatchSize.Observe(float64(size))
}

// Tagged records builds tagged into target.
func (c *Collector) Tagged(target string, n int) {
	if c == nil {
		return
	}
	c.BuildsTagged.WithLabelValues(target).Add(float64(n))
}

// Submitted records a build submission.
func (c *Collector) Submitted(target string, scratch bool, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.BuildFailures.WithLabelValues(target).Inc()
		return
	}
	s := "false"
	if scratch {
		s = "true"
	}
	c.BuildsSubmitted.WithLabelValues(target, s).Inc()
}

// Skipped records a skipped component.
func (c *Collector) Skipped(reason string) {
	if c == nil {
		return
	}
	c.ComponentsSkipped.WithLabelValues(reason).Inc()
}

// RepoWait records the outcome of a buildroot repo wait.
func (c *Collector) RepoWait(result string) {
	if c == nil {
		return
	}
	c.RepoWaits.WithLabelValues(result).Inc()
}

// ConfigReload records a configuration reload attempt.
func (c *Collector) ConfigReload(err error, rpms, modules int) {
	if c == nil {
		return
	}
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(time.Now().Unix()))
	c.ConfiguredComponents.WithLabelValues("rpms").Set(float64(rpms))
	c.ConfiguredComponents.WithLabelValues("modules").Set(float64(modules))
}

// Renewal records a credential renewal attempt.
func (c *Collector) Renewal(err error) {
	if c == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.CredentialRenewals.WithLabelValues(result).Inc()
}
