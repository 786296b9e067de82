// Package metrics exports lease events as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"filelease/pkg/filelease"
)

const namespace = "filelease"

// Collector records lease events. It implements filelease.Observer.
type Collector struct {
	acquires *prometheus.CounterVec
	extends  *prometheus.CounterVec
	releases *prometheus.CounterVec
	held     prometheus.Gauge
}

var _ filelease.Observer = (*Collector)(nil)

// New registers the lease metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		// acquire attempts by outcome: created, reclaimed, contended, failed
		acquires: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "acquire_total",
			Help:      "Total number of lease acquisition attempts",
		}, []string{"outcome"}),

		extends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extend_total",
			Help:      "Total number of lease extensions",
		}, []string{"kind", "result"}),

		releases: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "release_total",
			Help:      "Total number of lease releases",
		}, []string{"result"}),

		held: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "held",
			Help:      "Number of leases currently held by this process",
		}),
	}
}

// ObserveAcquire implements filelease.Observer.
func (c *Collector) ObserveAcquire(outcome filelease.Outcome) {
	c.acquires.WithLabelValues(string(outcome)).Inc()
	if outcome.Acquired() {
		c.held.Inc()
	}
}

// ObserveExtend implements filelease.Observer.
func (c *Collector) ObserveExtend(renewal bool, err error) {
	kind := "manual"
	if renewal {
		kind = "renewal"
	}

	c.extends.WithLabelValues(kind, result(err)).Inc()
}

// ObserveRelease implements filelease.Observer.
func (c *Collector) ObserveRelease(err error) {
	c.releases.WithLabelValues(result(err)).Inc()
	c.held.Dec()
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
