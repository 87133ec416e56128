package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "phenomenon_indexer"

// Collectors reader and projection metrics on a private registry.
// A nil *Collectors is valid and records nothing.
type Collectors struct {
	Registry *prometheus.Registry

	eventsApplied    *prometheus.CounterVec
	eventsSkipped    prometheus.Counter
	eventErrors      *prometheus.CounterVec
	roleReadFailures prometheus.Counter
	publishFailures  prometheus.Counter
	lastBlock        prometheus.Gauge
	chainHead        prometheus.Gauge
}

// New registers all collectors plus the go/process collectors
func New() *Collectors {
	c := &Collectors{
		Registry: prometheus.NewRegistry(),
		eventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_applied_total",
			Help:      "Chain events applied to the projection, by event name.",
		}, []string{"event"}),
		eventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_skipped_total",
			Help:      "Chain events skipped because the checkpoint already covers them.",
		}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_errors_total",
			Help:      "Failed projection transactions, by event name.",
		}, []string{"event"}),
		roleReadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "role_read_failures_total",
			Help:      "getProphetData reads that failed and defaulted to prophet.",
		}),
		publishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Change notifications that could not be published.",
		}),
		lastBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_applied_block",
			Help:      "Block number of the last applied chain event.",
		}),
		chainHead: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chain_head_block",
			Help:      "Latest block number reported by the RPC endpoint.",
		}),
	}
	c.Registry.MustRegister(
		c.eventsApplied,
		c.eventsSkipped,
		c.eventErrors,
		c.roleReadFailures,
		c.publishFailures,
		c.lastBlock,
		c.chainHead,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the prometheus text format
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.Registry, promhttp.HandlerOpts{})
}

func (c *Collectors) EventApplied(name string, block uint64) {
	if c == nil {
		return
	}
	c.eventsApplied.WithLabelValues(name).Inc()
	c.lastBlock.Set(float64(block))
}

func (c *Collectors) EventSkipped() {
	if c == nil {
		return
	}
	c.eventsSkipped.Inc()
}

func (c *Collectors) EventFailed(name string) {
	if c == nil {
		return
	}
	c.eventErrors.WithLabelValues(name).Inc()
}

func (c *Collectors) RoleReadFailed() {
	if c == nil {
		return
	}
	c.roleReadFailures.Inc()
}

func (c *Collectors) PublishFailed() {
	if c == nil {
		return
	}
	c.publishFailures.Inc()
}

func (c *Collectors) ChainHead(block uint64) {
	if c == nil {
		return
	}
	c.chainHead.Set(float64(block))
}
