package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns a private registry with the tracking metrics
type Collector struct {
	reg       *prometheus.Registry
	namespace string

	Points          *prometheus.CounterVec // status: accepted|coalesced|dropped|rejected
	IngestDuration  prometheus.Histogram
	EventsBroadcast *prometheus.CounterVec // kind
	Deliveries      prometheus.Counter
	DroppedEvents   prometheus.Counter
	ForwardErrors   prometheus.Counter
	Alerts          *prometheus.CounterVec // threshold: far|near
	StopEvents      *prometheus.CounterVec // type, source
	HistoryWrites   *prometheus.CounterVec // kind, result
	NATSConnected   prometheus.Gauge
}

// NewCollector creates the collector. Process and Go runtime collectors are included.
func NewCollector(namespace string) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg:       reg,
		namespace: namespace,
		Points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "location_points_total",
			Help:      "Location pings by ingestion result.",
		}, []string{"status"}),
		IngestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ingest_duration_seconds",
			Help:      "Time to validate, apply and fan out one ping.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 15),
		}),
		EventsBroadcast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Events fanned out, by kind.",
		}, []string{"kind"}),
		Deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_deliveries_total",
			Help:      "Events queued to subscribers.",
		}),
		DroppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_dropped_events_total",
			Help:      "Oldest queued events discarded because a subscriber queue was full.",
		}),
		ForwardErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_forward_errors_total",
			Help:      "Events that could not be published to NATS.",
		}),
		Alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proximity_alerts_total",
			Help:      "Proximity alerts by threshold.",
		}, []string{"threshold"}),
		StopEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_events_total",
			Help:      "Stop events by type and source.",
		}, []string{"type", "source"}),
		HistoryWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_writes_total",
			Help:      "History store writes by event kind and result.",
		}, []string{"kind", "result"}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nats_connected",
			Help:      "1 if the NATS connection is established, 0 otherwise.",
		}),
	}

	reg.MustRegister(
		c.Points, c.IngestDuration,
		c.EventsBroadcast, c.Deliveries, c.DroppedEvents, c.ForwardErrors,
		c.Alerts, c.StopEvents, c.HistoryWrites, c.NATSConnected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// RegisterGauge exposes fn as a gauge sampled at scrape time
func (c *Collector) RegisterGauge(name, help string, fn func() float64) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: c.namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Registry returns the private registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.reg
}

func (c *Collector) SetNATSConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
		return
	}
	c.NATSConnected.Set(0)
}

func (c *Collector) ObservePoint(status string, d time.Duration) {
	c.Points.WithLabelValues(status).Inc()
	c.IngestDuration.Observe(d.Seconds())
}

func (c *Collector) ObserveBroadcast(kind string, delivered, dropped int) {
	c.EventsBroadcast.WithLabelValues(kind).Inc()
	c.Deliveries.Add(float64(delivered))
	c.DroppedEvents.Add(float64(dropped))
}

func (c *Collector) ObserveForwardError() {
	c.ForwardErrors.Inc()
}

func (c *Collector) ObserveAlert(threshold string) {
	c.Alerts.WithLabelValues(threshold).Inc()
}

func (c *Collector) ObserveStopEvent(eventType, source string) {
	c.StopEvents.WithLabelValues(eventType, source).Inc()
}

func (c *Collector) ObserveHistoryWrite(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.HistoryWrites.WithLabelValues(kind, result).Inc()
}
