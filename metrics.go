package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"i4.energy/across/lmsgw/laser"
	"i4.energy/across/lmsgw/sopas"
)

// Metrics counts session events and HTTP requests on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	events       *prometheus.CounterVec
	messages     *prometheus.CounterVec
	deviceErrors *prometheus.CounterVec
	scans        prometheus.Counter
	samples      prometheus.Histogram
	connected    prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lmsgw",
				Subsystem: "session",
				Name:      "events_total",
				Help:      "Session events by kind.",
			},
			[]string{"kind"},
		),
		messages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lmsgw",
				Subsystem: "session",
				Name:      "messages_total",
				Help:      "Decoded scanner messages by name.",
			},
			[]string{"name"},
		),
		deviceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lmsgw",
				Subsystem: "device",
				Name:      "errors_total",
				Help:      "Error telegrams reported by the scanner.",
			},
			[]string{"description"},
		),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lmsgw",
			Subsystem: "scan",
			Name:      "records_total",
			Help:      "Scan records received.",
		}),
		samples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lmsgw",
			Subsystem: "scan",
			Name:      "samples",
			Help:      "Distance samples per scan record.",
			Buckets:   prometheus.ExponentialBuckets(64, 2, 8),
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lmsgw",
			Subsystem: "session",
			Name:      "connected",
			Help:      "1 while the scanner link is up.",
		}),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "lmsgw",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "lmsgw",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
	}

	m.registry.MustRegister(
		m.events,
		m.messages,
		m.deviceErrors,
		m.scans,
		m.samples,
		m.connected,
		m.httpRequests,
		m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Notify(e laser.Event) {
	m.events.WithLabelValues(string(e.Kind)).Inc()

	switch e.Kind {
	case laser.EventConnected:
		m.connected.Set(1)
	case laser.EventDisconnected, laser.EventServerDisconnected:
		m.connected.Set(0)
	case laser.EventMessage:
		if e.Message == nil {
			return
		}
		m.messages.WithLabelValues(e.Message.Name()).Inc()
		switch msg := e.Message.(type) {
		case *sopas.DeviceError:
			m.deviceErrors.WithLabelValues(msg.Description).Inc()
		case *sopas.ScanRecord:
			m.scans.Inc()
			if msg.Channel16 != nil {
				m.samples.Observe(float64(len(msg.Channel16.Data)))
			}
		}
	}
}

// RecordHTTPRequest counts one served request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
