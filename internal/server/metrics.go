package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PolarWolf314/enseal/internal/mailbox"
	"github.com/PolarWolf314/enseal/internal/wire"
)

type metrics struct {
	registry *prometheus.Registry

	connections    prometheus.Counter
	rateLimited    prometheus.Counter
	channelsOpened prometheus.Counter
	channelsPaired prometheus.Counter
	channelsClosed *prometheus.CounterVec
	channelsLive   prometheus.GaugeFunc
	lifetime       prometheus.Histogram
	relayedBytes   prometheus.Counter
	refused        *prometheus.CounterVec
}

func newMetrics(live func() int) *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enseal_relay_connections_total",
			Help: "Number of accepted websocket connections",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enseal_relay_rate_limited_total",
			Help: "Number of connections refused by the rate limiter",
		}),
		channelsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enseal_relay_channels_opened_total",
			Help: "Number of channels created",
		}),
		channelsPaired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enseal_relay_channels_paired_total",
			Help: "Number of channels joined by a second participant",
		}),
		channelsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enseal_relay_channels_closed_total",
			Help: "Number of channels closed, by reason",
		}, []string{"reason"}),
		channelsLive: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "enseal_relay_channels_live",
			Help: "Number of live channels",
		}, func() float64 { return float64(live()) }),
		lifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enseal_relay_channel_lifetime_seconds",
			Help:    "Time from channel creation to close",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		relayedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enseal_relay_relayed_bytes_total",
			Help: "Number of data frame body bytes forwarded",
		}),
		refused: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enseal_relay_opens_refused_total",
			Help: "Number of refused channel opens, by code",
		}, []string{"code"}),
	}

	m.registry.MustRegister(
		m.connections,
		m.rateLimited,
		m.channelsOpened,
		m.channelsPaired,
		m.channelsClosed,
		m.channelsLive,
		m.lifetime,
		m.relayedBytes,
		m.refused,
	)
	return m
}

// hooks wires registry lifecycle events to the collectors.
func (m *metrics) hooks() mailbox.Hooks {
	return mailbox.Hooks{
		Opened: m.channelsOpened.Inc,
		Paired: m.channelsPaired.Inc,
		Closed: func(reason mailbox.Reason, lifetime time.Duration) {
			m.channelsClosed.WithLabelValues(reason.String()).Inc()
			m.lifetime.Observe(lifetime.Seconds())
		},
		Relayed: func(n int) {
			m.relayedBytes.Add(float64(n))
		},
		Refused: func(err error) {
			m.refused.WithLabelValues(wire.CodeFor(err).String()).Inc()
		},
	}
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
