package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type promCollector struct {
	accessRequests  prometheus.Counter
	accessResults   *prometheus.CounterVec
	searchRetries   prometheus.Counter
	sessionsBound   prometheus.Gauge
	channelEvents   *prometheus.CounterVec
	channelFailures *prometheus.CounterVec
	storeResets     prometheus.Counter
}

// New registers the ride logger collectors with registerer.
func New(registerer prometheus.Registerer) Collector {
	factory := promauto.With(registerer)

	return &promCollector{
		accessRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_requests_total",
			Help:      "Total number of device access requests issued",
		}),
		accessResults: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_results_total",
			Help:      "Total number of access results received, by outcome",
		}, []string{"outcome"}),
		searchRetries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_retries_total",
			Help:      "Total number of access requests reissued after a search timeout",
		}),
		sessionsBound: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_bound",
			Help:      "Number of device sessions with channels currently bound",
		}),
		channelEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_events_total",
			Help:      "Total number of raw channel events normalized into the store",
		}, []string{"channel"}),
		channelFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_failures_total",
			Help:      "Total number of channel events dropped by a failing binding",
		}, []string{"channel"}),
		storeResets: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_resets_total",
			Help:      "Total number of times a device's readings were zeroed",
		}),
	}
}

func (c *promCollector) AccessRequested()            { c.accessRequests.Inc() }
func (c *promCollector) AccessResult(outcome string) { c.accessResults.WithLabelValues(outcome).Inc() }
func (c *promCollector) SearchRetried()              { c.searchRetries.Inc() }
func (c *promCollector) SessionBound()               { c.sessionsBound.Inc() }
func (c *promCollector) SessionUnbound()             { c.sessionsBound.Dec() }
func (c *promCollector) ChannelEvent(ch string)      { c.channelEvents.WithLabelValues(ch).Inc() }
func (c *promCollector) ChannelFailure(ch string)    { c.channelFailures.WithLabelValues(ch).Inc() }
func (c *promCollector) StoreReset()                 { c.storeResets.Inc() }
