package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CacheFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queuesync_cache_fetches_total",
		Help: "Fetches issued by the cache, by result.",
	}, []string{"result"})
	CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queuesync_cache_hits_total",
		Help: "Reads served from a fresh cache entry.",
	})
	CacheSharedFetches = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queuesync_cache_shared_fetches_total",
		Help: "Loads that joined an in-flight fetch instead of issuing one.",
	})

	ChannelEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queuesync_channel_events_total",
		Help: "Realtime events delivered, by event type.",
	}, []string{"type"})
	ChannelReconnects = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "queuesync_channel_reconnects_total",
		Help: "Reconnect attempts made by realtime channels.",
	})
	OpenChannels = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "queuesync_channels_open",
		Help: "Realtime channels currently in the open state.",
	})

	NotificationRegistrations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "queuesync_notification_registrations_total",
		Help: "Notification subscribe/unsubscribe calls, by operation and outcome.",
	}, []string{"op", "outcome"})
)

func Register() {
	prometheus.MustRegister(
		CacheFetches, CacheHits, CacheSharedFetches,
		ChannelEvents, ChannelReconnects, OpenChannels,
		NotificationRegistrations,
	)
}
