// Process metrics of Paddock, exported in Prometheus format on /metrics.

package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectedServers tracks how many control connections are currently live.
	ConnectedServers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paddock_connected_servers",
		Help: "Number of live dedicated-server control connections.",
	})

	// CallbacksTotal counts inbound protocol callbacks per event name.
	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paddock_callbacks_total",
		Help: "Inbound protocol callbacks routed by the dispatcher.",
	}, []string{"event"})

	// HandlerFailures counts event-translator errors that were isolated
	// at the dispatch boundary.
	HandlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paddock_handler_failures_total",
		Help: "Event handler failures swallowed by the dispatcher.",
	}, []string{"event"})

	// BroadcastsTotal counts live messages fanned out to dashboard subscribers.
	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paddock_broadcasts_total",
		Help: "Live messages delivered to dashboard subscribers.",
	})

	// DroppedSubscribers counts dashboard subscribers dropped for being slow.
	DroppedSubscribers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paddock_dropped_subscribers_total",
		Help: "Dashboard subscribers dropped because their channel was full.",
	})

	// RateLimitWaits counts denied rate-limit acquisitions per limiter key.
	RateLimitWaits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "paddock_ratelimit_waits_total",
		Help: "Rate limiter denials that resulted in a scheduled retry.",
	}, []string{"key"})
)

// Handler exposes the default prometheus registry on a gin route.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(gctx *gin.Context) {
		h.ServeHTTP(gctx.Writer, gctx.Request)
	}
}
