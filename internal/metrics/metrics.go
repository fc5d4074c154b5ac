package metrics

import (
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	httpmetrics "github.com/slok/go-http-metrics/metrics/prometheus"
	"github.com/slok/go-http-metrics/middleware"
	ginmiddleware "github.com/slok/go-http-metrics/middleware/gin"
)

var ProviderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "mindease_provider_latency_millis",
	Help:    "Milliseconds spent in a provider generate call",
	Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 20000, 30000},
}, []string{"provider"})

var ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mindease_provider_errors_total",
	Help: "Failed provider calls by error kind",
}, []string{"provider", "kind"})

var ProviderTokens = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mindease_provider_tokens_total",
	Help: "Tokens reported by providers",
}, []string{"provider"})

var Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mindease_crisis_classifications_total",
	Help: "Chat turns by crisis classification level",
}, []string{"level"})

var CrisisEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mindease_crisis_events_total",
	Help: "Crisis events recorded by severity",
}, []string{"severity"})

var AlertDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "mindease_crisis_alert_deliveries_total",
	Help: "Crisis alert delivery attempts by outcome",
}, []string{"outcome"})

var httpMiddleware = sync.OnceValue(func() middleware.Middleware {
	return middleware.New(middleware.Config{
		Recorder: httpmetrics.NewRecorder(httpmetrics.Config{Prefix: "mindease"}),
	})
})

// GinHandler records request duration, size and in-flight count per route
// template, so path parameters do not blow up label cardinality.
func GinHandler() gin.HandlerFunc {
	mdlw := httpMiddleware()
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ginmiddleware.Handler(route, mdlw)(c)
	}
}
