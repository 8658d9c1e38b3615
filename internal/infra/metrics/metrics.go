package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	swipesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchcore_swipes_recorded_total",
		Help: "Swipes persisted, by action",
	}, []string{"action"})

	matchesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchcore_matches_created_total",
		Help: "Match rows created by the detector",
	})

	matchConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchcore_match_conflicts_total",
		Help: "Match formation attempts that hit a concurrent writer",
	})

	matchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchcore_match_evaluation_retries_total",
		Help: "Match evaluation attempts retried after a transient failure",
	})

	matchesReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "matchcore_matches_reconciled_total",
		Help: "Mutual likes repaired by the reconciliation job",
	})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchcore_http_requests_total",
		Help: "HTTP requests by method, route pattern and status",
	}, []string{"method", "route", "status"})
)

func SwipeRecorded(action string) {
	swipesRecorded.WithLabelValues(action).Inc()
}

func MatchCreated() {
	matchesCreated.Inc()
}

func MatchConflict() {
	matchConflicts.Inc()
}

func MatchRetry() {
	matchRetries.Inc()
}

func MatchReconciled() {
	matchesReconciled.Inc()
}

func HTTPRequest(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
