package quota

import (
	"strconv"

	"verity-gateway/middleware/quota/domain"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	decisionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verity_ratelimit_decisions_total",
			Help: "Decisões do rate limit por plano e resultado.",
		},
		[]string{"plan", "allowed"})

	localRejectCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verity_ratelimit_local_rejections_total",
			Help: "Rejeições do guarda local de rajada (antes do store).",
		})

	storeErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verity_store_errors_total",
			Help: "Erros de store absorvidos pela política fail-open.",
		},
		[]string{"component"})

	usageEventCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "verity_usage_events_total",
			Help: "Eventos de uso registrados para billing/dashboard.",
		})

	cacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verity_verification_cache_total",
			Help: "Consultas ao cache de verificação por resultado.",
		},
		[]string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		decisionCounter,
		localRejectCounter,
		storeErrorCounter,
		usageEventCounter,
		cacheCounter,
	)
}

func observeDecision(plan domain.Plan, allowed bool) {
	decisionCounter.WithLabelValues(string(plan), strconv.FormatBool(allowed)).Inc()
}

func observeStoreError(component string) {
	storeErrorCounter.WithLabelValues(component).Inc()
}

func observeCache(outcome string) {
	cacheCounter.WithLabelValues(outcome).Inc()
}
