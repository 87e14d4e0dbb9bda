package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics счётчики конвейера диагностики.
// Регистрируются в собственном реестре, чтобы тесты не конфликтовали.
type Metrics struct {
	Registry *prometheus.Registry

	Requests      *prometheus.CounterVec   // по операции: validate, diagnose
	Rejections    prometheus.Counter       // снимки, отсеянные проверкой модальности
	Predictions   *prometheus.CounterVec   // по метке снимка
	Degraded      *prometheus.CounterVec   // по этапу, который деградировал
	StageDuration *prometheus.HistogramVec // по этапу
}

// New создаёт и регистрирует метрики.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pneumoscan",
			Name:      "requests_total",
			Help:      "Pipeline requests by operation.",
		}, []string{"operation"}),
		Rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pneumoscan",
			Name:      "domain_rejections_total",
			Help:      "Images rejected by the domain gate.",
		}),
		Predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pneumoscan",
			Name:      "image_predictions_total",
			Help:      "Image classifier predictions by label.",
		}, []string{"label"}),
		Degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pneumoscan",
			Name:      "degraded_stages_total",
			Help:      "Optional stages that failed soft.",
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pneumoscan",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
	}

	m.Registry.MustRegister(m.Requests, m.Rejections, m.Predictions, m.Degraded, m.StageDuration)
	return m
}
