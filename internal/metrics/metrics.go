// Package metrics exports Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"NewsAggregator/internal/domain"
	"NewsAggregator/internal/ports"
)

const namespace = "news_aggregator"

// Metrics holds all pipeline collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Runs             *prometheus.CounterVec
	ItemsCollected   prometheus.Counter
	CollectionErrors *prometheus.CounterVec
	ItemsProcessed   prometheus.Counter
	ItemsDropped     prometheus.Counter
	ItemsPersisted   prometheus.Counter
	WriteFailures    prometheus.Counter
	StageDuration    *prometheus.HistogramVec
}

var _ ports.RunObserver = (*Metrics)(nil)

// New registers the pipeline collectors plus Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal status",
		}, []string{"status"}),
		ItemsCollected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_collected_total",
			Help:      "Raw items returned by source collectors",
		}),
		CollectionErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collection_errors_total",
			Help:      "Source failures by source kind and error kind",
		}, []string{"source_kind", "error_kind"}),
		ItemsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Items that passed enrichment",
		}),
		ItemsDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_dropped_total",
			Help:      "Items dropped during enrichment",
		}),
		ItemsPersisted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_persisted_total",
			Help:      "Items written to the store",
		}),
		WriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_write_failures_total",
			Help:      "Items whose write was rolled back",
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage"}),
	}
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveStage(stage string, elapsed time.Duration) {
	m.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCollection(items int, errs []domain.CollectionError) {
	m.ItemsCollected.Add(float64(items))
	for _, e := range errs {
		m.CollectionErrors.WithLabelValues(string(e.SourceKind), e.ErrorKind).Inc()
	}
}

func (m *Metrics) ObserveEnrichment(processed, dropped int) {
	m.ItemsProcessed.Add(float64(processed))
	m.ItemsDropped.Add(float64(dropped))
}

func (m *Metrics) ObservePersistence(written, failed int) {
	m.ItemsPersisted.Add(float64(written))
	m.WriteFailures.Add(float64(failed))
}

func (m *Metrics) ObserveRun(status domain.RunStatus) {
	m.Runs.WithLabelValues(string(status)).Inc()
}
