package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors of the scraper. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	PagesTotal      *prometheus.CounterVec
	RecordsTotal    *prometheus.CounterVec
	DroppedTotal    *prometheus.CounterVec
	SearchDuration  *prometheus.HistogramVec
	LoginsTotal     *prometheus.CounterVec
	StagingTotal    *prometheus.CounterVec
	ClickTiersTotal *prometheus.CounterVec
	JobsTotal       *prometheus.CounterVec
	ErrorsTotal     *prometheus.CounterVec
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domeme_pages_total",
			Help: "Result pages loaded, by marketplace and outcome.",
		},
		[]string{"source", "outcome"},
	)
	records := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domeme_records_total",
			Help: "Unique product records emitted by searches.",
		},
		[]string{"source"},
	)
	dropped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domeme_records_dropped_total",
			Help: "Raw result items dropped during extraction, by reason.",
		},
		[]string{"source", "reason"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "domeme_search_duration_seconds",
			Help:    "Wall time of one keyword search.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"source"},
	)
	logins := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domeme_logins_total",
			Help: "Login attempts by classified outcome.",
		},
		[]string{"outcome"},
	)
	staging := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domeme_staging_runs_total",
			Help: "Cart-staging runs by outcome and last stage reached.",
		},
		[]string{"outcome", "stage"},
	)
	tiers := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domeme_click_tiers_total",
			Help: "Interactions by the fallback tier that took effect.",
		},
		[]string{"tier"},
	)
	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domeme_jobs_total",
			Help: "Queued jobs by kind and final status.",
		},
		[]string{"kind", "status"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domeme_errors_total",
			Help: "Errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(pages, records, dropped, duration, logins, staging, tiers, jobs, errorsTotal)

	return &Metrics{
		Registry:        registry,
		PagesTotal:      pages,
		RecordsTotal:    records,
		DroppedTotal:    dropped,
		SearchDuration:  duration,
		LoginsTotal:     logins,
		StagingTotal:    staging,
		ClickTiersTotal: tiers,
		JobsTotal:       jobs,
		ErrorsTotal:     errorsTotal,
	}
}

func (m *Metrics) IncPage(source, outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) AddRecords(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) AddDropped(source, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DroppedTotal.WithLabelValues(source, reason).Add(float64(n))
}

func (m *Metrics) ObserveSearch(source string, d time.Duration) {
	if m == nil {
		return
	}
	m.SearchDuration.WithLabelValues(source).Observe(d.Seconds())
}

func (m *Metrics) IncLogin(outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncStaging(outcome, stage string) {
	if m == nil {
		return
	}
	m.StagingTotal.WithLabelValues(outcome, stage).Inc()
}

func (m *Metrics) IncClickTier(tier string) {
	if m == nil || tier == "" {
		return
	}
	m.ClickTiersTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) IncJob(kind, status string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(kind, status).Inc()
}

// IncError increments the errors counter for the label of err.
func (m *Metrics) IncError(err error) {
	if m == nil || err == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(ErrorLabel(err)).Inc()
}
