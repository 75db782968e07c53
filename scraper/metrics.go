package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	PagesTotal         prometheus.Counter
	CalendarPagesTotal prometheus.Counter
	ShowsScrapedTotal  prometheus.Counter
	RowsEmittedTotal   prometheus.Counter
	RetriesTotal       prometheus.Counter
	ErrorsTotal        *prometheus.CounterVec
	FieldsMissingTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total page loads issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "Page load latency, including waiting for the ready marker.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Total listing pages extracted.",
		},
	)
	calendarPages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_calendar_pages_total",
			Help: "Total calendar pages read on detail pages.",
		},
	)
	shows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_shows_scraped_total",
			Help: "Total number of listings turned into rows.",
		},
	)
	rows := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_rows_emitted_total",
			Help: "Total number of rows sent to the pipeline.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	fieldsMissing := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_fields_missing_total",
			Help: "Total number of fields defaulted to N/A, by site and field.",
		},
		[]string{"site", "field"},
	)

	registry.MustRegister(requests, requestDuration, pages, calendarPages, shows, rows, retries, errorsTotal, fieldsMissing)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		PagesTotal:         pages,
		CalendarPagesTotal: calendarPages,
		ShowsScrapedTotal:  shows,
		RowsEmittedTotal:   rows,
		RetriesTotal:       retries,
		ErrorsTotal:        errorsTotal,
		FieldsMissingTotal: fieldsMissing,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records a page load duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the listing pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// IncCalendarPages increments the calendar pages counter.
func (m *Metrics) IncCalendarPages() {
	if m == nil {
		return
	}
	m.CalendarPagesTotal.Inc()
}

// IncShows increments the shows counter.
func (m *Metrics) IncShows() {
	if m == nil {
		return
	}
	m.ShowsScrapedTotal.Inc()
}

// AddRows adds n emitted rows.
func (m *Metrics) AddRows(n int) {
	if m == nil {
		return
	}
	m.RowsEmittedTotal.Add(float64(n))
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncFieldMissing increments the missing field counter.
func (m *Metrics) IncFieldMissing(site, field string) {
	if m == nil {
		return
	}
	m.FieldsMissingTotal.WithLabelValues(site, field).Inc()
}
