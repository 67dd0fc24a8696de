package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ledger service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration *prometheus.HistogramVec
	entitiesImported  *prometheus.CounterVec
	rowsSkipped       *prometheus.CounterVec
	degradedSteps     *prometheus.CounterVec
	operationsTotal   *prometheus.CounterVec
	requestsTotal     *prometheus.CounterVec
}

// PortabilityStats is the aggregate snapshot served by
// GET /v1/metrics/portability.
type PortabilityStats struct {
	ImportsTotal          int64            `json:"importsTotal"`
	ImportsFailed         int64            `json:"importsFailed"`
	ExportsTotal          int64            `json:"exportsTotal"`
	RestoresTotal         int64            `json:"restoresTotal"`
	EntitiesImported      map[string]int64 `json:"entitiesImported"`
	RowsSkipped           map[string]int64 `json:"rowsSkipped"`
	DegradedSteps         int64            `json:"degradedSteps"`
	Period                string           `json:"period"`
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of portability operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		entitiesImported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_entities_imported_total",
				Help: "Total entity rows inserted by import/restore, by type.",
			},
			[]string{"entity"},
		),
		rowsSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_rows_skipped_total",
				Help: "Total rows silently dropped due to unresolvable references.",
			},
			[]string{"entity"},
		),
		degradedSteps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_degraded_steps_total",
				Help: "Total best-effort steps that failed without aborting.",
			},
			[]string{"step"},
		),
		operationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_operations_total",
				Help: "Total portability operations by kind and result.",
			},
			[]string{"operation", "result"},
		),
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_requests_total",
				Help: "Total HTTP requests processed.",
			},
			[]string{"status"},
		),
	}
}

// RecordOperationDuration records the duration of an operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// AddEntitiesImported adds to the imported-entities counter for one type.
func (m *Metrics) AddEntitiesImported(entity string, n int) {
	m.entitiesImported.WithLabelValues(entity).Add(float64(n))
}

// AddRowsSkipped adds to the skipped-rows counter for one type.
func (m *Metrics) AddRowsSkipped(entity string, n int) {
	m.rowsSkipped.WithLabelValues(entity).Add(float64(n))
}

// IncrDegradedStep increments the degraded-step counter.
func (m *Metrics) IncrDegradedStep(step string) {
	m.degradedSteps.WithLabelValues(step).Inc()
}

// IncrOperation increments the operation counter with a result label.
func (m *Metrics) IncrOperation(operation, result string) {
	m.operationsTotal.WithLabelValues(operation, result).Inc()
}

// IncrRequest increments the request counter with a status label.
func (m *Metrics) IncrRequest(status string) {
	m.requestsTotal.WithLabelValues(status).Inc()
}

var entityLabels = []string{"accounts", "transactions", "loans", "recurring_transactions", "categories"}

// GetPortabilitySnapshot returns a snapshot of portability metrics suitable
// for the GET /v1/metrics/portability endpoint.
// Note: Prometheus counters expose cumulative values.
func (m *Metrics) GetPortabilitySnapshot() *PortabilityStats {
	stats := &PortabilityStats{
		ImportsTotal:     getCounterValue(m.operationsTotal, "import", "success") + getCounterValue(m.operationsTotal, "import", "error"),
		ImportsFailed:    getCounterValue(m.operationsTotal, "import", "error"),
		ExportsTotal:     getCounterValue(m.operationsTotal, "export", "success") + getCounterValue(m.operationsTotal, "export", "error"),
		RestoresTotal:    getCounterValue(m.operationsTotal, "restore", "success") + getCounterValue(m.operationsTotal, "restore", "error"),
		EntitiesImported: make(map[string]int64, len(entityLabels)),
		RowsSkipped:      make(map[string]int64, len(entityLabels)),
		Period:           "all_time",
	}

	for _, entity := range entityLabels {
		stats.EntitiesImported[entity] = getCounterValue(m.entitiesImported, entity)
		stats.RowsSkipped[entity] = getCounterValue(m.rowsSkipped, entity)
	}
	for _, step := range []string{"pre_import_backup", "pre_restore_backup", "currency_stub"} {
		stats.DegradedSteps += getCounterValue(m.degradedSteps, step)
	}

	return stats
}

// getCounterValue extracts the current int64 value from a CounterVec for the
// given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) int64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return int64(*m.Counter.Value)
	}
	return 0
}
