// Package metrics счётчики Prometheus для операций над абонентами и сверки ссылок.
// Все методы допускают nil-получатель, чтобы сервисы работали без метрик.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "subscriber"

// Результаты операций.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Виды ссылок, снимаемых сверкой.
const (
	RefStream = "stream"
	RefServer = "server"
)

// Metrics набор метрик сервиса.
type Metrics struct {
	operations       *prometheus.CounterVec
	danglingSkipped  prometheus.Counter
	referencesPruned *prometheus.CounterVec
	ownStreamsFreed  prometheus.Counter
	sweepDuration    prometheus.Histogram
}

// New создаёт метрики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Subscriber operations by name and result.",
		}, []string{"op", "result"}),
		danglingSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playlist_dangling_skipped_total",
			Help:      "Stream references skipped during playlist generation.",
		}),
		referencesPruned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "references_pruned_total",
			Help:      "Subscriber documents updated after a referenced entity was deleted.",
		}, []string{"kind"}),
		ownStreamsFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "own_streams_deleted_total",
			Help:      "Owned catalog streams deleted together with their association.",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_sweep_seconds",
			Help:      "Duration of a reconciliation sweep.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.operations, m.danglingSkipped, m.referencesPruned, m.ownStreamsFreed, m.sweepDuration)
	return m
}

// ObserveOperation учитывает завершение операции op.
func (m *Metrics) ObserveOperation(op string, err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.operations.WithLabelValues(op, result).Inc()
}

// AddDanglingSkipped учитывает пропущенные при генерации плейлиста ссылки.
func (m *Metrics) AddDanglingSkipped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.danglingSkipped.Add(float64(n))
}

// AddPruned учитывает документы, из которых сняты ссылки вида kind.
func (m *Metrics) AddPruned(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.referencesPruned.WithLabelValues(kind).Add(float64(n))
}

// AddOwnStreamsDeleted учитывает удалённые собственные потоки.
func (m *Metrics) AddOwnStreamsDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ownStreamsFreed.Add(float64(n))
}

// ObserveSweep учитывает длительность прохода сверки.
func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(d.Seconds())
}
