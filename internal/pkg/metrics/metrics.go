package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "timetable"

// Metrics holds the collectors exported on /metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	VacanciesCreated   *prometheus.CounterVec
	VacanciesCancelled *prometheus.CounterVec
	VacanciesConfirmed *prometheus.CounterVec
	Approvals          *prometheus.CounterVec
	ApprovedRows       *prometheus.CounterVec
	TaskOutcomes       *prometheus.CounterVec
	TaskDuration       *prometheus.HistogramVec
	EventsDelivered    *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		VacanciesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vacancies_created_total",
			Help:      "Vacancies opened by the lack scan",
		}, []string{"shop_id"}),
		VacanciesCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vacancies_cancelled_total",
			Help:      "Vacancies cancelled because of overflow",
		}, []string{"shop_id"}),
		VacanciesConfirmed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vacancies_confirmed_total",
			Help:      "Vacancies assigned to an employee",
		}, []string{"source"}),
		Approvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approvals_total",
			Help:      "Approve calls by graph type and result",
		}, []string{"graph_type", "result"}),
		ApprovedRows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "approved_worker_days_total",
			Help:      "Draft worker days promoted to approved",
		}, []string{"graph_type"}),
		TaskOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Background task executions by kind and outcome",
		}, []string{"kind", "outcome"}),
		TaskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Background task execution time",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		EventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Notification events delivered to subscribers",
		}, []string{"code"}),
	}
}

func (m *Metrics) VacancyCreated(shopID string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.VacanciesCreated.WithLabelValues(shopID).Add(float64(n))
}

func (m *Metrics) VacancyCancelled(shopID string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.VacanciesCancelled.WithLabelValues(shopID).Add(float64(n))
}

func (m *Metrics) VacancyConfirmed(source string) {
	if m == nil {
		return
	}
	m.VacanciesConfirmed.WithLabelValues(source).Inc()
}

func (m *Metrics) Approval(graphType, result string, rows int) {
	if m == nil {
		return
	}
	m.Approvals.WithLabelValues(graphType, result).Inc()
	if rows > 0 {
		m.ApprovedRows.WithLabelValues(graphType).Add(float64(rows))
	}
}

func (m *Metrics) Task(kind, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.TaskOutcomes.WithLabelValues(kind, outcome).Inc()
	m.TaskDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) EventDelivered(code string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(code).Inc()
}

// ObserveSubscribers exports count as the number of open event streams.
func (m *Metrics) ObserveSubscribers(count func() int) {
	if m == nil {
		return
	}
	m.Registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_stream_subscribers",
		Help:      "Open SSE event streams",
	}, func() float64 { return float64(count()) }))
}
