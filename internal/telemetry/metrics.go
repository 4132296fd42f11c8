package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics — Prometheus метрики Conveyor.
//
// Все методы безопасны для nil receiver: компоненты принимают *Metrics
// опционально.
type Metrics struct {
	runsTotal     *prometheus.CounterVec
	jobsTotal     *prometheus.CounterVec
	jobDuration   *prometheus.HistogramVec
	activeJobs    prometheus.Gauge
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	artifacts     *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	scheduledRuns prometheus.Counter
}

// NewMetrics регистрирует метрики в reg.
// Для глобального реестра передайте prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	buckets := []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800}

	return &Metrics{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_runs_total",
			Help: "Workflow runs by final status.",
		}, []string{"status"}),
		jobsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_jobs_total",
			Help: "Jobs by runner and final status.",
		}, []string{"runs_on", "status"}),
		jobDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_job_duration_seconds",
			Help:    "Job duration.",
			Buckets: buckets,
		}, []string{"runs_on"}),
		activeJobs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_active_jobs",
			Help: "Jobs currently running.",
		}),
		stepsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_steps_total",
			Help: "Steps by action and result.",
		}, []string{"action", "result"}),
		stepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_step_duration_seconds",
			Help:    "Step duration by action.",
			Buckets: buckets,
		}, []string{"action"}),
		artifacts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_artifacts_total",
			Help: "Artifact recordings by result.",
		}, []string{"result"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_http_requests_total",
			Help: "HTTP requests handled by the API.",
		}, []string{"method", "code"}),
		scheduledRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_scheduled_runs_total",
			Help: "Runs started by the cron scheduler.",
		}),
	}
}

// RunFinished учитывает завершённый run.
func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
}

// JobStarted увеличивает число активных jobs.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.activeJobs.Inc()
}

// JobFinished учитывает завершённый job.
// started — был ли job запущен (для SKIPPED — false).
func (m *Metrics) JobFinished(runsOn, status string, started bool, d time.Duration) {
	if m == nil {
		return
	}
	if started {
		m.activeJobs.Dec()
		m.jobDuration.WithLabelValues(runsOn).Observe(d.Seconds())
	}
	m.jobsTotal.WithLabelValues(runsOn, status).Inc()
}

// StepFinished учитывает выполненный шаг.
func (m *Metrics) StepFinished(action string, succeeded bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "success"
	if !succeeded {
		result = "failure"
	}
	m.stepsTotal.WithLabelValues(action, result).Inc()
	m.stepDuration.WithLabelValues(action).Observe(d.Seconds())
}

// ArtifactRecorded учитывает запись артефакта.
func (m *Metrics) ArtifactRecorded(ok bool) {
	if m == nil {
		return
	}
	result := "stored"
	if !ok {
		result = "error"
	}
	m.artifacts.WithLabelValues(result).Inc()
}

// HTTPRequest учитывает обработанный HTTP запрос.
func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}

// ScheduledRun учитывает run, запущенный по расписанию.
func (m *Metrics) ScheduledRun() {
	if m == nil {
		return
	}
	m.scheduledRuns.Inc()
}
