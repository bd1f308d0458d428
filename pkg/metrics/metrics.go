package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 同步结果计数（imported / unchanged / throttled / in_flight / failed）
	SyncOutcomeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pam_sync_outcome_total",
			Help: "Total number of PAM sync attempts by outcome",
		},
		[]string{"org", "outcome"},
	)

	// 同步耗时（秒）
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pam_sync_duration_seconds",
			Help:    "PAM sync pipeline duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"org", "outcome"},
	)

	// 导入任务数
	TasksImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pam_tasks_imported_total",
			Help: "Total number of tasks created by period reconciliation",
		},
		[]string{"org"},
	)

	// 行级校验错误
	RowErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pam_row_errors_total",
			Help: "Total number of rejected sheet rows by reason",
		},
		[]string{"reason"},
	)

	// 无法解析的身份引用
	UnresolvedIdentities = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pam_unresolved_identities_total",
			Help: "Identity references imported without a matching account",
		},
	)

	// 文档抓取错误
	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pam_fetch_errors_total",
			Help: "Sheet document fetch failures by error type",
		},
		[]string{"error_type"},
	)

	// 任务状态迁移
	LifecycleTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pam_task_transitions_total",
			Help: "Task lifecycle actions applied",
		},
		[]string{"action", "result"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_total",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"statement"},
	)

	// 慢查询耗时
	SlowQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "db_slow_query_duration_seconds",
			Help:    "Duration of slow queries in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		},
	)
)

// RecordSync 记录一次同步
func RecordSync(org, outcome string, duration time.Duration) {
	SyncOutcomeCount.WithLabelValues(org, outcome).Inc()
	SyncDuration.WithLabelValues(org, outcome).Observe(duration.Seconds())
}

// AddTasksImported 增加导入任务计数
func AddTasksImported(org string, n int) {
	TasksImported.WithLabelValues(org).Add(float64(n))
}

// IncrementRowError 增加行级校验错误计数
func IncrementRowError(reason string) {
	RowErrors.WithLabelValues(reason).Inc()
}

// AddUnresolvedIdentities 增加未匹配身份计数
func AddUnresolvedIdentities(n int) {
	UnresolvedIdentities.Add(float64(n))
}

// IncrementFetchError 增加抓取错误计数
func IncrementFetchError(errorType string) {
	FetchErrors.WithLabelValues(errorType).Inc()
}

// IncrementTransition 记录一次生命周期操作
func IncrementTransition(action, result string) {
	LifecycleTransitions.WithLabelValues(action, result).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录慢查询
func IncrementSlowQuery(statement string, duration time.Duration) {
	SlowQueryCount.WithLabelValues(statement).Inc()
	SlowQueryDuration.Observe(duration.Seconds())
}
