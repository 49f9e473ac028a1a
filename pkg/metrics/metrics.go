// Package metrics 定义了聊天服务暴露给 Prometheus 的指标。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChatTurnsTotal 按意图统计处理过的对话轮次。
	ChatTurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_turns_total",
			Help: "Total number of processed chat turns",
		},
		[]string{"intent"},
	)

	// DegradedStepsTotal 统计流水线中回退到默认值的步骤。
	DegradedStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_degraded_steps_total",
			Help: "Total number of pipeline steps that fell back to a safe default",
		},
		[]string{"stage"},
	)

	// TurnDuration 一轮对话的处理耗时。
	TurnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatbot_turn_duration_seconds",
			Help:    "Duration of a full chat turn in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// EmbeddingLatency 调用 Embedding API 的耗时。
	EmbeddingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chatbot_embedding_duration_seconds",
			Help:    "Duration of embedding API calls in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		},
	)

	// LearningTasksTotal 按结果统计偏好学习任务（queued, dropped, failed, done）。
	LearningTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_learning_tasks_total",
			Help: "Total number of preference learning tasks by outcome",
		},
		[]string{"outcome"},
	)

	// IndexTasksTotal 按结果统计 Kafka 商品索引任务（done, retried, failed, malformed）。
	IndexTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_index_tasks_total",
			Help: "Total number of catalog index tasks consumed from Kafka by outcome",
		},
		[]string{"outcome"},
	)

	// ActiveSessions 本地缓存中的会话数。
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbot_active_sessions",
			Help: "Number of sessions held in the local tier",
		},
	)

	// ExpiredSessionsTotal 被清理的过期会话数。
	ExpiredSessionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatbot_expired_sessions_total",
			Help: "Total number of sessions removed by the expiry sweep",
		},
	)

	// IndexedItems 向量索引中的商品数。
	IndexedItems = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbot_indexed_items",
			Help: "Number of distinct items in the vector index",
		},
	)

	// ProfileLookupsTotal 按来源统计画像获取（cache, store, source, default）。
	ProfileLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatbot_profile_lookups_total",
			Help: "Total number of profile lookups by resolving tier",
		},
		[]string{"tier"},
	)

	// PreferenceBreakerState 偏好服务熔断器状态（0 closed, 1 half-open, 2 open）。
	PreferenceBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatbot_preference_source_breaker_state",
			Help: "Circuit breaker state of the preference source (0=closed, 1=half-open, 2=open)",
		},
	)
)
