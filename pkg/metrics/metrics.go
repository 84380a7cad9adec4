// Package metrics 集中定义 Prometheus 指标，由 wv-server 的 /metrics 暴露
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EditsTotal 按结果 (no_conflict / merged / conflict / error) 统计编辑提交
	EditsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikivault_edits_total",
		Help: "Total article edits by result",
	}, []string{"result"})

	// WriteLockWait 统计等待全局写锁的时间
	WriteLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wikivault_write_lock_wait_seconds",
		Help:    "Time spent waiting for the repository write lock",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
	})

	// HeadRetries 统计写会话因外部推送而重试的次数
	HeadRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wikivault_head_retries_total",
		Help: "Commits retried because HEAD moved underneath the write session",
	})

	// IndexRebuilds 统计全量重建
	IndexRebuilds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikivault_index_rebuilds_total",
		Help: "Full search index rebuilds by result",
	}, []string{"result"})

	IndexRebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wikivault_index_rebuild_duration_seconds",
		Help:    "Full search index rebuild duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	IndexedDocuments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wikivault_indexed_documents",
		Help: "Documents in the search index after the last rebuild",
	})

	// PushNotifications 统计推送监听器收到的消息 (ok / malformed / timeout)
	PushNotifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikivault_push_notifications_total",
		Help: "Push notifications received on the IPC socket by status",
	}, []string{"status"})

	// SearchQueries 统计搜索请求 (ok / invalid / error)
	SearchQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wikivault_search_queries_total",
		Help: "Search queries by status",
	}, []string{"status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wikivault_http_request_duration_seconds",
		Help:    "HTTP request latency by route and status",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "status"})
)
