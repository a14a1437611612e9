package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ChatRequests      prometheus.Counter
	ModelCalls        *prometheus.CounterVec
	ModelCallErrors   *prometheus.CounterVec
	CompactionsRun    prometheus.Counter
	DroppedMessages   prometheus.Counter
	BaselineJobs      *prometheus.CounterVec
	ModelLatencySecs  prometheus.Histogram
	TitleRefreshTotal prometheus.Counter
}

var (
	once   sync.Once
	global *Metrics
)

func Global() *Metrics {
	once.Do(func() {
		global = &Metrics{
			ChatRequests: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "aigentd",
				Name:      "chat_requests_total",
				Help:      "Total chat requests accepted",
			}),
			ModelCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aigentd",
				Name:      "model_calls_total",
				Help:      "Total model calls by path",
			}, []string{"path"}),
			ModelCallErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aigentd",
				Name:      "model_call_errors_total",
				Help:      "Total failed model calls by path",
			}, []string{"path"}),
			CompactionsRun: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "aigentd",
				Name:      "compactions_total",
				Help:      "Total context compactions that changed the window",
			}),
			DroppedMessages: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "aigentd",
				Name:      "compaction_dropped_messages_total",
				Help:      "Total history messages evicted during compaction",
			}),
			BaselineJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "aigentd",
				Name:      "baseline_jobs_total",
				Help:      "Total baseline jobs by terminal status",
			}, []string{"status"}),
			ModelLatencySecs: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "aigentd",
				Name:      "model_latency_seconds",
				Help:      "Model call latency",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			}),
			TitleRefreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "aigentd",
				Name:      "title_refresh_total",
				Help:      "Total background conversation title refreshes",
			}),
		}
		prometheus.MustRegister(
			global.ChatRequests,
			global.ModelCalls,
			global.ModelCallErrors,
			global.CompactionsRun,
			global.DroppedMessages,
			global.BaselineJobs,
			global.ModelLatencySecs,
			global.TitleRefreshTotal,
		)
	})
	return global
}
