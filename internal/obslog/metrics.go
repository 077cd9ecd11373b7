package obslog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the runtime's prometheus instruments, grouped under the
// "toolrt" namespace the way the teacher groups acp metrics under "acp".
var (
	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolrt",
			Subsystem: "dispatcher",
			Name:      "tool_calls_total",
			Help:      "Total number of tool calls dispatched, by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toolrt",
			Subsystem: "dispatcher",
			Name:      "tool_call_duration_seconds",
			Help:      "Tool call latency in seconds, by tool.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"tool"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolrt",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total cache hits, by tier (memory, persistent).",
		},
		[]string{"tier"},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "toolrt",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total cache misses.",
		},
	)

	SingleflightCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "toolrt",
			Subsystem: "cache",
			Name:      "singleflight_coalesced_total",
			Help:      "Total calls that joined an in-flight computation instead of starting a new one.",
		},
	)

	BatchDedupCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "toolrt",
			Subsystem: "dispatcher",
			Name:      "batch_dedup_coalesced_total",
			Help:      "Total batch calls coalesced with an identical sibling call in the same batch.",
		},
	)

	HookFailuresOpen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolrt",
			Subsystem: "hook",
			Name:      "fail_open_total",
			Help:      "Total hook failures that fell back to the untransformed output.",
		},
		[]string{"hook"},
	)
)
