package mcpserver

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetbot_mcp_http_requests_total",
			Help: "Total number of MCP HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	AuthFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetbot_mcp_auth_failures_total",
			Help: "Total number of MCP authentication failures",
		},
		[]string{"reason"},
	)

	ToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetbot_mcp_tool_calls_total",
			Help: "Total number of tool calls",
		},
		[]string{"tool_name", "status"},
	)

	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assetbot_mcp_tool_call_duration_seconds",
			Help:    "Duration of tool calls",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"tool_name"},
	)
)

func observeTool(name string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	ToolCallsTotal.WithLabelValues(name, status).Inc()
	ToolCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
