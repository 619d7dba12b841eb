package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Version is stamped into agent_sdk_build_info at build time via ldflags.
var Version = "dev"

var (
	upDesc = prometheus.NewDesc(
		"agent_sdk_up",
		"Whether the agent runtime is up.",
		nil, nil,
	)
	buildInfoDesc = prometheus.NewDesc(
		"agent_sdk_build_info",
		"Build information.",
		[]string{"version"}, nil,
	)
	metricLastDesc = prometheus.NewDesc(
		"agent_sdk_metric_last",
		"Most recent observation of a named metric.",
		[]string{"metric", "unit", "attributes"}, nil,
	)
	costTotalDesc = prometheus.NewDesc(
		"agent_sdk_cost_usd_total",
		"Aggregated model cost in USD.",
		[]string{"model", "provider"}, nil,
	)
	latencyAvgDesc = prometheus.NewDesc(
		"agent_sdk_latency_avg_ms",
		"Average operation latency in milliseconds.",
		[]string{"operation"}, nil,
	)
	latencyP95Desc = prometheus.NewDesc(
		"agent_sdk_latency_p95_ms",
		"95th percentile operation latency in milliseconds.",
		[]string{"operation"}, nil,
	)
)

// Collector exposes the recorder's aggregates as prometheus gauge
// families.
type Collector struct {
	recorder *Recorder
}

func NewCollector(recorder *Recorder) *Collector {
	return &Collector{recorder: recorder}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- upDesc
	ch <- buildInfoDesc
	ch <- metricLastDesc
	ch <- costTotalDesc
	ch <- latencyAvgDesc
	ch <- latencyP95Desc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 1)
	ch <- prometheus.MustNewConstMetric(buildInfoDesc, prometheus.GaugeValue, 1, Version)

	if c.recorder == nil {
		return
	}

	lasts, costs, operations := c.recorder.snapshot()

	for _, lv := range lasts {
		ch <- prometheus.MustNewConstMetric(metricLastDesc, prometheus.GaugeValue, lv.Value, lv.Metric, lv.Unit, lv.Attributes)
	}

	for key, cost := range costs {
		ch <- prometheus.MustNewConstMetric(costTotalDesc, prometheus.GaugeValue, cost, key.model, key.provider)
	}

	for _, op := range operations {
		avg, p95, ok := c.recorder.LatencyStats(op)
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(latencyAvgDesc, prometheus.GaugeValue, avg, op)
		ch <- prometheus.MustNewConstMetric(latencyP95Desc, prometheus.GaugeValue, p95, op)
	}
}
