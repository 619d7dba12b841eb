package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// CostMetric attributes token usage and USD cost to a model invocation.
type CostMetric struct {
	Model        string    `json:"model"`
	Provider     string    `json:"provider"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	CostUSD      float64   `json:"cost_usd"`
	Timestamp    time.Time `json:"timestamp"`
}

// modelPrice holds per-million-token USD prices.
type modelPrice struct {
	input  float64
	output float64
}

// priceTable covers the common hosted models; unknown models cost zero
// and still have their tokens recorded.
var priceTable = map[string]modelPrice{
	"gpt-4o":            {input: 2.50, output: 10.00},
	"gpt-4o-mini":       {input: 0.15, output: 0.60},
	"gpt-4.1":           {input: 2.00, output: 8.00},
	"claude-sonnet-4-5": {input: 3.00, output: 15.00},
	"claude-haiku-4-5":  {input: 1.00, output: 5.00},
}

// lastValue is the most recent observation of a named metric.
type lastValue struct {
	Metric     string
	Unit       string
	Attributes string
	Value      float64
}

type latencyAgg struct {
	samples []float64
}

type costKey struct {
	model    string
	provider string
}

// Recorder aggregates latency, usage and cost observations for the
// prometheus collector.
type Recorder struct {
	mu        sync.RWMutex
	last      map[string]lastValue
	latencies map[string]*latencyAgg
	costs     map[costKey]float64
	history   []CostMetric
}

func NewRecorder() *Recorder {
	return &Recorder{
		last:      make(map[string]lastValue),
		latencies: make(map[string]*latencyAgg),
		costs:     make(map[costKey]float64),
	}
}

// RecordLatency adds a latency sample for an operation.
func (r *Recorder) RecordLatency(operation string, latencyMs float64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	agg := r.latencies[operation]
	if agg == nil {
		agg = &latencyAgg{}
		r.latencies[operation] = agg
	}
	agg.samples = append(agg.samples, latencyMs)

	r.last["latency:"+operation] = lastValue{
		Metric:     "latency_ms",
		Unit:       "ms",
		Attributes: "operation=" + operation,
		Value:      latencyMs,
	}
}

// RecordMetric records an arbitrary gauge observation.
func (r *Recorder) RecordMetric(metric, unit string, attributes map[string]string, value float64) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	attrs := flattenAttributes(attributes)
	r.last[metric+"|"+attrs] = lastValue{
		Metric:     metric,
		Unit:       unit,
		Attributes: attrs,
		Value:      value,
	}
}

// RecordUsage accounts a model invocation's tokens and derives its cost.
func (r *Recorder) RecordUsage(model, provider string, inputTokens, outputTokens int) CostMetric {
	price := priceTable[model]
	cost := float64(inputTokens)/1e6*price.input + float64(outputTokens)/1e6*price.output

	metric := CostMetric{
		Model:        model,
		Provider:     provider,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
	}

	if r == nil {
		return metric
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.costs[costKey{model: model, provider: provider}] += cost
	r.history = append(r.history, metric)
	return metric
}

// LatencyStats returns the average and p95 latency for an operation.
func (r *Recorder) LatencyStats(operation string) (avg, p95 float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agg := r.latencies[operation]
	if agg == nil || len(agg.samples) == 0 {
		return 0, 0, false
	}

	sorted := make([]float64, len(agg.samples))
	copy(sorted, agg.samples)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	avg = sum / float64(len(sorted))

	idx := int(float64(len(sorted)-1) * 0.95)
	p95 = sorted[idx]
	return avg, p95, true
}

// TotalCost returns the aggregated USD cost for a model/provider pair.
func (r *Recorder) TotalCost(model, provider string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.costs[costKey{model: model, provider: provider}]
}

// CostHistory returns all recorded cost metrics.
func (r *Recorder) CostHistory() []CostMetric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]CostMetric, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Recorder) snapshot() (lasts []lastValue, costs map[costKey]float64, operations []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, lv := range r.last {
		lasts = append(lasts, lv)
	}
	costs = make(map[costKey]float64, len(r.costs))
	for k, v := range r.costs {
		costs[k] = v
	}
	for op := range r.latencies {
		operations = append(operations, op)
	}
	sort.Strings(operations)
	return lasts, costs, operations
}

func flattenAttributes(attributes map[string]string) string {
	if len(attributes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attributes[k])
	}
	return strings.Join(parts, ",")
}
