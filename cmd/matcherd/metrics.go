// metrics.go - Counters, gauges, and latency summaries for the daemon.
//
// Everything is served as one JSON document on /metrics. Series are keyed by
// name plus sorted labels so the same logical series never splits.

package main

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metric names the daemon records.
const (
	MetricOrderCount          = "order_count"
	MetricSettlementCount     = "settlement_count"
	MetricSettlementFailures  = "settlement_failures"
	MetricProofGenerationTime = "proof_generation_time"
	MetricOpenOrders          = "open_orders"
	MetricChainHeight         = "chain_height"
	MetricErrorCount          = "error_count"
)

// histogramWindow bounds how many samples a latency series keeps.
const histogramWindow = 1000

// MetricsCollector accumulates the daemon's operational series.
type MetricsCollector struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
	samples  map[string][]float64
}

// NewMetricsCollector returns an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		samples:  make(map[string][]float64),
	}
}

// seriesKey renders "name{k=v,...}" with labels in a fixed order.
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, labels[k]))
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}

// IncrementCounter bumps a counter series by one.
func (mc *MetricsCollector) IncrementCounter(name string, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.counters[seriesKey(name, labels)]++
}

// SetGauge overwrites a gauge series.
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.gauges[seriesKey(name, labels)] = value
}

// RecordHistogram appends a sample to a latency series, keeping the window.
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	key := seriesKey(name, labels)
	s := append(mc.samples[key], value)
	if len(s) > histogramWindow {
		s = s[len(s)-histogramWindow:]
	}
	mc.samples[key] = s
}

// HistogramSummary condenses one latency series.
type HistogramSummary struct {
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
}

// GetMetricsSummary snapshots every series for the /metrics endpoint.
func (mc *MetricsCollector) GetMetricsSummary() map[string]interface{} {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	counters := make(map[string]int64, len(mc.counters))
	for k, v := range mc.counters {
		counters[k] = v
	}
	gauges := make(map[string]float64, len(mc.gauges))
	for k, v := range mc.gauges {
		gauges[k] = v
	}
	histograms := make(map[string]HistogramSummary, len(mc.samples))
	for k, values := range mc.samples {
		if len(values) == 0 {
			continue
		}
		h := HistogramSummary{Count: len(values), Min: values[0], Max: values[0]}
		sum := 0.0
		for _, v := range values {
			if v < h.Min {
				h.Min = v
			}
			if v > h.Max {
				h.Max = v
			}
			sum += v
		}
		h.Avg = sum / float64(h.Count)
		histograms[k] = h
	}

	return map[string]interface{}{
		"counters":   counters,
		"gauges":     gauges,
		"histograms": histograms,
	}
}

// RecordOrder counts one accepted order per peer.
func (mc *MetricsCollector) RecordOrder(peerID string) {
	mc.IncrementCounter(MetricOrderCount, map[string]string{"peer": peerID})
}

// RecordSettlement counts one applied settlement per pair.
func (mc *MetricsCollector) RecordSettlement(pair string) {
	mc.IncrementCounter(MetricSettlementCount, map[string]string{"pair": pair})
}

// RecordSettlementFailure counts one rejected settlement per pair.
func (mc *MetricsCollector) RecordSettlementFailure(pair string) {
	mc.IncrementCounter(MetricSettlementFailures, map[string]string{"pair": pair})
}

// RecordProofGeneration samples one proving latency.
func (mc *MetricsCollector) RecordProofGeneration(duration time.Duration) {
	mc.RecordHistogram(MetricProofGenerationTime, duration.Seconds(), nil)
}

// RecordError counts one operational error by type.
func (mc *MetricsCollector) RecordError(errorType string) {
	mc.IncrementCounter(MetricErrorCount, map[string]string{"type": errorType})
}
