package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCacheMetricsExportsGaugesCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCacheMetrics(reg)

	m.SetSizes(3, 7)
	m.ObserveReload(250*time.Millisecond, nil)
	m.ObserveReload(10*time.Millisecond, errors.New("boom"))
	m.IncMutation("insert_buyer")
	m.IncMutation("insert_buyer")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got := fetchGauge(t, mfs, "crs_cache_buyers"); got != 3 {
		t.Fatalf("expected buyers=3, got %f", got)
	}
	if got := fetchGauge(t, mfs, "crs_cache_challans"); got != 7 {
		t.Fatalf("expected challans=7, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "crs_cache_reloads_total", "result", "success"); err != nil || got != 1 {
		t.Fatalf("expected success=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "crs_cache_reloads_total", "result", "failure"); err != nil || got != 1 {
		t.Fatalf("expected failure=1, got %f (%v)", got, err)
	}
	if got, err := fetchCounterValue(mfs, "crs_cache_mutations_total", "op", "insert_buyer"); err != nil || got != 2 {
		t.Fatalf("expected insert_buyer=2, got %f (%v)", got, err)
	}

	mf := findMetricFamily(mfs, "crs_cache_reload_duration_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleCount() != 2 {
		t.Fatalf("expected 2 reload duration samples")
	}
}

func TestCacheMetricsNilSafe(t *testing.T) {
	var m *CacheMetrics
	m.SetSizes(1, 1)
	m.ObserveReload(time.Second, nil)
	m.IncMutation("x")

	noop := NewCacheMetrics(nil)
	noop.SetSizes(1, 1)
	noop.IncMutation("")
}

func fetchGauge(t *testing.T, mfs []*dto.MetricFamily, name string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	if mf == nil || len(mf.GetMetric()) == 0 {
		t.Fatalf("metric %q not found", name)
	}
	return mf.GetMetric()[0].GetGauge().GetValue()
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
