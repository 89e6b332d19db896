//go:build unit

package metrics

import (
	"context"
	"strings"
	"testing"

	"github.com/LerianStudio/lib-resilience/resilience/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestFactory(t *testing.T) (*MetricsFactory, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("test-metrics")

	factory, err := NewMetricsFactory(meter, log.NewNop())
	require.NoError(t, err)

	return factory, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics

	err := reader.Collect(context.Background(), &rm)
	require.NoError(t, err)

	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}

	return nil
}

func TestNewMetricsFactory_NilMeter(t *testing.T) {
	factory, err := NewMetricsFactory(nil, log.NewNop())

	assert.Nil(t, factory)
	assert.ErrorIs(t, err, ErrNilMeter)
}

func TestNewNopFactory_RecordsWithoutError(t *testing.T) {
	factory := NewNopFactory()

	counter, err := factory.Counter(Metric{Name: "nop_counter", Unit: "1"})
	require.NoError(t, err)
	assert.NoError(t, counter.AddOne(context.Background()))
}

func TestCounter_AddWithLabels(t *testing.T) {
	factory, reader := newTestFactory(t)

	counter, err := factory.Counter(Metric{
		Name:        "widgets_total",
		Unit:        "1",
		Description: "Widgets processed.",
	})
	require.NoError(t, err)

	err = counter.WithLabels(map[string]string{"kind": "round"}).Add(context.Background(), 3)
	require.NoError(t, err)

	rm := collect(t, reader)
	m := findMetric(rm, "widgets_total")
	require.NotNil(t, m)

	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, sum.DataPoints, 1)
	assert.Equal(t, int64(3), sum.DataPoints[0].Value)
}

func TestCounter_InstrumentIsCached(t *testing.T) {
	factory, _ := newTestFactory(t)

	first, err := factory.Counter(Metric{Name: "cached_total"})
	require.NoError(t, err)

	second, err := factory.Counter(Metric{Name: "cached_total"})
	require.NoError(t, err)

	assert.Equal(t, first.counter, second.counter, "same instrument should be reused")
}

func TestGauge_Set(t *testing.T) {
	factory, reader := newTestFactory(t)

	gauge, err := factory.Gauge(Metric{Name: "open_circuits", Unit: "1"})
	require.NoError(t, err)

	require.NoError(t, gauge.Set(context.Background(), 2))

	rm := collect(t, reader)
	m := findMetric(rm, "open_circuits")
	require.NotNil(t, m)

	data, ok := m.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, int64(2), data.DataPoints[0].Value)
}

func TestHistogram_RecordWithDefaultBuckets(t *testing.T) {
	factory, reader := newTestFactory(t)

	histogram, err := factory.Histogram(Metric{Name: "call_duration_milliseconds", Unit: "ms"})
	require.NoError(t, err)

	require.NoError(t, histogram.Record(context.Background(), 42))

	rm := collect(t, reader)
	m := findMetric(rm, "call_duration_milliseconds")
	require.NotNil(t, m)

	data, ok := m.Data.(metricdata.Histogram[int64])
	require.True(t, ok)
	require.Len(t, data.DataPoints, 1)
	assert.Equal(t, uint64(1), data.DataPoints[0].Count)
}

func TestBuilders_NilInstrumentErrors(t *testing.T) {
	ctx := context.Background()

	assert.ErrorIs(t, (&CounterBuilder{}).Add(ctx, 1), ErrNilCounter)
	assert.ErrorIs(t, (&GaugeBuilder{}).Set(ctx, 1), ErrNilGauge)
	assert.ErrorIs(t, (&HistogramBuilder{}).Record(ctx, 1), ErrNilHistogram)
}

func TestSanitizeMetricLabel(t *testing.T) {
	short := "core-ledger"
	assert.Equal(t, short, SanitizeMetricLabel(short))

	long := strings.Repeat("a", 100)
	got := SanitizeMetricLabel(long)
	assert.Len(t, got, MaxMetricLabelLength)
	assert.Equal(t, long[:MaxMetricLabelLength], got)
}
