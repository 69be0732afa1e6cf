package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	metricsdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, Config{}.Validate())
	require.Error(t, Config{Enabled: true}.Validate())
	require.Error(t, Config{Enabled: true, OTLPEndpoint: "localhost:4318", SampleRate: 1.5}.Validate())
	require.NoError(t, Config{Enabled: true, OTLPEndpoint: "localhost:4318", SampleRate: 0.5}.Validate())

	_, err := NewProvider(Config{Enabled: true})
	require.Error(t, err)
}

func TestDisabledProvider(t *testing.T) {
	p, err := NewProvider(Config{})
	require.NoError(t, err)
	require.NoError(t, p.Ready())

	_, call := p.StartCall(context.Background(), "post_job", "paw1buyer", 1)
	call.End(context.Background(), nil)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestEnabledProviderIsReady(t *testing.T) {
	p, err := NewProvider(Config{Enabled: true, OTLPEndpoint: "http://localhost:4318", SampleRate: 1})
	require.NoError(t, err)
	require.NoError(t, p.Ready())

	traces := p.traces
	p.traces = nil
	require.Error(t, p.Ready())
	p.traces = traces
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestCallRecordsSpanAndInstruments(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	reader := metricsdk.NewManualReader()
	p := &Provider{
		tracer: tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder)).Tracer(instrumentationName),
	}
	require.NoError(t, p.initInstruments(metricsdk.NewMeterProvider(metricsdk.WithReader(reader)).Meter(instrumentationName)))

	ctx := context.Background()
	_, ok := p.StartCall(ctx, "claim_job", "paw1provider", 7)
	ok.End(ctx, nil)
	_, rejected := p.StartCall(ctx, "claim_job", "paw1provider", 8)
	rejected.End(ctx, errors.New("job 1 is claimed"))
	_, block := p.StartCall(ctx, EndBlockFunction, "", 9)
	block.End(ctx, nil)

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	require.Equal(t, "market.claim_job", spans[0].Name())
	require.Equal(t, codes.Unset, spans[0].Status().Code)
	require.Equal(t, codes.Error, spans[1].Status().Code)
	require.Equal(t, "market.end_block", spans[2].Name())
	for _, attr := range spans[2].Attributes() {
		require.NotEqual(t, "market.caller", string(attr.Key))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	sums := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, isSum := m.Data.(metricdata.Sum[int64]); isSum {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	require.Equal(t, int64(3), sums["market.blocks"])
	require.Equal(t, int64(1), sums["market.call.rejections"])
}
