// Package telemetry instruments the market app with OpenTelemetry. Each
// delivered call and each end-of-block run is a span; latency, rejections and
// committed blocks are otel instruments bridged into the Prometheus registry.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricsdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/paw-chain/pawmarket"

// Config selects the exporters. A zero Config yields a provider backed by the
// global no-op tracer and meter.
type Config struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRate   float64
	Environment  string
	ChainID      string

	// PrometheusEnabled bridges otel instruments into the Prometheus registry.
	PrometheusEnabled bool
}

// Validate checks an enabled config.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.OTLPEndpoint == "" {
		return errors.New("otlp endpoint is required")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate %v outside [0, 1]", c.SampleRate)
	}
	return nil
}

// Provider owns the tracer and meter used by the market app.
type Provider struct {
	cfg Config

	traces *tracesdk.TracerProvider
	meters *metricsdk.MeterProvider
	tracer trace.Tracer

	callLatency metric.Float64Histogram
	rejections  metric.Int64Counter
	blocks      metric.Int64Counter
}

// NewProvider builds a provider from cfg.
func NewProvider(cfg Config) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	p := &Provider{cfg: cfg}

	tracerProvider := otel.GetTracerProvider()
	meterProvider := otel.GetMeterProvider()
	if cfg.Enabled {
		res, err := resource.New(context.Background(), resource.WithAttributes(
			semconv.ServiceName("marketd"),
			attribute.String("deployment.environment", cfg.Environment),
			attribute.String("market.chain_id", cfg.ChainID),
		))
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
		if p.traces, err = newTracerProvider(cfg, res); err != nil {
			return nil, err
		}
		tracerProvider = p.traces
		if cfg.PrometheusEnabled {
			if p.meters, err = newMeterProvider(res); err != nil {
				_ = p.traces.Shutdown(context.Background())
				return nil, err
			}
			meterProvider = p.meters
		}
	}

	p.tracer = tracerProvider.Tracer(instrumentationName)
	if err := p.initInstruments(meterProvider.Meter(instrumentationName)); err != nil {
		_ = p.Shutdown(context.Background())
		return nil, err
	}
	return p, nil
}

// newTracerProvider exports sampled spans over OTLP/HTTP. The endpoint may
// be a bare host:port or a URL whose scheme picks TLS.
func newTracerProvider(cfg Config, res *resource.Resource) (*tracesdk.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.OTLPEndpoint)}
	if u, err := url.Parse(cfg.OTLPEndpoint); err == nil && u.Host != "" {
		opts = []otlptracehttp.Option{otlptracehttp.WithEndpoint(u.Host)}
		if u.Path != "" && u.Path != "/" {
			opts = append(opts, otlptracehttp.WithURLPath(u.Path))
		}
		if u.Scheme != "https" {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
	} else {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(context.Background(), otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}
	return tracesdk.NewTracerProvider(
		tracesdk.WithBatcher(exporter, tracesdk.WithBatchTimeout(5*time.Second)),
		tracesdk.WithResource(res),
		tracesdk.WithSampler(tracesdk.ParentBased(tracesdk.TraceIDRatioBased(cfg.SampleRate))),
	), nil
}

func newMeterProvider(res *resource.Resource) (*metricsdk.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}
	return metricsdk.NewMeterProvider(metricsdk.WithResource(res), metricsdk.WithReader(exporter)), nil
}

func (p *Provider) initInstruments(meter metric.Meter) error {
	var err error
	if p.callLatency, err = meter.Float64Histogram("market.call.duration",
		metric.WithDescription("Latency of delivered market calls"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}
	if p.rejections, err = meter.Int64Counter("market.call.rejections",
		metric.WithDescription("Delivered calls that were rejected and rolled back"),
	); err != nil {
		return err
	}
	p.blocks, err = meter.Int64Counter("market.blocks",
		metric.WithDescription("Committed blocks, one per delivered call or end-of-block run"),
	)
	return err
}

// Ready reports whether the configured exporters are running.
func (p *Provider) Ready() error {
	switch {
	case !p.cfg.Enabled:
		return nil
	case p.traces == nil:
		return errors.New("tracer provider not initialized")
	case p.cfg.PrometheusEnabled && p.meters == nil:
		return errors.New("prometheus bridge enabled but meter provider not initialized")
	}
	return nil
}

// Shutdown flushes pending spans and stops the exporters.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.traces != nil {
		if err := p.traces.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider: %w", err))
		}
	}
	if p.meters != nil {
		if err := p.meters.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
