// Package observability provides an otel tracer provider and Prometheus
// gauges around JobEngine and InstancePoller, scoped to the exporters
// actually vendored here (stdouttrace + the otel-to-Prometheus metrics
// bridge, not otlpgrpc). No package in this repository starts spans.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config selects the tracing/metrics behavior.
type Config struct {
	ServiceName string
	MetricsAddr string
	TraceDebug  bool // when true, spans are printed to stdout instead of dropped
}

// Provider bundles the tracer and the JobEngine/InstancePoller gauges,
// and serves them on MetricsAddr.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	registry       *promclient.Registry

	JobsInFlight    promclient.Gauge
	JobsClaimLost   promclient.Counter
	JobsCompleted   *promclient.CounterVec
	PollerQueueSize promclient.Gauge
	PollerCycles    promclient.Counter
}

// New builds the tracer/meter providers and the platform's gauges,
// registering the tracer provider as the global otel one (no caller
// starts spans on it); call Serve to expose /metrics.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceDebug {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("observability: build stdout trace exporter: %w", err)
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)

	registry := promclient.NewRegistry()
	promExporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("observability: build prometheus exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExporter), sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	p := &Provider{
		tracerProvider: tp,
		meterProvider:  mp,
		registry:       registry,
		JobsInFlight: promclient.NewGauge(promclient.GaugeOpts{
			Namespace: "agentctx", Subsystem: "jobengine", Name: "jobs_in_flight",
			Help: "Jobs currently claimed and running.",
		}),
		JobsClaimLost: promclient.NewCounter(promclient.CounterOpts{
			Namespace: "agentctx", Subsystem: "jobengine", Name: "claim_races_lost_total",
			Help: "Claim attempts that lost the atomic race to another worker.",
		}),
		JobsCompleted: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: "agentctx", Subsystem: "jobengine", Name: "jobs_completed_total",
			Help: "Job runs by terminal status.",
		}, []string{"status"}),
		PollerQueueSize: promclient.NewGauge(promclient.GaugeOpts{
			Namespace: "agentctx", Subsystem: "poller", Name: "queue_depth",
			Help: "Instances currently queued for completion processing.",
		}),
		PollerCycles: promclient.NewCounter(promclient.CounterOpts{
			Namespace: "agentctx", Subsystem: "poller", Name: "cycles_total",
			Help: "Completed InstancePoller scan cycles.",
		}),
	}
	registry.MustRegister(p.JobsInFlight, p.JobsClaimLost, p.JobsCompleted, p.PollerQueueSize, p.PollerCycles)
	return p, nil
}

// SetJobsInFlight, IncClaimLost, and IncJobsCompleted satisfy
// jobengine.Metrics structurally.
func (p *Provider) SetJobsInFlight(n int)          { p.JobsInFlight.Set(float64(n)) }
func (p *Provider) IncClaimLost()                  { p.JobsClaimLost.Inc() }
func (p *Provider) IncJobsCompleted(status string) { p.JobsCompleted.WithLabelValues(status).Inc() }

// SetPollerQueueDepth and IncPollerCycle satisfy poller.Metrics
// structurally.
func (p *Provider) SetPollerQueueDepth(n int) { p.PollerQueueSize.Set(float64(n)) }
func (p *Provider) IncPollerCycle()           { p.PollerCycles.Inc() }

// Serve starts a dedicated /metrics HTTP server on addr. It blocks, so
// callers run it in its own goroutine.
func (p *Provider) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}

// Tracer returns a named tracer for span instrumentation.
func (p *Provider) Tracer(name string) trace.Tracer { return p.tracerProvider.Tracer(name) }

// Meter returns a named meter for ad hoc instrument creation beyond the
// gauges/counters Provider already exposes.
func (p *Provider) Meter(name string) metric.Meter { return p.meterProvider.Meter(name) }

// Shutdown flushes and stops the tracer/meter providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if err := p.tracerProvider.Shutdown(ctx); err != nil {
		return err
	}
	return p.meterProvider.Shutdown(ctx)
}
