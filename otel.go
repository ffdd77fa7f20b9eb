package reqx

import (
	"context"
	"net/url"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/perigee-labs/reqx"

// instrumentation owns the tracer and metric instruments for a Client.
// One span covers a logical request; retries and redirect hops show up as
// span events and counters rather than child spans.
type instrumentation struct {
	tracer trace.Tracer

	requestDuration metric.Float64Histogram
	requests        metric.Int64Counter
	retries         metric.Int64Counter
	redirects       metric.Int64Counter
	failures        metric.Int64Counter
}

type instrumentOption func(*instrumentConfig)

type instrumentConfig struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithTracerProvider routes the client's spans to tp rather than the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *clientConfig) {
		c.instrOpts = append(c.instrOpts, func(ic *instrumentConfig) { ic.tracerProvider = tp })
	}
}

// WithMeterProvider routes the client's metrics to mp rather than the
// global provider.
func WithMeterProvider(mp metric.MeterProvider) ClientOption {
	return func(c *clientConfig) {
		c.instrOpts = append(c.instrOpts, func(ic *instrumentConfig) { ic.meterProvider = mp })
	}
}

func newInstrumentation(opts ...instrumentOption) *instrumentation {
	cfg := &instrumentConfig{
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	meter := cfg.meterProvider.Meter(instrumentationName)
	in := &instrumentation{
		tracer: cfg.tracerProvider.Tracer(instrumentationName),
	}

	// Instrument registration only fails for malformed names; fall back
	// to nil instruments (skipped at record time) rather than failing
	// client construction.
	in.requestDuration, _ = meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of logical HTTP requests in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(
			0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1, 2.5, 5, 7.5, 10,
		),
	)
	in.requests, _ = meter.Int64Counter(
		"http.client.requests",
		metric.WithDescription("Logical HTTP requests started"),
		metric.WithUnit("{request}"),
	)
	in.retries, _ = meter.Int64Counter(
		"http.client.retries",
		metric.WithDescription("Retry attempts performed"),
		metric.WithUnit("{retry}"),
	)
	in.redirects, _ = meter.Int64Counter(
		"http.client.redirects",
		metric.WithDescription("Redirect hops followed"),
		metric.WithUnit("{redirect}"),
	)
	in.failures, _ = meter.Int64Counter(
		"http.client.failures",
		metric.WithDescription("Logical HTTP requests that settled with an error"),
		metric.WithUnit("{request}"),
	)
	return in
}

type spanHandle struct {
	span  trace.Span
	start time.Time
	attrs []attribute.KeyValue
}

func (in *instrumentation) start(ctx context.Context, d *Descriptor) (context.Context, *spanHandle) {
	attrs := []attribute.KeyValue{
		attribute.String("http.request.method", d.Method),
		attribute.String("url.full", d.URL.String()),
		attribute.String("server.address", d.URL.Hostname()),
	}
	ctx, span := in.tracer.Start(ctx, "HTTP "+d.Method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
	if in.requests != nil {
		in.requests.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	return ctx, &spanHandle{span: span, start: time.Now(), attrs: attrs}
}

func (in *instrumentation) end(h *spanHandle, resp *Response, err error) {
	attrs := h.attrs
	if resp != nil {
		h.span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
		attrs = append(attrs, attribute.Int("http.response.status_code", resp.StatusCode))
	}
	if err != nil {
		h.span.RecordError(err)
		h.span.SetStatus(codes.Error, err.Error())
		if in.failures != nil {
			in.failures.Add(context.Background(), 1, metric.WithAttributes(h.attrs...))
		}
	} else {
		h.span.SetStatus(codes.Ok, "")
	}
	if in.requestDuration != nil {
		in.requestDuration.Record(context.Background(), time.Since(h.start).Seconds(),
			metric.WithAttributes(attrs...))
	}
	h.span.End()
}

func (in *instrumentation) retry(ctx context.Context, attempt int, delay time.Duration) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.Float64("delay_ms", float64(delay.Milliseconds())),
		))
	}
	if in.retries != nil {
		in.retries.Add(ctx, 1)
	}
}

func (in *instrumentation) redirect(ctx context.Context, from, to *url.URL) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("redirect", trace.WithAttributes(
			attribute.String("from", from.String()),
			attribute.String("to", to.String()),
		))
	}
	if in.redirects != nil {
		in.redirects.Add(ctx, 1)
	}
}
