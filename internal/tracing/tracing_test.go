package tracing

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/loadcore/internal/config"
)

func recordingTracer(t *testing.T) (*tracetest.SpanRecorder, trace.Tracer) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return rec, tp.Tracer("loadcore-test")
}

func attrMap(attrs []attribute.KeyValue) map[string]string {
	out := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		out[string(kv.Key)] = kv.Value.Emit()
	}
	return out
}

func TestInitWithoutEndpointExportsNothing(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	p, err := Init(context.Background(), config.TracingConfig{SampleRate: 1}, Identity{JobID: "job-1"})
	require.NoError(t, err)

	assert.False(t, p.Exporting())
	assert.False(t, p.ShouldPropagate())
	_, span := p.Tracer().Start(context.Background(), "ldapmodrate modify")
	span.End()
	assert.False(t, span.SpanContext().IsValid())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInitWithoutEndpointHonorsPropagate(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	on := true
	p, err := Init(context.Background(), config.TracingConfig{Propagate: &on}, Identity{})
	require.NoError(t, err)
	assert.False(t, p.Exporting())
	assert.True(t, p.ShouldPropagate())
}

func TestInitBuildsExporterPerProtocol(t *testing.T) {
	for _, protocol := range []string{"grpc", "HTTP", ""} {
		t.Run("protocol="+protocol, func(t *testing.T) {
			p, err := Init(context.Background(), config.TracingConfig{
				Endpoint:   "localhost:4317",
				Protocol:   protocol,
				SampleRate: 0.25,
				Insecure:   true,
			}, Identity{JobID: "job-1", ClientID: "client-1"})
			require.NoError(t, err)
			t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

			assert.True(t, p.Exporting())
			assert.True(t, p.ShouldPropagate())
		})
	}
}

func TestInitRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TracingConfig
		want string
	}{
		{"protocol", config.TracingConfig{Endpoint: "localhost:4317", Protocol: "thrift", SampleRate: 1}, "unsupported OTLP protocol"},
		{"negative rate", config.TracingConfig{Endpoint: "localhost:4317", SampleRate: -0.5}, "sample_rate"},
		{"rate above one", config.TracingConfig{Endpoint: "localhost:4317", SampleRate: 1.5}, "sample_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Init(context.Background(), tt.cfg, Identity{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSamplerFor(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0, "AlwaysOffSampler"},
		{1, "AlwaysOnSampler"},
		{0.5, "TraceIDRatioBased{0.5}"},
	}
	for _, tt := range tests {
		s, err := samplerFor(tt.rate)
		require.NoError(t, err)
		assert.Equal(t, tt.want, s.Description())
	}
}

func TestResourceAttributesCarryRunIdentity(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	attrs := attrMap(resourceAttributes(config.TracingConfig{}, Identity{JobID: "01J0", ClientID: "client-a"}))
	assert.Equal(t, "loadcore", attrs["service.name"])
	assert.Equal(t, "client-a", attrs["service.instance.id"])
	assert.Equal(t, "01J0", attrs["loadcore.job_id"])

	t.Setenv("OTEL_SERVICE_NAME", "from-env")
	attrs = attrMap(resourceAttributes(config.TracingConfig{}, Identity{}))
	assert.Equal(t, "from-env", attrs["service.name"])
	assert.NotContains(t, attrs, "loadcore.job_id")

	attrs = attrMap(resourceAttributes(config.TracingConfig{ServiceName: "dir-load"}, Identity{}))
	assert.Equal(t, "dir-load", attrs["service.name"])
}

func TestNilProviderIsInert(t *testing.T) {
	var p *Provider
	assert.False(t, p.Exporting())
	assert.False(t, p.ShouldPropagate())
	assert.NoError(t, p.Shutdown(context.Background()))
	_, span := p.Tracer().Start(context.Background(), "ldapmoddn rename")
	span.End()
}

func TestOperationSpanPerJob(t *testing.T) {
	rec, tracer := recordingTracer(t)

	tests := []struct {
		job, operation, target, thread string
		wantName                       string
		wantAttrs                      map[string]string
	}{
		{"httprate", "GET", "http://svc/items", "3", "httprate GET",
			map[string]string{"loadcore.job": "httprate", "loadcore.target": "http://svc/items", "loadcore.thread": "3"}},
		{"ldapmodrate", "modify", "uid=user.1,dc=example,dc=com", "", "ldapmodrate modify",
			map[string]string{"loadcore.job": "ldapmodrate", "loadcore.target": "uid=user.1,dc=example,dc=com"}},
		{"ldapmoddn", "", "", "", "ldapmoddn operation",
			map[string]string{"loadcore.job": "ldapmoddn"}},
	}
	for _, tt := range tests {
		_, span := StartOperationSpan(context.Background(), tracer, tt.job, tt.operation, tt.target, tt.thread)
		span.End()
		ended := rec.Ended()
		got := ended[len(ended)-1]

		assert.Equal(t, tt.wantName, got.Name())
		assert.Equal(t, trace.SpanKindClient, got.SpanKind())
		assert.Equal(t, tt.wantAttrs, attrMap(got.Attributes()))
	}
}

func TestEndSpanStatus(t *testing.T) {
	rec, tracer := recordingTracer(t)

	_, failed := StartOperationSpan(context.Background(), tracer, "ldapmodrate", "modify", "", "")
	EndSpan(failed, errors.New("LDAP Result Code 32 \"No Such Object\""), attribute.String("ldap.result_code", "No Such Object"))
	_, ok := StartOperationSpan(context.Background(), tracer, "ldapmodrate", "modify", "", "")
	EndSpan(ok, nil)

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "No Such Object", attrMap(ended[0].Attributes())["ldap.result_code"])
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "exception", ended[0].Events()[0].Name)
	assert.Equal(t, codes.Ok, ended[1].Status().Code)
}

func TestInjectHTTPHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
	_, tracer := recordingTracer(t)

	ctx, span := StartOperationSpan(context.Background(), tracer, "httprate", "GET", "", "")
	defer span.End()

	headers := make(http.Header)
	InjectHTTPHeaders(ctx, headers)
	parts := strings.Split(headers.Get("Traceparent"), "-")
	require.Len(t, parts, 4)
	assert.Equal(t, span.SpanContext().TraceID().String(), parts[1])
	assert.Equal(t, span.SpanContext().SpanID().String(), parts[2])

	bare := make(http.Header)
	InjectHTTPHeaders(context.Background(), bare)
	assert.Empty(t, bare.Get("Traceparent"))
}
