package otelcol

import (
	"context"

	"engagement-ledger/pkg/config"
	"engagement-ledger/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("otelcol",
	fx.Provide(
		NewTracerProvider,
		func(tp *trace.TracerProvider) oteltrace.TracerProvider { return tp },
	),
)

func defaultTraceProviderOption(cfg *config.Config) []trace.TracerProviderOption {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.AppName),
		attribute.String("service.version", cfg.AppVersion),
		attribute.String("deployment.environment", cfg.AppEnv),
	))
	if err != nil {
		res = resource.Default()
	}
	return []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(Sampler(cfg.Otel.SampleRatio)),
	}
}

// Sampler honours the parent's decision and samples root spans by ratio.
// A ratio outside (0, 1) samples everything.
func Sampler(ratio float64) trace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return trace.ParentBased(trace.AlwaysSample())
	}
	return trace.ParentBased(trace.TraceIDRatioBased(ratio))
}

func ProvideTrace(exporter trace.SpanExporter, opts ...trace.TracerProviderOption) *trace.TracerProvider {
	if exporter != nil {
		opts = append(opts, trace.WithBatcher(exporter))
	}
	return trace.NewTracerProvider(opts...)
}

// NewTracerProvider exports spans over OTLP when OTEL.ADDR is set and
// installs the provider globally. Without an address spans are sampled but
// never exported.
func NewTracerProvider(lc fx.Lifecycle, cfg *config.Config) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	if cfg.Otel.Addr != "" {
		var err error
		switch cfg.Otel.Protocol {
		case "grpc":
			exporter, err = exporters.ProvideGrpc(cfg)
		default:
			exporter, err = exporters.ProvideHttp(cfg)
		}
		if err != nil {
			zap.L().Error("failed to create otlp exporter", zap.String("protocol", cfg.Otel.Protocol), zap.Error(err))
			return nil, err
		}
	}

	tp := ProvideTrace(exporter, defaultTraceProviderOption(cfg)...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return tp.Shutdown(ctx)
		},
	})
	return tp, nil
}
