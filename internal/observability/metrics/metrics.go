package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	webhookEvents   metric.Int64Counter
	paymentsSettled metric.Int64Counter
	printJobs       metric.Int64Counter
	holdsExpired    metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "atolpos"
	}
	meter := provider.Meter(name)

	webhookEvents, err := meter.Int64Counter("atolpos_webhook_events_total")
	if err != nil {
		return nil, err
	}
	paymentsSettled, err := meter.Int64Counter("atolpos_payments_settled_total")
	if err != nil {
		return nil, err
	}
	printJobs, err := meter.Int64Counter("atolpos_print_jobs_total")
	if err != nil {
		return nil, err
	}
	holdsExpired, err := meter.Int64Counter("atolpos_loyalty_holds_expired_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		webhookEvents:   webhookEvents,
		paymentsSettled: paymentsSettled,
		printJobs:       printJobs,
		holdsExpired:    holdsExpired,
	}, nil
}

// RecordWebhookEvent increments webhook ingest counts by outcome.
func (m *Metrics) RecordWebhookEvent(ctx context.Context, gateway, outcome string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(
		attribute.String("provider", strings.TrimSpace(gateway)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPaymentSettled increments settled payment counts by method.
func (m *Metrics) RecordPaymentSettled(ctx context.Context, method string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(attribute.String("method", strings.TrimSpace(method)))
	m.paymentsSettled.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPrintJob increments print dispatch counts by outcome.
func (m *Metrics) RecordPrintJob(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	attrs := filterAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.printJobs.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordHoldsExpired adds the number of loyalty holds reclaimed by a sweep.
func (m *Metrics) RecordHoldsExpired(ctx context.Context, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.holdsExpired.Add(ctx, count)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider": {},
	"outcome":  {},
	"method":   {},
}

func filterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
