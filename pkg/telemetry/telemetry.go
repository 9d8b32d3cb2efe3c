// Package telemetry exports logcat records as OpenTelemetry log records
// over OTLP/HTTP.
package telemetry

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/modoterra/logcatotel/pkg/logcat"
)

// EventName tags every exported record.
const EventName = "device.app.logcat"

const scopeName = "github.com/modoterra/logcatotel"

// Config describes the OTLP logs destination.
type Config struct {
	Endpoint       string // full URL, e.g. http://localhost:4318/v1/logs
	ServiceName    string
	ServiceVersion string
	Headers        map[string]string
	ExportTimeout  time.Duration
}

// Provider owns the logger provider and is the emitter handed to the
// ingest loop. Shutdown flushes pending records and is safe to call twice.
type Provider struct {
	lp     *sdklog.LoggerProvider
	logger otellog.Logger
	now    func() time.Time

	once        sync.Once
	shutdownErr error
}

// Setup builds an OTLP/HTTP exporter with a batch processor.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(cfg.Endpoint)}
	if len(cfg.Headers) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.Headers))
	}
	if cfg.ExportTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.ExportTimeout))
	}
	exp, err := otlploghttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp log exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
	)
	return NewProvider(lp), nil
}

// NewProvider wraps an existing logger provider.
func NewProvider(lp *sdklog.LoggerProvider) *Provider {
	return &Provider{
		lp:     lp,
		logger: lp.Logger(scopeName),
		now:    time.Now,
	}
}

// Emit exports one record. Delivery failures surface only through the
// SDK's error handler; nothing is retried here.
func (p *Provider) Emit(ctx context.Context, line logcat.LogLine) {
	p.logger.Emit(ctx, newRecord(line, p.now()))
}

// ForceFlush pushes buffered records to the exporter.
func (p *Provider) ForceFlush(ctx context.Context) error {
	return p.lp.ForceFlush(ctx)
}

// Shutdown flushes and stops the exporter. Only the first call has effect.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		p.shutdownErr = p.lp.Shutdown(ctx)
	})
	return p.shutdownErr
}

func newRecord(line logcat.LogLine, observed time.Time) otellog.Record {
	var r otellog.Record
	if line.Timestamp <= math.MaxInt64 {
		r.SetTimestamp(time.UnixMilli(int64(line.Timestamp)))
	}
	r.SetObservedTimestamp(observed)
	r.SetSeverity(Severity(line.Level))
	r.SetSeverityText(string(line.Level))
	r.SetBody(otellog.StringValue(line.Msg))
	r.AddAttributes(
		otellog.String("event.name", EventName),
		otellog.String("uid", line.UID),
		otellog.Int64("pid", int64(line.PID)),
		otellog.Int64("tid", int64(line.TID)),
		otellog.String("level", string(line.Level)),
		otellog.String("tag", line.Tag),
	)
	return r
}

// Severity maps a logcat level to the OpenTelemetry severity number.
func Severity(l logcat.Level) otellog.Severity {
	switch l {
	case logcat.LevelError:
		return otellog.SeverityError
	case logcat.LevelWarn:
		return otellog.SeverityWarn
	case logcat.LevelInfo:
		return otellog.SeverityInfo
	case logcat.LevelDebug:
		return otellog.SeverityDebug
	case logcat.LevelVerbose:
		return otellog.SeverityTrace
	default:
		return otellog.SeverityUndefined
	}
}
