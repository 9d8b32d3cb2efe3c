package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/modoterra/logcatotel/pkg/core"
	"github.com/modoterra/logcatotel/pkg/logcat"
)

type memExporter struct {
	mu      sync.Mutex
	records []sdklog.Record
}

func (e *memExporter) Export(_ context.Context, records []sdklog.Record) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range records {
		e.records = append(e.records, r.Clone())
	}
	return nil
}

func (e *memExporter) Shutdown(context.Context) error   { return nil }
func (e *memExporter) ForceFlush(context.Context) error { return nil }

func newTestProvider() (*Provider, *memExporter) {
	exp := &memExporter{}
	lp := sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewSimpleProcessor(exp)))
	return NewProvider(lp), exp
}

func TestEmitMapsFields(t *testing.T) {
	p, exp := newTestProvider()
	observed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p.now = func() time.Time { return observed }

	p.Emit(context.Background(), logcat.LogLine{
		Timestamp: 1722132942768,
		UID:       "logd",
		PID:       151,
		TID:       152,
		Level:     logcat.LevelWarn,
		Tag:       "auditd",
		Msg:       "type=1403 audit(0.0:2): auid=4294967295",
	})

	if len(exp.records) != 1 {
		t.Fatalf("exported %d records, want 1", len(exp.records))
	}
	r := exp.records[0]

	if !r.Timestamp().Equal(time.UnixMilli(1722132942768)) {
		t.Errorf("timestamp: got %v", r.Timestamp())
	}
	if !r.ObservedTimestamp().Equal(observed) {
		t.Errorf("observed: got %v", r.ObservedTimestamp())
	}
	if r.Severity() != otellog.SeverityWarn {
		t.Errorf("severity: got %v", r.Severity())
	}
	if r.SeverityText() != "W" {
		t.Errorf("severity text: got %q", r.SeverityText())
	}
	if got := r.Body().AsString(); got != "type=1403 audit(0.0:2): auid=4294967295" {
		t.Errorf("body: got %q", got)
	}

	attrs := map[string]otellog.Value{}
	r.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	wantStrings := map[string]string{
		"event.name": EventName,
		"uid":        "logd",
		"level":      "W",
		"tag":        "auditd",
	}
	for k, want := range wantStrings {
		if got := attrs[k].AsString(); got != want {
			t.Errorf("attr %s: got %q, want %q", k, got, want)
		}
	}
	if got := attrs["pid"].AsInt64(); got != 151 {
		t.Errorf("pid: got %d", got)
	}
	if got := attrs["tid"].AsInt64(); got != 152 {
		t.Errorf("tid: got %d", got)
	}
}

func TestSeverityMapping(t *testing.T) {
	tests := []struct {
		level logcat.Level
		want  otellog.Severity
	}{
		{logcat.LevelError, otellog.SeverityError},
		{logcat.LevelWarn, otellog.SeverityWarn},
		{logcat.LevelInfo, otellog.SeverityInfo},
		{logcat.LevelDebug, otellog.SeverityDebug},
		{logcat.LevelVerbose, otellog.SeverityTrace},
		{logcat.Level("F"), otellog.SeverityUndefined},
	}
	for _, tt := range tests {
		if got := Severity(tt.level); got != tt.want {
			t.Errorf("Severity(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestShutdownIsIdempotent(t *testing.T) {
	p, _ := newTestProvider()
	ctx := context.Background()
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("first shutdown: %v", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestSetupWithoutCollector(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	p, err := Setup(ctx, Config{
		Endpoint:       "http://127.0.0.1:4318/v1/logs",
		ServiceName:    "logcatotel-test",
		ServiceVersion: "dev",
		Headers:        map[string]string{"x-api-key": "secret"},
		ExportTimeout:  time.Second,
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := p.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestFanoutOrder(t *testing.T) {
	var order []string
	first := core.EmitterFunc(func(_ context.Context, l logcat.LogLine) { order = append(order, "first:"+l.Tag) })
	second := core.EmitterFunc(func(_ context.Context, l logcat.LogLine) { order = append(order, "second:"+l.Tag) })

	Fanout(first, nil, second).Emit(context.Background(), logcat.LogLine{Tag: "t"})

	if len(order) != 2 || order[0] != "first:t" || order[1] != "second:t" {
		t.Errorf("order: got %v", order)
	}
}
