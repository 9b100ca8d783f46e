package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "production with endpoint", mutate: func(c *Config) {
			*c = *ProductionConfig()
			c.Tracing.Endpoint = "localhost:4317"
		}},
		{name: "production without endpoint", mutate: func(c *Config) { *c = *ProductionConfig() }, wantErr: true},
		{name: "empty service name", mutate: func(c *Config) { c.ServiceName = "" }, wantErr: true},
		{name: "bad level", mutate: func(c *Config) { c.Logging.Level = "loud" }, wantErr: true},
		{name: "bad format", mutate: func(c *Config) { c.Logging.Format = "xml" }, wantErr: true},
		{name: "bad exporter", mutate: func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.Exporter = "jaeger"
		}, wantErr: true},
		{name: "bad sampling", mutate: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: true},
		{name: "bad event log level", mutate: func(c *Config) { c.Events.LogLevel = "debug" }, wantErr: true},
		{name: "empty event log level", mutate: func(c *Config) { c.Events.LogLevel = "" }},
		{name: "metrics without address", mutate: func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.ListenAddress = ""
		}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.NewComponentLogger("sandbox").
		WithWorkspace("dir", "/tmp/ws").
		WithOperation("apply_diff").
		WithPath("main.tf").
		Debug("patch applied")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
	}
	want := map[string]string{
		"component":      "sandbox",
		"workspace_kind": "dir",
		"workspace":      "/tmp/ws",
		"operation":      "apply_diff",
		"path":           "main.tf",
		"message":        "patch applied",
		"level":          "debug",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("field %s: expected %q, got %v", k, v, entry[k])
		}
	}
}

func TestLoggerLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, LoggingConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %s", buf.String())
	}
	logger.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn should be logged, got %s", buf.String())
	}
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}
	m.RecordOperationStarted()
	m.RecordOperationCompleted("reset", "ok", time.Millisecond)
	m.RecordStage("fmt", "passed", time.Millisecond)
	m.RecordPatchResult("changed", 2)
	m.RecordSinkDelivery("failed")
	if m.Server() != nil {
		t.Error("disabled metrics must not build a server")
	}

	var nilMetrics *Metrics
	nilMetrics.RecordError("permanent", "X")
}

func TestMetricsExposition(t *testing.T) {
	cfg := DefaultConfig().Metrics
	cfg.Enabled = true
	m, err := NewMetrics(cfg)
	if err != nil {
		t.Fatalf("NewMetrics failed: %v", err)
	}

	m.RecordOperationStarted()
	m.RecordOperationCompleted("apply_diff", "ok", 10*time.Millisecond)
	m.RecordStage("tflint", "failed", 20*time.Millisecond)
	m.RecordStage("validate", "skipped", 0)
	m.RecordPatchResult("mismatch", 0)
	m.RecordChangedPaths("fmt", 2)
	m.RecordSinkDelivery("delivered")
	m.RecordLintIssue("")
	m.RecordEvent(Event{Type: EventTypeWorkspaceReset, Level: EventLevelInfo})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`tfsandbox_operations_total{operation="apply_diff",status="ok"} 1`,
		`tfsandbox_stage_runs_total{outcome="failed",stage="tflint"} 1`,
		`tfsandbox_stage_runs_total{outcome="skipped",stage="validate"} 1`,
		`tfsandbox_patch_results_total{result="mismatch"} 1`,
		`tfsandbox_changed_paths_total{kind="fmt"} 2`,
		`tfsandbox_change_sink_deliveries_total{outcome="delivered"} 1`,
		`tfsandbox_lint_issues_total{severity="unknown"} 1`,
		`tfsandbox_active_operations 0`,
		`tfsandbox_events_total{level="info",type="workspace.reset"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestEventPublisherSync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	var got []Event
	var warned []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, nil)
	ep.Subscribe(func(e Event) { warned = append(warned, e) }, FilterByLevel(EventLevelWarning))

	_ = ep.PublishWorkspaceReset("a")
	_ = ep.PublishFilesWritten("a", 3)
	_ = ep.PublishSinkFailed("a", "boom")
	_ = ep.PublishDiffRejected("a", "main.tf", "context mismatch")

	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d: %+v", len(got), got)
	}
	if got[0].Type != EventTypeWorkspaceReset || got[2].Type != EventTypeSinkFailed {
		t.Errorf("unexpected event order: %s, %s", got[0].Type, got[2].Type)
	}
	if len(warned) != 2 || warned[0].Type != EventTypeSinkFailed || warned[1].Type != EventTypeDiffRejected {
		t.Errorf("level filter delivered %+v", warned)
	}
	if got[0].ID == "" || got[0].Timestamp.IsZero() {
		t.Error("events must be stamped with id and timestamp")
	}
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, EnableAsync: true, BufferSize: 16, MaxBatchSize: 4})
	if err != nil {
		t.Fatalf("NewEventPublisher failed: %v", err)
	}

	var mu sync.Mutex
	count := 0
	ep.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)

	for i := 0; i < 10; i++ {
		if err := ep.PublishWorkspaceReset("ws"); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ep.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if count != 10 {
		t.Errorf("expected 10 delivered events, got %d", count)
	}
	if err := ep.PublishWorkspaceReset("ws"); err == nil {
		t.Error("publish after shutdown should fail")
	}
}

func TestDisabledPublisher(t *testing.T) {
	ep, _ := NewEventPublisher(EventsConfig{Enabled: false})
	called := false
	ep.Subscribe(func(Event) { called = true }, nil)
	if err := ep.PublishWorkspaceReset("ws"); err != nil {
		t.Fatalf("disabled publish should be a no-op: %v", err)
	}
	if called {
		t.Error("disabled publisher must not deliver")
	}
	if err := ep.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestStartOperationLogs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
		wantMsg   string
	}{
		{name: "success", wantLevel: "debug", wantMsg: "operation finished"},
		{name: "failure", err: errors.New("boom"), wantLevel: "warn", wantMsg: "operation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWriterLogger(&buf, LoggingConfig{Level: "debug", Format: "json"}).
				NewComponentLogger("sandbox")

			op := Nop().StartOperation(context.Background(), logger, "reset")
			if op.Logger == nil || op.Timer == nil || op.Span == nil {
				t.Fatalf("incomplete instrumented context: %+v", op)
			}
			op.End("", tt.err)

			var line map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
				t.Fatalf("log line is not json: %v (%q)", err, buf.String())
			}
			want := map[string]interface{}{
				"component": "sandbox",
				"operation": "reset",
				"level":     tt.wantLevel,
				"message":   tt.wantMsg,
			}
			for k, v := range want {
				if line[k] != v {
					t.Errorf("field %s: expected %v, got %v", k, v, line[k])
				}
			}
		})
	}
}

func TestStartOperationDefaultsToTelemetryLogger(t *testing.T) {
	Nop().StartOperation(context.Background(), nil, "reset").End("ok", nil)
}

func TestNewTelemetryWithTracing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "none"

	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	op := tel.StartOperation(context.Background(), nil, "get_files")
	if TraceID(op.Ctx) == "" {
		t.Error("expected a recording span with a trace id")
	}
	op.End("ok", nil)
}

func TestLogSubscriber(t *testing.T) {
	tests := []struct {
		name      string
		publish   func(*EventPublisher) error
		wantLevel string
		wantPath  interface{}
	}{
		{name: "info", publish: func(ep *EventPublisher) error { return ep.PublishWorkspaceReset("ws") }, wantLevel: "info"},
		{name: "warning", publish: func(ep *EventPublisher) error { return ep.PublishSinkFailed("ws", "boom") }, wantLevel: "warn"},
		{name: "error", publish: func(ep *EventPublisher) error {
			return ep.PublishDiffRejected("ws", "main.tf", "context mismatch")
		}, wantLevel: "error", wantPath: "main.tf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWriterLogger(&buf, LoggingConfig{Level: "debug", Format: "json"})
			ep, _ := NewEventPublisher(EventsConfig{Enabled: true})
			ep.Subscribe(LogSubscriber(logger), nil)

			if err := tt.publish(ep); err != nil {
				t.Fatalf("publish failed: %v", err)
			}

			var entry map[string]interface{}
			if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
				t.Fatalf("log line is not JSON: %v (%s)", err, buf.String())
			}
			if entry["level"] != tt.wantLevel {
				t.Errorf("expected level %s, got %v", tt.wantLevel, entry["level"])
			}
			if entry["workspace"] != "ws" || entry["path"] != tt.wantPath {
				t.Errorf("unexpected fields: %v", entry)
			}
			if entry["event_type"] == nil || entry["event_id"] == nil {
				t.Errorf("event identity missing: %v", entry)
			}
		})
	}
}

func TestNewTelemetryCountsEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = true
	tel, err := NewTelemetry(cfg)
	if err != nil {
		t.Fatalf("NewTelemetry failed: %v", err)
	}
	defer tel.Shutdown(context.Background())

	_ = tel.Events.PublishWorkspaceReset("ws")
	_ = tel.Events.PublishWorkspaceReset("ws")

	rec := httptest.NewRecorder()
	tel.Metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	want := `tfsandbox_events_total{level="info",type="workspace.reset"} 2`
	if !strings.Contains(rec.Body.String(), want) {
		t.Errorf("metrics output missing %q", want)
	}
}
