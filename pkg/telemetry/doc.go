// Package telemetry provides observability instrumentation for the sandbox.
//
// It combines structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus) and an in-process event publisher
// behind a single Telemetry value.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	op := tel.StartOperation(ctx, nil, "validate_only")
//	defer op.End("ok", nil)
//
// # Logging
//
// Logs go to stderr by default because the MCP server speaks JSON-RPC on
// stdout. Components take a child logger:
//
//	logger := tel.Logger.NewComponentLogger("sandbox").WithWorkspace("dir", root)
//	logger.WithPath("main.tf").Debug("patch applied")
//
// # Tracing
//
// Every sandbox operation gets a span named "sandbox.<operation>" and every
// validation stage a child span named "pipeline.<stage>". Exporters: otlp
// (gRPC), stdout (written to stderr) and none.
//
// # Metrics
//
// Metrics live on a private registry and are served by Metrics.Server:
//
//	tfsandbox_operations_total{operation,status}
//	tfsandbox_operation_duration_seconds{operation}
//	tfsandbox_stage_runs_total{stage,outcome}
//	tfsandbox_stage_duration_seconds{stage}
//	tfsandbox_patch_results_total{result}
//	tfsandbox_changed_paths_total{kind}
//	tfsandbox_change_sink_deliveries_total{outcome}
//	tfsandbox_events_total{type,level}
//
// Every Record method is safe to call on disabled or nil metrics.
//
// # Events
//
// The EventPublisher delivers workspace.reset, diff.applied, diff.rejected,
// validation.completed and sink.failed events to subscribers, inline or
// through a buffered goroutine when EnableAsync is set. NewTelemetry counts
// every event in tfsandbox_events_total and logs those at or above
// Events.LogLevel.
package telemetry
