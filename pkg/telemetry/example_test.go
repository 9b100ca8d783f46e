package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/tfsandbox/tfsandbox/pkg/telemetry"
)

// Example_operation shows the instrumentation wrapped around one sandbox
// operation.
func Example_operation() {
	tel := telemetry.Nop()
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type, e.Data["status"])
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	op := tel.StartOperation(context.Background(), nil, "validate_only")
	_ = tel.Events.PublishValidationCompleted("memory", "lint_failed", time.Second)
	op.End("lint_failed", nil)

	// Output: validation.completed lint_failed
}

// Example_eventFiltering shows level filters.
func Example_eventFiltering() {
	tel := telemetry.Nop()

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type, e.Path)
	}, telemetry.FilterByLevel(telemetry.EventLevelError))

	_ = tel.Events.PublishDiffApplied("memory", "main.tf", true, 1, 1)
	_ = tel.Events.PublishDiffRejected("memory", "net.tf", "context mismatch")

	// Output: diff.rejected net.tf
}
