package sandbox

import (
	"context"
	"fmt"
)

// DiffChange is one patch addressed to a workspace path.
type DiffChange struct {
	Path  string `json:"path" validate:"required"`
	Patch string `json:"patch"`
}

// ChangeSink receives the raw change list of every ApplyDiff call before any
// patch is applied. Delivery is at most once per call; errors and panics are
// swallowed by the sandbox.
type ChangeSink interface {
	RecordChanges(ctx context.Context, workspace string, changes []DiffChange) error
}

// SinkFunc adapts a function to ChangeSink.
type SinkFunc func(ctx context.Context, workspace string, changes []DiffChange) error

// RecordChanges implements ChangeSink.
func (f SinkFunc) RecordChanges(ctx context.Context, workspace string, changes []DiffChange) error {
	return f(ctx, workspace, changes)
}

// Notification outcomes.
const (
	NotificationDelivered = "delivered"
	NotificationSkipped   = "skipped"
	NotificationFailed    = "failed"
)

// notify delivers changes to the sink, converting a panic into an error.
func (s *Sandbox) notify(ctx context.Context, changes []DiffChange) (outcome string) {
	if s.sink == nil {
		s.tel.Metrics.RecordSinkDelivery(NotificationSkipped)
		return NotificationSkipped
	}

	defer func() {
		s.tel.Metrics.RecordSinkDelivery(outcome)
	}()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("change sink panicked: %v", r)
			}
		}()
		cp := make([]DiffChange, len(changes))
		copy(cp, changes)
		return s.sink.RecordChanges(ctx, s.name, cp)
	}()
	if err != nil {
		s.log.WithError(err).WithField("changes", len(changes)).Warn("change sink failed")
		_ = s.tel.Events.PublishSinkFailed(s.name, err.Error())
		return NotificationFailed
	}
	return NotificationDelivered
}
