package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrEventBufferFull is returned by Publish when the async buffer is full.
var ErrEventBufferFull = errors.New("event buffer full, event dropped")

// Event is a notable sandbox occurrence delivered to subscribers.
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Workspace string                 `json:"workspace,omitempty"`
	Path      string                 `json:"path,omitempty"`
	Message   string                 `json:"message"`
	Level     string                 `json:"level"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeWorkspaceReset      = "workspace.reset"
	EventTypeFilesWritten        = "workspace.files_written"
	EventTypeDiffApplied         = "diff.applied"
	EventTypeDiffRejected        = "diff.rejected"
	EventTypeValidationCompleted = "validation.completed"
	EventTypeSinkFailed          = "sink.failed"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber handles a delivered event.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, inline or from a buffered
// background goroutine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		if cfg.MaxBatchSize <= 0 {
			ep.config.MaxBatchSize = 1
		}
		ep.buffer = make(chan Event, cfg.BufferSize)
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish stamps and delivers an event.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return ErrEventBufferFull
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishWorkspaceReset publishes a reset event.
func (ep *EventPublisher) PublishWorkspaceReset(workspace string) error {
	return ep.Publish(Event{
		Type:      EventTypeWorkspaceReset,
		Source:    "sandbox",
		Workspace: workspace,
		Message:   fmt.Sprintf("Workspace %s reset", workspace),
		Level:     EventLevelInfo,
	})
}

// PublishFilesWritten publishes a bulk write event.
func (ep *EventPublisher) PublishFilesWritten(workspace string, count int) error {
	return ep.Publish(Event{
		Type:      EventTypeFilesWritten,
		Source:    "sandbox",
		Workspace: workspace,
		Message:   fmt.Sprintf("%d files written to %s", count, workspace),
		Level:     EventLevelInfo,
		Data:      map[string]interface{}{"count": count},
	})
}

// PublishDiffApplied publishes the outcome of a patch on one path.
func (ep *EventPublisher) PublishDiffApplied(workspace, path string, changed bool, added, removed int) error {
	return ep.Publish(Event{
		Type:      EventTypeDiffApplied,
		Source:    "sandbox",
		Workspace: workspace,
		Path:      path,
		Message:   fmt.Sprintf("Patch applied to %s (+%d -%d)", path, added, removed),
		Level:     EventLevelInfo,
		Data: map[string]interface{}{
			"changed": changed,
			"added":   added,
			"removed": removed,
		},
	})
}

// PublishDiffRejected publishes a patch that could not be applied.
func (ep *EventPublisher) PublishDiffRejected(workspace, path, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeDiffRejected,
		Source:    "sandbox",
		Workspace: workspace,
		Path:      path,
		Message:   fmt.Sprintf("Patch rejected for %s: %s", path, reason),
		Level:     EventLevelError,
		Data:      map[string]interface{}{"reason": reason},
	})
}

// PublishValidationCompleted publishes a pipeline verdict.
func (ep *EventPublisher) PublishValidationCompleted(workspace, status string, duration time.Duration) error {
	level := EventLevelInfo
	if status != "ok" {
		level = EventLevelWarning
	}
	return ep.Publish(Event{
		Type:      EventTypeValidationCompleted,
		Source:    "pipeline",
		Workspace: workspace,
		Message:   fmt.Sprintf("Validation of %s completed with status: %s", workspace, status),
		Level:     level,
		Data: map[string]interface{}{
			"status":   status,
			"duration": duration.Seconds(),
		},
	})
}

// PublishSinkFailed publishes a swallowed change sink failure.
func (ep *EventPublisher) PublishSinkFailed(workspace, reason string) error {
	return ep.Publish(Event{
		Type:      EventTypeSinkFailed,
		Source:    "sandbox",
		Workspace: workspace,
		Message:   fmt.Sprintf("Change sink failed: %s", reason),
		Level:     EventLevelWarning,
		Data:      map[string]interface{}{"reason": reason},
	})
}

// Subscribe adds a subscriber with an optional filter.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	if ep == nil {
		return
	}
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	batch := make([]Event, 0, ep.config.MaxBatchSize)
	flush := func() {
		for _, event := range batch {
			ep.deliverEvent(event)
		}
		batch = batch[:0]
	}

	for {
		select {
		case event := <-ep.buffer:
			batch = append(batch, event)
			// Deliver once the buffer drains or the batch is full.
			if len(batch) >= ep.config.MaxBatchSize || len(ep.buffer) == 0 {
				flush()
			}
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					batch = append(batch, event)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains pending events and stops the background goroutine.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

var eventLevels = map[string]int{
	EventLevelInfo:    0,
	EventLevelWarning: 1,
	EventLevelError:   2,
}

// FilterByLevel allows events of minLevel or higher.
func FilterByLevel(minLevel string) EventFilter {
	minLevelValue := eventLevels[minLevel]

	return func(event Event) bool {
		return eventLevels[event.Level] >= minLevelValue
	}
}

// LogSubscriber writes events to logger at the matching log level.
func LogSubscriber(logger *Logger) EventSubscriber {
	return func(event Event) {
		l := logger.WithFields(map[string]interface{}{
			"event_type": event.Type,
			"event_id":   event.ID,
			"source":     event.Source,
		})
		if event.Workspace != "" {
			l = l.WithField("workspace", event.Workspace)
		}
		if event.Path != "" {
			l = l.WithPath(event.Path)
		}

		switch event.Level {
		case EventLevelError:
			l.Error(event.Message)
		case EventLevelWarning:
			l.Warn(event.Message)
		default:
			l.Info(event.Message)
		}
	}
}
