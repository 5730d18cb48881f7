package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/rolecounter/internal/audit"
	"github.com/odyssey-erp/rolecounter/internal/rbac"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskACLEvent carries one committed access-control event to the audit sink.
	TaskACLEvent = "acl:event"
)

// ACLEventPayload describes one event emitted by a committed call.
type ACLEventPayload struct {
	CallID     string     `json:"call_id"`
	Seq        int        `json:"seq"`
	Deployment string     `json:"deployment"`
	Event      rbac.Event `json:"event"`
	At         time.Time  `json:"at"`
}

// NewACLEventTask constructs an Asynq task. The task id is derived from the call id and
// sequence so a republished event is rejected by the queue.
func NewACLEventTask(payload ACLEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskACLEvent, data, asynq.TaskID(fmt.Sprintf("%s:%d", payload.CallID, payload.Seq))), nil
}

// EventSink stores decoded events.
type EventSink interface {
	Record(ctx context.Context, entry audit.Entry) error
}

// NewACLEventHandler processes TaskACLEvent tasks into sink.
func NewACLEventHandler(sink EventSink, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload ACLEventPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("jobs: decode acl event: %v: %w", err, asynq.SkipRetry)
		}
		if logger != nil {
			logger.Info("acl event",
				slog.String("call_id", payload.CallID),
				slog.String("event", string(payload.Event.Kind)),
				slog.String("role", string(payload.Event.Role)),
				slog.String("account", string(payload.Event.Account)),
				slog.String("by", string(payload.Event.By)),
			)
		}
		if sink == nil {
			return nil
		}
		return sink.Record(ctx, audit.Entry{
			CallID:     payload.CallID,
			Seq:        payload.Seq,
			Deployment: payload.Deployment,
			Event:      payload.Event,
			At:         payload.At,
		})
	}
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EventPublisher hands committed access-control events to the queue.
type EventPublisher struct {
	enqueuer   Enqueuer
	deployment string
}

// NewEventPublisher builds an EventPublisher for the named deployment.
func NewEventPublisher(enqueuer Enqueuer, deployment string) *EventPublisher {
	return &EventPublisher{enqueuer: enqueuer, deployment: deployment}
}

// Publish enqueues one task per event. Every event is attempted; errors are joined.
func (p *EventPublisher) Publish(ctx context.Context, callID string, at time.Time, events []rbac.Event) error {
	if p == nil || p.enqueuer == nil {
		return errors.New("jobs: publisher not configured")
	}
	var errs []error
	for i, ev := range events {
		task, err := NewACLEventTask(ACLEventPayload{
			CallID:     callID,
			Seq:        i,
			Deployment: p.deployment,
			Event:      ev,
			At:         at,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		_, err = p.enqueuer.EnqueueContext(ctx, task, asynq.Queue(QueueDefault), asynq.MaxRetry(10))
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			errs = append(errs, fmt.Errorf("jobs: enqueue %s: %w", ev.Kind, err))
		}
	}
	return errors.Join(errs...)
}
