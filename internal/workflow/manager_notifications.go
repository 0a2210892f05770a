package workflow

import (
	"context"
	"time"

	"dubbing/internal/breaker"
	"dubbing/internal/logging"
	"dubbing/internal/notifications"
	"dubbing/internal/queue"
)

func (m *Manager) notifyTerminal(ctx context.Context, job queue.Job) {
	if m.notifier == nil {
		return
	}
	var (
		event   notifications.Event
		payload notifications.Payload
	)
	switch job.Status {
	case queue.StatusCompleted:
		event = notifications.EventJobCompleted
		payload = notifications.Payload{
			"input":    job.InputVideo,
			"output":   job.OutputVideo,
			"language": job.TargetLanguage,
			"duration": job.ProcessingTime().Round(time.Second).String(),
		}
	case queue.StatusFailed:
		event = notifications.EventJobFailed
		payload = notifications.Payload{
			"input":              job.InputVideo,
			"error":              job.ErrorMessage,
			"needs_intervention": job.NeedsIntervention,
		}
	default:
		return
	}
	m.publishNotification(ctx, event, payload)
}

func (m *Manager) publishNotification(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	// Delivery runs detached so a slow ntfy server never holds a worker.
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := m.notifier.Publish(detached, event, payload); err != nil {
			logging.WarnWithContext(logging.WithContext(detached, m.logger), "notification failed", "notification_failed",
				logging.String("notification", string(event)),
				logging.Error(err),
				logging.Hint("check the ntfy topic URL"),
				logging.Impact("operator was not notified"),
			)
		}
	}()
}

func (m *Manager) onBreakerChange(name string, from, to breaker.State) {
	logger := m.logger.With(logging.String(logging.FieldDependency, name))
	switch to {
	case breaker.StateOpen:
		logging.WarnWithContext(logger, "circuit breaker opened", "breaker_open",
			logging.String("from", from.String()),
			logging.Hint("check the dependency; calls fail fast until the cooldown elapses"),
			logging.Impact("stages using this dependency fail or fall back"),
		)
		m.publishNotification(context.Background(), notifications.EventBreakerOpen, notifications.Payload{"dependency": name})
	default:
		logger.Info("circuit breaker state changed",
			logging.EventType("breaker_state"),
			logging.String("from", from.String()),
			logging.String("to", to.String()),
		)
	}
	m.events.Publish(Event{
		Type:       EventBreaker,
		Dependency: name,
		Message:    to.String(),
		Timestamp:  m.now(),
	})
}

// observe hands terminal snapshots to registered observers.
func (m *Manager) observe(ctx context.Context, job queue.Job) {
	detached := context.WithoutCancel(ctx)
	for _, observer := range m.observers {
		observer(detached, job.Clone())
	}
}
