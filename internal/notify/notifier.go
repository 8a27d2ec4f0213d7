package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event names emitted by the scheduling and approval engines.
const (
	EventLessonCreated    = "lesson.created"
	EventLessonModified   = "lesson.modified"
	EventLessonCancelled  = "lesson.cancelled"
	EventLessonReminder   = "lesson.reminder"
	EventFreeSlot         = "lesson.free_slot"
	EventRequestSubmitted = "request.submitted"
	EventRequestApproved  = "request.approved"
	EventRequestRejected  = "request.rejected"
)

// Notifier is the fire-and-forget hook into the surrounding application's
// mail/notification delivery. Implementations must not block the caller; the
// engines emit only after their transaction has committed and never observe a
// delivery failure.
type Notifier interface {
	Emit(ctx context.Context, event string, payload map[string]any)
}

// Sink is a blocking delivery backend (mail relay, message queue). Async
// turns one into a Notifier.
type Sink interface {
	Deliver(ctx context.Context, event string, payload map[string]any) error
}

// Async dispatches each event on its own goroutine with a delivery timeout.
// Failures are logged and dropped.
type Async struct {
	sink    Sink
	log     *zap.Logger
	timeout time.Duration
}

func NewAsync(sink Sink, log *zap.Logger, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Async{sink: sink, log: log, timeout: timeout}
}

func (a *Async) Emit(ctx context.Context, event string, payload map[string]any) {
	// Detach from the caller's deadline: the operation has already
	// committed, its cancellation must not cancel delivery.
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		if err := a.sink.Deliver(ctx, event, payload); err != nil {
			a.log.Warn("notification delivery failed",
				zap.String("event", event),
				zap.Error(err),
			)
		}
	}()
}

// LogSink is the default delivery backend: it writes the event to the log.
// The real mail relay lives outside this service.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Deliver(ctx context.Context, event string, payload map[string]any) error {
	s.log.Info("event emitted",
		zap.String("event", event),
		zap.Any("payload", payload),
	)
	return nil
}

// Nop discards every event. Used in tests.
type Nop struct{}

func (Nop) Emit(ctx context.Context, event string, payload map[string]any) {}
