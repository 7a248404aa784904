package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"launchpad/internal/domain"
)

// Outbox collects notifications produced inside a transaction. Nothing is
// delivered until Dispatcher.Flush runs after commit.
type Outbox struct {
	pending []domain.Notification
}

func (o *Outbox) Add(userID, message, kind, relatedID string) {
	n := domain.Notification{UserID: userID, Message: message, Kind: kind}
	if relatedID != "" {
		id := relatedID
		n.RelatedID = &id
	}
	o.pending = append(o.pending, n)
}

func (o *Outbox) Len() int { return len(o.pending) }

// Pending returns a copy of the queued notifications.
func (o *Outbox) Pending() []domain.Notification {
	return append([]domain.Notification(nil), o.pending...)
}

// Dispatcher delivers flushed outboxes to a sink.
type Dispatcher struct {
	Sink Sink
	Log  *zap.Logger
	Now  func() time.Time
}

// Flush delivers every pending notification and empties the outbox.
// Delivery failures are logged and never returned; the triggering write has
// already committed. It returns the number delivered.
func (d Dispatcher) Flush(ctx context.Context, o *Outbox) int {
	if o == nil || len(o.pending) == 0 {
		return 0
	}
	pending := o.pending
	o.pending = nil
	if d.Sink == nil {
		return 0
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	delivered := 0
	for _, n := range pending {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		if n.CreatedAt == "" {
			n.CreatedAt = domain.FormatTime(now())
		}
		if err := d.Sink.Enqueue(ctx, n); err != nil {
			log.Warn("notification delivery failed",
				zap.String("user_id", n.UserID),
				zap.String("kind", n.Kind),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
