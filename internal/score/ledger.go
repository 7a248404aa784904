package score

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"launchpad/internal/domain"
	"launchpad/internal/events"
	"launchpad/internal/repo"
)

// Entry is one ledger append.
type Entry struct {
	WorkspaceID string
	EventType   string
	Points      int
	Note        string
	ActorID     string
}

// Ledger is the append-only score log with a running total per workspace.
type Ledger struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Now    func() time.Time
}

func (l Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Append records an entry in its own transaction.
func (l Ledger) Append(ctx context.Context, e Entry) (domain.ScoreEvent, error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.ScoreEvent{}, err
	}
	defer tx.Rollback()
	ev, err := l.AppendTx(ctx, tx, e)
	if err != nil {
		return domain.ScoreEvent{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.ScoreEvent{}, err
	}
	return ev, nil
}

// AppendTx inserts the event row and bumps the workspace total with a single
// relative UPDATE, both inside tx.
func (l Ledger) AppendTx(ctx context.Context, tx *sql.Tx, e Entry) (domain.ScoreEvent, error) {
	if strings.TrimSpace(e.WorkspaceID) == "" {
		return domain.ScoreEvent{}, domain.InvalidArgument("workspace is required")
	}
	if strings.TrimSpace(e.EventType) == "" {
		return domain.ScoreEvent{}, domain.InvalidArgument("event type is required")
	}
	ev := domain.ScoreEvent{
		WorkspaceID: e.WorkspaceID,
		EventType:   e.EventType,
		Points:      e.Points,
		Note:        e.Note,
		CreatedAt:   domain.FormatTime(l.now()),
	}
	id, err := l.Repo.InsertScoreEvent(ctx, tx, ev)
	if err != nil {
		return domain.ScoreEvent{}, fmt.Errorf("insert score event: %w", err)
	}
	ev.ID = id
	if err := l.Repo.AddScore(ctx, tx, e.WorkspaceID, e.Points); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.ScoreEvent{}, domain.NotFound("workspace %s not found", e.WorkspaceID)
		}
		return domain.ScoreEvent{}, fmt.Errorf("update score total: %w", err)
	}
	actor := e.ActorID
	if actor == "" {
		actor = "system"
	}
	if err := l.Events.Append(ctx, tx, "score.awarded", e.WorkspaceID, "workspace", e.WorkspaceID, actor, events.EventPayload{
		"score_event_id": id,
		"event_type":     e.EventType,
		"points":         e.Points,
	}); err != nil {
		return domain.ScoreEvent{}, err
	}
	return ev, nil
}

// Total returns the running total for a workspace.
func (l Ledger) Total(ctx context.Context, workspaceID string) (int, error) {
	total, err := l.Repo.ScoreTotal(ctx, workspaceID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, domain.NotFound("workspace %s not found", workspaceID)
	}
	return total, err
}

// ListEvents returns the newest score events first.
func (l Ledger) ListEvents(ctx context.Context, workspaceID string, limit int) ([]domain.ScoreEvent, error) {
	return l.Repo.ListScoreEvents(ctx, workspaceID, limit)
}
