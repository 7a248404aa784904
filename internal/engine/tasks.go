package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"launchpad/internal/domain"
	"launchpad/internal/engine/auth"
	"launchpad/internal/events"
	"launchpad/internal/notify"
	"launchpad/internal/repo"
	"launchpad/internal/score"
)

const minTaskTitleLen = 2

type TaskCreateOptions struct {
	Title            string
	Description      string
	Priority         string
	DueDate          string
	AssigneeUsername string
}

// TaskPatch holds the fields to change; nil leaves a field as is. An empty
// AssigneeUsername, Description or DueDate clears the value.
type TaskPatch struct {
	Title            *string
	Description      *string
	Status           *string
	Priority         *string
	DueDate          *string
	AssigneeUsername *string
}

// onlyStatus reports whether the patch touches nothing but status.
func (p TaskPatch) onlyStatus() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.DueDate == nil && p.AssigneeUsername == nil
}

func validateTaskTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	if n < minTaskTitleLen || n > maxTitleLen {
		return "", domain.InvalidArgument("title must be between %d and %d characters", minTaskTitleLen, maxTitleLen)
	}
	return title, nil
}

func parsePriority(v string) (domain.TaskPriority, error) {
	p := domain.TaskPriority(strings.ToUpper(strings.TrimSpace(v)))
	if !p.Valid() {
		return "", domain.InvalidArgument("priority must be one of LOW, MEDIUM, HIGH")
	}
	return p, nil
}

func parseStatus(v string) (domain.TaskStatus, error) {
	s := domain.TaskStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", domain.InvalidArgument("status must be one of TODO, IN_PROGRESS, DONE")
	}
	return s, nil
}

// parseDueDate returns nil for an empty value.
func parseDueDate(v string) (*string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	if _, err := time.Parse(domain.DateLayout, v); err != nil {
		return nil, domain.InvalidArgument("due date must be formatted YYYY-MM-DD")
	}
	return &v, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// resolveAssignee looks up a username and checks it belongs to workspaceID
// as a member or as its owner. An empty username resolves to nil.
func (e Engine) resolveAssignee(ctx context.Context, tx *sql.Tx, workspaceID, username string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, nil
	}
	u, err := e.Repo.GetUserByUsername(ctx, tx, username)
	if err != nil {
		return nil, notFound(err, "assignee username not found")
	}
	if u.WorkspaceID != nil && *u.WorkspaceID == workspaceID {
		return &u, nil
	}
	ws, err := e.Repo.GetWorkspaceByOwner(ctx, tx, u.ID)
	if err == nil && ws.ID == workspaceID {
		return &u, nil
	}
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	return nil, domain.InvalidArgument("this user is not a member of your workspace")
}

func assignmentMessage(title string) string {
	return fmt.Sprintf("You were assigned to task '%s'.", title)
}

// ListTasks returns every workspace task for the owner tier and only the
// actor's assigned tasks for members, newest first.
func (e Engine) ListTasks(ctx context.Context, actor auth.Actor) ([]domain.Task, error) {
	if err := actor.RequireWorkspace(); err != nil {
		return nil, err
	}
	f := repo.TaskFilters{WorkspaceID: actor.WorkspaceID}
	if !actor.IsOwner() {
		f.AssigneeID = actor.UserID
	}
	return e.Repo.ListTasks(ctx, f)
}

func (e Engine) CreateTask(ctx context.Context, actor auth.Actor, opts TaskCreateOptions) (t domain.Task, err error) {
	ctx, end := startSpan(ctx, "task.create", actor, attribute.String("workspace.id", actor.WorkspaceID))
	defer end(&err)
	e = e.clock()

	if err := actor.RequireWorkspace(); err != nil {
		return domain.Task{}, err
	}
	if !actor.IsOwner() {
		return domain.Task{}, domain.Forbidden("only the workspace owner (or ADMIN) can create tasks")
	}
	title, err := validateTaskTitle(opts.Title)
	if err != nil {
		return domain.Task{}, err
	}
	priority := domain.PriorityMedium
	if strings.TrimSpace(opts.Priority) != "" {
		if priority, err = parsePriority(opts.Priority); err != nil {
			return domain.Task{}, err
		}
	}
	due, err := parseDueDate(opts.DueDate)
	if err != nil {
		return domain.Task{}, err
	}

	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	assignee, err := e.resolveAssignee(ctx, tx, actor.WorkspaceID, opts.AssigneeUsername)
	if err != nil {
		return domain.Task{}, err
	}
	now := e.timestamp()
	t = domain.Task{
		ID:          uuid.NewString(),
		WorkspaceID: actor.WorkspaceID,
		Title:       title,
		Description: optional(opts.Description),
		Status:      domain.TaskTodo,
		Priority:    priority,
		DueDate:     due,
		CreatorID:   actor.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var outbox notify.Outbox
	if assignee != nil {
		t.AssigneeID = &assignee.ID
		outbox.Add(assignee.ID, assignmentMessage(t.Title), domain.NotificationTask, t.ID)
	}
	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.created", t.WorkspaceID, "task", t.ID, actor.UserID, events.EventPayload{
		"title":    t.Title,
		"priority": t.Priority,
		"assignee": t.AssigneeID,
	}); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	e.Notify.Flush(ctx, &outbox)
	return t, nil
}

// loadTask fetches a task inside the actor's workspace. A task in another
// workspace is reported as not found.
func (e Engine) loadTask(ctx context.Context, tx *sql.Tx, actor auth.Actor, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, tx, id)
	if err != nil {
		return domain.Task{}, notFound(err, "task not found")
	}
	if t.WorkspaceID != actor.WorkspaceID {
		return domain.Task{}, domain.NotFound("task not found")
	}
	return t, nil
}

func isAssignee(t domain.Task, userID string) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

func (e Engine) GetTask(ctx context.Context, actor auth.Actor, id string) (domain.Task, error) {
	if err := actor.RequireWorkspace(); err != nil {
		return domain.Task{}, err
	}
	t, err := e.loadTask(ctx, nil, actor, id)
	if err != nil {
		return domain.Task{}, err
	}
	if !actor.IsOwner() && !isAssignee(t, actor.UserID) {
		return domain.Task{}, domain.Forbidden("you can only view tasks assigned to you")
	}
	return t, nil
}

// UpdateTask applies a patch. Members may only change the status of tasks
// assigned to them. Moving a task into DONE from any other status appends
// one score event in the same transaction.
func (e Engine) UpdateTask(ctx context.Context, actor auth.Actor, id string, patch TaskPatch) (t domain.Task, err error) {
	ctx, end := startSpan(ctx, "task.update", actor, attribute.String("task.id", id))
	defer end(&err)
	e = e.clock()

	if err := actor.RequireWorkspace(); err != nil {
		return domain.Task{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	t, err = e.loadTask(ctx, tx, actor, id)
	if err != nil {
		return domain.Task{}, err
	}
	owner := actor.IsOwner()
	if !owner {
		if !isAssignee(t, actor.UserID) {
			return domain.Task{}, domain.Forbidden("you can only update tasks assigned to you")
		}
		if !patch.onlyStatus() {
			return domain.Task{}, domain.Forbidden("members can only update task status")
		}
	}

	oldStatus := t.Status
	oldAssignee := t.AssigneeID
	changed := map[string]any{}
	if owner {
		if patch.Title != nil {
			title, err := validateTaskTitle(*patch.Title)
			if err != nil {
				return domain.Task{}, err
			}
			t.Title = title
			changed["title"] = title
		}
		if patch.Description != nil {
			t.Description = optional(*patch.Description)
			changed["description"] = true
		}
		if patch.Priority != nil {
			p, err := parsePriority(*patch.Priority)
			if err != nil {
				return domain.Task{}, err
			}
			t.Priority = p
			changed["priority"] = p
		}
		if patch.DueDate != nil {
			due, err := parseDueDate(*patch.DueDate)
			if err != nil {
				return domain.Task{}, err
			}
			t.DueDate = due
			changed["due_date"] = due
		}
		if patch.AssigneeUsername != nil {
			assignee, err := e.resolveAssignee(ctx, tx, t.WorkspaceID, *patch.AssigneeUsername)
			if err != nil {
				return domain.Task{}, err
			}
			t.AssigneeID = nil
			if assignee != nil {
				t.AssigneeID = &assignee.ID
			}
			changed["assignee"] = t.AssigneeID
		}
	}
	if patch.Status != nil {
		s, err := parseStatus(*patch.Status)
		if err != nil {
			return domain.Task{}, err
		}
		t.Status = s
		changed["status"] = s
	}
	if len(changed) == 0 {
		return t, nil
	}
	t.UpdatedAt = e.timestamp()
	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, fmt.Errorf("update task: %w", err)
	}
	changed["from_status"] = oldStatus
	if err := e.Events.Append(ctx, tx, "task.updated", t.WorkspaceID, "task", t.ID, actor.UserID, events.EventPayload(changed)); err != nil {
		return domain.Task{}, err
	}
	if oldStatus != domain.TaskDone && t.Status == domain.TaskDone {
		if _, err := e.Ledger.AppendTx(ctx, tx, score.Entry{
			WorkspaceID: t.WorkspaceID,
			EventType:   e.Config.Scoring.TaskDoneEvent,
			Points:      e.Config.Scoring.TaskDonePoints,
			Note:        fmt.Sprintf("Task completed: %s", t.Title),
			ActorID:     actor.UserID,
		}); err != nil {
			return domain.Task{}, fmt.Errorf("award score: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	var outbox notify.Outbox
	if t.AssigneeID != nil && (oldAssignee == nil || *oldAssignee != *t.AssigneeID) {
		outbox.Add(*t.AssigneeID, assignmentMessage(t.Title), domain.NotificationTask, t.ID)
	}
	e.Notify.Flush(ctx, &outbox)
	return t, nil
}

func (e Engine) DeleteTask(ctx context.Context, actor auth.Actor, id string) (err error) {
	ctx, end := startSpan(ctx, "task.delete", actor, attribute.String("task.id", id))
	defer end(&err)
	e = e.clock()

	if err := actor.RequireWorkspace(); err != nil {
		return err
	}
	if !actor.IsOwner() {
		return domain.Forbidden("only the workspace owner (or ADMIN) can delete tasks")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	t, err := e.loadTask(ctx, tx, actor, id)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteTask(ctx, tx, t.ID); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "task.deleted", t.WorkspaceID, "task", t.ID, actor.UserID, events.EventPayload{
		"title": t.Title,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
