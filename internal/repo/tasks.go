package repo

import (
	"context"
	"database/sql"

	"launchpad/internal/domain"
)

const taskColumns = `id,workspace_id,title,description,status,priority,due_date,creator_id,assignee_id,created_at,updated_at`

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var desc, due, assignee sql.NullString
	err := row.Scan(&t.ID, &t.WorkspaceID, &t.Title, &desc, &t.Status, &t.Priority, &due, &t.CreatorID, &assignee, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	t.Description = stringPtr(desc)
	t.DueDate = stringPtr(due)
	t.AssigneeID = stringPtr(assignee)
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := r.exec(ctx, tx, `INSERT INTO tasks(id,workspace_id,title,description,status,priority,due_date,creator_id,assignee_id,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.WorkspaceID, t.Title, nullableStringPtr(t.Description), t.Status, t.Priority, nullableStringPtr(t.DueDate),
		t.CreatorID, nullableStringPtr(t.AssigneeID), t.CreatedAt, t.UpdatedAt)
	return err
}

// GetTask loads a task, locking the row inside a Postgres transaction.
func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.queryRow(ctx, tx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`+r.forUpdate(tx), id))
}

// UpdateTask writes every mutable column. workspace_id is never updated.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := r.exec(ctx, tx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, due_date=?, assignee_id=?, updated_at=? WHERE id=?`,
		t.Title, nullableStringPtr(t.Description), t.Status, t.Priority, nullableStringPtr(t.DueDate),
		nullableStringPtr(t.AssigneeID), t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.exec(ctx, tx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

type TaskFilters struct {
	WorkspaceID string
	AssigneeID  string
	Status      string
	Limit       int
}

// ListTasks returns a workspace's tasks newest first.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE workspace_id=?`
	args := []any{f.WorkspaceID}
	if f.AssigneeID != "" {
		query += ` AND assignee_id=?`
		args = append(args, f.AssigneeID)
	}
	if f.Status != "" {
		query += ` AND status=?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.query(ctx, nil, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}
