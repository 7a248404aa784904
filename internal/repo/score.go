package repo

import (
	"context"
	"database/sql"

	"launchpad/internal/domain"
)

// InsertScoreEvent appends a ledger row and returns its id.
func (r Repo) InsertScoreEvent(ctx context.Context, tx *sql.Tx, e domain.ScoreEvent) (int64, error) {
	var id int64
	err := r.queryRow(ctx, tx, `INSERT INTO score_events(workspace_id,event_type,points,note,created_at) VALUES (?,?,?,?,?) RETURNING id`,
		e.WorkspaceID, e.EventType, e.Points, nullable(e.Note), e.CreatedAt).Scan(&id)
	return id, err
}

// AddScore increments the running total in a single statement.
func (r Repo) AddScore(ctx context.Context, tx *sql.Tx, workspaceID string, points int) error {
	res, err := r.exec(ctx, tx, `UPDATE workspaces SET score_total = score_total + ? WHERE id=?`, points, workspaceID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

func (r Repo) ScoreTotal(ctx context.Context, workspaceID string) (int, error) {
	var total int
	err := r.queryRow(ctx, nil, `SELECT score_total FROM workspaces WHERE id=?`, workspaceID).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	return total, err
}

func (r Repo) ListScoreEvents(ctx context.Context, workspaceID string, limit int) ([]domain.ScoreEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.query(ctx, nil, `SELECT id,workspace_id,event_type,points,COALESCE(note,''),created_at FROM score_events
WHERE workspace_id=? ORDER BY id DESC LIMIT ?`, workspaceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ScoreEvent
	for rows.Next() {
		var e domain.ScoreEvent
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.EventType, &e.Points, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
