package repo

import (
	"context"
	"database/sql"

	"launchpad/internal/domain"
)

const userColumns = `id,username,COALESCE(email,''),role,workspace_id,created_at`

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var ws sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Role, &ws, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.WorkspaceID = stringPtr(ws)
	return u, err
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.exec(ctx, tx, `INSERT INTO users(id,username,email,role,workspace_id,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Username, nullable(u.Email), u.Role, nullableStringPtr(u.WorkspaceID), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return scanUser(r.queryRow(ctx, tx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByUsername(ctx context.Context, tx *sql.Tx, username string) (domain.User, error) {
	return scanUser(r.queryRow(ctx, tx, `SELECT `+userColumns+` FROM users WHERE username=?`, username))
}

// ExistingUserIDs returns the subset of ids that resolve to users.
func (r Repo) ExistingUserIDs(ctx context.Context, tx *sql.Tx, ids []string) (map[string]bool, error) {
	found := make(map[string]bool, len(ids))
	for _, id := range ids {
		var got string
		err := r.queryRow(ctx, tx, `SELECT id FROM users WHERE id=?`, id).Scan(&got)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, err
		}
		found[got] = true
	}
	return found, nil
}

func (r Repo) SetUserWorkspace(ctx context.Context, tx *sql.Tx, userID string, workspaceID *string) error {
	res, err := r.exec(ctx, tx, `UPDATE users SET workspace_id=? WHERE id=?`, nullableStringPtr(workspaceID), userID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

const workspaceColumns = `id,name,owner_id,join_code,score_total,created_at`

func scanWorkspace(row rowScanner) (domain.Workspace, error) {
	var w domain.Workspace
	var code sql.NullString
	err := row.Scan(&w.ID, &w.Name, &w.OwnerID, &code, &w.ScoreTotal, &w.CreatedAt)
	if err == sql.ErrNoRows {
		return w, ErrNotFound
	}
	w.JoinCode = stringPtr(code)
	return w, err
}

func (r Repo) InsertWorkspace(ctx context.Context, tx *sql.Tx, w domain.Workspace) error {
	_, err := r.exec(ctx, tx, `INSERT INTO workspaces(id,name,owner_id,join_code,score_total,created_at) VALUES (?,?,?,?,?,?)`,
		w.ID, w.Name, w.OwnerID, nullableStringPtr(w.JoinCode), w.ScoreTotal, w.CreatedAt)
	return err
}

func (r Repo) GetWorkspace(ctx context.Context, tx *sql.Tx, id string) (domain.Workspace, error) {
	return scanWorkspace(r.queryRow(ctx, tx, `SELECT `+workspaceColumns+` FROM workspaces WHERE id=?`, id))
}

func (r Repo) GetWorkspaceByOwner(ctx context.Context, tx *sql.Tx, ownerID string) (domain.Workspace, error) {
	return scanWorkspace(r.queryRow(ctx, tx, `SELECT `+workspaceColumns+` FROM workspaces WHERE owner_id=?`, ownerID))
}

func (r Repo) GetWorkspaceByJoinCode(ctx context.Context, tx *sql.Tx, code string) (domain.Workspace, error) {
	return scanWorkspace(r.queryRow(ctx, tx, `SELECT `+workspaceColumns+` FROM workspaces WHERE join_code=?`, code))
}

func (r Repo) SetJoinCode(ctx context.Context, tx *sql.Tx, workspaceID, code string) error {
	res, err := r.exec(ctx, tx, `UPDATE workspaces SET join_code=? WHERE id=?`, nullable(code), workspaceID)
	if err != nil {
		return err
	}
	return mustAffect(res)
}

// ListWorkspaceUsers returns the owner and every member of a workspace.
func (r Repo) ListWorkspaceUsers(ctx context.Context, workspaceID string) ([]domain.User, error) {
	rows, err := r.query(ctx, nil, `SELECT `+userColumns+` FROM users
WHERE workspace_id=? OR id=(SELECT owner_id FROM workspaces WHERE id=?)
ORDER BY username ASC`, workspaceID, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
