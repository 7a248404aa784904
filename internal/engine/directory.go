package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"launchpad/internal/domain"
	"launchpad/internal/engine/auth"
	"launchpad/internal/events"
	"launchpad/internal/repo"
)

type UserCreateOptions struct {
	ID       string
	Username string
	Email    string
	Role     string
}

// CreateUser registers a directory entry. Credentials are managed elsewhere.
func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	e = e.clock()
	username := strings.TrimSpace(opts.Username)
	if username == "" {
		return domain.User{}, domain.InvalidArgument("username is required")
	}
	role := domain.RoleStudent
	if strings.TrimSpace(opts.Role) != "" {
		role = domain.Role(strings.ToUpper(strings.TrimSpace(opts.Role)))
		if !role.Valid() {
			return domain.User{}, domain.InvalidArgument("role must be one of STUDENT, STARTUPER, ANGEL, ADMIN")
		}
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}
	u := domain.User{
		ID:        id,
		Username:  username,
		Email:     strings.TrimSpace(opts.Email),
		Role:      role,
		CreatedAt: e.timestamp(),
	}
	if _, err := e.Repo.GetUserByUsername(ctx, nil, username); err == nil {
		return domain.User{}, domain.InvalidArgument("username already exists")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, err
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "user.created", "", "user", u.ID, u.ID, events.EventPayload{"username": u.Username, "role": u.Role}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (e Engine) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := e.Repo.GetUser(ctx, nil, id)
	if err != nil {
		return domain.User{}, notFound(err, "user not found")
	}
	return u, nil
}

func (e Engine) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, nil, strings.TrimSpace(username))
	if err != nil {
		return domain.User{}, notFound(err, "user not found")
	}
	return u, nil
}

// CreateWorkspace creates the workspace owned by the actor and links the
// owner to it.
func (e Engine) CreateWorkspace(ctx context.Context, actor auth.Actor, name string) (domain.Workspace, error) {
	e = e.clock()
	if actor.Role != domain.RoleStartuper && actor.Role != domain.RoleAdmin {
		return domain.Workspace{}, domain.Forbidden("only STARTUPER or ADMIN users can create workspaces")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Workspace{}, domain.InvalidArgument("name is required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()

	if _, err := e.Repo.GetWorkspaceByOwner(ctx, tx, actor.UserID); err == nil {
		return domain.Workspace{}, domain.InvalidState("you already own a workspace")
	} else if !errors.Is(err, repo.ErrNotFound) {
		return domain.Workspace{}, err
	}
	u, err := e.Repo.GetUser(ctx, tx, actor.UserID)
	if err != nil {
		return domain.Workspace{}, notFound(err, "user not found")
	}
	if u.WorkspaceID != nil {
		return domain.Workspace{}, domain.InvalidState("you are already linked to a workspace")
	}
	w := domain.Workspace{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   actor.UserID,
		CreatedAt: e.timestamp(),
	}
	if err := e.Repo.InsertWorkspace(ctx, tx, w); err != nil {
		return domain.Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}
	if err := e.Repo.SetUserWorkspace(ctx, tx, actor.UserID, &w.ID); err != nil {
		return domain.Workspace{}, fmt.Errorf("link owner: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "workspace.created", w.ID, "workspace", w.ID, actor.UserID, events.EventPayload{"name": w.Name}); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	return w, nil
}

func newJoinCode() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RotateJoinCode issues a fresh join code for the workspace the actor owns.
func (e Engine) RotateJoinCode(ctx context.Context, actor auth.Actor) (string, error) {
	ws, err := e.Repo.GetWorkspaceByOwner(ctx, nil, actor.UserID)
	if err != nil {
		return "", notFound(err, "you do not own a workspace")
	}
	code, err := newJoinCode()
	if err != nil {
		return "", err
	}
	if err := e.Repo.SetJoinCode(ctx, nil, ws.ID, code); err != nil {
		return "", fmt.Errorf("set join code: %w", err)
	}
	return code, nil
}

// JoinWorkspace links the actor to the workspace holding code.
func (e Engine) JoinWorkspace(ctx context.Context, actor auth.Actor, code string) (domain.Workspace, error) {
	e = e.clock()
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Workspace{}, domain.InvalidArgument("code is required")
	}
	tx, err := e.begin(ctx)
	if err != nil {
		return domain.Workspace{}, err
	}
	defer tx.Rollback()

	ws, err := e.Repo.GetWorkspaceByJoinCode(ctx, tx, code)
	if err != nil {
		return domain.Workspace{}, notFound(err, "invalid join code")
	}
	if ws.OwnerID == actor.UserID {
		return domain.Workspace{}, domain.InvalidArgument("you already own this workspace")
	}
	u, err := e.Repo.GetUser(ctx, tx, actor.UserID)
	if err != nil {
		return domain.Workspace{}, notFound(err, "user not found")
	}
	if u.WorkspaceID != nil {
		if *u.WorkspaceID == ws.ID {
			return ws, nil
		}
		return domain.Workspace{}, domain.InvalidState("you are already linked to another workspace")
	}
	if err := e.Repo.SetUserWorkspace(ctx, tx, actor.UserID, &ws.ID); err != nil {
		return domain.Workspace{}, fmt.Errorf("join workspace: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "workspace.joined", ws.ID, "workspace", ws.ID, actor.UserID, nil); err != nil {
		return domain.Workspace{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Workspace{}, err
	}
	return ws, nil
}

// ListMembers returns the owner and members of the actor's workspace.
func (e Engine) ListMembers(ctx context.Context, actor auth.Actor) ([]domain.User, error) {
	if err := actor.RequireWorkspace(); err != nil {
		return nil, err
	}
	return e.Repo.ListWorkspaceUsers(ctx, actor.WorkspaceID)
}

// GetWorkspace returns the actor's effective workspace.
func (e Engine) GetWorkspace(ctx context.Context, actor auth.Actor) (domain.Workspace, error) {
	if err := actor.RequireWorkspace(); err != nil {
		return domain.Workspace{}, err
	}
	ws, err := e.Repo.GetWorkspace(ctx, nil, actor.WorkspaceID)
	if err != nil {
		return domain.Workspace{}, notFound(err, "workspace not found")
	}
	if !actor.IsOwner() {
		ws.JoinCode = nil
	}
	return ws, nil
}

type Score struct {
	WorkspaceID string `json:"workspace_id"`
	Total       int    `json:"total"`
}

func (e Engine) GetScore(ctx context.Context, actor auth.Actor) (Score, error) {
	if err := actor.RequireWorkspace(); err != nil {
		return Score{}, err
	}
	total, err := e.Ledger.Total(ctx, actor.WorkspaceID)
	if err != nil {
		return Score{}, err
	}
	return Score{WorkspaceID: actor.WorkspaceID, Total: total}, nil
}

func (e Engine) ListScoreEvents(ctx context.Context, actor auth.Actor, limit int) ([]domain.ScoreEvent, error) {
	if err := actor.RequireWorkspace(); err != nil {
		return nil, err
	}
	return e.Ledger.ListEvents(ctx, actor.WorkspaceID, limit)
}

// ListEvents returns the audit trail of the actor's workspace.
func (e Engine) ListEvents(ctx context.Context, actor auth.Actor, f repo.EventFilters) ([]domain.Event, error) {
	if err := actor.RequireWorkspace(); err != nil {
		return nil, err
	}
	if !actor.IsOwner() {
		return nil, domain.Forbidden("only the workspace owner (or ADMIN) can read events")
	}
	f.WorkspaceID = actor.WorkspaceID
	return e.Repo.LatestEvents(ctx, f)
}
