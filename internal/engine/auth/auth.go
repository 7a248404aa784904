package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"launchpad/internal/domain"
	"launchpad/internal/repo"
)

// Tier is the effective permission level of an actor inside its workspace.
type Tier int

const (
	TierNone Tier = iota
	TierMember
	TierOwner
)

func (t Tier) String() string {
	switch t {
	case TierOwner:
		return "OWNER"
	case TierMember:
		return "MEMBER"
	default:
		return "NONE"
	}
}

// Actor is the authorization context computed once per request.
type Actor struct {
	UserID      string
	Username    string
	Role        domain.Role
	Tier        Tier
	WorkspaceID string
}

// RequireWorkspace fails with NotLinked when the actor has no workspace.
func (a Actor) RequireWorkspace() error {
	if a.WorkspaceID == "" {
		return domain.NotLinked()
	}
	return nil
}

func (a Actor) IsOwner() bool { return a.Tier == TierOwner }

// Directory is the identity lookup the resolver needs.
type Directory interface {
	GetUser(ctx context.Context, tx *sql.Tx, id string) (domain.User, error)
	GetWorkspaceByOwner(ctx context.Context, tx *sql.Tx, ownerID string) (domain.Workspace, error)
}

var ErrUnknownActor = errors.New("unknown actor")

// Resolve builds the actor context for userID.
//
// The effective workspace is chosen in two steps: the workspace the user
// owns, if any, otherwise the workspace the user joined as a member. Owning
// a workspace or holding the ADMIN role grants TierOwner; membership alone
// grants TierMember.
func Resolve(ctx context.Context, dir Directory, userID string) (Actor, error) {
	u, err := dir.GetUser(ctx, nil, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return Actor{}, ErrUnknownActor
	}
	if err != nil {
		return Actor{}, fmt.Errorf("resolve actor: %w", err)
	}
	a := Actor{UserID: u.ID, Username: u.Username, Role: u.Role}

	owned, err := dir.GetWorkspaceByOwner(ctx, nil, u.ID)
	switch {
	case err == nil:
		a.WorkspaceID = owned.ID
		a.Tier = TierOwner
	case errors.Is(err, repo.ErrNotFound):
		if u.WorkspaceID != nil && *u.WorkspaceID != "" {
			a.WorkspaceID = *u.WorkspaceID
			a.Tier = TierMember
		}
	default:
		return Actor{}, fmt.Errorf("resolve owned workspace: %w", err)
	}

	if u.Role == domain.RoleAdmin {
		a.Tier = TierOwner
	}
	return a, nil
}
