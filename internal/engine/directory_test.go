package engine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/domain"
	"launchpad/internal/engine"
	"launchpad/internal/repo"
)

func TestWorkspaceLifecycle(t *testing.T) {
	env := newTestEnv(t)
	student := env.user("sam", domain.RoleStudent)
	_, err := env.Engine.CreateWorkspace(env.Ctx, student, "Nope")
	assertKind(t, err, domain.KindForbidden)

	fx := newWorkspace(env)
	_, err = env.Engine.CreateWorkspace(env.Ctx, fx.owner, "Second")
	assertKind(t, err, domain.KindInvalidState)

	members, err := env.Engine.ListMembers(env.Ctx, fx.member)
	require.NoError(t, err)
	var names []string
	for _, m := range members {
		names = append(names, m.Username)
	}
	assert.Equal(t, []string{"founder", "max", "mia"}, names)

	ws, err := env.Engine.GetWorkspace(env.Ctx, fx.member)
	require.NoError(t, err)
	assert.Nil(t, ws.JoinCode)

	_, err = env.Engine.JoinWorkspace(env.Ctx, student, "bogus")
	assertKind(t, err, domain.KindNotFound)
}

func TestJoinRules(t *testing.T) {
	env := newTestEnv(t)
	fx := newWorkspace(env)
	code, err := env.Engine.RotateJoinCode(env.Ctx, fx.owner)
	require.NoError(t, err)
	assert.Len(t, code, 16)

	_, err = env.Engine.JoinWorkspace(env.Ctx, fx.owner, code)
	assertKind(t, err, domain.KindInvalidArgument)

	// Rejoining the same workspace is a no-op.
	ws, err := env.Engine.JoinWorkspace(env.Ctx, fx.member, code)
	require.NoError(t, err)
	assert.Equal(t, fx.ws.ID, ws.ID)

	rival := env.user("rival", domain.RoleStartuper)
	_, err = env.Engine.CreateWorkspace(env.Ctx, rival, "Rival")
	require.NoError(t, err)
	rivalCode, err := env.Engine.RotateJoinCode(env.Ctx, env.actor("rival"))
	require.NoError(t, err)
	_, err = env.Engine.JoinWorkspace(env.Ctx, fx.member, rivalCode)
	assertKind(t, err, domain.KindInvalidState)

	_, err = env.Engine.RotateJoinCode(env.Ctx, fx.member)
	assertKind(t, err, domain.KindNotFound)
}

func TestCreateUserValidation(t *testing.T) {
	env := newTestEnv(t)
	env.user("dup", domain.RoleStudent)
	_, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "dup"})
	assertKind(t, err, domain.KindInvalidArgument)
	_, err = env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "x", Role: "WIZARD"})
	assertKind(t, err, domain.KindInvalidArgument)

	u, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{Username: "plain"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStudent, u.Role)
	assert.NotEmpty(t, u.ID)
}

func TestNotificationInbox(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	bob := env.user("bob", domain.RoleStudent)
	for i := 0; i < 2; i++ {
		c := env.draft(alice)
		_, err := env.Engine.SendContract(env.Ctx, alice, c.ID, []string{"bob"})
		require.NoError(t, err)
	}

	inbox, err := env.Engine.ListNotifications(env.Ctx, bob, true, 0)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, domain.NotificationContract, inbox[0].Kind)

	assertKind(t, env.Engine.MarkNotificationRead(env.Ctx, alice, inbox[0].ID), domain.KindNotFound)
	require.NoError(t, env.Engine.MarkNotificationRead(env.Ctx, bob, inbox[0].ID))
	n, err := env.Engine.MarkAllNotificationsRead(env.Ctx, bob)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err := env.Engine.ListNotifications(env.Ctx, bob, true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestEventsAreOwnerOnly(t *testing.T) {
	env := newTestEnv(t)
	fx := newWorkspace(env)
	_, err := env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{Title: "Logged"})
	require.NoError(t, err)

	_, err = env.Engine.ListEvents(env.Ctx, fx.member, repo.EventFilters{})
	assertKind(t, err, domain.KindForbidden)

	list, err := env.Engine.ListEvents(env.Ctx, fx.owner, repo.EventFilters{Type: "task.created"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fx.ws.ID, list[0].WorkspaceID)
}
