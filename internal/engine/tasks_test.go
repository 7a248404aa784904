package engine_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/domain"
	"launchpad/internal/engine"
	"launchpad/internal/engine/auth"
)

type workspaceFixture struct {
	owner  auth.Actor
	member auth.Actor
	other  auth.Actor
	ws     domain.Workspace
}

func newWorkspace(env testEnv) workspaceFixture {
	env.t.Helper()
	owner := env.user("founder", domain.RoleStartuper)
	ws, err := env.Engine.CreateWorkspace(env.Ctx, owner, "Acme")
	require.NoError(env.t, err)
	code, err := env.Engine.RotateJoinCode(env.Ctx, env.actor("founder"))
	require.NoError(env.t, err)
	for _, name := range []string{"mia", "max"} {
		env.user(name, domain.RoleStudent)
		_, err := env.Engine.JoinWorkspace(env.Ctx, env.actor(name), code)
		require.NoError(env.t, err)
	}
	return workspaceFixture{
		owner:  env.actor("founder"),
		member: env.actor("mia"),
		other:  env.actor("max"),
		ws:     ws,
	}
}

func ptr(s string) *string { return &s }

func scoreEvents(env testEnv, actor auth.Actor) []domain.ScoreEvent {
	env.t.Helper()
	list, err := env.Engine.ListScoreEvents(env.Ctx, actor, 0)
	require.NoError(env.t, err)
	return list
}

// Scenario D.
func TestMemberCompletesAssignedTask(t *testing.T) {
	env := newTestEnv(t)
	fx := newWorkspace(env)

	task, err := env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{
		Title:            "Pitch deck",
		Priority:         "HIGH",
		AssigneeUsername: "mia",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskTodo, task.Status)
	assert.Equal(t, domain.PriorityHigh, task.Priority)
	require.NotNil(t, task.AssigneeID)
	assert.Equal(t, "mia", *task.AssigneeID)
	assert.Equal(t, 1, countWithMessage(env.notifications("mia"), "You were assigned to task 'Pitch deck'."))

	_, err = env.Engine.UpdateTask(env.Ctx, fx.member, task.ID, engine.TaskPatch{Title: ptr("Renamed"), Status: ptr("DONE")})
	assertKind(t, err, domain.KindForbidden)

	done, err := env.Engine.UpdateTask(env.Ctx, fx.member, task.ID, engine.TaskPatch{Status: ptr("DONE")})
	require.NoError(t, err)
	assert.Equal(t, domain.TaskDone, done.Status)
	assert.Equal(t, "Pitch deck", done.Title)

	events := scoreEvents(env, fx.owner)
	require.Len(t, events, 1)
	assert.Equal(t, "TASK_DONE", events[0].EventType)
	assert.Equal(t, 3, events[0].Points)
	assert.Equal(t, "Task completed: Pitch deck", events[0].Note)

	score, err := env.Engine.GetScore(env.Ctx, fx.owner)
	require.NoError(t, err)
	assert.Equal(t, 3, score.Total)
}

func TestDoneTwiceAwardsOnce(t *testing.T) {
	env := newTestEnv(t)
	fx := newWorkspace(env)
	task, err := env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{Title: "Ship MVP"})
	require.NoError(t, err)

	_, err = env.Engine.UpdateTask(env.Ctx, fx.owner, task.ID, engine.TaskPatch{Status: ptr("DONE")})
	require.NoError(t, err)
	_, err = env.Engine.UpdateTask(env.Ctx, fx.owner, task.ID, engine.TaskPatch{Status: ptr("DONE")})
	require.NoError(t, err)
	assert.Len(t, scoreEvents(env, fx.owner), 1)

	// Leaving DONE keeps the points; re-entering DONE is a new edge.
	_, err = env.Engine.UpdateTask(env.Ctx, fx.owner, task.ID, engine.TaskPatch{Status: ptr("IN_PROGRESS")})
	require.NoError(t, err)
	assert.Len(t, scoreEvents(env, fx.owner), 1)
	_, err = env.Engine.UpdateTask(env.Ctx, fx.owner, task.ID, engine.TaskPatch{Status: ptr("DONE")})
	require.NoError(t, err)
	assert.Len(t, scoreEvents(env, fx.owner), 2)

	score, err := env.Engine.GetScore(env.Ctx, fx.owner)
	require.NoError(t, err)
	assert.Equal(t, 6, score.Total)
}

func TestConcurrentDoneAwardsOnce(t *testing.T) {
	env := newTestEnv(t)
	fx := newWorkspace(env)
	task, err := env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{
		Title:            "Close pilot",
		AssigneeUsername: "mia",
	})
	require.NoError(t, err)

	actors := []auth.Actor{fx.owner, fx.member, fx.owner, fx.member}
	var wg sync.WaitGroup
	errs := make(chan error, len(actors))
	for _, actor := range actors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.UpdateTask(context.Background(), actor, task.ID, engine.TaskPatch{Status: ptr("DONE")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, scoreEvents(env, fx.owner), 1)
	score, err := env.Engine.GetScore(env.Ctx, fx.owner)
	require.NoError(t, err)
	assert.Equal(t, 3, score.Total)
}

func TestTaskVisibilityByTier(t *testing.T) {
	env := newTestEnv(t)
	fx := newWorkspace(env)
	mine, err := env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{Title: "For mia", AssigneeUsername: "mia"})
	require.NoError(t, err)
	theirs, err := env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{Title: "For max", AssigneeUsername: "max"})
	require.NoError(t, err)

	all, err := env.Engine.ListTasks(env.Ctx, fx.owner)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, theirs.ID, all[0].ID)

	own, err := env.Engine.ListTasks(env.Ctx, fx.member)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, mine.ID, own[0].ID)

	_, err = env.Engine.GetTask(env.Ctx, fx.member, theirs.ID)
	assertKind(t, err, domain.KindForbidden)
	_, err = env.Engine.UpdateTask(env.Ctx, fx.member, theirs.ID, engine.TaskPatch{Status: ptr("DONE")})
	assertKind(t, err, domain.KindForbidden)
	got, err := env.Engine.GetTask(env.Ctx, fx.member, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, "For mia", got.Title)
}

func TestTaskTenantIsolation(t *testing.T) {
	env := newTestEnv(t)
	fx := newWorkspace(env)
	task, err := env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{Title: "Secret"})
	require.NoError(t, err)

	rival := env.user("rival", domain.RoleStartuper)
	_, err = env.Engine.CreateWorkspace(env.Ctx, rival, "Rival")
	require.NoError(t, err)
	rival = env.actor("rival")

	_, err = env.Engine.GetTask(env.Ctx, rival, task.ID)
	assertKind(t, err, domain.KindNotFound)
	_, err = env.Engine.UpdateTask(env.Ctx, rival, task.ID, engine.TaskPatch{Status: ptr("DONE")})
	assertKind(t, err, domain.KindNotFound)
	assertKind(t, env.Engine.DeleteTask(env.Ctx, rival, task.ID), domain.KindNotFound)

	// Assignees must come from the same workspace.
	_, err = env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{Title: "Poach", AssigneeUsername: "rival"})
	assertKind(t, err, domain.KindInvalidArgument)
	_, err = env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{Title: "Ghost", AssigneeUsername: "nobody"})
	assertKind(t, err, domain.KindNotFound)
}

func TestTaskRequiresWorkspaceAndOwnerTier(t *testing.T) {
	env := newTestEnv(t)
	fx := newWorkspace(env)
	loner := env.user("loner", domain.RoleStudent)

	_, err := env.Engine.ListTasks(env.Ctx, loner)
	assertKind(t, err, domain.KindNotLinked)
	_, err = env.Engine.CreateTask(env.Ctx, loner, engine.TaskCreateOptions{Title: "Nope"})
	assertKind(t, err, domain.KindNotLinked)

	_, err = env.Engine.CreateTask(env.Ctx, fx.member, engine.TaskCreateOptions{Title: "Nope"})
	assertKind(t, err, domain.KindForbidden)

	task, err := env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{Title: "Keep"})
	require.NoError(t, err)
	assertKind(t, env.Engine.DeleteTask(env.Ctx, fx.member, task.ID), domain.KindForbidden)
	require.NoError(t, env.Engine.DeleteTask(env.Ctx, fx.owner, task.ID))
	_, err = env.Engine.GetTask(env.Ctx, fx.owner, task.ID)
	assertKind(t, err, domain.KindNotFound)
}

func TestAdminActsAsOwner(t *testing.T) {
	env := newTestEnv(t)
	newWorkspace(env)
	env.user("root", domain.RoleAdmin)
	code, err := env.Engine.RotateJoinCode(env.Ctx, env.actor("founder"))
	require.NoError(t, err)
	_, err = env.Engine.JoinWorkspace(env.Ctx, env.actor("root"), code)
	require.NoError(t, err)

	admin := env.actor("root")
	assert.Equal(t, auth.TierOwner, admin.Tier)
	task, err := env.Engine.CreateTask(env.Ctx, admin, engine.TaskCreateOptions{Title: "Audit"})
	require.NoError(t, err)
	assert.Equal(t, "root", task.CreatorID)
}

func TestOwnerUpdatesFields(t *testing.T) {
	env := newTestEnv(t)
	fx := newWorkspace(env)
	task, err := env.Engine.CreateTask(env.Ctx, fx.owner, engine.TaskCreateOptions{
		Title:            "Draft",
		Description:      "first pass",
		DueDate:          "2024-06-30",
		AssigneeUsername: "mia",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, task.Priority)

	updated, err := env.Engine.UpdateTask(env.Ctx, fx.owner, task.ID, engine.TaskPatch{
		Title:            ptr("Final"),
		Priority:         ptr("low"),
		DueDate:          ptr(""),
		AssigneeUsername: ptr("max"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Final", updated.Title)
	assert.Equal(t, domain.PriorityLow, updated.Priority)
	assert.Nil(t, updated.DueDate)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, "max", *updated.AssigneeID)
	assert.Equal(t, fx.ws.ID, updated.WorkspaceID)
	assert.Equal(t, 1, countWithMessage(env.notifications("max"), "You were assigned to task 'Final'."))

	cleared, err := env.Engine.UpdateTask(env.Ctx, fx.owner, task.ID, engine.TaskPatch{AssigneeUsername: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, cleared.AssigneeID)

	_, err = env.Engine.UpdateTask(env.Ctx, fx.owner, task.ID, engine.TaskPatch{DueDate: ptr("30/06/2024")})
	assertKind(t, err, domain.KindInvalidArgument)
	_, err = env.Engine.UpdateTask(env.Ctx, fx.owner, task.ID, engine.TaskPatch{Status: ptr("BLOCKED")})
	assertKind(t, err, domain.KindInvalidArgument)
	_, err = env.Engine.UpdateTask(env.Ctx, fx.owner, task.ID, engine.TaskPatch{Title: ptr("x")})
	assertKind(t, err, domain.KindInvalidArgument)
}
