package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/config"
	"launchpad/internal/db"
	"launchpad/internal/domain"
	"launchpad/internal/engine"
	"launchpad/internal/engine/auth"
	"launchpad/internal/migrate"
	"launchpad/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	t      *testing.T
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn, db.DriverSQLite))

	eng := engine.New(conn, db.DriverSQLite, config.Default(), nil)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	eng.Now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}
	return testEnv{Engine: eng, Ctx: context.Background(), t: t}
}

func (env testEnv) user(username string, role domain.Role) auth.Actor {
	env.t.Helper()
	_, err := env.Engine.CreateUser(env.Ctx, engine.UserCreateOptions{ID: username, Username: username, Role: string(role)})
	require.NoError(env.t, err)
	return env.actor(username)
}

func (env testEnv) actor(userID string) auth.Actor {
	env.t.Helper()
	a, err := env.Engine.ResolveActor(env.Ctx, userID)
	require.NoError(env.t, err)
	return a
}

func (env testEnv) notifications(userID string) []domain.Notification {
	env.t.Helper()
	list, err := env.Engine.Repo.ListNotifications(env.Ctx, repo.NotificationFilters{UserID: userID})
	require.NoError(env.t, err)
	return list
}

func (env testEnv) draft(creator auth.Actor) domain.Contract {
	env.t.Helper()
	c, err := env.Engine.CreateContract(env.Ctx, creator, engine.ContractCreateOptions{Title: "Seed round", Template: "safe", Content: "terms"})
	require.NoError(env.t, err)
	return c
}

func countWithMessage(list []domain.Notification, msg string) int {
	n := 0
	for _, item := range list {
		if item.Message == msg {
			n++
		}
	}
	return n
}

func assertKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, domain.KindOf(err), "error: %v", err)
}
