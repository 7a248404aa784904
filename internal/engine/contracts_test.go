package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"launchpad/internal/domain"
	"launchpad/internal/engine"
	"launchpad/internal/notify"
)

func TestCreateContractValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)

	_, err := env.Engine.CreateContract(env.Ctx, alice, engine.ContractCreateOptions{Title: " ", Template: "nda", Content: "x"})
	assertKind(t, err, domain.KindInvalidArgument)
	_, err = env.Engine.CreateContract(env.Ctx, alice, engine.ContractCreateOptions{Title: "NDA", Content: "x"})
	assertKind(t, err, domain.KindInvalidArgument)

	c := env.draft(alice)
	assert.Equal(t, domain.ContractDraft, c.Status)
	assert.Equal(t, "alice", c.CreatorID)
}

func TestUpdateContractRules(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	bob := env.user("bob", domain.RoleStudent)
	c := env.draft(alice)

	title := "Series A"
	_, err := env.Engine.UpdateContract(env.Ctx, bob, c.ID, engine.ContractPatch{Title: &title})
	assertKind(t, err, domain.KindForbidden)

	updated, err := env.Engine.UpdateContract(env.Ctx, alice, c.ID, engine.ContractPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, "Series A", updated.Title)
	assert.Equal(t, "terms", updated.Content)

	_, err = env.Engine.SendContract(env.Ctx, alice, c.ID, []string{"bob"})
	require.NoError(t, err)
	_, err = env.Engine.UpdateContract(env.Ctx, alice, c.ID, engine.ContractPatch{Title: &title})
	assertKind(t, err, domain.KindInvalidState)

	_, err = env.Engine.UpdateContract(env.Ctx, alice, "missing", engine.ContractPatch{Title: &title})
	assertKind(t, err, domain.KindNotFound)
}

// Scenario A.
func TestSendCreatesPendingSignatures(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	env.user("u2", domain.RoleStudent)
	env.user("u3", domain.RoleAngel)
	c := env.draft(alice)

	detail, err := env.Engine.SendContract(env.Ctx, alice, c.ID, []string{"u2", "u3", "u2", "alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.ContractSent, detail.Contract.Status)
	require.Len(t, detail.Signatures, 2)
	for _, s := range detail.Signatures {
		assert.Equal(t, domain.SignaturePending, s.Status)
		assert.Nil(t, s.SignedAt)
	}
	msg := "Contract 'Seed round' requires your signature."
	assert.Equal(t, 1, countWithMessage(env.notifications("u2"), msg))
	assert.Equal(t, 1, countWithMessage(env.notifications("u3"), msg))
	assert.Empty(t, env.notifications("alice"))

	_, err = env.Engine.SendContract(env.Ctx, alice, c.ID, []string{"u2"})
	assertKind(t, err, domain.KindInvalidState)
}

func TestSendSkipsPartiesWithExistingSignature(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	env.user("u2", domain.RoleStudent)
	env.user("u3", domain.RoleAngel)
	c := env.draft(alice)

	tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
	require.NoError(t, err)
	created, err := env.Engine.Repo.InsertSignature(env.Ctx, tx, domain.Signature{
		ContractID: c.ID,
		PartyID:    "u2",
		Status:     domain.SignaturePending,
		CreatedAt:  "2024-01-01T00:00:00.000000Z",
	})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, tx.Commit())

	detail, err := env.Engine.SendContract(env.Ctx, alice, c.ID, []string{"u2", "u3"})
	require.NoError(t, err)
	require.Len(t, detail.Signatures, 2)
	msg := "Contract 'Seed round' requires your signature."
	assert.Equal(t, 0, countWithMessage(env.notifications("u2"), msg))
	assert.Equal(t, 1, countWithMessage(env.notifications("u3"), msg))
}

func TestSendValidation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	bob := env.user("bob", domain.RoleStudent)
	c := env.draft(alice)

	_, err := env.Engine.SendContract(env.Ctx, bob, c.ID, []string{"alice"})
	assertKind(t, err, domain.KindForbidden)

	_, err = env.Engine.SendContract(env.Ctx, alice, c.ID, []string{"alice", " "})
	assertKind(t, err, domain.KindInvalidArgument)

	_, err = env.Engine.SendContract(env.Ctx, alice, c.ID, []string{"bob", "ghost"})
	assertKind(t, err, domain.KindNotFound)
	var de *domain.Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, []string{"ghost"}, de.Details["missing"])

	// Nothing was written by the failed attempts.
	detail, err := env.Engine.GetContractDetail(env.Ctx, alice, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractDraft, detail.Contract.Status)
	assert.Empty(t, detail.Signatures)
}

// Scenario B.
func TestLastSignatureCompletesContract(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	u2 := env.user("u2", domain.RoleStudent)
	u3 := env.user("u3", domain.RoleStudent)
	c := env.draft(alice)
	_, err := env.Engine.SendContract(env.Ctx, alice, c.ID, []string{"u2", "u3"})
	require.NoError(t, err)

	_, err = env.Engine.SignContract(env.Ctx, alice, c.ID)
	assertKind(t, err, domain.KindForbidden)

	detail, err := env.Engine.SignContract(env.Ctx, u2, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractSent, detail.Contract.Status)

	// Re-signing is a no-op.
	detail, err = env.Engine.SignContract(env.Ctx, u2, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractSent, detail.Contract.Status)

	detail, err = env.Engine.SignContract(env.Ctx, u3, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractSigned, detail.Contract.Status)
	for _, s := range detail.Signatures {
		assert.Equal(t, domain.SignatureSigned, s.Status)
		assert.NotNil(t, s.SignedAt)
	}

	msg := "Contract 'Seed round' is fully signed."
	for _, id := range []string{"alice", "u2", "u3"} {
		assert.Equal(t, 1, countWithMessage(env.notifications(id), msg), "recipient %s", id)
	}

	// Signing again after completion returns the same state without new side effects.
	detail, err = env.Engine.SignContract(env.Ctx, u3, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractSigned, detail.Contract.Status)
	assert.Equal(t, 1, countWithMessage(env.notifications("alice"), msg))

	_, err = env.Engine.RejectContract(env.Ctx, u2, c.ID)
	assertKind(t, err, domain.KindInvalidState)
}

// Scenario C.
func TestFirstRejectionCancels(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	u2 := env.user("u2", domain.RoleStudent)
	u3 := env.user("u3", domain.RoleStudent)
	c := env.draft(alice)
	_, err := env.Engine.SendContract(env.Ctx, alice, c.ID, []string{"u2", "u3"})
	require.NoError(t, err)

	detail, err := env.Engine.RejectContract(env.Ctx, u2, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractCancelled, detail.Contract.Status)
	states := map[string]domain.SignatureStatus{}
	for _, s := range detail.Signatures {
		states[s.PartyID] = s.Status
	}
	assert.Equal(t, domain.SignatureRejected, states["u2"])
	assert.Equal(t, domain.SignaturePending, states["u3"])
	assert.Equal(t, 1, countWithMessage(env.notifications("alice"), "Contract 'Seed round' was rejected and cancelled."))

	_, err = env.Engine.SignContract(env.Ctx, u3, c.ID)
	assertKind(t, err, domain.KindInvalidState)

	again, err := env.Engine.RejectContract(env.Ctx, u2, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractCancelled, again.Contract.Status)
}

func TestSigningDraftIsInvalidState(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	bob := env.user("bob", domain.RoleStudent)
	c := env.draft(alice)

	_, err := env.Engine.SignContract(env.Ctx, bob, c.ID)
	assertKind(t, err, domain.KindInvalidState)
	_, err = env.Engine.RejectContract(env.Ctx, bob, c.ID)
	assertKind(t, err, domain.KindInvalidState)
}

func TestDetailAndListVisibility(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	bob := env.user("bob", domain.RoleStudent)
	eve := env.user("eve", domain.RoleStudent)
	first := env.draft(alice)
	second := env.draft(alice)
	_, err := env.Engine.SendContract(env.Ctx, alice, first.ID, []string{"bob"})
	require.NoError(t, err)

	_, err = env.Engine.GetContractDetail(env.Ctx, eve, first.ID)
	assertKind(t, err, domain.KindForbidden)
	detail, err := env.Engine.GetContractDetail(env.Ctx, bob, first.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Signatures, 1)

	mine, err := env.Engine.ListMyContracts(env.Ctx, alice)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, second.ID, mine[0].ID)
	assert.Equal(t, first.ID, mine[1].ID)

	bobs, err := env.Engine.ListMyContracts(env.Ctx, bob)
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, first.ID, bobs[0].ID)

	none, err := env.Engine.ListMyContracts(env.Ctx, eve)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConcurrentSignersCompleteContract(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	parties := []string{"p1", "p2", "p3", "p4"}
	for _, p := range parties {
		env.user(p, domain.RoleStudent)
	}
	c := env.draft(alice)
	_, err := env.Engine.SendContract(env.Ctx, alice, c.ID, parties)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, len(parties))
	for _, p := range parties {
		actor := env.actor(p)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Engine.SignContract(context.Background(), actor, c.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	detail, err := env.Engine.GetContractDetail(env.Ctx, alice, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractSigned, detail.Contract.Status)
	assert.Equal(t, 1, countWithMessage(env.notifications("alice"), "Contract 'Seed round' is fully signed."))
}

func TestNotificationFailureDoesNotRollBack(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	bob := env.user("bob", domain.RoleStudent)
	env.Engine.Notify.Sink = notify.SinkFunc(func(context.Context, domain.Notification) error {
		return errors.New("sink unavailable")
	})
	c := env.draft(alice)

	_, err := env.Engine.SendContract(env.Ctx, alice, c.ID, []string{"bob"})
	require.NoError(t, err)
	detail, err := env.Engine.SignContract(env.Ctx, bob, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ContractSigned, detail.Contract.Status)
	assert.Empty(t, env.notifications("bob"))
}

// Property: a contract becomes SIGNED iff every party signed.
func TestContractSignedIffAllPartiesSign(t *testing.T) {
	env := newTestEnv(t)
	alice := env.user("alice", domain.RoleStartuper)
	pool := []string{"q1", "q2", "q3", "q4", "q5"}
	for _, p := range pool {
		env.user(p, domain.RoleStudent)
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	properties.Property("signed iff unanimous", prop.ForAll(
		func(n int, signs []bool) bool {
			parties := pool[:n]
			c := env.draft(alice)
			if _, err := env.Engine.SendContract(env.Ctx, alice, c.ID, parties); err != nil {
				return false
			}
			all := true
			for i, p := range parties {
				if !signs[i] {
					all = false
					continue
				}
				if _, err := env.Engine.SignContract(env.Ctx, env.actor(p), c.ID); err != nil {
					return false
				}
			}
			detail, err := env.Engine.GetContractDetail(env.Ctx, alice, c.ID)
			if err != nil {
				return false
			}
			return (detail.Contract.Status == domain.ContractSigned) == all
		},
		gen.IntRange(1, len(pool)),
		gen.SliceOfN(len(pool), gen.Bool()),
	))

	properties.TestingRun(t)
}
