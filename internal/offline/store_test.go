package offline

import (
	"context"
	"testing"

	"github.com/geocoder89/certhub/internal/domain/pendingaction"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AddAndListInInsertionOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := newAction(t, pendingaction.TypeRegisterUserToEvent, "evt-1")
	first.Payload = pendingaction.Payload{"name": "Ada", "email": "ada@example.com"}
	second := newAction(t, pendingaction.TypeCreateEvent, "")
	third := newAction(t, pendingaction.TypeMarkAttendance, "evt-1")

	for _, a := range []pendingaction.PendingAction{first, second, third} {
		require.NoError(t, s.Add(ctx, a))
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, first.ID, all[0].ID)
	assert.Equal(t, second.ID, all[1].ID)
	assert.Equal(t, third.ID, all[2].ID)

	got := all[0]
	assert.Equal(t, pendingaction.TypeRegisterUserToEvent, got.Type)
	assert.Equal(t, "ada@example.com", got.Payload["email"])
	require.NotNil(t, got.EventID)
	assert.Equal(t, "evt-1", *got.EventID)
	assert.Nil(t, got.RegistrationID)
	assert.Nil(t, got.ErrorMessage)
	assert.Equal(t, first.IdempotencyKey, got.IdempotencyKey)
	assert.True(t, first.CreatedAt.Equal(got.CreatedAt))

	require.NotNil(t, all[2].RegistrationID)
	assert.Equal(t, "reg-1", *all[2].RegistrationID)
}

func TestStore_DuplicatePayloadsAllowed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := newAction(t, pendingaction.TypeCreateEvent, "")
	b := newAction(t, pendingaction.TypeCreateEvent, "")
	b.Payload = a.Payload

	require.NoError(t, s.Add(ctx, a))
	require.NoError(t, s.Add(ctx, b))

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_AddRejectsUnknownType(t *testing.T) {
	s := newTestStore(t)

	a := newAction(t, pendingaction.TypeCreateEvent, "")
	a.Type = "DROP_TABLES"

	err := s.Add(context.Background(), a)
	assert.ErrorIs(t, err, pendingaction.ErrInvalidType)
}

func TestStore_PendingSkipsOtherStatuses(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acts := seed(t, s, 3)

	require.NoError(t, s.UpdateStatus(ctx, acts[0].ID, pendingaction.StatusFailed, "boom"))
	require.NoError(t, s.UpdateStatus(ctx, acts[1].ID, pendingaction.StatusSyncing, ""))

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, acts[2].ID, pending[0].ID)

	failed, err := s.Get(ctx, acts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, pendingaction.StatusFailed, failed.Status)
	require.NotNil(t, failed.ErrorMessage)
	assert.Equal(t, "boom", *failed.ErrorMessage)
}

func TestStore_UnknownIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.UpdateStatus(ctx, "missing", pendingaction.StatusFailed, "x"), ErrActionNotFound)
	assert.ErrorIs(t, s.Remove(ctx, "missing"), ErrActionNotFound)
	assert.ErrorIs(t, s.ResetFailed(ctx, "missing"), ErrActionNotFound)

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrActionNotFound)
}

func TestStore_UpdateStatusRejectsUnknownStatus(t *testing.T) {
	s := newTestStore(t)
	acts := seed(t, s, 1)

	err := s.UpdateStatus(context.Background(), acts[0].ID, "done", "")
	assert.ErrorIs(t, err, pendingaction.ErrInvalidStatus)
}

func TestStore_ResetFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acts := seed(t, s, 2)

	assert.ErrorIs(t, s.ResetFailed(ctx, acts[0].ID), ErrActionNotFailed)

	require.NoError(t, s.UpdateStatus(ctx, acts[0].ID, pendingaction.StatusFailed, "boom"))
	require.NoError(t, s.ResetFailed(ctx, acts[0].ID))

	got, err := s.Get(ctx, acts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, pendingaction.StatusPending, got.Status)
	assert.Nil(t, got.ErrorMessage)
}

func TestStore_ResetAllFailed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acts := seed(t, s, 3)

	require.NoError(t, s.UpdateStatus(ctx, acts[0].ID, pendingaction.StatusFailed, "a"))
	require.NoError(t, s.UpdateStatus(ctx, acts[2].ID, pendingaction.StatusFailed, "c"))

	n, err := s.ResetAllFailed(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 3)
}

func TestStore_RemoveAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acts := seed(t, s, 3)

	require.NoError(t, s.Remove(ctx, acts[1].ID))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, acts[0].ID, all[0].ID)
	assert.Equal(t, acts[2].ID, all[1].ID)

	require.NoError(t, s.Clear(ctx))

	all, err = s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/queue.db"
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	a := newAction(t, pendingaction.TypeCreateEvent, "")
	require.NoError(t, s.Add(ctx, a))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go Meetup", got.Payload["title"])
}

func TestStore_ResetFailedAcceptsSyncing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acts := seed(t, s, 1)

	require.NoError(t, s.UpdateStatus(ctx, acts[0].ID, pendingaction.StatusSyncing, ""))
	require.NoError(t, s.ResetFailed(ctx, acts[0].ID))

	got, err := s.Get(ctx, acts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, pendingaction.StatusPending, got.Status)
}

func TestStore_RequeueSyncing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	acts := seed(t, s, 3)

	require.NoError(t, s.UpdateStatus(ctx, acts[0].ID, pendingaction.StatusSyncing, ""))
	require.NoError(t, s.UpdateStatus(ctx, acts[1].ID, pendingaction.StatusFailed, "boom"))

	n, err := s.RequeueSyncing(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	pending, err := s.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, acts[0].ID, pending[0].ID)
	assert.Equal(t, acts[2].ID, pending[1].ID)

	failed, err := s.Get(ctx, acts[1].ID)
	require.NoError(t, err)
	assert.Equal(t, pendingaction.StatusFailed, failed.Status)
}
