package storage_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matchroom/backend/internal/models"
	"matchroom/backend/internal/storage"
)

func newMemoryStore(t *testing.T) *storage.MemoryService {
	t.Helper()
	s := storage.NewMemoryService()
	t.Cleanup(s.Close)
	return s
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, room.RoomID)
	assert.Equal(t, models.StateCreated, room.State)
	assert.True(t, room.ExpiresAt.After(room.CreatedAt))

	got, err := s.GetRoom(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, room.RoomID, got.RoomID)
	assert.Equal(t, models.StateCreated, got.State)

	_, err = s.GetRoom(ctx, "no-such-room")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_MutateIsAtomic(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, time.Hour)
	require.NoError(t, err)

	// Concurrent read-modify-write increments must never lose an update.
	const writers = 100
	var wg sync.WaitGroup
	wg.Add(writers)
	for i := 0; i < writers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.MutateRoom(ctx, room.RoomID, func(r *models.Room) error {
				if r.Result == nil {
					r.Result = &models.EvaluationResult{}
				}
				r.Result.AToBScore++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetRoom(ctx, room.RoomID)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, writers, got.Result.AToBScore)
}

func TestMemoryStore_MutateErrorAbortsWrite(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, time.Hour)
	require.NoError(t, err)

	sentinel := errors.New("validation failed")
	_, err = s.MutateRoom(ctx, room.RoomID, func(r *models.Room) error {
		r.State = models.StateFailed
		return sentinel
	})
	assert.ErrorIs(t, err, sentinel)

	got, err := s.GetRoom(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, models.StateCreated, got.State, "aborted mutation must leave the record unchanged")
}

func TestMemoryStore_MutateReturnsSnapshot(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, time.Hour)
	require.NoError(t, err)

	out, err := s.MutateRoom(ctx, room.RoomID, func(r *models.Room) error {
		r.State = models.StateWaitingForUsers
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateWaitingForUsers, out.State)

	// Mutating the returned snapshot must not affect the stored record.
	out.State = models.StateFailed
	got, err := s.GetRoom(ctx, room.RoomID)
	require.NoError(t, err)
	assert.Equal(t, models.StateWaitingForUsers, got.State)
}

func TestMemoryStore_AbsoluteTTL(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, 50*time.Millisecond)
	require.NoError(t, err)

	payload := &models.PartyPayload{Prompt: "q", Expected: "a"}
	require.NoError(t, s.PutPayload(ctx, room.RoomID, "a", payload))

	// Activity does not refresh the deadline.
	_, err = s.MutateRoom(ctx, room.RoomID, func(r *models.Room) error {
		r.State = models.StateWaitingForUsers
		return nil
	})
	require.NoError(t, err)

	time.Sleep(120 * time.Millisecond)

	_, err = s.GetRoom(ctx, room.RoomID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.MutateRoom(ctx, room.RoomID, func(r *models.Room) error { return nil })
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetPayload(ctx, room.RoomID, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.PutPayload(ctx, room.RoomID, "a", payload)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_DeleteWipesPayloads(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, time.Hour)
	require.NoError(t, err)

	payload := &models.PartyPayload{
		Conversations: []json.RawMessage{json.RawMessage(`{"role":"user","content":"hi"}`)},
		Prompt:        "q",
		Expected:      "a",
	}
	require.NoError(t, s.PutPayload(ctx, room.RoomID, "a", payload))
	require.NoError(t, s.PutPayload(ctx, room.RoomID, "b", payload))

	got, err := s.GetPayload(ctx, room.RoomID, "a")
	require.NoError(t, err)
	assert.Equal(t, "q", got.Prompt)

	require.NoError(t, s.DeleteRoom(ctx, room.RoomID))
	require.NoError(t, s.DeleteRoom(ctx, room.RoomID), "delete must be idempotent")

	_, err = s.GetRoom(ctx, room.RoomID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetPayload(ctx, room.RoomID, "a")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetPayload(ctx, room.RoomID, "b")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMemoryStore_StatusPubSub(t *testing.T) {
	s := newMemoryStore(t)
	ctx := context.Background()

	room, err := s.CreateRoom(ctx, time.Hour)
	require.NoError(t, err)

	sub, err := s.SubscribeStatus(ctx, room.RoomID)
	require.NoError(t, err)

	ev := models.StatusEvent{RoomID: room.RoomID, State: models.StateBothUploaded, PartyAReady: true}
	require.NoError(t, s.PublishStatus(ctx, room.RoomID, ev))

	select {
	case got := <-sub.Events():
		assert.Equal(t, models.StateBothUploaded, got.State)
		assert.True(t, got.PartyAReady)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the published event")
	}

	require.NoError(t, sub.Close())
	_, open := <-sub.Events()
	assert.False(t, open, "events channel must close with the subscription")

	// Publishing to a room with no subscribers is fine.
	assert.NoError(t, s.PublishStatus(ctx, room.RoomID, ev))
}
