package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"matchroom/backend/internal/models"
)

func TestRoomStateRank(t *testing.T) {
	forward := []models.RoomState{
		models.StateCreated,
		models.StateWaitingForUsers,
		models.StateBothUploaded,
		models.StateEvaluating,
		models.StateCompleted,
	}
	for i := 1; i < len(forward); i++ {
		assert.Greater(t, forward[i].Rank(), forward[i-1].Rank(), "%s must rank above %s", forward[i], forward[i-1])
	}

	assert.Equal(t, -1, models.StateExpired.Rank())
	assert.Equal(t, -1, models.StateFailed.Rank())
	assert.Equal(t, -1, models.RoomState("bogus").Rank())
}

func TestRoomStateTerminalAndClosed(t *testing.T) {
	tests := []struct {
		state    models.RoomState
		terminal bool
		closed   bool
	}{
		{models.StateCreated, false, false},
		{models.StateWaitingForUsers, false, false},
		{models.StateBothUploaded, false, false},
		{models.StateEvaluating, false, true},
		{models.StateCompleted, true, true},
		{models.StateExpired, true, true},
		{models.StateFailed, true, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.terminal, tt.state.Terminal(), "Terminal(%s)", tt.state)
		assert.Equal(t, tt.closed, tt.state.Closed(), "Closed(%s)", tt.state)
	}
}

func TestRoomSlots(t *testing.T) {
	room := &models.Room{
		RoomID: "r1",
		State:  models.StateWaitingForUsers,
		PartyA: &models.PartySlot{Identity: "alice", Uploaded: true},
	}

	assert.Same(t, room.PartyA, room.Slot("alice"))
	assert.Nil(t, room.Slot("bob"))
	assert.False(t, room.BothUploaded())

	room.PartyB = &models.PartySlot{Identity: "bob", Uploaded: true}
	assert.Same(t, room.PartyB, room.Slot("bob"))
	assert.True(t, room.BothUploaded())

	assert.Same(t, room.PartyB, room.OtherSlot(room.PartyA))
	assert.Same(t, room.PartyA, room.OtherSlot(room.PartyB))
	assert.Nil(t, room.OtherSlot(&models.PartySlot{Identity: "stranger"}))

	assert.Equal(t, "a", room.SlotKey(room.PartyA))
	assert.Equal(t, "b", room.SlotKey(room.PartyB))
}

func TestRoomStatusSnapshot(t *testing.T) {
	room := &models.Room{
		RoomID: "r1",
		State:  models.StateFailed,
		PartyA: &models.PartySlot{Identity: "alice", SecretHash: "hash", Ready: true},
		PartyB: &models.PartySlot{Identity: "bob"},
		FailureReason: "evaluation timed out",
	}

	ev := room.Status()
	assert.Equal(t, "r1", ev.RoomID)
	assert.Equal(t, models.StateFailed, ev.State)
	assert.True(t, ev.PartyAReady)
	assert.False(t, ev.PartyBReady)
	assert.Nil(t, ev.Result)
	assert.Equal(t, "evaluation timed out", ev.Reason)

	completed := &models.Room{
		RoomID: "r2",
		State:  models.StateCompleted,
		Result: &models.EvaluationResult{AToBScore: 90, BToAScore: 40},
	}
	ev = completed.Status()
	assert.Equal(t, completed.Result, ev.Result)
	assert.Empty(t, ev.Reason)
}
