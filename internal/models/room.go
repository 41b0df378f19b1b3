package models

import "time"

// RoomState is the lifecycle state of a pairing room.
type RoomState string

const (
	StateCreated         RoomState = "CREATED"
	StateWaitingForUsers RoomState = "WAITING_FOR_USERS"
	StateBothUploaded    RoomState = "BOTH_UPLOADED"
	StateEvaluating      RoomState = "EVALUATING"
	StateCompleted       RoomState = "COMPLETED"
	StateExpired         RoomState = "EXPIRED"
	StateFailed          RoomState = "FAILED"
)

// stateRanks orders the forward-only progression. EXPIRED and FAILED are
// terminal branches reachable from any non-terminal state and carry no rank.
var stateRanks = map[RoomState]int{
	StateCreated:         0,
	StateWaitingForUsers: 1,
	StateBothUploaded:    2,
	StateEvaluating:      3,
	StateCompleted:       4,
}

// Rank returns the position of the state in the forward progression, or -1
// for the terminal branches EXPIRED and FAILED.
func (s RoomState) Rank() int {
	if r, ok := stateRanks[s]; ok {
		return r
	}
	return -1
}

// Terminal reports whether no further mutation of the room is allowed.
func (s RoomState) Terminal() bool {
	return s == StateCompleted || s == StateExpired || s == StateFailed
}

// Closed reports whether the room no longer accepts party operations.
// This includes EVALUATING: uploads and ready signals arriving once the
// evaluation has been triggered are rejected.
func (s RoomState) Closed() bool {
	return s == StateEvaluating || s.Terminal()
}

// PartySlot represents one of the two participants in a room.
// The slot holds only coordination state; the party's payload lives in the
// blob store keyed by room id and slot key.
type PartySlot struct {
	// Identity is the name the party claimed the slot with.
	Identity string `json:"identity"`
	// SecretHash is the bcrypt hash of the party's shared secret.
	SecretHash string `json:"secret_hash"`
	// Uploaded indicates the party's payload is present in the blob store.
	Uploaded bool `json:"uploaded"`
	// Ready indicates the party declared its payload final. Never unset.
	Ready bool `json:"ready"`
}

// EvaluationResult holds the mutual compatibility scores, each in [0,100].
type EvaluationResult struct {
	// AToBScore is how well party B matches party A's expectations.
	AToBScore int `json:"a_to_b_score"`
	// BToAScore is how well party A matches party B's expectations.
	BToAScore int `json:"b_to_a_score"`
}

// Room is one pairing session between two parties.
// The whole record is persisted as a single JSON document and only ever
// rewritten through the store's atomic per-room mutation.
type Room struct {
	RoomID string    `json:"room_id"`
	State  RoomState `json:"state"`

	PartyA *PartySlot `json:"party_a,omitempty"`
	PartyB *PartySlot `json:"party_b,omitempty"`

	// Result is set exactly once, together with the COMPLETED transition.
	Result *EvaluationResult `json:"result,omitempty"`
	// FailureReason is an opaque category ("evaluation failed",
	// "evaluation timed out"), never raw evaluator output.
	FailureReason string `json:"failure_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Slot returns the slot claimed by identity, or nil.
func (r *Room) Slot(identity string) *PartySlot {
	if r.PartyA != nil && r.PartyA.Identity == identity {
		return r.PartyA
	}
	if r.PartyB != nil && r.PartyB.Identity == identity {
		return r.PartyB
	}
	return nil
}

// BothUploaded reports whether both slots are claimed and have payloads.
func (r *Room) BothUploaded() bool {
	return r.PartyA != nil && r.PartyA.Uploaded && r.PartyB != nil && r.PartyB.Uploaded
}

// OtherSlot returns the counterpart of the given slot, or nil.
func (r *Room) OtherSlot(slot *PartySlot) *PartySlot {
	if slot == r.PartyA {
		return r.PartyB
	}
	if slot == r.PartyB {
		return r.PartyA
	}
	return nil
}

// SlotKey returns the blob-store key fragment ("a" or "b") for the slot.
func (r *Room) SlotKey(slot *PartySlot) string {
	if slot == r.PartyB {
		return "b"
	}
	return "a"
}

// Status builds the externally visible snapshot of the room.
func (r *Room) Status() StatusEvent {
	ev := StatusEvent{RoomID: r.RoomID, State: r.State, Result: r.Result, Reason: r.FailureReason}
	if r.PartyA != nil {
		ev.PartyAReady = r.PartyA.Ready
	}
	if r.PartyB != nil {
		ev.PartyBReady = r.PartyB.Ready
	}
	return ev
}

// StatusEvent is the snapshot served to polling clients and published to the
// room's event stream after every successful mutation. It never carries
// payloads, secrets or failure internals.
type StatusEvent struct {
	RoomID      string            `json:"room_id"`
	State       RoomState         `json:"state"`
	PartyAReady bool              `json:"party_a_ready"`
	PartyBReady bool              `json:"party_b_ready"`
	Result      *EvaluationResult `json:"result,omitempty"`
	// Reason is the opaque failure category for FAILED rooms.
	Reason string `json:"reason,omitempty"`
}
