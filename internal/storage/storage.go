// Package storage provides the TTL-bounded room store: the single shared
// mutable resource all coordination funnels through. Implementations must
// guarantee that MutateRoom applies its closure as one atomic unit with
// respect to other mutations of the same room.
package storage

import (
	"context"
	"errors"
	"time"

	"matchroom/backend/internal/models"
)

var (
	// ErrNotFound means the room does not exist or its TTL has elapsed.
	ErrNotFound = errors.New("room not found")
	// ErrConflict means a mutation lost too many optimistic retries against
	// concurrent writers or a concurrent delete.
	ErrConflict = errors.New("room mutated concurrently")
	// ErrUnavailable means the backing store could not be read or written.
	// The room's persisted state is unchanged when a mutation returns it.
	ErrUnavailable = errors.New("store unavailable")
)

// Store is the keyed room store plus the party payload blob store.
// Payloads are stored per room and slot key ("a"/"b") and share the room's
// absolute expiry: once a room's TTL elapses, record and payloads are gone.
type Store interface {
	// CreateRoom allocates a fresh room in state CREATED with expiry now+ttl.
	CreateRoom(ctx context.Context, ttl time.Duration) (*models.Room, error)
	// GetRoom returns a snapshot of the room.
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	// MutateRoom applies fn to the room under per-room exclusion and
	// persists the result atomically without refreshing its TTL. An error
	// from fn aborts the write and is returned unchanged.
	MutateRoom(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error)
	// DeleteRoom removes the room and both party payloads. Idempotent.
	DeleteRoom(ctx context.Context, roomID string) error

	// PutPayload stores a party's payload, expiring no later than the room.
	PutPayload(ctx context.Context, roomID, slotKey string, payload *models.PartyPayload) error
	// GetPayload returns a party's payload, or ErrNotFound.
	GetPayload(ctx context.Context, roomID, slotKey string) (*models.PartyPayload, error)

	// PublishStatus fans a status snapshot out to the room's subscribers.
	PublishStatus(ctx context.Context, roomID string, ev models.StatusEvent) error
	// SubscribeStatus opens a stream of status snapshots for one room.
	SubscribeStatus(ctx context.Context, roomID string) (Subscription, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}

// Subscription is one listener on a room's status stream.
type Subscription interface {
	// Events yields published snapshots. The channel closes when the
	// subscription is closed. Slow consumers may miss events.
	Events() <-chan models.StatusEvent
	Close() error
}
