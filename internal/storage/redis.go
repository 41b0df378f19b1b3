package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"matchroom/backend/internal/models"
)

// maxMutateRetries bounds the optimistic WATCH/MULTI retry loop before a
// mutation gives up with ErrConflict.
const maxMutateRetries = 16

// Service is the redis-backed Store. Room records live at room:{id} as JSON
// documents with an absolute TTL set once at creation; mutations rewrite the
// value with KEEPTTL so activity never extends a room's life.
type Service struct {
	Redis *redis.Client
}

// NewRedisService wraps an existing redis client as a Store.
func NewRedisService(rdb *redis.Client) *Service {
	return &Service{Redis: rdb}
}

func roomKey(roomID string) string {
	return "room:" + roomID
}

func payloadKey(roomID, slotKey string) string {
	return "room:" + roomID + ":payload:" + slotKey
}

func eventsChannel(roomID string) string {
	return "room:" + roomID + ":events"
}

// CreateRoom allocates a fresh room id and persists the initial record.
func (s *Service) CreateRoom(ctx context.Context, ttl time.Duration) (*models.Room, error) {
	now := time.Now()
	room := &models.Room{
		RoomID:    uuid.New().String(),
		State:     models.StateCreated,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	data, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("%w: encode room: %v", ErrUnavailable, err)
	}
	if err := s.Redis.Set(ctx, roomKey(room.RoomID), data, ttl).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return room, nil
}

// GetRoom reads a snapshot of the room record.
func (s *Service) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	data, err := s.Redis.Get(ctx, roomKey(roomID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("%w: corrupt room record: %v", ErrUnavailable, err)
	}
	return &room, nil
}

// MutateRoom runs fn inside an optimistic WATCH transaction on the room key.
// If another writer lands between the read and the EXEC the transaction
// aborts and the whole closure is retried against the fresh record, so fn
// must be safe to re-run.
func (s *Service) MutateRoom(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error) {
	key := roomKey(roomID)
	var out *models.Room

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		var room models.Room
		if err := json.Unmarshal(data, &room); err != nil {
			return fmt.Errorf("%w: corrupt room record: %v", ErrUnavailable, err)
		}

		if err := fn(&room); err != nil {
			return err
		}

		next, err := json.Marshal(&room)
		if err != nil {
			return fmt.Errorf("%w: encode room: %v", ErrUnavailable, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, redis.KeepTTL)
			return nil
		})
		if err != nil {
			return err
		}
		out = &room
		return nil
	}

	for i := 0; i < maxMutateRetries; i++ {
		err := s.Redis.Watch(ctx, txf, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, ErrConflict
}

// DeleteRoom removes the room record and both party payloads.
func (s *Service) DeleteRoom(ctx context.Context, roomID string) error {
	err := s.Redis.Del(ctx,
		roomKey(roomID),
		payloadKey(roomID, "a"),
		payloadKey(roomID, "b"),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// PutPayload stores a party payload under the room's remaining TTL, so the
// payload can never outlive the room.
func (s *Service) PutPayload(ctx context.Context, roomID, slotKey string, payload *models.PartyPayload) error {
	ttl, err := s.Redis.PTTL(ctx, roomKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if ttl <= 0 {
		return ErrNotFound
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrUnavailable, err)
	}
	if err := s.Redis.Set(ctx, payloadKey(roomID, slotKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// GetPayload retrieves a party payload.
func (s *Service) GetPayload(ctx context.Context, roomID, slotKey string) (*models.PartyPayload, error) {
	data, err := s.Redis.Get(ctx, payloadKey(roomID, slotKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var payload models.PartyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: corrupt payload record: %v", ErrUnavailable, err)
	}
	return &payload, nil
}

// PublishStatus publishes a status snapshot on the room's event channel.
func (s *Service) PublishStatus(ctx context.Context, roomID string, ev models.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode event: %v", ErrUnavailable, err)
	}
	if err := s.Redis.Publish(ctx, eventsChannel(roomID), data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// SubscribeStatus subscribes to the room's event channel and decodes
// snapshots onto a local channel until closed.
func (s *Service) SubscribeStatus(ctx context.Context, roomID string) (Subscription, error) {
	pubsub := s.Redis.Subscribe(ctx, eventsChannel(roomID))
	sub := &redisSubscription{pubsub: pubsub, events: make(chan models.StatusEvent, 8)}

	go func() {
		defer close(sub.events)
		for msg := range pubsub.Channel() {
			var ev models.StatusEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				continue
			}
			select {
			case sub.events <- ev:
			default:
				// Slow consumer, drop the snapshot; the next one supersedes it.
			}
		}
	}()

	return sub, nil
}

type redisSubscription struct {
	pubsub *redis.PubSub
	events chan models.StatusEvent
}

func (s *redisSubscription) Events() <-chan models.StatusEvent { return s.events }

func (s *redisSubscription) Close() error { return s.pubsub.Close() }

// Ping checks redis connectivity.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.Redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
