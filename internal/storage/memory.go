package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"matchroom/backend/internal/models"
)

// sweepInterval is how often the background reaper looks for expired rooms.
// Expiry is also enforced lazily on every access, so the sweep only bounds
// how long dead data lingers for rooms nobody touches again.
const sweepInterval = 30 * time.Second

// MemoryService is the in-process Store. It mirrors the redis semantics:
// rooms are JSON documents with an absolute deadline, mutations run under a
// per-room lock, and payloads become unrecoverable with the room.
// Used by tests and redis-less development runs.
type MemoryService struct {
	mu       sync.Mutex
	rooms    map[string]*memoryRoom
	payloads map[string][]byte
	subs     map[string]map[*memorySubscription]struct{}

	stop     chan struct{}
	stopOnce sync.Once
}

type memoryRoom struct {
	mu      sync.Mutex
	data    []byte
	deleted bool

	// expiresAt is set once at creation and never moved.
	expiresAt time.Time
}

// NewMemoryService creates an empty in-process store and starts its reaper.
func NewMemoryService() *MemoryService {
	s := &MemoryService{
		rooms:    make(map[string]*memoryRoom),
		payloads: make(map[string][]byte),
		subs:     make(map[string]map[*memorySubscription]struct{}),
		stop:     make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Close stops the background reaper.
func (s *MemoryService) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemoryService) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			var expired []string
			for id, r := range s.rooms {
				if now.After(r.expiresAt) {
					expired = append(expired, id)
				}
			}
			s.mu.Unlock()
			for _, id := range expired {
				s.reap(id)
			}
		}
	}
}

// reap removes a room if its deadline has passed, going through the same
// per-room lock as mutations.
func (s *MemoryService) reap(roomID string) {
	r := s.lookup(roomID)
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.deleted && time.Now().After(r.expiresAt) {
		s.purge(roomID, r)
	}
}

// lookup returns the live room entry, or nil. Never touches the room lock.
func (s *MemoryService) lookup(roomID string) *memoryRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomID]
}

// purge drops the room and its payloads. Caller holds r.mu.
func (s *MemoryService) purge(roomID string, r *memoryRoom) {
	r.deleted = true
	r.data = nil
	s.mu.Lock()
	delete(s.rooms, roomID)
	delete(s.payloads, payloadKey(roomID, "a"))
	delete(s.payloads, payloadKey(roomID, "b"))
	s.mu.Unlock()
}

// alive reports whether the entry is usable, expiring it lazily if not.
// Caller holds r.mu.
func (s *MemoryService) alive(roomID string, r *memoryRoom) bool {
	if r.deleted {
		return false
	}
	if time.Now().After(r.expiresAt) {
		s.purge(roomID, r)
		return false
	}
	return true
}

// CreateRoom allocates a fresh room with an absolute deadline.
func (s *MemoryService) CreateRoom(ctx context.Context, ttl time.Duration) (*models.Room, error) {
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

	s.mu.Lock()
	s.rooms[room.RoomID] = &memoryRoom{data: data, expiresAt: room.ExpiresAt}
	s.mu.Unlock()
	return room, nil
}

// GetRoom returns a snapshot decoded from the stored document.
func (s *MemoryService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	r := s.lookup(roomID)
	if r == nil {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !s.alive(roomID, r) {
		return nil, ErrNotFound
	}

	var room models.Room
	if err := json.Unmarshal(r.data, &room); err != nil {
		return nil, fmt.Errorf("%w: corrupt room record: %v", ErrUnavailable, err)
	}
	return &room, nil
}

// MutateRoom applies fn under the room's lock and persists the re-encoded
// document. Round-tripping through JSON keeps copy semantics identical to
// the redis store.
func (s *MemoryService) MutateRoom(ctx context.Context, roomID string, fn func(*models.Room) error) (*models.Room, error) {
	r := s.lookup(roomID)
	if r == nil {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !s.alive(roomID, r) {
		return nil, ErrNotFound
	}

	var room models.Room
	if err := json.Unmarshal(r.data, &room); err != nil {
		return nil, fmt.Errorf("%w: corrupt room record: %v", ErrUnavailable, err)
	}

	if err := fn(&room); err != nil {
		return nil, err
	}

	next, err := json.Marshal(&room)
	if err != nil {
		return nil, fmt.Errorf("%w: encode room: %v", ErrUnavailable, err)
	}
	r.data = next
	return &room, nil
}

// DeleteRoom removes the room and payloads. Idempotent.
func (s *MemoryService) DeleteRoom(ctx context.Context, roomID string) error {
	r := s.lookup(roomID)
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.deleted {
		s.purge(roomID, r)
	}
	return nil
}

// PutPayload stores a party payload; it lives exactly as long as the room.
func (s *MemoryService) PutPayload(ctx context.Context, roomID, slotKey string, payload *models.PartyPayload) error {
	r := s.lookup(roomID)
	if r == nil {
		return ErrNotFound
	}
	r.mu.Lock()
	alive := s.alive(roomID, r)
	r.mu.Unlock()
	if !alive {
		return ErrNotFound
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %v", ErrUnavailable, err)
	}
	s.mu.Lock()
	s.payloads[payloadKey(roomID, slotKey)] = data
	s.mu.Unlock()
	return nil
}

// GetPayload retrieves a party payload for a live room.
func (s *MemoryService) GetPayload(ctx context.Context, roomID, slotKey string) (*models.PartyPayload, error) {
	r := s.lookup(roomID)
	if r == nil {
		return nil, ErrNotFound
	}
	r.mu.Lock()
	alive := s.alive(roomID, r)
	r.mu.Unlock()
	if !alive {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	data, ok := s.payloads[payloadKey(roomID, slotKey)]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	var payload models.PartyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("%w: corrupt payload record: %v", ErrUnavailable, err)
	}
	return &payload, nil
}

// PublishStatus delivers the snapshot to current subscribers. Slow
// subscribers are skipped rather than blocking the publisher.
func (s *MemoryService) PublishStatus(ctx context.Context, roomID string, ev models.StatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs[roomID] {
		select {
		case sub.ch <- ev:
		default:
		}
	}
	return nil
}

// SubscribeStatus registers a listener on the room's status stream.
func (s *MemoryService) SubscribeStatus(ctx context.Context, roomID string) (Subscription, error) {
	sub := &memorySubscription{
		svc:    s,
		roomID: roomID,
		ch:     make(chan models.StatusEvent, 8),
	}
	s.mu.Lock()
	if s.subs[roomID] == nil {
		s.subs[roomID] = make(map[*memorySubscription]struct{})
	}
	s.subs[roomID][sub] = struct{}{}
	s.mu.Unlock()
	return sub, nil
}

type memorySubscription struct {
	svc    *MemoryService
	roomID string
	ch     chan models.StatusEvent
	once   sync.Once
}

func (s *memorySubscription) Events() <-chan models.StatusEvent { return s.ch }

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.svc.mu.Lock()
		delete(s.svc.subs[s.roomID], s)
		s.svc.mu.Unlock()
		close(s.ch)
	})
	return nil
}

// Ping always succeeds for the in-process store.
func (s *MemoryService) Ping(ctx context.Context) error { return nil }
