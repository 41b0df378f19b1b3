// Package coordinator implements the room state machine. It validates
// transitions, detects the both-ready condition exactly once per room, and
// hands off to the evaluator. The service itself holds no mutable state;
// all coordination funnels through the store's atomic per-room mutation, so
// any number of replicas can serve the same rooms.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"matchroom/backend/internal/evaluator"
	"matchroom/backend/internal/models"
	"matchroom/backend/internal/storage"
)

const (
	// storeOpTimeout bounds the post-evaluation writeback mutations, which
	// run detached from any request context.
	storeOpTimeout = 10 * time.Second

	reasonEvaluationFailed  = "evaluation failed"
	reasonEvaluationTimeout = "evaluation timed out"
)

// Options tunes a CoordinatorService. Zero values fall back to defaults.
type Options struct {
	// RoomTTL is the absolute lifetime of a room and its payloads.
	RoomTTL time.Duration
	// EvalTimeout is the ceiling on a single evaluation attempt.
	EvalTimeout time.Duration
	// BcryptCost is the cost used when hashing party secrets.
	BcryptCost int
}

const (
	defaultRoomTTL     = time.Hour
	defaultEvalTimeout = 3 * time.Minute
)

// CoordinatorService drives room lifecycles over a Store and an Evaluator.
type CoordinatorService struct {
	store     storage.Store
	evaluator evaluator.Evaluator
	logger    *zap.Logger

	roomTTL     time.Duration
	evalTimeout time.Duration
	bcryptCost  int
}

// NewCoordinatorService wires the state machine to its collaborators.
func NewCoordinatorService(store storage.Store, eval evaluator.Evaluator, log *zap.Logger, opts Options) *CoordinatorService {
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = defaultRoomTTL
	}
	if opts.EvalTimeout <= 0 {
		opts.EvalTimeout = defaultEvalTimeout
	}
	if opts.BcryptCost <= 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &CoordinatorService{
		store:       store,
		evaluator:   eval,
		logger:      log,
		roomTTL:     opts.RoomTTL,
		evalTimeout: opts.EvalTimeout,
		bcryptCost:  opts.BcryptCost,
	}
}

// Create allocates a fresh room with the configured TTL.
func (c *CoordinatorService) Create(ctx context.Context) (*models.Room, error) {
	room, err := c.store.CreateRoom(ctx, c.roomTTL)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	c.logger.Info("room created",
		zap.String("room_id", room.RoomID),
		zap.Time("expires_at", room.ExpiresAt),
	)
	return room, nil
}

// Upload stores a party's payload and records it on the room. The slot is
// claimed (or re-authenticated) in one atomic mutation before the payload is
// written, so an unauthenticated caller can never overwrite a claimed slot's
// payload; a second mutation flips the uploaded flag only after the payload
// is durably in the blob store.
func (c *CoordinatorService) Upload(ctx context.Context, roomID, identity, secret string, payload *models.PartyPayload) error {
	if payload == nil {
		return fmt.Errorf("payload is required")
	}

	// Hashing is slow; do it outside the mutation closure. The hash is only
	// used when the identity claims a free slot.
	claimHash, err := bcrypt.GenerateFromPassword([]byte(secret), c.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash secret: %w", err)
	}

	var slotKey string
	_, err = c.store.MutateRoom(ctx, roomID, func(r *models.Room) error {
		if r.State.Closed() {
			return ErrRoomClosed
		}

		slot := r.Slot(identity)
		if slot != nil {
			if bcrypt.CompareHashAndPassword([]byte(slot.SecretHash), []byte(secret)) != nil {
				return ErrAuthMismatch
			}
			if slot.Ready {
				// The party already declared its data final.
				return ErrRoomClosed
			}
		} else {
			switch {
			case r.PartyA == nil:
				r.PartyA = &models.PartySlot{Identity: identity, SecretHash: string(claimHash)}
				slot = r.PartyA
			case r.PartyB == nil:
				r.PartyB = &models.PartySlot{Identity: identity, SecretHash: string(claimHash)}
				slot = r.PartyB
			default:
				return ErrRoomFull
			}
		}

		if r.State == models.StateCreated {
			r.State = models.StateWaitingForUsers
		}
		slotKey = r.SlotKey(slot)
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}

	if err := c.store.PutPayload(ctx, roomID, slotKey, payload); err != nil {
		return mapStoreErr(err)
	}

	room, err := c.store.MutateRoom(ctx, roomID, func(r *models.Room) error {
		if r.State.Closed() {
			return ErrRoomClosed
		}
		slot := r.Slot(identity)
		if slot == nil {
			return ErrNotFound
		}
		slot.Uploaded = true
		if r.BothUploaded() && r.State.Rank() < models.StateBothUploaded.Rank() {
			r.State = models.StateBothUploaded
		}
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}

	c.logger.Info("party uploaded",
		zap.String("room_id", roomID),
		zap.String("slot", slotKey),
		zap.String("state", string(room.State)),
	)
	c.publish(ctx, room)
	return nil
}

// MarkReady sets the party's ready flag. The flag flip, the both-ready check
// and the BOTH_UPLOADED -> EVALUATING transition all happen inside one
// atomic mutation: the state transition itself is the gate, so exactly one
// of any number of concurrent ready signals wins the right to evaluate.
func (c *CoordinatorService) MarkReady(ctx context.Context, roomID, identity, secret string) error {
	var won bool
	room, err := c.store.MutateRoom(ctx, roomID, func(r *models.Room) error {
		// The closure may be re-run on optimistic retries.
		won = false

		if r.State.Closed() {
			return ErrRoomClosed
		}
		slot := r.Slot(identity)
		if slot == nil {
			return ErrAuthMismatch
		}
		if bcrypt.CompareHashAndPassword([]byte(slot.SecretHash), []byte(secret)) != nil {
			return ErrAuthMismatch
		}
		if !slot.Uploaded {
			return ErrNotUploaded
		}

		slot.Ready = true
		other := r.OtherSlot(slot)
		if r.State == models.StateBothUploaded && other != nil && other.Ready {
			r.State = models.StateEvaluating
			won = true
		}
		return nil
	})
	if err != nil {
		return mapStoreErr(err)
	}

	c.publish(ctx, room)

	if won {
		c.logger.Info("evaluation triggered", zap.String("room_id", roomID))
		go c.runEvaluation(room.RoomID)
	}
	return nil
}

// Status returns the externally visible snapshot of the room.
func (c *CoordinatorService) Status(ctx context.Context, roomID string) (models.StatusEvent, error) {
	room, err := c.store.GetRoom(ctx, roomID)
	if err != nil {
		return models.StatusEvent{}, mapStoreErr(err)
	}
	return room.Status(), nil
}

// Delete removes the room and its payloads. Idempotent.
func (c *CoordinatorService) Delete(ctx context.Context, roomID string) error {
	if err := c.store.DeleteRoom(ctx, roomID); err != nil {
		return mapStoreErr(err)
	}
	c.logger.Info("room deleted", zap.String("room_id", roomID))
	return nil
}

// Subscribe opens a stream of status snapshots for the room.
func (c *CoordinatorService) Subscribe(ctx context.Context, roomID string) (storage.Subscription, error) {
	sub, err := c.store.SubscribeStatus(ctx, roomID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return sub, nil
}

// Ping reports store health.
func (c *CoordinatorService) Ping(ctx context.Context) error {
	return mapStoreErr(c.store.Ping(ctx))
}

// runEvaluation is executed by the single caller that won the EVALUATING
// transition. It runs outside any per-room exclusive section; the persisted
// EVALUATING state is what prevents a second attempt, and both writeback
// mutations re-check it so a late outcome can never overwrite a room that
// has already moved on.
func (c *CoordinatorService) runEvaluation(roomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.evalTimeout)
	defer cancel()
	log := c.logger.With(zap.String("room_id", roomID))

	payloadA, err := c.store.GetPayload(ctx, roomID, "a")
	if err != nil {
		log.Error("load party a payload", zap.Error(err))
		c.failRoom(roomID, reasonEvaluationFailed)
		return
	}
	payloadB, err := c.store.GetPayload(ctx, roomID, "b")
	if err != nil {
		log.Error("load party b payload", zap.Error(err))
		c.failRoom(roomID, reasonEvaluationFailed)
		return
	}

	type outcome struct {
		result *models.EvaluationResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := c.evaluator.Evaluate(ctx, payloadA, payloadB)
		done <- outcome{result: result, err: err}
	}()

	select {
	case <-ctx.Done():
		log.Warn("evaluation timed out", zap.Duration("ceiling", c.evalTimeout))
		c.failRoom(roomID, reasonEvaluationTimeout)
	case out := <-done:
		if out.err != nil {
			// The reason stored on the room stays opaque; evaluator errors
			// may echo input fragments and are confined to logs.
			log.Error("evaluation failed", zap.Error(fmt.Errorf("%w: %v", ErrEvaluationFailed, out.err)))
			c.failRoom(roomID, reasonEvaluationFailed)
			return
		}
		c.completeRoom(roomID, out.result)
	}
}

// completeRoom performs EVALUATING -> COMPLETED with the result, discarding
// the outcome if the room is no longer evaluating.
func (c *CoordinatorService) completeRoom(roomID string, result *models.EvaluationResult) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	room, err := c.store.MutateRoom(ctx, roomID, func(r *models.Room) error {
		if r.State != models.StateEvaluating {
			return ErrRoomClosed
		}
		r.State = models.StateCompleted
		r.Result = &models.EvaluationResult{
			AToBScore: clampScore(result.AToBScore),
			BToAScore: clampScore(result.BToAScore),
		}
		return nil
	})
	if err != nil {
		c.logger.Warn("evaluation result discarded",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		return
	}

	c.logger.Info("room completed",
		zap.String("room_id", roomID),
		zap.Int("a_to_b_score", room.Result.AToBScore),
		zap.Int("b_to_a_score", room.Result.BToAScore),
	)
	c.publish(ctx, room)
}

// failRoom performs EVALUATING -> FAILED with an opaque reason. FAILED is
// terminal; a fresh room is required to retry.
func (c *CoordinatorService) failRoom(roomID, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeOpTimeout)
	defer cancel()

	room, err := c.store.MutateRoom(ctx, roomID, func(r *models.Room) error {
		if r.State != models.StateEvaluating {
			return ErrRoomClosed
		}
		r.State = models.StateFailed
		r.FailureReason = reason
		return nil
	})
	if err != nil {
		c.logger.Warn("failure writeback skipped",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
		return
	}

	c.logger.Info("room failed",
		zap.String("room_id", roomID),
		zap.String("reason", reason),
	)
	c.publish(ctx, room)
}

// publish fans the room's snapshot out to status stream subscribers.
// Best effort: polling remains the authoritative surface.
func (c *CoordinatorService) publish(ctx context.Context, room *models.Room) {
	if err := c.store.PublishStatus(ctx, room.RoomID, room.Status()); err != nil {
		c.logger.Debug("publish status", zap.String("room_id", room.RoomID), zap.Error(err))
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// mapStoreErr translates store errors into the coordinator taxonomy.
// Errors raised by mutation closures are already coordinator errors and
// pass through unchanged.
func mapStoreErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrUnavailable):
		return ErrStoreUnavailable
	default:
		return err
	}
}
