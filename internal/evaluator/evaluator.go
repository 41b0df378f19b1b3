// Package evaluator defines the compatibility evaluation boundary.
// The coordinator hands both parties' payloads to an Evaluator and records
// only the returned scores; evaluator internals never reach room state.
package evaluator

import (
	"context"

	"matchroom/backend/internal/models"
)

// Evaluator computes the mutual compatibility scores for one room.
// Implementations are stateless; a single call may take tens of seconds and
// must honor ctx cancellation.
type Evaluator interface {
	Evaluate(ctx context.Context, partyA, partyB *models.PartyPayload) (*models.EvaluationResult, error)
}
