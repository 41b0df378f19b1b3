package coordinator_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"matchroom/backend/internal/models"
)

type MockEvaluator struct {
	mock.Mock
}

func (m *MockEvaluator) Evaluate(ctx context.Context, partyA, partyB *models.PartyPayload) (*models.EvaluationResult, error) {
	args := m.Called(ctx, partyA, partyB)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EvaluationResult), args.Error(1)
}

// countingEvaluator counts invocations for the exactly-once property tests.
// When block is set it ignores ctx and waits until released, simulating a
// collaborator that outlives the evaluation ceiling.
type countingEvaluator struct {
	mu     sync.Mutex
	calls  int
	result *models.EvaluationResult
	err    error
	block  chan struct{}
}

func (e *countingEvaluator) Evaluate(ctx context.Context, partyA, partyB *models.PartyPayload) (*models.EvaluationResult, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.block != nil {
		<-e.block
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

func (e *countingEvaluator) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
