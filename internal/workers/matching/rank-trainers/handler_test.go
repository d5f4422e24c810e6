package ranktrainers

import (
	"context"
	"errors"
	"testing"
	"time"

	"trainer-match-workers/internal/common/config"
	apperrors "trainer-match-workers/internal/common/errors"
	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/matching/persist"
	"trainer-match-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Implementations
// ==========================

type MockRanker struct {
	mock.Mock
}

func (m *MockRanker) Rank(ctx context.Context, requirementID string, k int) (*matching.Ranking, error) {
	args := m.Called(ctx, requirementID, k)
	if r := args.Get(0); r != nil {
		return r.(*matching.Ranking), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockPersister struct {
	mock.Mock
}

func (m *MockPersister) Persist(ctx context.Context, requirementID string, ranked []matching.RankedCandidate) (*persist.PersistReport, error) {
	args := m.Called(ctx, requirementID, ranked)
	if r := args.Get(0); r != nil {
		return r.(*persist.PersistReport), args.Error(1)
	}
	return nil, args.Error(1)
}

func candidate(id string, score float64) matching.RankedCandidate {
	return matching.RankedCandidate{
		Trainer: models.Trainer{ID: id, Name: "Trainer " + id},
		Assessment: matching.Assessment{
			Score:       score,
			Explanation: "matched tags",
			Strategy:    matching.StrategySkillsHeuristic,
		},
	}
}

func newTestHandler(t *testing.T, ranker Ranker, persister Persister) *Handler {
	return NewHandler(LoadConfig(), ranker, persister, nil, logger.NewTestLogger(t))
}

// ==========================
// Execute
// ==========================

func TestExecute_RanksAndPersists(t *testing.T) {
	ranker := new(MockRanker)
	persister := new(MockPersister)

	shortlist := []matching.RankedCandidate{candidate("t-1", 0.9), candidate("t-2", 0.6)}
	ranker.On("Rank", mock.Anything, "req-1", 5).Return(&matching.Ranking{
		Candidates: shortlist,
		PoolSize:   7,
		Dropped:    []matching.CandidateFailure{{TrainerID: "t-9", Err: errors.New("boom")}},
	}, nil)
	persister.On("Persist", mock.Anything, "req-1", shortlist).Return(&persist.PersistReport{
		Persisted: []models.MatchResult{
			{ID: "m-1", RequirementID: "req-1", TrainerID: "t-1", Score: 0.9, Status: models.MatchStatusPending},
			{ID: "m-2", RequirementID: "req-1", TrainerID: "t-2", Score: 0.6, Status: models.MatchStatusAccepted},
		},
	}, nil)

	out, err := newTestHandler(t, ranker, persister).Execute(context.Background(), &Input{RequirementID: "req-1"})
	require.NoError(t, err)

	assert.Equal(t, "req-1", out.RequirementID)
	require.Len(t, out.RankedTrainers, 2)
	assert.Equal(t, "t-1", out.RankedTrainers[0].TrainerID)
	assert.Equal(t, "Trainer t-1", out.RankedTrainers[0].Name)
	assert.Equal(t, 0.9, out.RankedTrainers[0].Score)
	assert.Equal(t, "skills_heuristic", out.RankedTrainers[0].Strategy)
	assert.Equal(t, "m-2", out.RankedTrainers[1].MatchResultID)
	assert.Equal(t, 7, out.PoolSize)
	assert.Equal(t, 1, out.DroppedCount)
	assert.Equal(t, 2, out.PersistedCount)
	assert.Equal(t, 0, out.FailedCount)

	ranker.AssertExpectations(t)
	persister.AssertExpectations(t)
}

func TestExecute_ExplicitK(t *testing.T) {
	ranker := new(MockRanker)
	persister := new(MockPersister)

	ranker.On("Rank", mock.Anything, "req-1", 2).Return(&matching.Ranking{Candidates: []matching.RankedCandidate{}}, nil)
	persister.On("Persist", mock.Anything, "req-1", mock.Anything).Return(&persist.PersistReport{}, nil)

	out, err := newTestHandler(t, ranker, persister).Execute(context.Background(), &Input{RequirementID: "req-1", K: 2})
	require.NoError(t, err)
	assert.NotNil(t, out.RankedTrainers)
	assert.Empty(t, out.RankedTrainers)
	ranker.AssertExpectations(t)
}

func TestExecute_PartialPersistFailure(t *testing.T) {
	ranker := new(MockRanker)
	persister := new(MockPersister)

	shortlist := []matching.RankedCandidate{candidate("t-1", 0.9), candidate("t-2", 0.8)}
	ranker.On("Rank", mock.Anything, "req-1", 5).Return(&matching.Ranking{Candidates: shortlist, PoolSize: 2}, nil)
	persister.On("Persist", mock.Anything, "req-1", shortlist).Return(&persist.PersistReport{
		Persisted: []models.MatchResult{{ID: "m-1", TrainerID: "t-1"}},
		Failures:  []persist.PairFailure{{TrainerID: "t-2", Err: errors.New("deadlock detected")}},
	}, nil)

	out, err := newTestHandler(t, ranker, persister).Execute(context.Background(), &Input{RequirementID: "req-1"})
	require.NoError(t, err)
	assert.Len(t, out.RankedTrainers, 2)
	assert.Equal(t, 1, out.PersistedCount)
	assert.Equal(t, 1, out.FailedCount)
	assert.Empty(t, out.RankedTrainers[1].MatchResultID)
}

func TestExecute_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input Input
	}{
		{name: "missing requirement id", input: Input{}},
		{name: "negative k", input: Input{RequirementID: "req-1", K: -1}},
		{name: "k too large", input: Input{RequirementID: "req-1", K: 1000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranker := new(MockRanker)
			persister := new(MockPersister)

			_, err := newTestHandler(t, ranker, persister).Execute(context.Background(), &tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidJobInput))
			ranker.AssertNotCalled(t, "Rank", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestExecute_RankErrorIsReturned(t *testing.T) {
	ranker := new(MockRanker)
	persister := new(MockPersister)

	rankErr := apperrors.NewRequirementNotFoundError("missing", matching.ErrRequirementNotFound)
	ranker.On("Rank", mock.Anything, "missing", 5).Return(nil, rankErr)

	_, err := newTestHandler(t, ranker, persister).Execute(context.Background(), &Input{RequirementID: "missing"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRequirementNotFound))
	persister.AssertNotCalled(t, "Persist", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecute_PersistCancelled(t *testing.T) {
	ranker := new(MockRanker)
	persister := new(MockPersister)

	ranker.On("Rank", mock.Anything, "req-1", 5).Return(&matching.Ranking{Candidates: []matching.RankedCandidate{candidate("t-1", 0.9)}}, nil)
	persister.On("Persist", mock.Anything, "req-1", mock.Anything).Return(&persist.PersistReport{}, context.Canceled)

	_, err := newTestHandler(t, ranker, persister).Execute(context.Background(), &Input{RequirementID: "req-1"})
	assert.ErrorIs(t, err, context.Canceled)
}

// ==========================
// Config
// ==========================

func TestFromWorkerConfig(t *testing.T) {
	cfg := FromWorkerConfig(config.WorkerConfig{Timeout: 45000}, config.MatchingConfig{TopK: 10})
	assert.Equal(t, 45*time.Second, cfg.Timeout)
	assert.Equal(t, 10, cfg.TopK)

	defaults := FromWorkerConfig(config.WorkerConfig{}, config.MatchingConfig{})
	assert.Equal(t, 30*time.Second, defaults.Timeout)
	assert.Equal(t, matching.DefaultTopK, defaults.TopK)
}
