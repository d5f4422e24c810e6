package persist

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "trainer-match-workers/internal/common/errors"
	"trainer-match-workers/internal/common/logger"
	"trainer-match-workers/internal/matching"
	"trainer-match-workers/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// In-memory store
// ==========================

type memoryStore struct {
	mu      sync.Mutex
	rows    map[string]models.MatchResult
	failFor map[string]error
	pruned  []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[string]models.MatchResult), failFor: make(map[string]error)}
}

func (s *memoryStore) UpsertPair(ctx context.Context, requirementID, trainerID string, score float64, explanation string) (models.MatchResult, matching.UpsertOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failFor[trainerID]; err != nil {
		return models.MatchResult{}, "", err
	}
	key := requirementID + "/" + trainerID
	if row, ok := s.rows[key]; ok {
		row.Score = score
		row.Explanation = explanation
		row.UpdatedAt = time.Now()
		s.rows[key] = row
		return row, matching.UpsertUpdated, nil
	}
	row := models.MatchResult{
		ID:            key,
		RequirementID: requirementID,
		TrainerID:     trainerID,
		Score:         score,
		Explanation:   explanation,
		Status:        models.MatchStatusPending,
	}
	s.rows[key] = row
	return row, matching.UpsertCreated, nil
}

func (s *memoryStore) ListByRequirement(ctx context.Context, requirementID string) ([]models.MatchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.MatchResult
	for _, r := range s.rows {
		if r.RequirementID == requirementID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) PruneStale(ctx context.Context, requirementID string, keep []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := make(map[string]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	var n int64
	for k, r := range s.rows {
		if r.RequirementID == requirementID && r.Status == models.MatchStatusPending && !kept[r.TrainerID] {
			delete(s.rows, k)
			s.pruned = append(s.pruned, r.TrainerID)
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func candidate(id string, score float64) matching.RankedCandidate {
	return matching.RankedCandidate{
		Trainer:    models.Trainer{ID: id},
		Assessment: matching.Assessment{Score: score, Explanation: "why " + id},
	}
}

// ==========================
// Upserter
// ==========================

func TestPersist_IsIdempotentPerPair(t *testing.T) {
	store := newMemoryStore()
	u := NewUpserter(store, NewLocalLocker(), Options{}, logger.NewTestLogger(t))
	ctx := context.Background()

	first, err := u.Persist(ctx, "req-1", []matching.RankedCandidate{candidate("a", 0.9), candidate("b", 0.8)})
	require.NoError(t, err)
	assert.Len(t, first.Persisted, 2)

	second, err := u.Persist(ctx, "req-1", []matching.RankedCandidate{candidate("a", 0.95), candidate("b", 0.6)})
	require.NoError(t, err)
	assert.Len(t, second.Persisted, 2)
	assert.Empty(t, second.Failures)

	assert.Equal(t, 2, store.count())
	assert.Equal(t, 0.95, second.Persisted[0].Score)
	assert.Equal(t, "why a", second.Persisted[0].Explanation)
}

func TestPersist_KeepsExistingStatus(t *testing.T) {
	store := newMemoryStore()
	store.rows["req-1/a"] = models.MatchResult{ID: "x", RequirementID: "req-1", TrainerID: "a", Score: 0.1, Status: models.MatchStatusAccepted}
	u := NewUpserter(store, nil, Options{}, logger.NewNoOpLogger())

	report, err := u.Persist(context.Background(), "req-1", []matching.RankedCandidate{candidate("a", 0.77)})
	require.NoError(t, err)
	require.Len(t, report.Persisted, 1)
	assert.Equal(t, models.MatchStatusAccepted, report.Persisted[0].Status)
	assert.Equal(t, 0.77, report.Persisted[0].Score)
}

func TestPersist_OneFailingPairDoesNotStopOthers(t *testing.T) {
	store := newMemoryStore()
	store.failFor["b"] = errors.New("deadlock detected")
	u := NewUpserter(store, NewLocalLocker(), Options{PruneStale: true}, logger.NewTestLogger(t))

	report, err := u.Persist(context.Background(), "req-1", []matching.RankedCandidate{
		candidate("a", 0.9), candidate("b", 0.8), candidate("c", 0.7),
	})
	require.NoError(t, err)
	require.Len(t, report.Persisted, 2)
	assert.Equal(t, "a", report.Persisted[0].TrainerID)
	assert.Equal(t, "c", report.Persisted[1].TrainerID)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "b", report.Failures[0].TrainerID)
	assert.True(t, apperrors.HasCode(report.Failures[0].Err, apperrors.ErrCodeMatchPersistFailed))
	assert.Zero(t, report.Pruned, "prune is skipped when a pair failed")
}

func TestPersist_PruneStaleOnlyTouchesPendingRows(t *testing.T) {
	store := newMemoryStore()
	store.rows["req-1/old"] = models.MatchResult{RequirementID: "req-1", TrainerID: "old", Status: models.MatchStatusPending}
	store.rows["req-1/kept"] = models.MatchResult{RequirementID: "req-1", TrainerID: "kept", Status: models.MatchStatusAccepted}
	store.rows["req-2/other"] = models.MatchResult{RequirementID: "req-2", TrainerID: "other", Status: models.MatchStatusPending}
	u := NewUpserter(store, NewLocalLocker(), Options{PruneStale: true}, logger.NewNoOpLogger())

	report, err := u.Persist(context.Background(), "req-1", []matching.RankedCandidate{candidate("a", 0.9)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Pruned)
	assert.Equal(t, []string{"old"}, store.pruned)
	assert.Equal(t, 3, store.count())
}

func TestPersist_RetainsStaleRowsByDefault(t *testing.T) {
	store := newMemoryStore()
	store.rows["req-1/old"] = models.MatchResult{RequirementID: "req-1", TrainerID: "old", Status: models.MatchStatusPending}
	u := NewUpserter(store, NewLocalLocker(), Options{}, logger.NewNoOpLogger())

	_, err := u.Persist(context.Background(), "req-1", []matching.RankedCandidate{candidate("a", 0.9)})
	require.NoError(t, err)
	assert.Equal(t, 2, store.count())
}

func TestPersist_CancelledContextWritesNothing(t *testing.T) {
	store := newMemoryStore()
	u := NewUpserter(store, NewLocalLocker(), Options{}, logger.NewNoOpLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := u.Persist(ctx, "req-1", []matching.RankedCandidate{candidate("a", 0.9)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, store.count())
}

func TestPersist_ConcurrentCallsOnSamePairLeaveOneRow(t *testing.T) {
	store := newMemoryStore()
	u := NewUpserter(store, NewLocalLocker(), Options{}, logger.NewNoOpLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := u.Persist(context.Background(), "req-1", []matching.RankedCandidate{candidate("a", float64(i)/20)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, store.count())
}

// ==========================
// LocalLocker
// ==========================

func TestLocalLocker_SerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	var inside, maxInside int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			if n > atomic.LoadInt32(&maxInside) {
				atomic.StoreInt32(&maxInside, n)
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.slots)
}

func TestLocalLocker_DifferentKeysDoNotBlock(t *testing.T) {
	l := NewLocalLocker()
	unlockA, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLocker_WaitHonoursContext(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLockUnavailable))

	unlock()
	unlock() // second call is a no-op

	again, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	again()
}

// ==========================
// RedisLocker
// ==========================

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client := newMiniredis(t)
	l := NewRedisLocker(client, time.Second)

	unlock, err := l.Lock(context.Background(), PairKey("req-1", "a"))
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:match:req-1:a"))
	ttl := mr.TTL("lock:match:req-1:a")
	assert.Greater(t, ttl, time.Duration(0))

	unlock()
	assert.False(t, mr.Exists("lock:match:req-1:a"))
}

func TestRedisLocker_MutualExclusion(t *testing.T) {
	_, client := newMiniredis(t)
	l := NewRedisLocker(client, time.Second)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "k")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLockUnavailable))

	released := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		unlock()
		close(released)
	}()
	next, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	<-released
	next()
}

func TestRedisLocker_ReleaseLeavesForeignToken(t *testing.T) {
	mr, client := newMiniredis(t)
	l := NewRedisLocker(client, time.Second)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// our lock expired and another replica took it
	require.NoError(t, mr.Set("lock:k", "someone-else"))
	unlock()

	v, err := mr.Get("lock:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
}

func TestRedisLocker_ExpiredLockCanBeTaken(t *testing.T) {
	mr, client := newMiniredis(t)
	l := NewRedisLocker(client, 100*time.Millisecond)

	_, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	mr.FastForward(200 * time.Millisecond)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_BackendError(t *testing.T) {
	mr, client := newMiniredis(t)
	mr.Close()

	l := NewRedisLocker(client, time.Second)
	_, err := l.Lock(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeLockUnavailable))
}

func TestUpserter_WithRedisLocker(t *testing.T) {
	_, client := newMiniredis(t)
	store := newMemoryStore()
	u := NewUpserter(store, NewRedisLocker(client, time.Second), Options{}, logger.NewNoOpLogger())

	report, err := u.Persist(context.Background(), "req-1", []matching.RankedCandidate{candidate("a", 0.9), candidate("b", 0.4)})
	require.NoError(t, err)
	assert.Len(t, report.Persisted, 2)
	assert.Equal(t, 2, store.count())
}
