package persist

import (
	"context"
	"sync"
	"time"

	apperrors "trainer-match-workers/internal/common/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyedLocker serializes work on the same key. unlock must be called exactly once.
type KeyedLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// PairKey is the lock key for one (requirement, trainer) pair.
func PairKey(requirementID, trainerID string) string {
	return "match:" + requirementID + ":" + trainerID
}

// LocalLocker is an in-process KeyedLocker. Waiting honours ctx.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]*slot)}
}

func (l *LocalLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s, false)
		return nil, apperrors.NewLockUnavailableError(key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, s, true) })
	}, nil
}

func (l *LocalLocker) release(key string, s *slot, held bool) {
	if held {
		<-s.ch
	}
	l.mu.Lock()
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	defaultLockTTL      = 5 * time.Second
	defaultRetryBackoff = 25 * time.Millisecond
	maxRetryBackoff     = 400 * time.Millisecond
)

// RedisLocker is a KeyedLocker shared by every worker replica using the same
// Redis. The lock expires after ttl if the holder dies.
type RedisLocker struct {
	client  redis.Cmdable
	ttl     time.Duration
	backoff time.Duration
	prefix  string
}

func NewRedisLocker(client redis.Cmdable, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{
		client:  client,
		ttl:     ttl,
		backoff: defaultRetryBackoff,
		prefix:  "lock:",
	}
}

// Lock polls SET NX until it wins or ctx ends.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()
	wait := l.backoff

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, apperrors.NewLockUnavailableError(key, ctxErr)
			}
			return nil, apperrors.NewLockUnavailableError(key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, apperrors.NewLockUnavailableError(key, ctx.Err())
		case <-timer.C:
		}
		if wait *= 2; wait > maxRetryBackoff {
			wait = maxRetryBackoff
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release even if the caller's ctx is already done
			relCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			// a key we fail to delete still expires after ttl
			_ = releaseScript.Run(relCtx, l.client, []string{redisKey}, token).Err()
		})
	}, nil
}
