package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrHeld is returned when another holder owns the lock.
var ErrHeld = errors.New("run lock held")

const redisKeyPrefix = "settlement:runlock"

// Release gives the lock back. It is safe to call once.
type Release func(ctx context.Context) error

// Locker serialises settlement runs per job.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (Release, error)
}

// redisClient is the subset of redis.Cmdable the lock needs.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// releaseScript deletes the key only if it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker is a SET NX PX lock shared by every replica pointing at the same Redis.
type RedisLocker struct {
	client redisClient
}

func NewRedisLocker(client redisClient) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Release, error) {
	key := redisKey(name)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrHeld
	}

	var once sync.Once
	return func(ctx context.Context) error {
		var releaseErr error
		once.Do(func() {
			deleted, err := l.client.Eval(ctx, releaseScript, []string{key}, token).Int64()
			if err != nil {
				releaseErr = fmt.Errorf("release run lock %s: %w", name, err)
				return
			}
			if deleted == 0 {
				zap.L().Warn("run lock expired before release", zap.String("lock", name))
			}
		})
		return releaseErr
	}, nil
}

func redisKey(name string) string {
	return fmt.Sprintf("%s:%s", redisKeyPrefix, name)
}

// LocalLocker serialises runs within a single process. Used when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, name string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.held[name]; ok && now.Before(expires) {
		return nil, ErrHeld
	}
	expires := now.Add(ttl)
	l.held[name] = expires

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.held[name].Equal(expires) {
				delete(l.held, name)
			}
		})
		return nil
	}, nil
}
