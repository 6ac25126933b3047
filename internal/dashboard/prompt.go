package dashboard

import (
	"context"
	"sync"
	"time"

	"swaft/internal/model"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// PromptTracker remembers which sessions were already asked for a nickname.
type PromptTracker interface {
	// MarkPrompted records the prompt and reports whether it is the first
	// one for the session.
	MarkPrompted(ctx context.Context, s *model.Session) (bool, error)
	// Forget drops the record, e.g. once the nickname is set.
	Forget(ctx context.Context, s *model.Session) error
}

const promptKeyPrefix = "dashboard:nickname-prompt:"

// RedisPromptTracker shares prompt state between instances. Keys expire with
// the session.
type RedisPromptTracker struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisPromptTracker(client *redis.Client) *RedisPromptTracker {
	return &RedisPromptTracker{client: client, now: time.Now}
}

func (t *RedisPromptTracker) key(s *model.Session) string {
	return promptKeyPrefix + s.ID.String()
}

func (t *RedisPromptTracker) MarkPrompted(ctx context.Context, s *model.Session) (bool, error) {
	ttl := s.Remaining(t.now())
	if ttl < time.Second {
		ttl = time.Second
	}
	return t.client.SetNX(ctx, t.key(s), 1, ttl).Result()
}

func (t *RedisPromptTracker) Forget(ctx context.Context, s *model.Session) error {
	return t.client.Del(ctx, t.key(s)).Err()
}

// MemoryPromptTracker is the single-process tracker.
type MemoryPromptTracker struct {
	mu       sync.Mutex
	prompted map[uuid.UUID]bool
}

func NewMemoryPromptTracker() *MemoryPromptTracker {
	return &MemoryPromptTracker{prompted: make(map[uuid.UUID]bool)}
}

func (t *MemoryPromptTracker) MarkPrompted(_ context.Context, s *model.Session) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.prompted[s.ID] {
		return false, nil
	}
	t.prompted[s.ID] = true
	return true, nil
}

func (t *MemoryPromptTracker) Forget(_ context.Context, s *model.Session) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.prompted, s.ID)
	return nil
}
