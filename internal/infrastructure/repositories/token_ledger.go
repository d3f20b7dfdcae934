package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/you/authsvc/domain"
)

// minLedgerTTL keeps a consumed id around even when the token is about to expire
const minLedgerTTL = time.Second

// MemoryTokenLedger implements domain.TokenLedger in process memory
type MemoryTokenLedger struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

// NewMemoryTokenLedger creates an empty in-memory ledger
func NewMemoryTokenLedger() *MemoryTokenLedger {
	return &MemoryTokenLedger{used: make(map[string]time.Time), now: time.Now}
}

// Consume implements domain.TokenLedger
func (l *MemoryTokenLedger) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl < minLedgerTTL {
		ttl = minLedgerTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, exp := range l.used {
		if now.After(exp) {
			delete(l.used, k)
		}
	}
	if _, seen := l.used[id]; seen {
		return false, nil
	}
	l.used[id] = now.Add(ttl)
	return true, nil
}

// Release implements domain.TokenLedger
func (l *MemoryTokenLedger) Release(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.used, id)
	return nil
}

// RedisTokenLedger implements domain.TokenLedger with SETNX keys that expire
// together with the token they record
type RedisTokenLedger struct {
	client *redis.Client
	prefix string
}

// NewRedisTokenLedger creates a Redis-backed ledger
func NewRedisTokenLedger(client *redis.Client) *RedisTokenLedger {
	return &RedisTokenLedger{client: client, prefix: "token:used:"}
}

// Consume implements domain.TokenLedger
func (l *RedisTokenLedger) Consume(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	if ttl < minLedgerTTL {
		ttl = minLedgerTTL
	}
	first, err := l.client.SetNX(ctx, l.prefix+id, 1, ttl).Result()
	if err != nil {
		return false, oops.Code("TOKEN_LEDGER_FAILED").With("operation", "setnx").Wrap(err)
	}
	return first, nil
}

// Release implements domain.TokenLedger
func (l *RedisTokenLedger) Release(ctx context.Context, id string) error {
	if err := l.client.Del(ctx, l.prefix+id).Err(); err != nil {
		return oops.Code("TOKEN_LEDGER_FAILED").With("operation", "del").Wrap(err)
	}
	return nil
}

// Compile-time interface compliance verification
var (
	_ domain.TokenLedger = (*MemoryTokenLedger)(nil)
	_ domain.TokenLedger = (*RedisTokenLedger)(nil)
)
