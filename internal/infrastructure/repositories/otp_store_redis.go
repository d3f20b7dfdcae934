package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/you/authsvc/domain"
)

const (
	defaultOTPTxRetries = 8
	minOTPRetention     = time.Minute
)

// RedisOTPStore implements domain.OTPStore on Redis so several instances can
// share pending challenges. Keys outlive ExpiresAt by one TTL so that callers
// can still tell an expired code from a missing one; Redis evicts them after.
type RedisOTPStore struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

// NewRedisOTPStore creates a Redis-backed OTP store
func NewRedisOTPStore(client *redis.Client) *RedisOTPStore {
	return &RedisOTPStore{
		client:     client,
		prefix:     "otp:",
		maxRetries: defaultOTPTxRetries,
	}
}

func (s *RedisOTPStore) key(k domain.OTPKey) string {
	return s.prefix + k.String()
}

// Put implements domain.OTPStore
func (s *RedisOTPStore) Put(ctx context.Context, entry *domain.OTPEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return oops.Code("OTP_STORE_FAILED").With("operation", "marshal").Wrap(err)
	}
	k := s.key(entry.Key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, k, data, 0)
		pipe.PExpireAt(ctx, k, retainUntil(entry))
		return nil
	})
	if err != nil {
		return oops.Code("OTP_STORE_FAILED").With("operation", "put").Wrap(err)
	}
	return nil
}

// Mutate implements domain.OTPStore with an optimistic WATCH/MULTI transaction,
// retried when another writer touches the key in between.
func (s *RedisOTPStore) Mutate(ctx context.Context, key domain.OTPKey, fn func(entry *domain.OTPEntry) (domain.EntryOp, error)) error {
	k := s.key(key)
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		var fnErr error
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, k).Bytes()
			if errors.Is(err, redis.Nil) {
				return domain.ErrOTPNotFound
			}
			if err != nil {
				return err
			}

			var entry domain.OTPEntry
			if err := json.Unmarshal(data, &entry); err != nil {
				return err
			}
			entry.Key = key

			var op domain.EntryOp
			op, fnErr = fn(&entry)
			if op == domain.EntryKeep {
				return nil
			}

			var updated []byte
			if op == domain.EntrySave {
				if updated, err = json.Marshal(&entry); err != nil {
					return err
				}
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if op == domain.EntryDelete {
					pipe.Del(ctx, k)
					return nil
				}
				pipe.Set(ctx, k, updated, 0)
				pipe.PExpireAt(ctx, k, retainUntil(&entry))
				return nil
			})
			return err
		}, k)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, domain.ErrOTPNotFound):
			return err
		case err != nil:
			return oops.Code("OTP_STORE_FAILED").With("operation", "mutate").Wrap(err)
		}
		return fnErr
	}
	return oops.Code("OTP_STORE_CONTENDED").With("key", k).Errorf("otp entry changed concurrently %d times", s.maxRetries)
}

// Delete implements domain.OTPStore
func (s *RedisOTPStore) Delete(ctx context.Context, key domain.OTPKey) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return oops.Code("OTP_STORE_FAILED").With("operation", "delete").Wrap(err)
	}
	return nil
}

// DeleteExpired implements domain.OTPStore.
// Redis evicts keys once their retention lapses, so this is a no-op.
func (s *RedisOTPStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

// retainUntil is when Redis may drop the key: one lifetime past ExpiresAt,
// never less than minOTPRetention.
func retainUntil(entry *domain.OTPEntry) time.Time {
	grace := entry.ExpiresAt.Sub(entry.IssuedAt)
	if grace < minOTPRetention {
		grace = minOTPRetention
	}
	return entry.ExpiresAt.Add(grace)
}

// Compile-time interface compliance verification
var _ domain.OTPStore = (*RedisOTPStore)(nil)
