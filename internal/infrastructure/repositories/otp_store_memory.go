package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/you/authsvc/domain"
)

// MemoryOTPStore implements domain.OTPStore in process memory. Suitable for a
// single instance only.
type MemoryOTPStore struct {
	mu      sync.Mutex
	entries map[domain.OTPKey]domain.OTPEntry
}

// NewMemoryOTPStore creates an empty in-memory OTP store
func NewMemoryOTPStore() *MemoryOTPStore {
	return &MemoryOTPStore{entries: make(map[domain.OTPKey]domain.OTPEntry)}
}

// Put implements domain.OTPStore
func (s *MemoryOTPStore) Put(ctx context.Context, entry *domain.OTPEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Key] = *entry
	return nil
}

// Mutate implements domain.OTPStore. The whole callback runs under the store lock.
func (s *MemoryOTPStore) Mutate(ctx context.Context, key domain.OTPKey, fn func(entry *domain.OTPEntry) (domain.EntryOp, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return domain.ErrOTPNotFound
	}
	op, err := fn(&entry)
	switch op {
	case domain.EntrySave:
		entry.Key = key
		s.entries[key] = entry
	case domain.EntryDelete:
		delete(s.entries, key)
	}
	return err
}

// Delete implements domain.OTPStore
func (s *MemoryOTPStore) Delete(ctx context.Context, key domain.OTPKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

// DeleteExpired implements domain.OTPStore
func (s *MemoryOTPStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.entries {
		if e.IsExpired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored entries
func (s *MemoryOTPStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Compile-time interface compliance verification
var _ domain.OTPStore = (*MemoryOTPStore)(nil)
