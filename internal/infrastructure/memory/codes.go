// Package memory provides in-process stores for local development and tests.
// Entries are not shared across processes.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-recovery-api/internal/domain"
)

type codeEntry struct {
	code      domain.VerificationCode
	expiresAt time.Time
}

type attemptEntry struct {
	n         int
	expiresAt time.Time
}

// CodeStore is a mutex-guarded TTL map. Expired entries are dropped lazily on access.
type CodeStore struct {
	mu       sync.Mutex
	codes    map[string]codeEntry
	attempts map[string]attemptEntry
	now      func() time.Time
}

func NewCodeStore(now func() time.Time) *CodeStore {
	if now == nil {
		now = time.Now
	}
	return &CodeStore{
		codes:    make(map[string]codeEntry),
		attempts: make(map[string]attemptEntry),
		now:      now,
	}
}

func (s *CodeStore) Put(ctx context.Context, key string, code *domain.VerificationCode, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("put code: %w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[key] = codeEntry{code: *code, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *CodeStore) PutIfAbsent(ctx context.Context, key string, code *domain.VerificationCode, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("put code: %w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.codes[key] = codeEntry{code: *code, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *CodeStore) Get(ctx context.Context, key string) (*domain.VerificationCode, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("get code: %w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok {
		return nil, domain.ErrCodeNotFound
	}
	c := e.code
	return &c, nil
}

func (s *CodeStore) RemoveIfEquals(ctx context.Context, key, expected string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("remove code: %w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok || e.code.Value != expected {
		return false, nil
	}
	delete(s.codes, key)
	return true, nil
}

func (s *CodeStore) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("remove code: %w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, key)
	return nil
}

// Increment implements verification.AttemptCounter.
func (s *CodeStore) Increment(ctx context.Context, key string, ttl time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("count attempt: %w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	a, ok := s.attempts[key]
	if !ok || !now.Before(a.expiresAt) {
		a = attemptEntry{expiresAt: now.Add(ttl)}
	}
	a.n++
	s.attempts[key] = a
	return a.n, nil
}

func (s *CodeStore) Reset(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("reset attempts: %w: %w", domain.ErrStoreUnavailable, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, key)
	return nil
}

// Ping always succeeds; it lets the memory store stand in for readiness checks.
func (s *CodeStore) Ping(context.Context) error { return nil }

// live must be called with s.mu held.
func (s *CodeStore) live(key string) (codeEntry, bool) {
	e, ok := s.codes[key]
	if !ok {
		return codeEntry{}, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.codes, key)
		return codeEntry{}, false
	}
	return e, true
}
