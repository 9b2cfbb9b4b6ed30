package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-recovery-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock { return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)} }

func code(clock *fakeClock, value string, validity time.Duration) *domain.VerificationCode {
	return domain.NewVerificationCode(domain.PurposePasswordRecovery, "u1", value, clock.Now(), validity)
}

func TestCodeStore_PutGet(t *testing.T) {
	clock := newClock()
	s := NewCodeStore(clock.Now)
	c := code(clock, "483920", time.Minute)
	require.NoError(t, s.Put(context.Background(), c.Key, c, time.Minute))

	got, err := s.Get(context.Background(), c.Key)
	require.NoError(t, err)
	assert.Equal(t, "483920", got.Value)
	assert.Equal(t, "u1", got.AccountID)
}

func TestCodeStore_ExpiredEntryIsAbsent(t *testing.T) {
	clock := newClock()
	s := NewCodeStore(clock.Now)
	c := code(clock, "483920", time.Minute)
	require.NoError(t, s.Put(context.Background(), c.Key, c, time.Minute))

	clock.Advance(time.Minute)
	_, err := s.Get(context.Background(), c.Key)
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)

	ok, err := s.RemoveIfEquals(context.Background(), c.Key, "483920")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCodeStore_PutReplaces(t *testing.T) {
	clock := newClock()
	s := NewCodeStore(clock.Now)
	first := code(clock, "111111", time.Minute)
	second := code(clock, "222222", time.Minute)
	require.NoError(t, s.Put(context.Background(), first.Key, first, time.Minute))
	require.NoError(t, s.Put(context.Background(), second.Key, second, time.Minute))

	ok, err := s.RemoveIfEquals(context.Background(), first.Key, "111111")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(context.Background(), first.Key)
	require.NoError(t, err)
	assert.Equal(t, "222222", got.Value)
}

func TestCodeStore_RemoveIsIdempotent(t *testing.T) {
	s := NewCodeStore(nil)
	require.NoError(t, s.Remove(context.Background(), "password-recovery:nobody"))
	require.NoError(t, s.Remove(context.Background(), "password-recovery:nobody"))
}

func TestCodeStore_RemoveIfEqualsSingleWinner(t *testing.T) {
	clock := newClock()
	s := NewCodeStore(clock.Now)
	c := code(clock, "483920", time.Minute)
	require.NoError(t, s.Put(context.Background(), c.Key, c, time.Minute))

	const n = 32
	var wins int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			ok, err := s.RemoveIfEquals(context.Background(), c.Key, "483920")
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestCodeStore_CancelledContextIsUnavailable(t *testing.T) {
	s := NewCodeStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.True(t, domain.IsTransient(err))
}

func TestCodeStore_AttemptsExpireWithWindow(t *testing.T) {
	clock := newClock()
	s := NewCodeStore(clock.Now)
	ctx := context.Background()

	n, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, _ = s.Increment(ctx, "k", time.Minute)
	assert.Equal(t, 2, n)

	clock.Advance(time.Minute)
	n, _ = s.Increment(ctx, "k", time.Minute)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Reset(ctx, "k"))
	n, _ = s.Increment(ctx, "k", time.Minute)
	assert.Equal(t, 1, n)
}

func TestCodeStore_PutIfAbsent(t *testing.T) {
	clock := newClock()
	s := NewCodeStore(clock.Now)
	ctx := context.Background()
	first := code(clock, "111111", time.Minute)
	second := code(clock, "222222", time.Minute)

	ok, err := s.PutIfAbsent(ctx, first.Key, first, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.PutIfAbsent(ctx, second.Key, second, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := s.Get(ctx, first.Key)
	require.NoError(t, err)
	assert.Equal(t, "111111", got.Value)

	// An expired entry no longer blocks the write.
	clock.Advance(time.Minute)
	ok, err = s.PutIfAbsent(ctx, second.Key, second, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCodeStore_RemoveDestroysLiveCode(t *testing.T) {
	clock := newClock()
	s := NewCodeStore(clock.Now)
	c := code(clock, "483920", time.Minute)
	require.NoError(t, s.Put(context.Background(), c.Key, c, time.Minute))

	require.NoError(t, s.Remove(context.Background(), c.Key))
	_, err := s.Get(context.Background(), c.Key)
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}
