package redisstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-recovery-api/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*CodeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCodeStore(client, "test:"), mr
}

func newCode(value string) *domain.VerificationCode {
	return domain.NewVerificationCode(domain.PurposePasswordRecovery, "u1", value, time.Now().UTC().Truncate(time.Second), time.Minute)
}

func TestCodeStore_PutGet(t *testing.T) {
	s, mr := newStore(t)
	c := newCode("483920")
	require.NoError(t, s.Put(context.Background(), c.Key, c, time.Minute))

	got, err := s.Get(context.Background(), c.Key)
	require.NoError(t, err)
	assert.Equal(t, "483920", got.Value)
	assert.Equal(t, "u1", got.AccountID)
	assert.True(t, c.ExpiresAt.Equal(got.ExpiresAt))
	assert.True(t, mr.Exists("test:code:"+c.Key))
}

func TestCodeStore_GetMissing(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Get(context.Background(), "password-recovery:ghost")
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestCodeStore_EntryExpires(t *testing.T) {
	s, mr := newStore(t)
	c := newCode("483920")
	require.NoError(t, s.Put(context.Background(), c.Key, c, time.Minute))

	mr.FastForward(61 * time.Second)
	_, err := s.Get(context.Background(), c.Key)
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}

func TestCodeStore_RemoveIfEquals(t *testing.T) {
	s, _ := newStore(t)
	c := newCode("483920")
	require.NoError(t, s.Put(context.Background(), c.Key, c, time.Minute))

	ok, err := s.RemoveIfEquals(context.Background(), c.Key, "000000")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.RemoveIfEquals(context.Background(), c.Key, "483920")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.RemoveIfEquals(context.Background(), c.Key, "483920")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCodeStore_PutReplaces(t *testing.T) {
	s, _ := newStore(t)
	first, second := newCode("111111"), newCode("222222")
	require.NoError(t, s.Put(context.Background(), first.Key, first, time.Minute))
	require.NoError(t, s.Put(context.Background(), second.Key, second, time.Minute))

	ok, err := s.RemoveIfEquals(context.Background(), first.Key, "111111")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(context.Background(), first.Key)
	require.NoError(t, err)
	assert.Equal(t, "222222", got.Value)
}

func TestCodeStore_RemoveIfEqualsSingleWinner(t *testing.T) {
	s, _ := newStore(t)
	c := newCode("483920")
	require.NoError(t, s.Put(context.Background(), c.Key, c, time.Minute))

	const n = 16
	var wins int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if ok, err := s.RemoveIfEquals(context.Background(), c.Key, "483920"); err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestCodeStore_Attempts(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()

	n, err := s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mr.FastForward(time.Minute)
	n, err = s.Increment(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Reset(ctx, "k"))
	assert.False(t, mr.Exists("test:attempts:k"))
}

func TestCodeStore_Unavailable(t *testing.T) {
	s, mr := newStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), domain.ErrStoreUnavailable)
}

func TestCodeStore_PutIfAbsent(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	first, second := newCode("111111"), newCode("222222")

	ok, err := s.PutIfAbsent(ctx, first.Key, first, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, time.Minute, mr.TTL("test:code:"+first.Key))

	ok, err = s.PutIfAbsent(ctx, second.Key, second, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := s.Get(ctx, first.Key)
	require.NoError(t, err)
	assert.Equal(t, "111111", got.Value)

	mr.FastForward(61 * time.Second)
	ok, err = s.PutIfAbsent(ctx, second.Key, second, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	// The written entry is usable by the compare-and-delete gate.
	removed, err := s.RemoveIfEquals(ctx, second.Key, "222222")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestCodeStore_RemoveIsIdempotent(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	c := newCode("483920")
	require.NoError(t, s.Put(ctx, c.Key, c, time.Minute))

	require.NoError(t, s.Remove(ctx, c.Key))
	assert.False(t, mr.Exists("test:code:"+c.Key))
	require.NoError(t, s.Remove(ctx, c.Key))

	_, err := s.Get(ctx, c.Key)
	assert.ErrorIs(t, err, domain.ErrCodeNotFound)
}
