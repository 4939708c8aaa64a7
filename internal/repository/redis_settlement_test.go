package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleancoindev/zaidan-dealer-client/internal/model"
	"github.com/cleancoindev/zaidan-dealer-client/internal/pkg/apperrors"
)

// fakeRedis serves the handful of commands the journal issues and, like a real
// connection, refuses work on a done context.
type fakeRedis struct {
	redis.Cmdable

	mu   sync.Mutex
	data map[string]string
	ttl  map[string]time.Duration
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttl: make(map[string]time.Duration)}
}

func asString(v any) string {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value any, exp time.Duration) *redis.BoolCmd {
	if err := ctx.Err(); err != nil {
		return redis.NewBoolResult(false, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = asString(value)
	f.ttl[key] = exp
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value any, exp time.Duration) *redis.StatusCmd {
	if err := ctx.Err(); err != nil {
		return redis.NewStatusResult("", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = asString(value)
	f.ttl[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if err := ctx.Err(); err != nil {
		return redis.NewStringResult("", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

// EvalSha runs the release script's logic directly.
func (f *fakeRedis) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	if err := ctx.Err(); err != nil {
		return redis.NewCmdResult(nil, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[keys[0]]
	if ok && strings.Contains(v, asString(args[0])) {
		delete(f.data, keys[0])
		delete(f.ttl, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

func TestRedisSettlementStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	store := NewRedisSettlementStore(rdb, "", time.Hour)

	require.NoError(t, store.Acquire(ctx, "q1", "0xabc"))
	assert.Equal(t, time.Hour, rdb.ttl["zaidan:settlement:q1"])

	err := store.Acquire(ctx, "q1", "0xabc")
	assert.True(t, apperrors.Is(err, apperrors.ErrDuplicateSubmission))

	require.NoError(t, store.Release(ctx, "q1"))
	_, err = store.Get(ctx, "q1")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))

	require.NoError(t, store.Acquire(ctx, "q1", "0xabc"))
	require.NoError(t, store.Save(ctx, &model.SettlementRecord{
		QuoteID: "q1",
		Taker:   "0xabc",
		State:   model.SettlementSettled,
		TxID:    "0x" + strings.Repeat("ab", 32),
	}))

	// a settled record is not a pending claim and survives Release
	require.NoError(t, store.Release(ctx, "q1"))
	rec, err := store.Get(ctx, "q1")
	require.NoError(t, err)
	assert.Equal(t, model.SettlementSettled, rec.State)
	assert.Equal(t, "0x"+strings.Repeat("ab", 32), rec.TxID)

	err = store.Acquire(ctx, "q1", "0xabc")
	assert.True(t, apperrors.Is(err, apperrors.ErrDuplicateSubmission))
}

func TestRedisSettlementStoreHonoursContext(t *testing.T) {
	store := NewRedisSettlementStore(newFakeRedis(), "test:", time.Hour)
	require.NoError(t, store.Acquire(context.Background(), "q1", "0xabc"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Release(ctx, "q1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))

	// the claim is still held until a live context releases it
	err = store.Acquire(context.Background(), "q1", "0xabc")
	assert.True(t, apperrors.Is(err, apperrors.ErrDuplicateSubmission))
	require.NoError(t, store.Release(context.Background(), "q1"))
	assert.NoError(t, store.Acquire(context.Background(), "q1", "0xabc"))
}

func TestRedisSettlementStoreCorruptRecord(t *testing.T) {
	rdb := newFakeRedis()
	rdb.data["zaidan:settlement:q1"] = "{not json"
	store := NewRedisSettlementStore(rdb, "", 0)

	_, err := store.Get(context.Background(), "q1")
	assert.True(t, apperrors.Is(err, apperrors.ErrInternal))
}
