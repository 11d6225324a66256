package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/kream"
)

func TestKey(t *testing.T) {
	s := kream.DefaultSettings()

	assert.Equal(t, Key("dd1391-100", s), Key(" DD1391-100 ", s))
	assert.NotEqual(t, Key("DD1391-100", s), Key("DD1391-101", s))

	changed := s
	changed.RoundTo = 100
	assert.NotEqual(t, Key("DD1391-100", s), Key("DD1391-100", changed))

	changed = s
	changed.Debug = true
	assert.NotEqual(t, Key("DD1391-100", s), Key("DD1391-100", changed))
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	m := NewMemory(10)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "k", &kream.Result{OK: true, KRW: 89000}, 120*time.Second))

	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(89000), got.KRW)

	now = now.Add(119 * time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)

	_, ok, _ = m.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestMemory_Capacity(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	m := NewMemory(2)
	m.now = func() time.Time { return now }

	require.NoError(t, m.Set(ctx, "a", &kream.Result{}, time.Second))
	require.NoError(t, m.Set(ctx, "b", &kream.Result{}, time.Minute))

	// a has expired, so it is the one dropped.
	now = now.Add(2 * time.Second)
	require.NoError(t, m.Set(ctx, "c", &kream.Result{}, time.Minute))

	assert.Equal(t, 2, m.Len())
	_, ok, _ := m.Get(ctx, "b")
	assert.True(t, ok)
	_, ok, _ = m.Get(ctx, "c")
	assert.True(t, ok)

	require.NoError(t, m.Set(ctx, "d", &kream.Result{}, time.Minute))
	assert.Equal(t, 2, m.Len())

	// Overwriting an existing key never evicts.
	require.NoError(t, m.Set(ctx, "d", &kream.Result{KRW: 1}, time.Minute))
	assert.Equal(t, 2, m.Len())
}

func TestMemory_RejectsNonPositiveTTL(t *testing.T) {
	err := NewMemory(1).Set(context.Background(), "k", &kream.Result{}, 0)
	assert.ErrorIs(t, err, ErrInvalidTTL)
}

// MockRedisClient is a mock for the Redis client
type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) Get(ctx context.Context, key string) *redis.StringCmd {
	args := m.Called(ctx, key)
	cmd := redis.NewStringCmd(ctx)
	if err := args.Error(1); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(args.String(0))
	}
	return cmd
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	args := m.Called(ctx, key, value, expiration)
	cmd := redis.NewStatusCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal("OK")
	}
	return cmd
}

func TestRedis_Get(t *testing.T) {
	ctx := context.Background()

	t.Run("hit decodes the result", func(t *testing.T) {
		client := new(MockRedisClient)
		payload, err := json.Marshal(&kream.Result{OK: true, Model: "DD1391-100", KRW: 89000, TWD: 2240})
		require.NoError(t, err)
		client.On("Get", ctx, "kream:quote:k").Return(string(payload), nil)

		got, ok, err := NewRedis(client, "").Get(ctx, "k")

		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(2240), got.TWD)
		client.AssertExpectations(t)
	})

	t.Run("redis nil is a miss", func(t *testing.T) {
		client := new(MockRedisClient)
		client.On("Get", ctx, "kream:quote:k").Return("", redis.Nil)

		got, ok, err := NewRedis(client, "").Get(ctx, "k")

		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, got)
	})

	t.Run("connection error", func(t *testing.T) {
		client := new(MockRedisClient)
		client.On("Get", ctx, "p:k").Return("", errors.New("connection refused"))

		_, ok, err := NewRedis(client, "p:").Get(ctx, "k")

		assert.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		client := new(MockRedisClient)
		client.On("Get", ctx, "kream:quote:k").Return("{not json", nil)

		_, _, err := NewRedis(client, "").Get(ctx, "k")

		assert.Error(t, err)
	})
}

func TestRedis_Set(t *testing.T) {
	ctx := context.Background()

	client := new(MockRedisClient)
	client.On("Set", ctx, "kream:quote:k", mock.MatchedBy(func(v interface{}) bool {
		b, ok := v.([]byte)
		if !ok {
			return false
		}
		var r kream.Result
		return json.Unmarshal(b, &r) == nil && r.KRW == 89000
	}), 120*time.Second).Return(nil)

	err := NewRedis(client, "").Set(ctx, "k", &kream.Result{OK: true, KRW: 89000}, 120*time.Second)

	require.NoError(t, err)
	client.AssertExpectations(t)

	failing := new(MockRedisClient)
	failing.On("Set", ctx, "kream:quote:k", mock.Anything, time.Minute).Return(fmt.Errorf("READONLY"))
	assert.Error(t, NewRedis(failing, "").Set(ctx, "k", &kream.Result{}, time.Minute))
}
