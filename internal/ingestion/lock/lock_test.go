package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	token, ok, err := m.Acquire(ctx, Key("d1"), time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = m.Acquire(ctx, Key("d1"), time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire while held")

	_, ok, _ = m.Acquire(ctx, Key("d2"), time.Minute)
	assert.True(t, ok, "other documents are independent")

	require.NoError(t, m.Release(ctx, Key("d1"), "wrong-token"))
	_, ok, _ = m.Acquire(ctx, Key("d1"), time.Minute)
	assert.False(t, ok, "foreign token must not release")

	require.NoError(t, m.Release(ctx, Key("d1"), token))
	_, ok, _ = m.Acquire(ctx, Key("d1"), time.Minute)
	assert.True(t, ok)
}

func TestMemory_ClaimOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	token, ok, _ := m.Acquire(ctx, "k", time.Minute)
	require.True(t, ok)

	run, ok, err := m.Claim(ctx, "k", token, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEqual(t, token, run)

	_, ok, _ = m.Claim(ctx, "k", token, time.Minute)
	assert.False(t, ok, "a redelivered job must not claim a running document")

	require.NoError(t, m.Release(ctx, "k", token))
	_, ok, _ = m.Acquire(ctx, "k", time.Minute)
	assert.False(t, ok, "the scheduling token no longer owns the lock")

	require.NoError(t, m.Release(ctx, "k", run))
	run, ok, _ = m.Claim(ctx, "k", token, time.Minute)
	assert.True(t, ok, "a released lock can be claimed again")
	assert.NotEmpty(t, run)
}

func TestMemory_ClaimWithoutToken(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, _ := m.Claim(ctx, "k", "", time.Minute)
	assert.True(t, ok, "an unlocked document can be claimed")

	_, ok, _ = m.Claim(ctx, "k", "", time.Minute)
	assert.False(t, ok)
}

func TestMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, ok, _ := m.Acquire(ctx, "k", time.Second)
	require.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = m.Acquire(ctx, "k", time.Second)
	assert.True(t, ok, "expired lock can be taken over")
}

type fakeRedis struct {
	values map[string]string
	err    error
}

func (f *fakeRedis) SetNX(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value
	return true, nil
}

func (f *fakeRedis) DelIfEquals(_ context.Context, key, value string) (bool, error) {
	if f.values[key] != value {
		return false, nil
	}
	delete(f.values, key)
	return true, nil
}

func (f *fakeRedis) SwapIfEquals(_ context.Context, key, expected, value string, _ time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if cur, ok := f.values[key]; ok && cur != expected {
		return false, nil
	}
	f.values[key] = value
	return true, nil
}

func TestRedis_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	client := &fakeRedis{values: map[string]string{}}
	r := NewRedis(client)

	token, ok, err := r.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, token, client.values["k"])

	_, ok, err = r.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Release(ctx, "k", token))
	assert.Empty(t, client.values)
}

func TestRedis_Claim(t *testing.T) {
	ctx := context.Background()
	client := &fakeRedis{values: map[string]string{}}
	r := NewRedis(client)

	token, ok, err := r.Acquire(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	run, ok, err := r.Claim(ctx, "k", token, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, run, client.values["k"])

	_, ok, err = r.Claim(ctx, "k", token, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	client.err = errors.New("connection refused")
	_, _, err = r.Claim(ctx, "k", run, time.Minute)
	assert.Error(t, err)
}

func TestRedis_AcquireError(t *testing.T) {
	r := NewRedis(&fakeRedis{values: map[string]string{}, err: errors.New("connection refused")})

	_, ok, err := r.Acquire(context.Background(), "k", time.Minute)

	assert.Error(t, err)
	assert.False(t, ok)
}
