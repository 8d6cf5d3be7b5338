package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	c := NewTTL[string](15*time.Second, 0, WithClock(clk.now))

	_, ok := c.Get(ctx, "5:7")
	assert.False(t, ok)

	c.Put(ctx, "5:7", "v1")
	clk.advance(14 * time.Second)
	v, ok := c.Get(ctx, "5:7")
	require.True(t, ok)
	assert.Equal(t, "v1", v)

	clk.advance(time.Second)
	_, ok = c.Get(ctx, "5:7")
	assert.False(t, ok, "an entry exactly ttl old is stale")
}

func TestTTLPutOverwrites(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(0, 0)}
	c := NewTTL[int](time.Minute, 0, WithClock(clk.now))

	c.Put(ctx, "k", 1)
	clk.advance(50 * time.Second)
	c.Put(ctx, "k", 2)
	clk.advance(50 * time.Second)

	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

func TestTTLEvictsOldestOverCapacity(t *testing.T) {
	ctx := context.Background()
	clk := &fakeClock{t: time.Unix(0, 0)}
	c := NewTTL[int](time.Hour, 2, WithClock(clk.now))

	c.Put(ctx, "a", 1)
	clk.advance(time.Second)
	c.Put(ctx, "b", 2)
	clk.advance(time.Second)
	c.Put(ctx, "c", 3)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "c")
	assert.True(t, ok)
}

func TestNewTTLDefaults(t *testing.T) {
	c := NewTTL[int](0, -1)
	assert.Equal(t, DefaultTTL, c.ttl)
	assert.Equal(t, 0, c.capacity)
}

func TestHistoryKey(t *testing.T) {
	id := int64(5)
	assert.Equal(t, "5:7", HistoryKey(&id, 7))
	assert.Equal(t, "all:30", HistoryKey(nil, 30))
}

type payload struct {
	Success bool           `json:"success"`
	Data    map[string]int `json:"data"`
}

func TestRedisRoundTripAndExpiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedis[payload](client, "test:", 15*time.Second, nil)
	_, ok := c.Get(ctx, "all:7")
	assert.False(t, ok)

	c.Put(ctx, "all:7", payload{Success: true, Data: map[string]int{"1": 3}})
	assert.True(t, mr.Exists("test:all:7"))

	got, ok := c.Get(ctx, "all:7")
	require.True(t, ok)
	assert.Equal(t, 3, got.Data["1"])

	mr.FastForward(16 * time.Second)
	_, ok = c.Get(ctx, "all:7")
	assert.False(t, ok)
}

func TestRedisErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedis[payload](client, "", 0, nil)
	require.NoError(t, mr.Set("broken", "not json"))
	_, ok := c.Get(ctx, "broken")
	assert.False(t, ok)

	mr.Close()
	c.Put(ctx, "k", payload{})
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}
