package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type listing struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func newTestCache(t *testing.T) (*miniredis.Miniredis, *GenericCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewGenericCache(client, "rd")
}

func TestGenericCacheGetSet(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)

	var got listing
	ok, err := c.Get(ctx, "prop:1", &got)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "prop:1", listing{ID: "1", Title: "Loft"}, time.Minute))
	require.True(t, mr.Exists("rd:prop:1"))
	ok, err = c.Get(ctx, "prop:1", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Loft", got.Title)

	require.NoError(t, c.Del(ctx, "prop:1"))
	ok, err = c.Get(ctx, "prop:1", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGenericCacheDelPatternTracked(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "prop:list:a", []int{1}, time.Minute))
	require.NoError(t, c.Set(ctx, "prop:list:b", []int{2}, time.Minute))
	require.NoError(t, c.Set(ctx, "prop:list:c", []int{3}, 2*time.Minute))
	require.NoError(t, c.Set(ctx, "prop:detail:a", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "tenant:list:a", 1, time.Minute))
	require.True(t, mr.Exists("rd:__track:prop:list:"))

	n, err := c.DelPattern(ctx, "prop:list:*")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	require.False(t, mr.Exists("rd:prop:list:a"))
	require.False(t, mr.Exists("rd:prop:list:b"))
	require.False(t, mr.Exists("rd:prop:list:c"))
	require.True(t, mr.Exists("rd:prop:detail:a"))
	require.True(t, mr.Exists("rd:tenant:list:a"))
	require.False(t, mr.Exists("rd:__track:prop:list:"))
}

func TestGenericCacheDelPatternPrunesAncestorSets(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "identity:u1:devices", []int{1}, time.Minute))
	require.NoError(t, c.Set(ctx, "identity:u1:summary", 1, time.Minute))
	require.NoError(t, c.Set(ctx, "identity:u2:devices", []int{2}, time.Minute))

	n, err := c.DelPattern(ctx, "identity:u1:*")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	members, err := mr.Members("rd:__track:identity:")
	require.NoError(t, err)
	require.Equal(t, []string{"rd:identity:u2:devices"}, members)

	n, err = c.DelPattern(ctx, "identity:*")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.False(t, mr.Exists("rd:identity:u2:devices"))
}

func TestGenericCacheTrackingTTLFollowsLongest(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)

	require.NoError(t, c.Set(ctx, "prop:list:a", 1, 2*time.Minute))
	require.Equal(t, 2*time.Minute, mr.TTL("rd:__track:prop:list:"))

	require.NoError(t, c.Set(ctx, "prop:list:b", 1, time.Minute))
	require.Equal(t, 2*time.Minute, mr.TTL("rd:__track:prop:list:"))

	require.NoError(t, c.Set(ctx, "prop:list:c", 1, 5*time.Minute))
	require.Equal(t, 5*time.Minute, mr.TTL("rd:__track:prop:list:"))
	require.Equal(t, 5*time.Minute, mr.TTL("rd:__track:prop:"))
}

func TestGenericCacheDelPatternScanFallback(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)

	for _, k := range []string{"report:x:1", "report:x:2", "report:y:1"} {
		require.NoError(t, c.Set(ctx, k, 1, 0))
	}
	require.False(t, mr.Exists("rd:__track:report:x:"))

	n, err := c.DelPattern(ctx, "report:x:*")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.True(t, mr.Exists("rd:report:y:1"))
}

func TestGenericCacheSetNX(t *testing.T) {
	ctx := context.Background()
	_, c := newTestCache(t)

	ok, err := c.SetNX(ctx, "cooldown:u1", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.SetNX(ctx, "cooldown:u1", 1, time.Minute)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetOrSet(t *testing.T) {
	ctx := context.Background()
	_, c := newTestCache(t)

	calls := 0
	fetch := func(context.Context) ([]listing, error) {
		calls++
		return []listing{{ID: "1", Title: "Loft"}}, nil
	}
	for i := 0; i < 3; i++ {
		got, err := GetOrSet(ctx, c, "identity:u1:devices", time.Minute, fetch)
		require.NoError(t, err)
		require.Len(t, got, 1)
	}
	require.Equal(t, 1, calls)

	_, err := GetOrSet(ctx, c, "identity:u2:devices", time.Minute, func(context.Context) ([]listing, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
}

func TestGetOrSetSurvivesCacheOutage(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)
	mr.Close()

	got, err := GetOrSet(ctx, c, "identity:u1:devices", time.Minute, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, got)
}
