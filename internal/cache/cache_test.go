package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() {
		_ = client.Close()
		SetClient(nil)
	})
	return mr
}

type entry struct {
	Name string `json:"name"`
	XP   int64  `json:"xp"`
}

func TestAside(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) ([]entry, error) {
		calls++
		return []entry{{Name: "alice", XP: 2500}}, nil
	}

	first, err := Aside(ctx, "leaderboard", LeaderboardKey(10), LeaderboardTTL, fetch)
	require.NoError(t, err)
	second, err := Aside(ctx, "leaderboard", LeaderboardKey(10), LeaderboardTTL, fetch)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
	assert.Equal(t, LeaderboardTTL, mr.TTL(LeaderboardKey(10)))

	mr.FastForward(LeaderboardTTL + time.Second)
	_, err = Aside(ctx, "leaderboard", LeaderboardKey(10), LeaderboardTTL, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestAside_FetchErrorNotCached(t *testing.T) {
	mr := setupRedis(t)
	boom := errors.New("db down")

	_, err := Aside(context.Background(), "leaderboard", LeaderboardKey(5), LeaderboardTTL,
		func(context.Context) ([]entry, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(LeaderboardKey(5)))
}

func TestAside_WithoutRedis(t *testing.T) {
	SetClient(nil)
	calls := 0
	for i := 0; i < 2; i++ {
		_, err := Aside(context.Background(), "leaderboard", LeaderboardKey(1), LeaderboardTTL,
			func(context.Context) (int, error) { calls++; return 1, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestInvalidateLeaderboard(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, LeaderboardKey(10), []entry{}, time.Minute))
	require.NoError(t, SetJSON(ctx, LeaderboardKey(50), []entry{}, time.Minute))
	require.NoError(t, SetJSON(ctx, UserKey(1), entry{Name: "bob"}, time.Minute))

	InvalidateLeaderboard(ctx)

	assert.False(t, mr.Exists(LeaderboardKey(10)))
	assert.False(t, mr.Exists(LeaderboardKey(50)))
	assert.True(t, mr.Exists(UserKey(1)))
}

func TestRevokeToken(t *testing.T) {
	mr := setupRedis(t)
	ctx := context.Background()

	assert.False(t, IsTokenRevoked(ctx, "abc"))
	require.NoError(t, RevokeToken(ctx, "abc", time.Hour))
	assert.True(t, IsTokenRevoked(ctx, "abc"))

	mr.FastForward(time.Hour + time.Second)
	assert.False(t, IsTokenRevoked(ctx, "abc"))
}

func TestGetJSON_Miss(t *testing.T) {
	setupRedis(t)
	var out entry
	assert.ErrorIs(t, GetJSON(context.Background(), "missing", &out), ErrMiss)
}
