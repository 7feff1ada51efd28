package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	UserKeyPrefix        = "user:%d"
	LeaderboardKeyPrefix = "leaderboard:%d"
	LeaderboardPattern   = "leaderboard:*"
	RevokedTokenPrefix   = "auth:revoked:%s"
)

const (
	UserTTL        = 5 * time.Minute
	LeaderboardTTL = 30 * time.Second
)

func UserKey(userID uint) string {
	return fmt.Sprintf(UserKeyPrefix, userID)
}

func LeaderboardKey(limit int) string {
	return fmt.Sprintf(LeaderboardKeyPrefix, limit)
}

func RevokedTokenKey(jti string) string {
	return fmt.Sprintf(RevokedTokenPrefix, jti)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID uint) {
	Invalidate(ctx, UserKey(userID))
}

// InvalidateLeaderboard drops every cached leaderboard size.
func InvalidateLeaderboard(ctx context.Context) {
	if client == nil {
		return
	}
	iter := client.Scan(ctx, 0, LeaderboardPattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// RevokeToken blacklists a token ID until the token would have expired.
func RevokeToken(ctx context.Context, jti string, ttl time.Duration) error {
	if client == nil || jti == "" || ttl <= 0 {
		return nil
	}
	return client.Set(ctx, RevokedTokenKey(jti), "1", ttl).Err()
}

// IsTokenRevoked reports whether jti was revoked. Without Redis nothing is.
func IsTokenRevoked(ctx context.Context, jti string) bool {
	if client == nil || jti == "" {
		return false
	}
	n, err := client.Exists(ctx, RevokedTokenKey(jti)).Result()
	return err == nil && n > 0
}
