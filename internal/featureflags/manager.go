// Package featureflags evaluates runtime feature switches from FEATURE_FLAGS.
package featureflags

import (
	"fmt"
	"hash/fnv"
	"maps"
	"strconv"
	"strings"
)

// Flags read by the application.
const (
	// FriendRerequestAfterDecline lets a user send a new request after the
	// previous one was declined. The declined row is reset to pending.
	FriendRerequestAfterDecline = "friend_rerequest_after_decline"
	// LeaderboardCache serves the leaderboard from Redis.
	LeaderboardCache = "leaderboard_cache"
	// RealtimeEvents pushes social notifications over Redis pub/sub.
	RealtimeEvents = "realtime_events"
)

// Defaults apply to flags that FEATURE_FLAGS does not mention.
var Defaults = map[string]string{
	FriendRerequestAfterDecline: "on",
	LeaderboardCache:            "on",
	RealtimeEvents:              "on",
}

// Manager evaluates feature flags defined in a simple key=value list.
// Example: "friend_rerequest_after_decline=off,leaderboard_cache=25%"
type Manager struct {
	flags map[string]string
}

// NewManager parses raw on top of Defaults.
func NewManager(raw string) *Manager {
	out := make(map[string]string, len(Defaults))
	maps.Copy(out, Defaults)

	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), normalize(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}

	return &Manager{flags: out}
}

// Enabled returns whether a flag is enabled for a given user.
// Supported values:
// - on/true/1
// - off/false/0
// - N% (deterministic user rollout, e.g. 25%)
func (m *Manager) Enabled(name string, userID uint) bool {
	if m == nil {
		return false
	}

	value, ok := m.flags[normalize(name)]
	if !ok {
		return false
	}

	switch value {
	case "on", "true", "1":
		return true
	case "off", "false", "0":
		return false
	}

	pctRaw, isPct := strings.CutSuffix(value, "%")
	if !isPct {
		return false
	}
	pct, err := strconv.Atoi(pctRaw)
	switch {
	case err != nil || pct <= 0:
		return false
	case pct >= 100:
		return true
	case userID == 0:
		return false
	}
	return rolloutBucket(name, userID) < pct
}

// Raw returns a copy of configured flags.
func (m *Manager) Raw() map[string]string {
	return maps.Clone(m.flags)
}

// Snapshot returns evaluated flag status for one user.
func (m *Manager) Snapshot(userID uint) map[string]bool {
	out := make(map[string]bool, len(m.flags))
	for name := range m.flags {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name string, userID uint) int {
	h := fnv.New32a()
	_, _ = fmt.Fprintf(h, "%s:%d", normalize(name), userID)
	return int(h.Sum32() % 100)
}
