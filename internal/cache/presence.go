package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPresenceTTL is used when no TTL is configured. Connections refresh
// their entry on every pong, well inside this window.
const DefaultPresenceTTL = 90 * time.Second

const presencePrefix = "presence:user:"

// Only the connection that owns an entry may refresh or clear it, so a late
// disconnect of a replaced connection does not mark the user offline.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// PresenceStore records which connection currently represents each user,
// with a TTL so a crashed instance's users drop offline on their own.
type PresenceStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPresenceStore returns a PresenceStore on r.
func (r *Redis) NewPresenceStore(ttl time.Duration) *PresenceStore {
	if ttl <= 0 {
		ttl = DefaultPresenceTTL
	}
	return &PresenceStore{client: r.client, ttl: ttl}
}

func presenceKey(userID string) string { return presencePrefix + userID }

// SetOnline maps userID to connID, replacing any earlier connection.
func (p *PresenceStore) SetOnline(ctx context.Context, userID, connID string) error {
	return p.client.Set(ctx, presenceKey(userID), connID, p.ttl).Err()
}

// Refresh extends userID's entry if connID still owns it.
func (p *PresenceStore) Refresh(ctx context.Context, userID, connID string) error {
	return refreshScript.Run(ctx, p.client, []string{presenceKey(userID)}, connID, p.ttl.Milliseconds()).Err()
}

// SetOffline clears userID's entry if connID still owns it.
func (p *PresenceStore) SetOffline(ctx context.Context, userID, connID string) error {
	return releaseScript.Run(ctx, p.client, []string{presenceKey(userID)}, connID).Err()
}

// Connection returns the connection id mapped to userID, or "" when offline.
func (p *PresenceStore) Connection(ctx context.Context, userID string) (string, error) {
	id, err := p.client.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return id, err
}
