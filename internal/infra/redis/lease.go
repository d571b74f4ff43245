package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lease only if it still carries our token, so an
// expired holder cannot drop a lease someone else has since taken.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// ScoringLease marks "someone is scoring riddle X" across instances with a
// SET NX key that expires on its own if the holder dies.
type ScoringLease struct {
	client *redis.Client
	ttl    time.Duration
}

func NewScoringLease(client *redis.Client, ttl time.Duration) *ScoringLease {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ScoringLease{client: client, ttl: ttl}
}

func (l *ScoringLease) Acquire(ctx context.Context, riddleID string) (func(), bool, error) {
	token := uuid.NewString()
	key := l.key(riddleID)
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil || !ok {
		return func() {}, false, err
	}
	release := func() {
		// Run even if the caller's context is done.
		_ = releaseScript.Run(context.Background(), l.client, []string{key}, token).Err()
	}
	return release, true, nil
}

func (l *ScoringLease) key(riddleID string) string {
	return "riddle:scoring:" + riddleID
}
