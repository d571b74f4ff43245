package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

// LeaderboardCache keeps rendered standings in Redis and falls back to a loader
// on miss. Standings are stored as JSON under leaderboard:{competitionID}.
type LeaderboardCache struct {
	client *redis.Client
	loader app.LeaderboardLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewLeaderboardCache(client *redis.Client, loader app.LeaderboardLoader, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LeaderboardCache) GetLeaderboard(ctx context.Context, competitionID string) (domain.Leaderboard, error) {
	if lb, ok := c.cached(ctx, competitionID); ok {
		return lb, nil
	}

	result, err, _ := c.sf.Do(competitionID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if lb, ok := c.cached(ctx, competitionID); ok {
			return lb, nil
		}

		lb, err := c.loader.LoadLeaderboard(ctx, competitionID)
		if err != nil {
			return domain.Leaderboard{}, err
		}

		if ttl := c.ttlWithJitter(); ttl > 0 {
			if payload, err := json.Marshal(lb); err == nil {
				// best-effort; a failed write only costs a reload
				_ = c.client.Set(ctx, c.key(competitionID), payload, ttl).Err()
			}
		}
		return lb, nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}

func (c *LeaderboardCache) Invalidate(ctx context.Context, competitionID string) error {
	c.sf.Forget(competitionID)
	return c.client.Del(ctx, c.key(competitionID)).Err()
}

func (c *LeaderboardCache) cached(ctx context.Context, competitionID string) (domain.Leaderboard, bool) {
	payload, err := c.client.Get(ctx, c.key(competitionID)).Bytes()
	if err != nil {
		return domain.Leaderboard{}, false
	}
	var lb domain.Leaderboard
	if err := json.Unmarshal(payload, &lb); err != nil {
		return domain.Leaderboard{}, false
	}
	return lb, true
}

func (c *LeaderboardCache) key(competitionID string) string {
	return "leaderboard:" + competitionID
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
