package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

// LeaderboardCache caches standings with a TTL to avoid recomputing them on
// every read.
type LeaderboardCache struct {
	loader app.LeaderboardLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu    sync.RWMutex
	rndMu sync.Mutex
	cache map[string]cachedLeaderboard
}

type cachedLeaderboard struct {
	leaderboard domain.Leaderboard
	expiresAt   time.Time
}

func NewLeaderboardCache(loader app.LeaderboardLoader, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedLeaderboard),
	}
}

func (c *LeaderboardCache) GetLeaderboard(ctx context.Context, competitionID string) (domain.Leaderboard, error) {
	if lb, ok := c.lookup(competitionID); ok {
		return lb, nil
	}

	result, err, _ := c.sf.Do(competitionID, func() (interface{}, error) {
		if lb, ok := c.lookup(competitionID); ok {
			return lb, nil
		}

		lb, err := c.loader.LoadLeaderboard(ctx, competitionID)
		if err != nil {
			return domain.Leaderboard{}, err
		}

		ttl := c.ttlWithJitter()
		if ttl > 0 {
			c.mu.Lock()
			c.cache[competitionID] = cachedLeaderboard{
				leaderboard: lb,
				expiresAt:   c.clock().Add(ttl),
			}
			c.mu.Unlock()
		}
		return lb, nil
	})
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return result.(domain.Leaderboard), nil
}

// Invalidate drops the cached standings of a competition.
func (c *LeaderboardCache) Invalidate(_ context.Context, competitionID string) error {
	c.mu.Lock()
	delete(c.cache, competitionID)
	c.mu.Unlock()
	// A load already in flight may hold pre-invalidation data; don't share it.
	c.sf.Forget(competitionID)
	return nil
}

func (c *LeaderboardCache) lookup(competitionID string) (domain.Leaderboard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[competitionID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Leaderboard{}, false
	}
	return entry.leaderboard, true
}

func (c *LeaderboardCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
