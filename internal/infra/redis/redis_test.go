package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

type countingLoader struct {
	calls int
}

func (l *countingLoader) LoadLeaderboard(_ context.Context, competitionID string) (domain.Leaderboard, error) {
	l.calls++
	if competitionID != "c1" {
		return domain.Leaderboard{}, domain.ErrCompetitionNotFound
	}
	return domain.Leaderboard{
		CompetitionID: "c1",
		Entries: app.RankLeaderboard([]domain.LeaderboardEntry{
			{UserID: "u1", DisplayName: "Ada", Points: 3},
			{UserID: "u2", DisplayName: "Bob", Points: 5},
		}),
		UpdatedAt: time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC),
	}, nil
}
