package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"riddle-league/internal/domain"
	"riddle-league/internal/infra/memory"
)

var base = time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type fixture struct {
	store *memory.Store
	clock *testClock
}

// newFixture seeds three users joined to competition c1 (bonus twoToFive=1)
// and riddle r1 in c1, open from base-2h to base-1h. The clock reads base.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := &testClock{now: base}
	store := memory.NewStore(memory.WithClock(clock.Now))

	for _, u := range []domain.User{
		{ID: "alice", DisplayName: "Alice"},
		{ID: "bob", DisplayName: "Bob"},
		{ID: "carol", DisplayName: "Carol"},
	} {
		require.NoError(t, store.CreateUser(ctx, u))
	}
	require.NoError(t, store.CreateCompetition(ctx, domain.Competition{
		ID:    "c1",
		Name:  "Autumn League",
		Bonus: &domain.BonusConfig{TwoToFive: 1},
	}))
	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, store.JoinCompetition(ctx, "c1", id))
	}
	require.NoError(t, store.CreateRiddle(ctx, domain.Riddle{
		ID:            "r1",
		Title:         "Whiskers",
		Question:      "Who purrs?",
		Solution:      "Gatto",
		StartsAt:      base.Add(-2 * time.Hour),
		EndsAt:        base.Add(-time.Hour),
		CompetitionID: "c1",
	}))
	return &fixture{store: store, clock: clock}
}

func (f *fixture) answer(t *testing.T, id, riddleID, userID, text string, offset time.Duration) {
	t.Helper()
	r, err := f.store.Riddle(context.Background(), riddleID)
	require.NoError(t, err)
	// The store only accepts answers inside the window, so rewind the clock.
	now := f.clock.Now()
	at := r.StartsAt.Add(offset)
	f.clock.Set(at)
	defer f.clock.Set(now)
	require.NoError(t, f.store.InsertAnswer(context.Background(), domain.Answer{
		ID:          id,
		RiddleID:    riddleID,
		UserID:      userID,
		Text:        text,
		SubmittedAt: at,
	}))
}

func (f *fixture) answerByID(t *testing.T, riddleID, answerID string) domain.Answer {
	t.Helper()
	for _, a := range f.store.RiddleAnswers(riddleID) {
		if a.ID == answerID {
			return a
		}
	}
	t.Fatalf("answer %s not found", answerID)
	return domain.Answer{}
}

func (f *fixture) score(t *testing.T, userID string) int {
	t.Helper()
	points, ok := f.store.CompetitionScore("c1", userID)
	require.True(t, ok, "user %s not joined", userID)
	return points
}
