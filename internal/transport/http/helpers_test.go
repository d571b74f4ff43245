package http

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
	"riddle-league/internal/infra/memory"
	"riddle-league/internal/observability"
)

var base = time.Date(2024, 11, 22, 12, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type testEnv struct {
	store    *memory.Store
	clock    *clock
	services Services
}

// newTestEnv builds the in-memory stack with competition c1, users alice and
// bob, and riddle r1 open from base-1h to base+1h. The clock reads base.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	clk := &clock{now: base}
	store := memory.NewStore(memory.WithClock(clk.Now))

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	must(store.CreateUser(ctx, domain.User{ID: "alice", DisplayName: "Alice"}))
	must(store.CreateUser(ctx, domain.User{ID: "bob", DisplayName: "Bob"}))
	must(store.CreateCompetition(ctx, domain.Competition{ID: "c1", Name: "Autumn League"}))
	must(store.JoinCompetition(ctx, "c1", "alice"))
	must(store.JoinCompetition(ctx, "c1", "bob"))
	must(store.CreateRiddle(ctx, domain.Riddle{
		ID:            "r1",
		Title:         "Whiskers",
		Question:      "Dorme tutto il giorno e fa le fusa.",
		Solution:      "Gatto",
		StartsAt:      base.Add(-time.Hour),
		EndsAt:        base.Add(time.Hour),
		CompetitionID: "c1",
	}))

	reg := prometheus.NewRegistry()
	metrics, err := observability.NewScoringMetrics(reg)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	competitions := app.NewCompetitionService(store, memory.NewLeaderboardCache(store, time.Minute), memory.NewRoomStore(), nil)
	engine := app.NewScoringEngine(store, app.WithEngineMetrics(metrics), app.WithScoreListeners(competitions))
	trigger := app.NewTrigger(engine, nil, nil)

	return &testEnv{
		store: store,
		clock: clk,
		services: Services{
			Riddles:      app.NewRiddleService(store, trigger, nil, metrics),
			Competitions: competitions,
			Scorer:       trigger,
			Sweeper:      app.NewSweeper(store, trigger),
			Gatherer:     reg,
		},
	}
}
