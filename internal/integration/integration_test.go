package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
	"riddle-league/internal/infra/postgres"
	infraredis "riddle-league/internal/infra/redis"
)

func TestScoreRiddleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := postgres.NewStore(db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	now, err := store.ServerTime(ctx)
	if err != nil {
		t.Fatalf("server time: %v", err)
	}
	seedLeague(t, ctx, store, now)
	answerThenClose(t, ctx, store, leagueAnswers)

	rooms, err := infraredis.NewRoomStore(ctx, redisClient, "", nil)
	if err != nil {
		t.Fatalf("room store: %v", err)
	}
	defer rooms.Close()
	competitions := app.NewCompetitionService(
		store,
		infraredis.NewLeaderboardCache(redisClient, postgres.NewLeaderboardLoader(pool), time.Minute),
		rooms,
		nil,
	)
	updates, cancel, err := competitions.Subscribe(ctx, "league")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-updates

	var notified int32
	engine := app.NewScoringEngine(store, app.WithScoreListeners(
		competitions,
		app.ScoreListenerFunc(func(context.Context, domain.ScoringOutcome) { atomic.AddInt32(&notified, 1) }),
	))
	lease := infraredis.NewScoringLease(redisClient, 30*time.Second)

	// Two "instances" race: separate triggers share only the store and the lease.
	triggers := []*app.Trigger{
		app.NewTrigger(engine, lease, nil),
		app.NewTrigger(engine, lease, nil),
	}
	scoreConcurrently(t, 8, func(i int) (domain.ScoringOutcome, error) {
		return triggers[i%2].Fire(ctx, "closing")
	}, &notified)

	assertLeagueScored(t, ctx, store, postgres.NewLeaderboardLoader(pool))
	if n, err := redisClient.Exists(ctx, "leaderboard:league").Result(); err != nil || n != 1 {
		t.Fatalf("expected cached leaderboard, exists=%d err=%v", n, err)
	}
	select {
	case lb := <-updates:
		if len(lb.Entries) == 0 || lb.Entries[0].UserID != "bob" || lb.Entries[0].Points != 3 {
			t.Fatalf("unexpected pushed standings %+v", lb.Entries)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no standings pushed through redis")
	}

	outcome, err := engine.ScoreRiddle(ctx, "closing")
	if err != nil || outcome.Status != domain.OutcomeAlreadyScored {
		t.Fatalf("expected already scored, got %+v err=%v", outcome, err)
	}
}

func TestSubmitAndSweepEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := postgres.Open(pgURL)
	defer db.Close()
	if _, err := postgres.Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := postgres.NewStore(db)

	now, err := store.ServerTime(ctx)
	if err != nil {
		t.Fatalf("server time: %v", err)
	}
	seedLeague(t, ctx, store, now)

	engine := app.NewScoringEngine(store)
	riddles := app.NewRiddleService(store, engine, nil, nil)

	if _, err := riddles.SubmitAnswer(ctx, "open", "alice", "Pianoforte"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := riddles.SubmitAnswer(ctx, "open", "alice", "Piano"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
	if _, err := riddles.SubmitAnswer(ctx, "closed", "alice", "Gatto"); !errors.Is(err, domain.ErrRiddleClosed) {
		t.Fatalf("expected closed, got %v", err)
	}
	if _, err := engine.ScoreRiddle(ctx, "open"); !errors.Is(err, domain.ErrRiddleOpen) {
		t.Fatalf("expected riddle open, got %v", err)
	}

	report, err := app.NewSweeper(store, engine).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if report.Found != 1 || report.Scored != 1 {
		t.Fatalf("expected the closed riddle swept, got %+v", report)
	}
	if _, err := store.Riddle(ctx, "missing"); !errors.Is(err, domain.ErrRiddleNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type leagueStore interface {
	app.CatalogStore
	app.CompetitionStore
}

// seedLeague creates users alice, bob and carol in competition "league" with a
// closed riddle and an open riddle around now.
func seedLeague(t *testing.T, ctx context.Context, store leagueStore, now time.Time) {
	t.Helper()
	catalog := app.Catalog{
		Users: []domain.User{
			{ID: "alice", DisplayName: "Alice"},
			{ID: "bob", DisplayName: "Bob"},
			{ID: "carol", DisplayName: "Carol"},
		},
		Competitions: []domain.Competition{{
			ID:     "league",
			Name:   "League",
			Points: &domain.PointConfig{First: 2, Others: 1},
			Bonus:  &domain.BonusConfig{Single: 3, TwoToFive: 1},
		}},
		Participants: map[string][]string{"league": {"alice", "bob", "carol"}},
		Riddles: []domain.Riddle{
			{
				ID:            "closed",
				Title:         "Whiskers",
				Solution:      "Gatto",
				StartsAt:      now.Add(-2 * time.Hour),
				EndsAt:        now.Add(-time.Hour),
				CompetitionID: "league",
			},
			{
				ID:            "open",
				Title:         "Keys",
				Solution:      "Pianoforte",
				StartsAt:      now.Add(-time.Hour),
				EndsAt:        now.Add(time.Hour),
				CompetitionID: "league",
			},
		},
	}
	if err := app.Seed(ctx, store, catalog); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

type leagueAnswer struct{ user, text string }

// leagueAnswers score bob 3 (first + bonus), alice 2, carol 2 on "closing".
var leagueAnswers = []leagueAnswer{
	{"bob", "Gatto"},
	{"alice", "Gatto"},
	{"carol", " Gatto "},
	{"alice", "Cane"},
	{"bob", "Gatto"},
}

// answerThenClose creates riddle "closing" a few seconds from closing, stores
// answers while it is open and waits until the store clock passes its end.
func answerThenClose(t *testing.T, ctx context.Context, store app.Store, answers []leagueAnswer) {
	t.Helper()
	now, err := store.ServerTime(ctx)
	if err != nil {
		t.Fatalf("server time: %v", err)
	}
	endsAt := now.Add(3 * time.Second)
	err = store.CreateRiddle(ctx, domain.Riddle{
		ID:            "closing",
		Title:         "Whiskers",
		Solution:      "Gatto",
		StartsAt:      now.Add(-time.Minute),
		EndsAt:        endsAt,
		CompetitionID: "league",
	})
	if err != nil {
		t.Fatalf("create riddle: %v", err)
	}
	for i, a := range answers {
		answer := domain.Answer{
			ID:          fmt.Sprintf("a%02d", i),
			RiddleID:    "closing",
			UserID:      a.user,
			Text:        a.text,
			SubmittedAt: now.Add(time.Duration(i) * 10 * time.Millisecond),
		}
		if err := store.InsertAnswer(ctx, answer); err != nil {
			t.Fatalf("insert answer %s: %v", answer.ID, err)
		}
	}

	deadline := time.Now().Add(15 * time.Second)
	for {
		now, err := store.ServerTime(ctx)
		if err != nil {
			t.Fatalf("server time: %v", err)
		}
		if !now.Before(endsAt) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("riddle never closed, store time %s, ends %s", now, endsAt)
		}
		time.Sleep(200 * time.Millisecond)
	}

	late := domain.Answer{ID: "late", RiddleID: "closing", UserID: "carol", Text: "Gatto", SubmittedAt: endsAt}
	if err := store.InsertAnswer(ctx, late); !errors.Is(err, domain.ErrRiddleClosed) {
		t.Fatalf("expected closed riddle to reject insert, got %v", err)
	}
}

// scoreConcurrently runs n scorers and requires exactly one scoring pass.
// Callers coalesced by singleflight share the winner's outcome, so only the
// listener count proves it.
func scoreConcurrently(t *testing.T, n int, score func(i int) (domain.ScoringOutcome, error), notified *int32) {
	t.Helper()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = map[domain.OutcomeStatus]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := score(i)
			if err != nil {
				t.Errorf("score: %v", err)
				return
			}
			mu.Lock()
			statuses[outcome.Status]++
			mu.Unlock()
		}(i)
	}
	wg.Wait()
	if got := atomic.LoadInt32(notified); got != 1 {
		t.Fatalf("expected exactly one scoring pass, got %d (outcomes %v)", got, statuses)
	}
	if statuses[domain.OutcomeScored] == 0 {
		t.Fatalf("expected at least one scored outcome, got %v", statuses)
	}
}

// assertLeagueScored checks the result of scoring leagueAnswers exactly once.
func assertLeagueScored(t *testing.T, ctx context.Context, store app.Store, loader app.LeaderboardLoader) {
	t.Helper()
	riddle, err := store.Riddle(ctx, "closing")
	if err != nil {
		t.Fatalf("riddle: %v", err)
	}
	if !riddle.PointsAssigned || riddle.FirstSolver == nil || *riddle.FirstSolver != "bob" {
		t.Fatalf("expected scored riddle with bob first, got %+v", riddle)
	}
	if riddle.CorrectCount == nil || *riddle.CorrectCount != 3 {
		t.Fatalf("expected 3 correct, got %v", riddle.CorrectCount)
	}

	lb, err := loader.LoadLeaderboard(ctx, "league")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	want := map[string]int{"bob": 3, "alice": 2, "carol": 2}
	if len(lb.Entries) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), lb.Entries)
	}
	for _, e := range lb.Entries {
		if e.Points != want[e.UserID] {
			t.Fatalf("user %s: expected %d points, got %d", e.UserID, want[e.UserID], e.Points)
		}
	}
	if lb.Entries[0].UserID != "bob" || lb.Entries[1].Rank != 2 || lb.Entries[2].Rank != 2 {
		t.Fatalf("unexpected ranking %+v", lb.Entries)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "league", "POSTGRES_PASSWORD": "leaguepass", "POSTGRES_DB": "league"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://league:leaguepass@%s:%s/league?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
