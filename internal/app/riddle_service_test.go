package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

func TestSubmitAnswerWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := app.NewRiddleService(f.store, nil, nil, nil)

	f.clock.Set(base.Add(-3 * time.Hour))
	_, err := service.SubmitAnswer(ctx, "r1", "alice", "Gatto")
	require.ErrorIs(t, err, domain.ErrRiddleNotStarted)

	f.clock.Set(base.Add(-90 * time.Minute))
	answer, err := service.SubmitAnswer(ctx, "r1", "alice", "Gatto")
	require.NoError(t, err)
	assert.NotEmpty(t, answer.ID)
	assert.True(t, answer.SubmittedAt.Equal(base.Add(-90*time.Minute)), "store time is authoritative")
	assert.Nil(t, answer.IsCorrect)

	f.clock.Set(base.Add(-time.Hour))
	_, err = service.SubmitAnswer(ctx, "r1", "bob", "Gatto")
	require.ErrorIs(t, err, domain.ErrRiddleClosed)
}

func TestSubmitAnswerRejectsSecondAnswer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.clock.Set(base.Add(-90 * time.Minute))
	service := app.NewRiddleService(f.store, nil, nil, nil)

	_, err := service.SubmitAnswer(ctx, "r1", "alice", "Cane")
	require.NoError(t, err)
	_, err = service.SubmitAnswer(ctx, "r1", "alice", "Gatto")
	require.ErrorIs(t, err, domain.ErrAlreadyAnswered)
}

func TestSubmitAnswerValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.clock.Set(base.Add(-90 * time.Minute))
	service := app.NewRiddleService(f.store, nil, nil, nil)

	_, err := service.SubmitAnswer(ctx, "r1", "alice", "   ")
	require.ErrorIs(t, err, domain.ErrEmptyAnswer)
	_, err = service.SubmitAnswer(ctx, "missing", "alice", "x")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSubmittedIDsAreTimeOrdered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.clock.Set(base.Add(-90 * time.Minute))
	service := app.NewRiddleService(f.store, nil, nil, nil)

	first, err := service.SubmitAnswer(ctx, "r1", "alice", "Gatto")
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := service.SubmitAnswer(ctx, "r1", "bob", "Gatto")
	require.NoError(t, err)

	// Same store timestamp: insertion order decides.
	require.True(t, first.SubmittedAt.Equal(second.SubmittedAt))
	assert.Less(t, first.ID, second.ID)

	f.clock.Set(base)
	outcome, err := app.NewScoringEngine(f.store).ScoreRiddle(ctx, "r1")
	require.NoError(t, err)
	require.NotNil(t, outcome.FirstSolver)
	assert.Equal(t, "alice", *outcome.FirstSolver)
}

func TestViewScoresPastDueRiddle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.answer(t, "a1", "r1", "alice", "Gatto", time.Minute)
	service := app.NewRiddleService(f.store, app.NewTrigger(app.NewScoringEngine(f.store), nil, nil), nil, nil)

	view, err := service.View(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.Equal(t, app.StatusScored, view.Status)
	assert.Equal(t, "Gatto", view.Solution)
	require.Len(t, view.Answers, 1)
	require.NotNil(t, view.Answers[0].IsCorrect)
	assert.True(t, *view.Answers[0].IsCorrect)
	assert.Equal(t, 2, view.Answers[0].Points)
}

func TestViewBeforeScoring(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	service := app.NewRiddleService(f.store, nil, nil, nil)

	f.clock.Set(base.Add(-3 * time.Hour))
	view, err := service.View(ctx, "r1", "")
	require.NoError(t, err)
	assert.Equal(t, app.StatusUpcoming, view.Status)
	assert.Empty(t, view.Solution)
	assert.Equal(t, app.DefaultPoints, view.Policy.Points)
	assert.Equal(t, app.SourceCompetition, view.Policy.BonusSource)
	assert.Equal(t, 1, view.Policy.Bonus.TwoToFive)

	f.clock.Set(base.Add(-90 * time.Minute))
	view, err = service.View(ctx, "r1", "")
	require.NoError(t, err)
	assert.Equal(t, app.StatusOpen, view.Status)

	// No trigger wired: a closed riddle stays pending.
	f.clock.Set(base)
	view, err = service.View(ctx, "r1", "")
	require.NoError(t, err)
	assert.Equal(t, app.StatusPending, view.Status)
	assert.Empty(t, view.Solution)
}

// lateInsertStore lets the riddle close and be scored between the service's
// window check and the insert.
type lateInsertStore struct {
	app.AnswerStore
	f      *fixture
	engine *app.ScoringEngine
	t      *testing.T
}

func (s *lateInsertStore) InsertAnswer(ctx context.Context, answer domain.Answer) error {
	s.f.clock.Set(base.Add(-time.Hour))
	outcome, err := s.engine.ScoreRiddle(ctx, answer.RiddleID)
	require.NoError(s.t, err)
	require.Equal(s.t, domain.OutcomeScored, outcome.Status)
	return s.AnswerStore.InsertAnswer(ctx, answer)
}

func TestSubmitAnswerLosesRaceWithScoring(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.answer(t, "a1", "r1", "bob", "Gatto", time.Minute)
	f.clock.Set(base.Add(-90 * time.Minute))

	store := &lateInsertStore{AnswerStore: f.store, f: f, engine: app.NewScoringEngine(f.store), t: t}
	service := app.NewRiddleService(store, nil, nil, nil)

	_, err := service.SubmitAnswer(ctx, "r1", "alice", "Gatto")
	require.ErrorIs(t, err, domain.ErrRiddleClosed)
	assert.False(t, domain.IsRetryable(err))

	answers := f.store.RiddleAnswers("r1")
	require.Len(t, answers, 1)
	require.NotNil(t, answers[0].IsCorrect, "every stored answer of a scored riddle is graded")
	assert.Equal(t, 0, f.score(t, "alice"))
}
