package app

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"riddle-league/internal/domain"
	"riddle-league/internal/observability"
)

// ScoreListener is told about every riddle this process scored, after commit.
type ScoreListener interface {
	RiddleScored(ctx context.Context, outcome domain.ScoringOutcome)
}

// ScoreListenerFunc adapts a function to ScoreListener.
type ScoreListenerFunc func(ctx context.Context, outcome domain.ScoringOutcome)

func (f ScoreListenerFunc) RiddleScored(ctx context.Context, outcome domain.ScoringOutcome) {
	f(ctx, outcome)
}

// ScoringEngine converts a closed riddle's answers into points exactly once.
type ScoringEngine struct {
	store     ScoringStore
	logger    *zap.Logger
	metrics   *observability.ScoringMetrics
	listeners []ScoreListener
}

// EngineOption configures a ScoringEngine.
type EngineOption func(*ScoringEngine)

func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *ScoringEngine) { e.logger = logger }
}

func WithEngineMetrics(metrics *observability.ScoringMetrics) EngineOption {
	return func(e *ScoringEngine) { e.metrics = metrics }
}

func WithScoreListeners(listeners ...ScoreListener) EngineOption {
	return func(e *ScoringEngine) { e.listeners = append(e.listeners, listeners...) }
}

func NewScoringEngine(store ScoringStore, opts ...EngineOption) *ScoringEngine {
	e := &ScoringEngine{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScoreRiddle scores riddleID if it is closed and unscored. A riddle that is
// already scored yields OutcomeAlreadyScored and a nil error. Safe to call
// concurrently from any number of processes sharing the store.
func (e *ScoringEngine) ScoreRiddle(ctx context.Context, riddleID string) (domain.ScoringOutcome, error) {
	start := time.Now()
	outcome, err := e.scoreRiddle(ctx, riddleID)

	logger := e.logger.With(zap.String("riddle_id", riddleID))
	if err != nil {
		e.metrics.ObserveScoring("error", time.Since(start))
		logger.Warn("score riddle", zap.Error(err), zap.Bool("retryable", domain.IsRetryable(err)))
		return outcome, err
	}
	e.metrics.ObserveScoring(string(outcome.Status), time.Since(start))

	if outcome.Status != domain.OutcomeScored {
		logger.Debug("riddle already scored")
		return outcome, nil
	}
	logger.Info("riddle scored",
		zap.Int("correct_count", outcome.CorrectCount),
		zap.Int("credited", outcome.Credited),
		zap.Int("duplicates", outcome.Duplicates),
	)
	for _, l := range e.listeners {
		l.RiddleScored(ctx, outcome)
	}
	return outcome, nil
}

func (e *ScoringEngine) scoreRiddle(ctx context.Context, riddleID string) (domain.ScoringOutcome, error) {
	outcome := domain.ScoringOutcome{RiddleID: riddleID}

	riddle, err := e.store.Riddle(ctx, riddleID)
	if err != nil {
		return outcome, storeError("get riddle", err)
	}
	outcome.CompetitionID = riddle.CompetitionID
	// Cheap first guard; the transaction below is the real one.
	if riddle.PointsAssigned {
		return alreadyScored(outcome, riddle), nil
	}

	now, err := e.store.ServerTime(ctx)
	if err != nil {
		return outcome, storeError("server time", err)
	}
	if !riddle.ClosedAt(now) {
		return outcome, domain.ErrRiddleOpen
	}

	var competition *domain.Competition
	if riddle.CompetitionID != "" {
		c, err := e.store.Competition(ctx, riddle.CompetitionID)
		if err != nil {
			return outcome, storeError("get competition", err)
		}
		competition = &c
	}

	var (
		plan     ScoringPlan
		credited int
		written  int
	)
	err = e.store.Transaction(ctx, func(ctx context.Context, tx ScoringTx) error {
		// A store may replay fn on conflict; start from a clean slate each time.
		credited, written = 0, 0

		current, err := tx.LockRiddle(ctx, riddleID)
		if err != nil {
			return err
		}
		if current.PointsAssigned {
			return domain.ErrAlreadyScored
		}

		answers, err := tx.Answers(ctx, riddleID)
		if err != nil {
			return err
		}
		plan = PlanScoring(current, competition, answers)

		for _, score := range plan.Scores {
			if err := tx.SaveAnswerScore(ctx, score); err != nil {
				return err
			}
			written++
		}

		for _, c := range plan.Credits {
			var ok bool
			if current.CompetitionID != "" {
				ok, err = tx.CreditCompetition(ctx, current.CompetitionID, c.UserID, c.Points)
			} else {
				ok, err = tx.CreditUser(ctx, c.UserID, c.Points)
			}
			if err != nil {
				return err
			}
			if !ok {
				e.logger.Info("no score record to credit",
					zap.String("riddle_id", riddleID),
					zap.String("competition_id", current.CompetitionID),
					zap.String("user_id", c.UserID),
					zap.Int("points", c.Points),
				)
				continue
			}
			credited += c.Points
			written++
		}

		return tx.MarkScored(ctx, riddleID, domain.RiddleResult{
			FirstSolver:  plan.FirstSolver,
			CorrectCount: plan.CorrectCount,
			ProcessedAt:  now,
		})
	})
	switch {
	case errors.Is(err, domain.ErrAlreadyScored):
		// Lost the race. Report the winner's result.
		winner, rerr := e.store.Riddle(ctx, riddleID)
		if rerr != nil {
			return domain.ScoringOutcome{RiddleID: riddleID, CompetitionID: outcome.CompetitionID, Status: domain.OutcomeAlreadyScored}, nil
		}
		return alreadyScored(outcome, winner), nil
	case err != nil:
		rolledBack := domain.IsRolledBack(err)
		var rb *domain.RolledBackError
		if errors.As(err, &rb) {
			err = rb.Err
		}
		if errors.Is(err, domain.ErrNotFound) {
			return outcome, err
		}
		// Only writes that survived the failure make it partial.
		if written > 0 && !rolledBack {
			return outcome, &domain.PartialWriteError{RiddleID: riddleID, Written: written, Err: err}
		}
		return outcome, &domain.TransientStoreError{Op: "score riddle", Err: err}
	}

	outcome.Status = domain.OutcomeScored
	outcome.CorrectCount = plan.CorrectCount
	outcome.FirstSolver = plan.FirstSolver
	outcome.Credited = credited
	outcome.Duplicates = plan.Duplicates
	return outcome, nil
}

func alreadyScored(outcome domain.ScoringOutcome, riddle domain.Riddle) domain.ScoringOutcome {
	outcome.Status = domain.OutcomeAlreadyScored
	outcome.FirstSolver = riddle.FirstSolver
	if riddle.CorrectCount != nil {
		outcome.CorrectCount = *riddle.CorrectCount
	}
	return outcome
}

func storeError(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return &domain.TransientStoreError{Op: op, Err: err}
}
