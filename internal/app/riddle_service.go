package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"riddle-league/internal/domain"
	"riddle-league/internal/observability"
)

// RiddleStatus is the lifecycle phase of a riddle as a reader sees it.
type RiddleStatus string

const (
	StatusUpcoming RiddleStatus = "upcoming"
	StatusOpen     RiddleStatus = "open"
	StatusPending  RiddleStatus = "pending" // closed, not scored yet
	StatusScored   RiddleStatus = "scored"
)

// RiddleView is what a player sees for one riddle.
type RiddleView struct {
	Riddle   domain.Riddle   `json:"riddle"`
	Status   RiddleStatus    `json:"status"`
	Policy   Policy          `json:"policy"`
	Answers  []domain.Answer `json:"answers"`
	Solution string          `json:"solution,omitempty"`
}

// RiddleService serves riddle views and accepts answers.
type RiddleService struct {
	store   AnswerStore
	trigger Scorer
	logger  *zap.Logger
	metrics *observability.ScoringMetrics
}

func NewRiddleService(store AnswerStore, trigger Scorer, logger *zap.Logger, metrics *observability.ScoringMetrics) *RiddleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RiddleService{store: store, trigger: trigger, logger: logger, metrics: metrics}
}

// View returns the riddle, the viewer's answers and the projected rules. A
// riddle found past its end and unscored is scored before being returned.
func (s *RiddleService) View(ctx context.Context, riddleID, userID string) (RiddleView, error) {
	riddle, err := s.store.Riddle(ctx, riddleID)
	if err != nil {
		return RiddleView{}, err
	}
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return RiddleView{}, &domain.TransientStoreError{Op: "server time", Err: err}
	}

	if riddle.NeedsScoring(now) && s.trigger != nil {
		if _, err := s.trigger.ScoreRiddle(ctx, riddleID); err != nil {
			// The view still renders as pending; the sweep retries.
			s.logger.Warn("score on view", zap.String("riddle_id", riddleID), zap.Error(err))
		}
		if riddle, err = s.store.Riddle(ctx, riddleID); err != nil {
			return RiddleView{}, err
		}
	}

	var competition *domain.Competition
	if riddle.CompetitionID != "" {
		c, err := s.store.Competition(ctx, riddle.CompetitionID)
		if err != nil {
			return RiddleView{}, err
		}
		competition = &c
	}

	view := RiddleView{
		Riddle: riddle,
		Status: statusAt(riddle, now),
		Policy: ResolvePolicy(riddle, competition),
	}
	if userID != "" {
		if view.Answers, err = s.store.UserAnswers(ctx, riddleID, userID); err != nil {
			return RiddleView{}, err
		}
	}
	if view.Status == StatusScored {
		view.Solution = riddle.Solution
	}
	return view, nil
}

// SubmitAnswer records a user's answer while the riddle is open. The existence
// check is advisory; scoring dedups whatever slips through.
func (s *RiddleService) SubmitAnswer(ctx context.Context, riddleID, userID, text string) (domain.Answer, error) {
	answer, err := s.submitAnswer(ctx, riddleID, userID, text)
	s.metrics.ObserveAnswer(answerResult(err))
	return answer, err
}

func (s *RiddleService) submitAnswer(ctx context.Context, riddleID, userID, text string) (domain.Answer, error) {
	if strings.TrimSpace(text) == "" {
		return domain.Answer{}, domain.ErrEmptyAnswer
	}
	riddle, err := s.store.Riddle(ctx, riddleID)
	if err != nil {
		return domain.Answer{}, err
	}
	now, err := s.store.ServerTime(ctx)
	if err != nil {
		return domain.Answer{}, &domain.TransientStoreError{Op: "server time", Err: err}
	}
	switch {
	case now.Before(riddle.StartsAt):
		return domain.Answer{}, domain.ErrRiddleNotStarted
	case riddle.ClosedAt(now):
		return domain.Answer{}, domain.ErrRiddleClosed
	}

	answered, err := s.store.HasAnswered(ctx, riddleID, userID)
	if err != nil {
		return domain.Answer{}, &domain.TransientStoreError{Op: "check answer", Err: err}
	}
	if answered {
		return domain.Answer{}, domain.ErrAlreadyAnswered
	}

	id, err := uuid.NewV7()
	if err != nil {
		return domain.Answer{}, err
	}
	answer := domain.Answer{
		ID:          id.String(),
		RiddleID:    riddleID,
		UserID:      userID,
		Text:        text,
		SubmittedAt: now,
	}
	if err := s.store.InsertAnswer(ctx, answer); err != nil {
		// The store re-checks the window atomically with scoring.
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrRiddleClosed) {
			return domain.Answer{}, err
		}
		return domain.Answer{}, &domain.TransientStoreError{Op: "insert answer", Err: err}
	}
	return answer, nil
}

func statusAt(r domain.Riddle, now time.Time) RiddleStatus {
	switch {
	case r.PointsAssigned:
		return StatusScored
	case now.Before(r.StartsAt):
		return StatusUpcoming
	case r.OpenAt(now):
		return StatusOpen
	default:
		return StatusPending
	}
}

func answerResult(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, domain.ErrAlreadyAnswered):
		return "duplicate"
	case errors.Is(err, domain.ErrRiddleClosed), errors.Is(err, domain.ErrRiddleNotStarted):
		return "out_of_window"
	case errors.Is(err, domain.ErrEmptyAnswer):
		return "empty"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
