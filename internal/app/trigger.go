package app

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"riddle-league/internal/domain"
)

// Scorer is the single operation every trigger funnels into.
type Scorer interface {
	ScoreRiddle(ctx context.Context, riddleID string) (domain.ScoringOutcome, error)
}

// Lease is an optional cross-instance hint that someone is already scoring a
// riddle. Correctness never depends on it; it only saves wasted transactions.
type Lease interface {
	Acquire(ctx context.Context, riddleID string) (release func(), ok bool, err error)
}

// Trigger collapses concurrent scoring requests for the same riddle inside this
// process and, when a Lease is set, across instances.
type Trigger struct {
	scorer Scorer
	lease  Lease
	logger *zap.Logger
	sf     singleflight.Group
}

func NewTrigger(scorer Scorer, lease Lease, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{scorer: scorer, lease: lease, logger: logger}
}

// Fire scores riddleID unless an identical call is already running here (its
// result is shared) or another instance holds the lease (OutcomeSkipped).
func (t *Trigger) Fire(ctx context.Context, riddleID string) (domain.ScoringOutcome, error) {
	result, err, _ := t.sf.Do(riddleID, func() (interface{}, error) {
		if t.lease != nil {
			release, ok, err := t.lease.Acquire(ctx, riddleID)
			switch {
			case err != nil:
				// The store transaction still guards correctness.
				t.logger.Warn("acquire scoring lease", zap.String("riddle_id", riddleID), zap.Error(err))
			case !ok:
				return domain.ScoringOutcome{RiddleID: riddleID, Status: domain.OutcomeSkipped}, nil
			default:
				defer release()
			}
		}
		return t.scorer.ScoreRiddle(ctx, riddleID)
	})
	outcome, _ := result.(domain.ScoringOutcome)
	return outcome, err
}

// ScoreRiddle lets a Trigger stand in wherever a Scorer is expected.
func (t *Trigger) ScoreRiddle(ctx context.Context, riddleID string) (domain.ScoringOutcome, error) {
	return t.Fire(ctx, riddleID)
}
