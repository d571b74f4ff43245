package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"riddle-league/internal/domain"
	"riddle-league/internal/observability"
)

const (
	DefaultSweepSchedule    = "@every 30s"
	DefaultSweepConcurrency = 4
)

// SweepReport counts what one sweep did.
type SweepReport struct {
	Found         int `json:"found"`
	Scored        int `json:"scored"`
	AlreadyScored int `json:"alreadyScored"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

// Sweeper periodically scores every riddle whose window has ended.
type Sweeper struct {
	riddles     RiddleStore
	scorer      Scorer
	logger      *zap.Logger
	metrics     *observability.ScoringMetrics
	concurrency int
	timeout     time.Duration

	mu   sync.Mutex
	cron *cron.Cron
}

type SweeperOption func(*Sweeper)

func WithSweepConcurrency(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithSweepLogger(logger *zap.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = logger }
}

func WithSweepMetrics(metrics *observability.ScoringMetrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = metrics }
}

// WithSweepTimeout bounds a single scheduled sweep.
func WithSweepTimeout(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.timeout = d }
}

func NewSweeper(riddles RiddleStore, scorer Scorer, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		riddles:     riddles,
		scorer:      scorer,
		logger:      zap.NewNop(),
		concurrency: DefaultSweepConcurrency,
		timeout:     time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep scores all past-due unscored riddles. Individual failures are counted
// and logged; only a failure to list riddles is returned.
func (s *Sweeper) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	now, err := s.riddles.ServerTime(ctx)
	if err != nil {
		return report, &domain.TransientStoreError{Op: "server time", Err: err}
	}
	riddles, err := s.riddles.UnscoredRiddles(ctx, now)
	if err != nil {
		return report, &domain.TransientStoreError{Op: "list unscored riddles", Err: err}
	}
	report.Found = len(riddles)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.concurrency)
	for _, r := range riddles {
		riddleID := r.ID
		g.Go(func() error {
			outcome, err := s.scorer.ScoreRiddle(ctx, riddleID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, domain.ErrRiddleOpen):
				// The store clock moved between listing and scoring; next sweep.
				report.Skipped++
			case err != nil:
				report.Failed++
				s.logger.Error("sweep riddle", zap.String("riddle_id", riddleID), zap.Error(err))
			case outcome.Status == domain.OutcomeScored:
				report.Scored++
			case outcome.Status == domain.OutcomeAlreadyScored:
				report.AlreadyScored++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.ObserveSweep(report.Failed)
	if report.Found > 0 {
		s.logger.Info("sweep finished",
			zap.Int("found", report.Found),
			zap.Int("scored", report.Scored),
			zap.Int("already_scored", report.AlreadyScored),
			zap.Int("skipped", report.Skipped),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// Start runs Sweep on schedule (cron spec or "@every <duration>"). Overlapping
// runs are skipped rather than queued.
func (s *Sweeper) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("sweeper already started")
	}

	cronLogger := observability.NewCronLogger(s.logger)
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("sweep", zap.Error(err))
	}
}
