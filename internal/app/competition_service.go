package app

import (
	"context"

	"go.uber.org/zap"

	"riddle-league/internal/domain"
)

// CompetitionService handles participation and serves live standings.
type CompetitionService struct {
	store        CompetitionStore
	leaderboards LeaderboardRepository
	rooms        RoomRepository
	logger       *zap.Logger
}

func NewCompetitionService(store CompetitionStore, leaderboards LeaderboardRepository, rooms RoomRepository, logger *zap.Logger) *CompetitionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompetitionService{store: store, leaderboards: leaderboards, rooms: rooms, logger: logger}
}

// Join enrolls userID with a zero score.
func (s *CompetitionService) Join(ctx context.Context, competitionID, userID string) (domain.Leaderboard, error) {
	if err := s.store.JoinCompetition(ctx, competitionID, userID); err != nil {
		return domain.Leaderboard{}, err
	}
	return s.refresh(ctx, competitionID)
}

// Leaderboard returns the (possibly cached) standings.
func (s *CompetitionService) Leaderboard(ctx context.Context, competitionID string) (domain.Leaderboard, error) {
	if _, err := s.store.Competition(ctx, competitionID); err != nil {
		return domain.Leaderboard{}, err
	}
	return s.leaderboards.GetLeaderboard(ctx, competitionID)
}

// Subscribe streams standings updates for a competition. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *CompetitionService) Subscribe(ctx context.Context, competitionID string) (<-chan domain.Leaderboard, func(), error) {
	lb, err := s.Leaderboard(ctx, competitionID)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.rooms.Subscribe(competitionID, lb)
	return ch, cancel, nil
}

// RiddleScored drops cached standings and pushes fresh ones to live rooms.
func (s *CompetitionService) RiddleScored(ctx context.Context, outcome domain.ScoringOutcome) {
	if outcome.CompetitionID == "" {
		return
	}
	if _, err := s.refresh(ctx, outcome.CompetitionID); err != nil {
		s.logger.Warn("refresh leaderboard",
			zap.String("competition_id", outcome.CompetitionID),
			zap.String("riddle_id", outcome.RiddleID),
			zap.Error(err),
		)
	}
}

func (s *CompetitionService) refresh(ctx context.Context, competitionID string) (domain.Leaderboard, error) {
	if err := s.leaderboards.Invalidate(ctx, competitionID); err != nil {
		s.logger.Warn("invalidate leaderboard", zap.String("competition_id", competitionID), zap.Error(err))
	}
	lb, err := s.leaderboards.GetLeaderboard(ctx, competitionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if err := s.rooms.Publish(ctx, lb); err != nil {
		s.logger.Warn("publish leaderboard", zap.String("competition_id", competitionID), zap.Error(err))
	}
	return lb, nil
}
