package app

import (
	"context"
	"time"

	"riddle-league/internal/domain"
)

// ScoringStore is what ScoringEngine needs from the document store.
type ScoringStore interface {
	Riddle(ctx context.Context, id string) (domain.Riddle, error)
	Competition(ctx context.Context, id string) (domain.Competition, error)
	// ServerTime is the store's own clock, immune to client skew.
	ServerTime(ctx context.Context) (time.Time, error)
	// Transaction runs fn atomically. When the store discards every write of a
	// failed attempt the error is marked with domain.RolledBack.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx ScoringTx) error) error
}

// ScoringTx is the read-modify-write surface available inside a scoring transaction.
type ScoringTx interface {
	// LockRiddle re-reads the riddle so that a concurrent scorer either blocks or
	// conflicts until this transaction ends.
	LockRiddle(ctx context.Context, id string) (domain.Riddle, error)
	Answers(ctx context.Context, riddleID string) ([]domain.Answer, error)
	SaveAnswerScore(ctx context.Context, score domain.AnswerScore) error
	// CreditCompetition adds points to a CompetitionScore. ok is false when the
	// user never joined the competition.
	CreditCompetition(ctx context.Context, competitionID, userID string, points int) (ok bool, err error)
	// CreditUser adds points to a user's global total. ok is false for unknown users.
	CreditUser(ctx context.Context, userID string, points int) (ok bool, err error)
	// MarkScored flips pointsAssigned only if it is still false, otherwise it
	// returns domain.ErrAlreadyScored.
	MarkScored(ctx context.Context, riddleID string, result domain.RiddleResult) error
}

// RiddleStore lists riddles for the sweep.
type RiddleStore interface {
	ServerTime(ctx context.Context) (time.Time, error)
	UnscoredRiddles(ctx context.Context, endedBy time.Time) ([]domain.Riddle, error)
}

// AnswerStore backs answer submission and riddle views.
type AnswerStore interface {
	Riddle(ctx context.Context, id string) (domain.Riddle, error)
	Competition(ctx context.Context, id string) (domain.Competition, error)
	ServerTime(ctx context.Context) (time.Time, error)
	HasAnswered(ctx context.Context, riddleID, userID string) (bool, error)
	// InsertAnswer stores answer only while its riddle is unscored and open by
	// the store clock, otherwise it returns domain.ErrRiddleClosed. The check and
	// the insert are atomic with respect to the scoring transaction.
	InsertAnswer(ctx context.Context, answer domain.Answer) error
	UserAnswers(ctx context.Context, riddleID, userID string) ([]domain.Answer, error)
}

// CompetitionStore manages participation.
type CompetitionStore interface {
	Competition(ctx context.Context, id string) (domain.Competition, error)
	// JoinCompetition creates a zero CompetitionScore and bumps the participant count.
	JoinCompetition(ctx context.Context, competitionID, userID string) error
}

// CatalogStore is the authoring side used by seeding and tests.
type CatalogStore interface {
	CreateUser(ctx context.Context, user domain.User) error
	CreateCompetition(ctx context.Context, competition domain.Competition) error
	CreateRiddle(ctx context.Context, riddle domain.Riddle) error
}

// LeaderboardLoader reads standings from the backing store.
type LeaderboardLoader interface {
	LoadLeaderboard(ctx context.Context, competitionID string) (domain.Leaderboard, error)
}

// LeaderboardRepository serves (possibly cached) standings.
type LeaderboardRepository interface {
	GetLeaderboard(ctx context.Context, competitionID string) (domain.Leaderboard, error)
	Invalidate(ctx context.Context, competitionID string) error
}

// Store is the full surface a backend implements. Standings are read through a
// separate LeaderboardLoader.
type Store interface {
	ScoringStore
	RiddleStore
	AnswerStore
	CompetitionStore
	CatalogStore
}
