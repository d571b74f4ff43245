package domain

import "time"

// PointConfig holds per-position points for correct answers.
type PointConfig struct {
	First  int `json:"first" yaml:"first"`
	Others int `json:"others" yaml:"others"`
}

// BonusConfig holds the additive bonus shared by every correct answer of a riddle,
// chosen by how many distinct users solved it.
type BonusConfig struct {
	Single    int `json:"single" yaml:"single"`
	TwoToFive int `json:"twoToFive" yaml:"twoToFive"`
	SixToTen  int `json:"sixToTen" yaml:"sixToTen"`
}

// ScoringOverride lets a riddle replace its competition's rules.
// Points and Bonus only apply when the matching Custom flag is set.
type ScoringOverride struct {
	CustomPoints bool        `json:"customPoints" yaml:"customPoints"`
	Points       PointConfig `json:"points" yaml:"points"`
	CustomBonus  bool        `json:"customBonus" yaml:"customBonus"`
	Bonus        BonusConfig `json:"bonus" yaml:"bonus"`
}

// Riddle is a single question open for answers during [StartsAt, EndsAt).
type Riddle struct {
	ID            string          `json:"id" yaml:"id"`
	Title         string          `json:"title" yaml:"title"`
	Question      string          `json:"question" yaml:"question"`
	Solution      string          `json:"-" yaml:"solution"`
	StartsAt      time.Time       `json:"startsAt" yaml:"startsAt"`
	EndsAt        time.Time       `json:"endsAt" yaml:"endsAt"`
	CompetitionID string          `json:"competitionId,omitempty" yaml:"competitionId"`
	Override      ScoringOverride `json:"override" yaml:"override"`
	CreatedAt     time.Time       `json:"createdAt" yaml:"-"`

	// Written once, by scoring.
	PointsAssigned bool       `json:"pointsAssigned" yaml:"-"`
	FirstSolver    *string    `json:"firstSolver" yaml:"-"`
	CorrectCount   *int       `json:"correctCount" yaml:"-"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty" yaml:"-"`
}

// ClosedAt reports whether the answer window has ended at now.
func (r Riddle) ClosedAt(now time.Time) bool {
	return !now.Before(r.EndsAt)
}

// OpenAt reports whether answers are accepted at now.
func (r Riddle) OpenAt(now time.Time) bool {
	return !now.Before(r.StartsAt) && now.Before(r.EndsAt)
}

// NeedsScoring reports whether the riddle is past its end and still unscored.
func (r Riddle) NeedsScoring(now time.Time) bool {
	return !r.PointsAssigned && r.ClosedAt(now)
}

// Answer is one submission of a user to a riddle.
type Answer struct {
	ID          string    `json:"id"`
	RiddleID    string    `json:"riddleId"`
	UserID      string    `json:"userId"`
	Text        string    `json:"text"`
	SubmittedAt time.Time `json:"submittedAt"`
	Points      int       `json:"points"`
	Bonus       int       `json:"bonus"`
	IsCorrect   *bool     `json:"isCorrect"` // nil until scored
	Duplicate   bool      `json:"duplicate"`
}

// AnswerScore is the scoring result persisted onto a single answer.
type AnswerScore struct {
	AnswerID  string
	UserID    string
	Points    int
	Bonus     int
	IsCorrect bool
	Duplicate bool
}

// RiddleResult is the terminal write that marks a riddle as scored.
type RiddleResult struct {
	FirstSolver  *string
	CorrectCount int
	ProcessedAt  time.Time
}

// User is a registered player.
type User struct {
	ID            string     `json:"id" yaml:"id"`
	DisplayName   string     `json:"displayName" yaml:"displayName"`
	Points        int        `json:"points" yaml:"-"`
	NameChangedAt *time.Time `json:"nameChangedAt,omitempty" yaml:"-"`
	JoinedAt      time.Time  `json:"joinedAt" yaml:"-"`
}

// Competition groups riddles under shared scoring defaults and a leaderboard.
type Competition struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	StartsAt     *time.Time   `json:"startsAt,omitempty" yaml:"startsAt"`
	EndsAt       *time.Time   `json:"endsAt,omitempty" yaml:"endsAt"`
	Points       *PointConfig `json:"points,omitempty" yaml:"points"`
	Bonus        *BonusConfig `json:"bonus,omitempty" yaml:"bonus"`
	Participants int          `json:"participants" yaml:"-"`
}

// CompetitionWindow returns the competition's explicit range or, when absent,
// the min start and max end over its riddles. ok is false when neither is known.
func CompetitionWindow(c Competition, riddles []Riddle) (start, end time.Time, ok bool) {
	if c.StartsAt != nil && c.EndsAt != nil {
		return *c.StartsAt, *c.EndsAt, true
	}
	for _, r := range riddles {
		if r.CompetitionID != c.ID {
			continue
		}
		if !ok || r.StartsAt.Before(start) {
			start = r.StartsAt
		}
		if !ok || r.EndsAt.After(end) {
			end = r.EndsAt
		}
		ok = true
	}
	return start, end, ok
}

// CompetitionScore is a user's running total inside a competition.
type CompetitionScore struct {
	CompetitionID string `json:"competitionId"`
	UserID        string `json:"userId"`
	Points        int    `json:"points"`
}

// LeaderboardEntry is a ranked row of a competition leaderboard.
type LeaderboardEntry struct {
	Rank        int    `json:"rank"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Points      int    `json:"points"`
}

// Leaderboard captures the ordered standings of a competition.
type Leaderboard struct {
	CompetitionID string             `json:"competitionId"`
	Entries       []LeaderboardEntry `json:"entries"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// OutcomeStatus tells callers what ScoreRiddle did.
type OutcomeStatus string

const (
	OutcomeScored        OutcomeStatus = "scored"
	OutcomeAlreadyScored OutcomeStatus = "already_scored"
	OutcomeSkipped       OutcomeStatus = "skipped" // another instance holds the scoring lease
)

// ScoringOutcome summarizes one ScoreRiddle call.
type ScoringOutcome struct {
	RiddleID      string        `json:"riddleId"`
	CompetitionID string        `json:"competitionId,omitempty"`
	Status        OutcomeStatus `json:"status"`
	CorrectCount  int           `json:"correctCount"`
	FirstSolver   *string       `json:"firstSolver"`
	Credited      int           `json:"credited"`
	Duplicates    int           `json:"duplicates"`
}
