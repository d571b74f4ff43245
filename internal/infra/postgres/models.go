package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"riddle-league/internal/domain"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            string     `bun:"id,pk"`
	DisplayName   string     `bun:"display_name,notnull"`
	Points        int        `bun:"points,notnull"`
	NameChangedAt *time.Time `bun:"name_changed_at"`
	JoinedAt      time.Time  `bun:"joined_at,nullzero,notnull,default:current_timestamp"`
}

type competitionRow struct {
	bun.BaseModel `bun:"table:competitions,alias:c"`

	ID           string              `bun:"id,pk"`
	Name         string              `bun:"name,notnull"`
	StartsAt     *time.Time          `bun:"starts_at"`
	EndsAt       *time.Time          `bun:"ends_at"`
	Points       *domain.PointConfig `bun:"points,type:jsonb"`
	Bonus        *domain.BonusConfig `bun:"bonus,type:jsonb"`
	Participants int                 `bun:"participants,notnull"`
}

type riddleRow struct {
	bun.BaseModel `bun:"table:riddles,alias:r"`

	ID             string                 `bun:"id,pk"`
	Title          string                 `bun:"title,notnull"`
	Question       string                 `bun:"question,notnull"`
	Solution       string                 `bun:"solution,notnull"`
	StartsAt       time.Time              `bun:"starts_at,notnull"`
	EndsAt         time.Time              `bun:"ends_at,notnull"`
	CompetitionID  string                 `bun:"competition_id,nullzero"`
	Override       domain.ScoringOverride `bun:"override,type:jsonb,notnull"`
	CreatedAt      time.Time              `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	PointsAssigned bool                   `bun:"points_assigned,notnull"`
	FirstSolver    *string                `bun:"first_solver"`
	CorrectCount   *int                   `bun:"correct_count"`
	ProcessedAt    *time.Time             `bun:"processed_at"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID          string    `bun:"id,pk"`
	RiddleID    string    `bun:"riddle_id,notnull"`
	UserID      string    `bun:"user_id,notnull"`
	Text        string    `bun:"text,notnull"`
	SubmittedAt time.Time `bun:"submitted_at,notnull"`
	Points      int       `bun:"points,notnull"`
	Bonus       int       `bun:"bonus,notnull"`
	IsCorrect   *bool     `bun:"is_correct"`
	Duplicate   bool      `bun:"duplicate,notnull"`
}

type competitionScoreRow struct {
	bun.BaseModel `bun:"table:competition_scores,alias:cs"`

	CompetitionID string `bun:"competition_id,pk"`
	UserID        string `bun:"user_id,pk"`
	Points        int    `bun:"points,notnull"`
}

func newUserRow(u domain.User) *userRow {
	return &userRow{
		ID:            u.ID,
		DisplayName:   u.DisplayName,
		Points:        u.Points,
		NameChangedAt: u.NameChangedAt,
		JoinedAt:      u.JoinedAt,
	}
}

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:            r.ID,
		DisplayName:   r.DisplayName,
		Points:        r.Points,
		NameChangedAt: r.NameChangedAt,
		JoinedAt:      r.JoinedAt,
	}
}

func newCompetitionRow(c domain.Competition) *competitionRow {
	return &competitionRow{
		ID:           c.ID,
		Name:         c.Name,
		StartsAt:     c.StartsAt,
		EndsAt:       c.EndsAt,
		Points:       c.Points,
		Bonus:        c.Bonus,
		Participants: c.Participants,
	}
}

func (r competitionRow) toDomain() domain.Competition {
	return domain.Competition{
		ID:           r.ID,
		Name:         r.Name,
		StartsAt:     r.StartsAt,
		EndsAt:       r.EndsAt,
		Points:       r.Points,
		Bonus:        r.Bonus,
		Participants: r.Participants,
	}
}

func newRiddleRow(r domain.Riddle) *riddleRow {
	return &riddleRow{
		ID:             r.ID,
		Title:          r.Title,
		Question:       r.Question,
		Solution:       r.Solution,
		StartsAt:       r.StartsAt,
		EndsAt:         r.EndsAt,
		CompetitionID:  r.CompetitionID,
		Override:       r.Override,
		CreatedAt:      r.CreatedAt,
		PointsAssigned: r.PointsAssigned,
		FirstSolver:    r.FirstSolver,
		CorrectCount:   r.CorrectCount,
		ProcessedAt:    r.ProcessedAt,
	}
}

func (r riddleRow) toDomain() domain.Riddle {
	return domain.Riddle{
		ID:             r.ID,
		Title:          r.Title,
		Question:       r.Question,
		Solution:       r.Solution,
		StartsAt:       r.StartsAt,
		EndsAt:         r.EndsAt,
		CompetitionID:  r.CompetitionID,
		Override:       r.Override,
		CreatedAt:      r.CreatedAt,
		PointsAssigned: r.PointsAssigned,
		FirstSolver:    r.FirstSolver,
		CorrectCount:   r.CorrectCount,
		ProcessedAt:    r.ProcessedAt,
	}
}

func newAnswerRow(a domain.Answer) *answerRow {
	return &answerRow{
		ID:          a.ID,
		RiddleID:    a.RiddleID,
		UserID:      a.UserID,
		Text:        a.Text,
		SubmittedAt: a.SubmittedAt,
		Points:      a.Points,
		Bonus:       a.Bonus,
		IsCorrect:   a.IsCorrect,
		Duplicate:   a.Duplicate,
	}
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:          r.ID,
		RiddleID:    r.RiddleID,
		UserID:      r.UserID,
		Text:        r.Text,
		SubmittedAt: r.SubmittedAt,
		Points:      r.Points,
		Bonus:       r.Bonus,
		IsCorrect:   r.IsCorrect,
		Duplicate:   r.Duplicate,
	}
}

func answersToDomain(rows []answerRow) []domain.Answer {
	out := make([]domain.Answer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
