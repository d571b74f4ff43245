package mongo

import (
	"time"

	"riddle-league/internal/domain"
)

type pointsDoc struct {
	First  int `bson:"first"`
	Others int `bson:"others"`
}

type bonusDoc struct {
	Single    int `bson:"single"`
	TwoToFive int `bson:"twoToFive"`
	SixToTen  int `bson:"sixToTen"`
}

type overrideDoc struct {
	CustomPoints bool      `bson:"customPoints"`
	Points       pointsDoc `bson:"points"`
	CustomBonus  bool      `bson:"customBonus"`
	Bonus        bonusDoc  `bson:"bonus"`
}

type userDoc struct {
	ID            string     `bson:"_id"`
	DisplayName   string     `bson:"displayName"`
	Points        int        `bson:"points"`
	NameChangedAt *time.Time `bson:"nameChangedAt,omitempty"`
	JoinedAt      time.Time  `bson:"joinedAt"`
}

type competitionDoc struct {
	ID           string     `bson:"_id"`
	Name         string     `bson:"name"`
	StartsAt     *time.Time `bson:"startsAt,omitempty"`
	EndsAt       *time.Time `bson:"endsAt,omitempty"`
	Points       *pointsDoc `bson:"points,omitempty"`
	Bonus        *bonusDoc  `bson:"bonus,omitempty"`
	Participants int        `bson:"participants"`
}

type riddleDoc struct {
	ID             string      `bson:"_id"`
	Title          string      `bson:"title"`
	Question       string      `bson:"question"`
	Solution       string      `bson:"solution"`
	StartsAt       time.Time   `bson:"startsAt"`
	EndsAt         time.Time   `bson:"endsAt"`
	CompetitionID  string      `bson:"competitionId,omitempty"`
	Override       overrideDoc `bson:"override"`
	CreatedAt      time.Time   `bson:"createdAt"`
	PointsAssigned bool        `bson:"pointsAssigned"`
	FirstSolver    *string     `bson:"firstSolver"`
	CorrectCount   *int        `bson:"correctCount"`
	ProcessedAt    *time.Time  `bson:"processedAt,omitempty"`
}

type answerDoc struct {
	ID          string    `bson:"_id"`
	RiddleID    string    `bson:"riddleId"`
	UserID      string    `bson:"userId"`
	Text        string    `bson:"text"`
	SubmittedAt time.Time `bson:"submittedAt"`
	Points      int       `bson:"points"`
	Bonus       int       `bson:"bonus"`
	IsCorrect   *bool     `bson:"isCorrect"`
	Duplicate   bool      `bson:"duplicate"`
}

// scoreDoc is keyed by competition and user so a second join collides.
type scoreDoc struct {
	ID            string `bson:"_id"`
	CompetitionID string `bson:"competitionId"`
	UserID        string `bson:"userId"`
	Points        int    `bson:"points"`
}

func scoreID(competitionID, userID string) string {
	return competitionID + "/" + userID
}

func (d userDoc) toDomain() domain.User {
	return domain.User{
		ID:            d.ID,
		DisplayName:   d.DisplayName,
		Points:        d.Points,
		NameChangedAt: d.NameChangedAt,
		JoinedAt:      d.JoinedAt,
	}
}

func newCompetitionDoc(c domain.Competition) competitionDoc {
	d := competitionDoc{
		ID:           c.ID,
		Name:         c.Name,
		StartsAt:     c.StartsAt,
		EndsAt:       c.EndsAt,
		Participants: c.Participants,
	}
	if c.Points != nil {
		d.Points = &pointsDoc{First: c.Points.First, Others: c.Points.Others}
	}
	if c.Bonus != nil {
		d.Bonus = &bonusDoc{Single: c.Bonus.Single, TwoToFive: c.Bonus.TwoToFive, SixToTen: c.Bonus.SixToTen}
	}
	return d
}

func (d competitionDoc) toDomain() domain.Competition {
	c := domain.Competition{
		ID:           d.ID,
		Name:         d.Name,
		StartsAt:     d.StartsAt,
		EndsAt:       d.EndsAt,
		Participants: d.Participants,
	}
	if d.Points != nil {
		c.Points = &domain.PointConfig{First: d.Points.First, Others: d.Points.Others}
	}
	if d.Bonus != nil {
		c.Bonus = &domain.BonusConfig{Single: d.Bonus.Single, TwoToFive: d.Bonus.TwoToFive, SixToTen: d.Bonus.SixToTen}
	}
	return c
}

func newOverrideDoc(o domain.ScoringOverride) overrideDoc {
	return overrideDoc{
		CustomPoints: o.CustomPoints,
		Points:       pointsDoc{First: o.Points.First, Others: o.Points.Others},
		CustomBonus:  o.CustomBonus,
		Bonus:        bonusDoc{Single: o.Bonus.Single, TwoToFive: o.Bonus.TwoToFive, SixToTen: o.Bonus.SixToTen},
	}
}

func (d riddleDoc) toDomain() domain.Riddle {
	return domain.Riddle{
		ID:            d.ID,
		Title:         d.Title,
		Question:      d.Question,
		Solution:      d.Solution,
		StartsAt:      d.StartsAt,
		EndsAt:        d.EndsAt,
		CompetitionID: d.CompetitionID,
		Override: domain.ScoringOverride{
			CustomPoints: d.Override.CustomPoints,
			Points:       domain.PointConfig{First: d.Override.Points.First, Others: d.Override.Points.Others},
			CustomBonus:  d.Override.CustomBonus,
			Bonus: domain.BonusConfig{
				Single:    d.Override.Bonus.Single,
				TwoToFive: d.Override.Bonus.TwoToFive,
				SixToTen:  d.Override.Bonus.SixToTen,
			},
		},
		CreatedAt:      d.CreatedAt,
		PointsAssigned: d.PointsAssigned,
		FirstSolver:    d.FirstSolver,
		CorrectCount:   d.CorrectCount,
		ProcessedAt:    d.ProcessedAt,
	}
}

func newAnswerDoc(a domain.Answer) answerDoc {
	return answerDoc{
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

func (d answerDoc) toDomain() domain.Answer {
	return domain.Answer{
		ID:          d.ID,
		RiddleID:    d.RiddleID,
		UserID:      d.UserID,
		Text:        d.Text,
		SubmittedAt: d.SubmittedAt,
		Points:      d.Points,
		Bonus:       d.Bonus,
		IsCorrect:   d.IsCorrect,
		Duplicate:   d.Duplicate,
	}
}
