package app

import (
	"sort"
	"strings"

	"riddle-league/internal/domain"
)

// OrderAnswers sorts a riddle's answers by submission time (ties broken by answer
// id, which is time-ordered at insertion) and splits off every answer after a
// user's first one. The input slice is not modified.
func OrderAnswers(answers []domain.Answer) (ordered, duplicates []domain.Answer) {
	sorted := make([]domain.Answer, len(answers))
	copy(sorted, answers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].SubmittedAt.Equal(sorted[j].SubmittedAt) {
			return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	seen := make(map[string]struct{}, len(sorted))
	ordered = make([]domain.Answer, 0, len(sorted))
	for _, a := range sorted {
		if _, ok := seen[a.UserID]; ok {
			duplicates = append(duplicates, a)
			continue
		}
		seen[a.UserID] = struct{}{}
		ordered = append(ordered, a)
	}
	return ordered, duplicates
}

// MatchesSolution compares trimmed values byte for byte. Case matters.
func MatchesSolution(submitted, solution string) bool {
	return strings.TrimSpace(submitted) == strings.TrimSpace(solution)
}

// Credit is the points a user earns from one riddle.
type Credit struct {
	UserID string
	Points int
}

// ScoringPlan is the full, deterministic result of scoring a riddle's answers.
type ScoringPlan struct {
	Scores       []domain.AnswerScore // one per answer, duplicates first
	Credits      []Credit             // correct answers in position order
	CorrectCount int
	Bonus        int
	FirstSolver  *string
	Duplicates   int
}

// Credited sums the points of all credits.
func (p ScoringPlan) Credited() int {
	total := 0
	for _, c := range p.Credits {
		total += c.Points
	}
	return total
}

// PlanScoring derives every answer's points from scratch. It never trusts
// previously written answer fields, so replaying it after a partial write gives
// the same plan.
func PlanScoring(riddle domain.Riddle, competition *domain.Competition, answers []domain.Answer) ScoringPlan {
	policy := ResolvePolicy(riddle, competition)
	ordered, duplicates := OrderAnswers(answers)

	plan := ScoringPlan{
		Scores:     make([]domain.AnswerScore, 0, len(answers)),
		Duplicates: len(duplicates),
	}
	for _, d := range duplicates {
		plan.Scores = append(plan.Scores, domain.AnswerScore{
			AnswerID:  d.ID,
			UserID:    d.UserID,
			Duplicate: true,
		})
	}

	correct := make([]domain.Answer, 0, len(ordered))
	for _, a := range ordered {
		if MatchesSolution(a.Text, riddle.Solution) {
			correct = append(correct, a)
			continue
		}
		plan.Scores = append(plan.Scores, domain.AnswerScore{AnswerID: a.ID, UserID: a.UserID})
	}

	plan.CorrectCount = len(correct)
	plan.Bonus = policy.bonusFor(plan.CorrectCount)
	for pos, a := range correct {
		points := policy.pointsFor(pos) + plan.Bonus
		plan.Scores = append(plan.Scores, domain.AnswerScore{
			AnswerID:  a.ID,
			UserID:    a.UserID,
			Points:    points,
			Bonus:     plan.Bonus,
			IsCorrect: true,
		})
		plan.Credits = append(plan.Credits, Credit{UserID: a.UserID, Points: points})
	}
	if len(correct) > 0 {
		first := correct[0].UserID
		plan.FirstSolver = &first
	}
	return plan
}
