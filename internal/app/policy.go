package app

import "riddle-league/internal/domain"

// DefaultPoints applies when neither the riddle nor its competition declares points.
var DefaultPoints = domain.PointConfig{First: 2, Others: 1}

// DefaultBonus applies when neither the riddle nor its competition declares a bonus.
var DefaultBonus = domain.BonusConfig{}

// PolicySource names where an effective rule came from.
type PolicySource string

const (
	SourceRiddle      PolicySource = "riddle"
	SourceCompetition PolicySource = "competition"
	SourceDefault     PolicySource = "default"
)

// Policy is the resolved scoring configuration of a riddle.
type Policy struct {
	Points       domain.PointConfig `json:"points"`
	PointsSource PolicySource       `json:"pointsSource"`
	Bonus        domain.BonusConfig `json:"bonus"`
	BonusSource  PolicySource       `json:"bonusSource"`
}

// ResolvePolicy applies override precedence: riddle flag, then competition
// default, then the hard default. competition may be nil.
func ResolvePolicy(riddle domain.Riddle, competition *domain.Competition) Policy {
	p := Policy{
		Points:       DefaultPoints,
		PointsSource: SourceDefault,
		Bonus:        DefaultBonus,
		BonusSource:  SourceDefault,
	}

	switch {
	case riddle.Override.CustomPoints:
		p.Points, p.PointsSource = riddle.Override.Points, SourceRiddle
	case competition != nil && competition.Points != nil:
		p.Points, p.PointsSource = *competition.Points, SourceCompetition
	}

	switch {
	case riddle.Override.CustomBonus:
		p.Bonus, p.BonusSource = riddle.Override.Bonus, SourceRiddle
	case competition != nil && competition.Bonus != nil:
		p.Bonus, p.BonusSource = *competition.Bonus, SourceCompetition
	}
	return p
}

// EffectivePoints returns the per-position points for a riddle.
func EffectivePoints(riddle domain.Riddle, competition *domain.Competition) domain.PointConfig {
	return ResolvePolicy(riddle, competition).Points
}

// EffectiveBonus returns the group-size bonus table for a riddle.
func EffectiveBonus(riddle domain.Riddle, competition *domain.Competition) domain.BonusConfig {
	return ResolvePolicy(riddle, competition).Bonus
}

// PointsForPosition returns the base points of the correct answer at position
// (0 = first solver after dedup).
func PointsForPosition(position int, riddle domain.Riddle, competition *domain.Competition) int {
	return ResolvePolicy(riddle, competition).pointsFor(position)
}

// BonusForCorrectCount returns the bonus every correct answer receives when n
// distinct users answered correctly. Boundaries are inclusive.
func BonusForCorrectCount(n int, riddle domain.Riddle, competition *domain.Competition) int {
	return ResolvePolicy(riddle, competition).bonusFor(n)
}

func (p Policy) pointsFor(position int) int {
	if position == 0 {
		return p.Points.First
	}
	return p.Points.Others
}

func (p Policy) bonusFor(n int) int {
	switch {
	case n == 1:
		return p.Bonus.Single
	case n >= 2 && n <= 5:
		return p.Bonus.TwoToFive
	case n >= 6 && n <= 10:
		return p.Bonus.SixToTen
	default:
		return 0
	}
}
