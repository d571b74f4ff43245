package app_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

func TestBonusForCorrectCountBoundaries(t *testing.T) {
	comp := &domain.Competition{
		ID:    "c1",
		Bonus: &domain.BonusConfig{Single: 5, TwoToFive: 3, SixToTen: 1},
	}
	riddle := domain.Riddle{CompetitionID: "c1"}

	cases := map[int]int{0: 0, 1: 5, 2: 3, 5: 3, 6: 1, 10: 1, 11: 0, -1: 0}
	for n, want := range cases {
		if got := app.BonusForCorrectCount(n, riddle, comp); got != want {
			t.Fatalf("bonus(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestPointsOverridePrecedence(t *testing.T) {
	comp := &domain.Competition{ID: "c1", Points: &domain.PointConfig{First: 2, Others: 1}}

	custom := domain.Riddle{Override: domain.ScoringOverride{
		CustomPoints: true,
		Points:       domain.PointConfig{First: 5, Others: 2},
	}}
	assert.Equal(t, domain.PointConfig{First: 5, Others: 2}, app.EffectivePoints(custom, comp))

	inherit := domain.Riddle{Override: domain.ScoringOverride{
		// Ignored without the flag.
		Points: domain.PointConfig{First: 9, Others: 9},
	}}
	assert.Equal(t, domain.PointConfig{First: 2, Others: 1}, app.EffectivePoints(inherit, comp))

	assert.Equal(t, domain.PointConfig{First: 2, Others: 1}, app.EffectivePoints(inherit, nil))
	assert.Equal(t, app.DefaultPoints, app.EffectivePoints(inherit, &domain.Competition{ID: "bare"}))
}

func TestBonusOverridePrecedence(t *testing.T) {
	comp := &domain.Competition{ID: "c1", Bonus: &domain.BonusConfig{Single: 4}}

	custom := domain.Riddle{Override: domain.ScoringOverride{CustomBonus: true, Bonus: domain.BonusConfig{Single: 1}}}
	assert.Equal(t, 1, app.BonusForCorrectCount(1, custom, comp))
	assert.Equal(t, 4, app.BonusForCorrectCount(1, domain.Riddle{}, comp))
	assert.Equal(t, domain.BonusConfig{}, app.EffectiveBonus(domain.Riddle{}, nil))

	// Overriding points does not override the bonus.
	pointsOnly := domain.Riddle{Override: domain.ScoringOverride{CustomPoints: true, Points: domain.PointConfig{First: 3}}}
	p := app.ResolvePolicy(pointsOnly, comp)
	assert.Equal(t, app.SourceRiddle, p.PointsSource)
	assert.Equal(t, app.SourceCompetition, p.BonusSource)
}

func TestPointsForPosition(t *testing.T) {
	riddle := domain.Riddle{}
	assert.Equal(t, 2, app.PointsForPosition(0, riddle, nil))
	assert.Equal(t, 1, app.PointsForPosition(1, riddle, nil))
	assert.Equal(t, 1, app.PointsForPosition(7, riddle, nil))
}
