package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riddle-league/internal/app"
	"riddle-league/internal/infra/memory"
)

const sampleCatalog = `
users:
  - id: alice
    displayName: Alice
competitions:
  - id: autumn
    name: Autumn League
    points: {first: 3, others: 1}
    bonus: {single: 2, twoToFive: 1, sixToTen: 0}
riddles:
  - id: cat
    title: Whiskers
    question: Who purrs?
    solution: Gatto
    startsAt: 2024-11-22T10:00:00Z
    endsAt: 2024-11-22T11:00:00Z
    competitionId: autumn
    override:
      customPoints: true
      points: {first: 5, others: 2}
participants:
  autumn: [alice]
`

func TestDecodeAndSeedCatalog(t *testing.T) {
	ctx := context.Background()
	catalog, err := app.DecodeCatalog(strings.NewReader(sampleCatalog))
	require.NoError(t, err)
	require.Len(t, catalog.Riddles, 1)
	assert.Equal(t, time.Date(2024, 11, 22, 11, 0, 0, 0, time.UTC), catalog.Riddles[0].EndsAt)
	assert.Equal(t, 5, catalog.Riddles[0].Override.Points.First)

	store := memory.NewStore()
	require.NoError(t, app.Seed(ctx, store, catalog))

	comp, err := store.Competition(ctx, "autumn")
	require.NoError(t, err)
	assert.Equal(t, 1, comp.Participants)
	require.NotNil(t, comp.Bonus)
	assert.Equal(t, 2, comp.Bonus.Single)

	points, ok := store.CompetitionScore("autumn", "alice")
	assert.True(t, ok)
	assert.Equal(t, 0, points)
}

func TestDecodeCatalogRejectsInvertedWindow(t *testing.T) {
	_, err := app.DecodeCatalog(strings.NewReader(`
riddles:
  - id: r
    startsAt: 2024-11-22T11:00:00Z
    endsAt: 2024-11-22T10:00:00Z
`))
	require.Error(t, err)
}

func TestDecodeCatalogRejectsUnknownFields(t *testing.T) {
	_, err := app.DecodeCatalog(strings.NewReader("riddles:\n  - id: r\n    puntiCustom: true\n"))
	require.Error(t, err)
}
