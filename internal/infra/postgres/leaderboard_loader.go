package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

// LeaderboardLoader reads competition standings straight from Postgres.
type LeaderboardLoader struct {
	pool *pgxpool.Pool
}

func NewLeaderboardLoader(pool *pgxpool.Pool) *LeaderboardLoader {
	return &LeaderboardLoader{pool: pool}
}

func (l *LeaderboardLoader) LoadLeaderboard(ctx context.Context, competitionID string) (domain.Leaderboard, error) {
	var updatedAt time.Time
	err := l.pool.QueryRow(ctx, `SELECT now() FROM competitions WHERE id=$1`, competitionID).Scan(&updatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Leaderboard{}, domain.ErrCompetitionNotFound
	}
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load competition: %w", err)
	}

	rows, err := l.pool.Query(ctx, `
		SELECT cs.user_id, COALESCE(u.display_name, ''), cs.points
		FROM competition_scores cs
		LEFT JOIN users u ON u.id = cs.user_id
		WHERE cs.competition_id=$1`, competitionID)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.LeaderboardEntry, 0)
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.DisplayName, &e.Points); err != nil {
			return domain.Leaderboard{}, fmt.Errorf("scan leaderboard: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("load leaderboard: %w", err)
	}

	return domain.Leaderboard{
		CompetitionID: competitionID,
		Entries:       app.RankLeaderboard(entries),
		UpdatedAt:     updatedAt,
	}, nil
}
