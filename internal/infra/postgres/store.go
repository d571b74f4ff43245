package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

var _ app.Store = (*Store)(nil)

const foreignKeyViolation = "23503"

// Store implements app.Store on Postgres through bun. Scoring transactions lock
// the riddle row, so concurrent scorers of one riddle queue behind each other.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ServerTime(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.db.QueryRowContext(ctx, "SELECT now()").Scan(&now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

func (s *Store) Riddle(ctx context.Context, id string) (domain.Riddle, error) {
	return selectRiddle(ctx, s.db, id, "")
}

func (s *Store) Competition(ctx context.Context, id string) (domain.Competition, error) {
	var row competitionRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Competition{}, domain.ErrCompetitionNotFound
	}
	if err != nil {
		return domain.Competition{}, fmt.Errorf("select competition: %w", err)
	}
	return row.toDomain(), nil
}

// User returns a user with its global point total.
func (s *Store) User(ctx context.Context, id string) (domain.User, error) {
	var row userRow
	err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("select user: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) UnscoredRiddles(ctx context.Context, endedBy time.Time) ([]domain.Riddle, error) {
	var rows []riddleRow
	err := s.db.NewSelect().Model(&rows).
		Where("points_assigned = FALSE").
		Where("ends_at <= ?", endedBy).
		Order("ends_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select unscored riddles: %w", err)
	}
	out := make([]domain.Riddle, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) HasAnswered(ctx context.Context, riddleID, userID string) (bool, error) {
	return s.db.NewSelect().Model((*answerRow)(nil)).
		Where("riddle_id = ?", riddleID).
		Where("user_id = ?", userID).
		Exists(ctx)
}

// InsertAnswer takes a share lock on the riddle row. A scoring transaction
// holding the row for update makes it wait and then see points_assigned.
func (s *Store) InsertAnswer(ctx context.Context, answer domain.Answer) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		riddle, err := selectRiddle(ctx, tx, answer.RiddleID, "SHARE")
		if err != nil {
			return err
		}
		var now time.Time
		if err := tx.QueryRowContext(ctx, "SELECT statement_timestamp()").Scan(&now); err != nil {
			return err
		}
		if riddle.PointsAssigned || riddle.ClosedAt(now) {
			return domain.ErrRiddleClosed
		}
		_, err = tx.NewInsert().Model(newAnswerRow(answer)).Exec(ctx)
		if isForeignKeyViolation(err) {
			return domain.ErrRiddleNotFound
		}
		return err
	})
}

func (s *Store) UserAnswers(ctx context.Context, riddleID, userID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("riddle_id = ?", riddleID).
		Where("user_id = ?", userID).
		Order("submitted_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select user answers: %w", err)
	}
	return answersToDomain(rows), nil
}

func (s *Store) JoinCompetition(ctx context.Context, competitionID, userID string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*competitionRow)(nil)).Where("id = ?", competitionID).For("UPDATE").Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrCompetitionNotFound
		}

		res, err := tx.NewInsert().
			Model(&competitionScoreRow{CompetitionID: competitionID, UserID: userID}).
			On("CONFLICT DO NOTHING").
			Exec(ctx)
		if isForeignKeyViolation(err) {
			return domain.ErrUserNotFound
		}
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrAlreadyJoined
		}

		_, err = tx.NewUpdate().Model((*competitionRow)(nil)).
			Set("participants = participants + 1").
			Where("id = ?", competitionID).
			Exec(ctx)
		return err
	})
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	_, err := s.db.NewInsert().Model(newUserRow(user)).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Exec(ctx)
	return err
}

func (s *Store) CreateCompetition(ctx context.Context, competition domain.Competition) error {
	_, err := s.db.NewInsert().Model(newCompetitionRow(competition)).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("starts_at = EXCLUDED.starts_at").
		Set("ends_at = EXCLUDED.ends_at").
		Set("points = EXCLUDED.points").
		Set("bonus = EXCLUDED.bonus").
		Exec(ctx)
	return err
}

func (s *Store) CreateRiddle(ctx context.Context, riddle domain.Riddle) error {
	// Scoring fields are never overwritten by authoring.
	_, err := s.db.NewInsert().Model(newRiddleRow(riddle)).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("question = EXCLUDED.question").
		Set("solution = EXCLUDED.solution").
		Set("starts_at = EXCLUDED.starts_at").
		Set("ends_at = EXCLUDED.ends_at").
		Set("override = EXCLUDED.override").
		Where("r.points_assigned = FALSE").
		Exec(ctx)
	if isForeignKeyViolation(err) {
		return domain.ErrCompetitionNotFound
	}
	return err
}

// Transaction runs fn in one database transaction. RunInTx rolls back on any
// error from fn or from commit, so every failure is reported as rolled back.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx app.ScoringTx) error) error {
	err := s.db.RunInTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &scoringTx{tx: tx})
	})
	return domain.RolledBack(err)
}

type scoringTx struct {
	tx bun.Tx
}

func (t *scoringTx) LockRiddle(ctx context.Context, id string) (domain.Riddle, error) {
	return selectRiddle(ctx, t.tx, id, "UPDATE")
}

func (t *scoringTx) Answers(ctx context.Context, riddleID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := t.tx.NewSelect().Model(&rows).
		Where("riddle_id = ?", riddleID).
		Order("submitted_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	return answersToDomain(rows), nil
}

func (t *scoringTx) SaveAnswerScore(ctx context.Context, score domain.AnswerScore) error {
	_, err := t.tx.NewUpdate().Model((*answerRow)(nil)).
		Set("points = ?", score.Points).
		Set("bonus = ?", score.Bonus).
		Set("is_correct = ?", score.IsCorrect).
		Set("duplicate = ?", score.Duplicate).
		Where("id = ?", score.AnswerID).
		Exec(ctx)
	return err
}

func (t *scoringTx) CreditCompetition(ctx context.Context, competitionID, userID string, points int) (bool, error) {
	res, err := t.tx.NewUpdate().Model((*competitionScoreRow)(nil)).
		Set("points = points + ?", points).
		Where("competition_id = ?", competitionID).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t *scoringTx) CreditUser(ctx context.Context, userID string, points int) (bool, error) {
	res, err := t.tx.NewUpdate().Model((*userRow)(nil)).
		Set("points = points + ?", points).
		Where("id = ?", userID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (t *scoringTx) MarkScored(ctx context.Context, riddleID string, result domain.RiddleResult) error {
	res, err := t.tx.NewUpdate().Model((*riddleRow)(nil)).
		Set("points_assigned = TRUE").
		Set("first_solver = ?", result.FirstSolver).
		Set("correct_count = ?", result.CorrectCount).
		Set("processed_at = ?", result.ProcessedAt).
		Where("id = ?", riddleID).
		Where("points_assigned = FALSE").
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAlreadyScored
	}
	return nil
}

// selectRiddle reads one riddle, locking the row when lock names a row-level
// lock strength.
func selectRiddle(ctx context.Context, db bun.IDB, id, lock string) (domain.Riddle, error) {
	var row riddleRow
	q := db.NewSelect().Model(&row).Where("id = ?", id)
	if lock != "" {
		q = q.For(lock)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Riddle{}, domain.ErrRiddleNotFound
	}
	if err != nil {
		return domain.Riddle{}, fmt.Errorf("select riddle: %w", err)
	}
	return row.toDomain(), nil
}

func isForeignKeyViolation(err error) bool {
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == foreignKeyViolation
}
