package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"riddle-league/internal/app"
	"riddle-league/internal/domain"
)

var (
	_ app.Store             = (*Store)(nil)
	_ app.LeaderboardLoader = (*Store)(nil)
)

type scoreKey struct {
	competitionID string
	userID        string
}

// Store is an in-memory implementation of app.Store. Transactions are
// serialized and their writes become visible all at once on commit.
type Store struct {
	clock func() time.Time

	txMu sync.Mutex

	mu           sync.RWMutex
	users        map[string]domain.User
	competitions map[string]domain.Competition
	riddles      map[string]domain.Riddle
	answers      map[string]domain.Answer
	scores       map[scoreKey]int

	fault *writeFault
}

type writeFault struct {
	after int
	err   error
	// persist commits the writes staged before the failure.
	persist bool
}

type StoreOption func(*Store)

// WithClock replaces the server clock, for deterministic tests.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.clock = now }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		clock:        time.Now,
		users:        make(map[string]domain.User),
		competitions: make(map[string]domain.Competition),
		riddles:      make(map[string]domain.Riddle),
		answers:      make(map[string]domain.Answer),
		scores:       make(map[scoreKey]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FailWritesAfter makes the next transaction fail with err once it has staged
// n writes. The transaction rolls back.
func (s *Store) FailWritesAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = &writeFault{after: n, err: err}
}

// FailWritesAfterPersisting is FailWritesAfter for a backend without
// atomic commit: the first n writes stay applied and err is returned unmarked.
func (s *Store) FailWritesAfterPersisting(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = &writeFault{after: n, err: err, persist: true}
}

func (s *Store) ServerTime(context.Context) (time.Time, error) {
	return s.clock(), nil
}

func (s *Store) Riddle(_ context.Context, id string) (domain.Riddle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.riddles[id]
	if !ok {
		return domain.Riddle{}, domain.ErrRiddleNotFound
	}
	return r, nil
}

func (s *Store) Competition(_ context.Context, id string) (domain.Competition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.competitions[id]
	if !ok {
		return domain.Competition{}, domain.ErrCompetitionNotFound
	}
	return c, nil
}

// User returns a user with its global point total.
func (s *Store) User(_ context.Context, id string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

// CompetitionScore returns a user's running total and whether they joined.
func (s *Store) CompetitionScore(competitionID, userID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	points, ok := s.scores[scoreKey{competitionID, userID}]
	return points, ok
}

// RiddleAnswers returns every answer of a riddle in submission order.
func (s *Store) RiddleAnswers(riddleID string) []domain.Answer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answersLocked(riddleID, "")
}

func (s *Store) UnscoredRiddles(_ context.Context, endedBy time.Time) ([]domain.Riddle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Riddle, 0)
	for _, r := range s.riddles {
		if r.NeedsScoring(endedBy) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndsAt.Equal(out[j].EndsAt) {
			return out[i].EndsAt.Before(out[j].EndsAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) HasAnswered(_ context.Context, riddleID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.answers {
		if a.RiddleID == riddleID && a.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// InsertAnswer holds the transaction lock so that a scoring commit cannot land
// between the window check and the insert.
func (s *Store) InsertAnswer(_ context.Context, answer domain.Answer) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.riddles[answer.RiddleID]
	if !ok {
		return domain.ErrRiddleNotFound
	}
	if r.PointsAssigned || r.ClosedAt(s.clock()) {
		return domain.ErrRiddleClosed
	}
	s.answers[answer.ID] = answer
	return nil
}

func (s *Store) UserAnswers(_ context.Context, riddleID, userID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.answersLocked(riddleID, userID), nil
}

func (s *Store) answersLocked(riddleID, userID string) []domain.Answer {
	out := make([]domain.Answer, 0)
	for _, a := range s.answers {
		if a.RiddleID != riddleID || (userID != "" && a.UserID != userID) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) JoinCompetition(_ context.Context, competitionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.competitions[competitionID]
	if !ok {
		return domain.ErrCompetitionNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	key := scoreKey{competitionID, userID}
	if _, ok := s.scores[key]; ok {
		return domain.ErrAlreadyJoined
	}
	s.scores[key] = 0
	c.Participants++
	s.competitions[competitionID] = c
	return nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.JoinedAt.IsZero() {
		user.JoinedAt = s.clock()
	}
	s.users[user.ID] = user
	return nil
}

func (s *Store) CreateCompetition(_ context.Context, competition domain.Competition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.competitions[competition.ID] = competition
	return nil
}

func (s *Store) CreateRiddle(_ context.Context, riddle domain.Riddle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if riddle.CompetitionID != "" {
		if _, ok := s.competitions[riddle.CompetitionID]; !ok {
			return domain.ErrCompetitionNotFound
		}
	}
	if riddle.CreatedAt.IsZero() {
		riddle.CreatedAt = s.clock()
	}
	s.riddles[riddle.ID] = riddle
	return nil
}

func (s *Store) LoadLeaderboard(_ context.Context, competitionID string) (domain.Leaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.competitions[competitionID]; !ok {
		return domain.Leaderboard{}, domain.ErrCompetitionNotFound
	}
	entries := make([]domain.LeaderboardEntry, 0)
	for key, points := range s.scores {
		if key.competitionID != competitionID {
			continue
		}
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      key.userID,
			DisplayName: s.users[key.userID].DisplayName,
			Points:      points,
		})
	}
	return domain.Leaderboard{
		CompetitionID: competitionID,
		Entries:       app.RankLeaderboard(entries),
		UpdatedAt:     s.clock(),
	}, nil
}

func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx app.ScoringTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	fault := s.fault
	s.fault = nil
	s.mu.Unlock()

	tx := &memTx{
		store:       s,
		fault:       fault,
		scores:      make(map[string]domain.AnswerScore),
		userDeltas:  make(map[string]int),
		scoreDeltas: make(map[scoreKey]int),
	}
	if err := fn(ctx, tx); err != nil {
		if fault != nil && fault.persist && errors.Is(err, fault.err) {
			tx.commit()
			return err
		}
		return domain.RolledBack(err)
	}
	tx.commit()
	return nil
}

// memTx stages writes until commit. Reads see the transaction's own writes.
type memTx struct {
	store  *Store
	fault  *writeFault
	writes int

	scores      map[string]domain.AnswerScore
	userDeltas  map[string]int
	scoreDeltas map[scoreKey]int
	result      map[string]domain.RiddleResult
}

func (t *memTx) write() error {
	if t.fault != nil && t.writes >= t.fault.after {
		return t.fault.err
	}
	t.writes++
	return nil
}

func (t *memTx) LockRiddle(ctx context.Context, id string) (domain.Riddle, error) {
	r, err := t.store.Riddle(ctx, id)
	if err != nil {
		return r, err
	}
	if _, ok := t.result[id]; ok {
		r.PointsAssigned = true
	}
	return r, nil
}

func (t *memTx) Answers(_ context.Context, riddleID string) ([]domain.Answer, error) {
	answers := t.store.RiddleAnswers(riddleID)
	for i, a := range answers {
		if score, ok := t.scores[a.ID]; ok {
			answers[i] = applyScore(a, score)
		}
	}
	return answers, nil
}

func (t *memTx) SaveAnswerScore(_ context.Context, score domain.AnswerScore) error {
	if err := t.write(); err != nil {
		return err
	}
	t.scores[score.AnswerID] = score
	return nil
}

func (t *memTx) CreditCompetition(_ context.Context, competitionID, userID string, points int) (bool, error) {
	key := scoreKey{competitionID, userID}
	t.store.mu.RLock()
	_, ok := t.store.scores[key]
	t.store.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := t.write(); err != nil {
		return false, err
	}
	t.scoreDeltas[key] += points
	return true, nil
}

func (t *memTx) CreditUser(_ context.Context, userID string, points int) (bool, error) {
	t.store.mu.RLock()
	_, ok := t.store.users[userID]
	t.store.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := t.write(); err != nil {
		return false, err
	}
	t.userDeltas[userID] += points
	return true, nil
}

func (t *memTx) MarkScored(ctx context.Context, riddleID string, result domain.RiddleResult) error {
	r, err := t.LockRiddle(ctx, riddleID)
	if err != nil {
		return err
	}
	if r.PointsAssigned {
		return domain.ErrAlreadyScored
	}
	if err := t.write(); err != nil {
		return err
	}
	if t.result == nil {
		t.result = make(map[string]domain.RiddleResult)
	}
	t.result[riddleID] = result
	return nil
}

func (t *memTx) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, score := range t.scores {
		if a, ok := s.answers[id]; ok {
			s.answers[id] = applyScore(a, score)
		}
	}
	for key, delta := range t.scoreDeltas {
		s.scores[key] += delta
	}
	for id, delta := range t.userDeltas {
		u := s.users[id]
		u.Points += delta
		s.users[id] = u
	}
	for id, result := range t.result {
		r := s.riddles[id]
		processedAt := result.ProcessedAt
		count := result.CorrectCount
		r.PointsAssigned = true
		r.FirstSolver = result.FirstSolver
		r.CorrectCount = &count
		r.ProcessedAt = &processedAt
		s.riddles[id] = r
	}
}

func applyScore(a domain.Answer, score domain.AnswerScore) domain.Answer {
	correct := score.IsCorrect
	a.Points = score.Points
	a.Bonus = score.Bonus
	a.IsCorrect = &correct
	a.Duplicate = score.Duplicate
	return a
}
